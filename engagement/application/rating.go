package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"marketplace-engine/engagement/domain"
)

// RatingAggregator mantém average_rating/rating_count de um prestador
// consistentes sob escritores concorrentes.
//
// Recalcula sempre a partir do conjunto de avaliações moderadas, com a seção
// crítica (upsert + recálculo + escrita) serializada por prestador via Locks.
// Prestadores diferentes nunca se bloqueiam.
type RatingAggregator struct {
	Store     domain.RatingStore
	Providers domain.ProviderReader
	// Locks nil desliga a serialização (só serve para backends de escritor único).
	Locks   domain.KeyLocker
	Timeout time.Duration
	Clock   Clock
	Logger  *slog.Logger
}

func (a RatingAggregator) lock(ctx context.Context, provider domain.ProviderID) (func(), error) {
	if a.Locks == nil {
		return func() {}, nil
	}
	cctx, cancel := withTimeout(ctx, a.Timeout)
	defer cancel()
	unlock, err := a.Locks.Lock(cctx, "provider:"+provider.String())
	if err != nil {
		return nil, domain.Unavailable("lock provider", err)
	}
	return unlock, nil
}

// UpsertRating cria ou sobrescreve a avaliação do par (usuário, prestador) e
// recalcula o agregado logo em seguida.
//
// Se só o recálculo falhar, o registro é devolvido junto com um erro
// ErrStaleAggregate: o agregado anterior continua gravado.
func (a RatingAggregator) UpsertRating(ctx context.Context, user domain.UserID, provider domain.ProviderID, value int, comment *string) (domain.RatingRecord, bool, error) {
	if err := domain.ValidRating(value); err != nil {
		return domain.RatingRecord{}, false, err
	}
	comment = normalizeComment(comment)

	if err := a.ensureProvider(ctx, provider); err != nil {
		return domain.RatingRecord{}, false, err
	}

	unlock, err := a.lock(ctx, provider)
	if err != nil {
		return domain.RatingRecord{}, false, err
	}
	defer unlock()

	cctx, cancel := withTimeout(ctx, a.Timeout)
	rec, wasNew, err := a.Store.UpsertRating(cctx, user, provider, value, comment, a.Clock.now())
	cancel()
	if err != nil {
		return domain.RatingRecord{}, false, storeErr("upsert rating", err)
	}

	if _, _, err := a.recompute(ctx, provider); err != nil {
		return rec, wasNew, fmt.Errorf("%w: %w", domain.ErrStaleAggregate, err)
	}
	return rec, wasNew, nil
}

// RecomputeAggregate recalcula média/contagem a partir das avaliações moderadas
// e grava no prestador.
func (a RatingAggregator) RecomputeAggregate(ctx context.Context, provider domain.ProviderID) (float64, int, error) {
	unlock, err := a.lock(ctx, provider)
	if err != nil {
		return 0, 0, err
	}
	defer unlock()
	return a.recompute(ctx, provider)
}

// SetModerated é o ponto de gancho de moderação: muda o flag e recalcula.
func (a RatingAggregator) SetModerated(ctx context.Context, user domain.UserID, provider domain.ProviderID, moderated bool) (domain.RatingRecord, error) {
	unlock, err := a.lock(ctx, provider)
	if err != nil {
		return domain.RatingRecord{}, err
	}
	defer unlock()

	cctx, cancel := withTimeout(ctx, a.Timeout)
	rec, err := a.Store.SetRatingModerated(cctx, user, provider, moderated, a.Clock.now())
	cancel()
	if err != nil {
		return domain.RatingRecord{}, storeErr("set rating moderation", err)
	}
	if _, _, err := a.recompute(ctx, provider); err != nil {
		return rec, fmt.Errorf("%w: %w", domain.ErrStaleAggregate, err)
	}
	return rec, nil
}

// ProviderRatings lista as avaliações moderadas mais recentes de um prestador.
func (a RatingAggregator) ProviderRatings(ctx context.Context, provider domain.ProviderID, limit int) ([]domain.RatingRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	cctx, cancel := withTimeout(ctx, a.Timeout)
	defer cancel()
	out, err := a.Store.ListModeratedRatings(cctx, provider, limit)
	if err != nil {
		return nil, storeErr("list ratings", err)
	}
	return out, nil
}

// recompute assume que o lock do prestador já está com quem chama.
func (a RatingAggregator) recompute(ctx context.Context, provider domain.ProviderID) (float64, int, error) {
	cctx, cancel := withTimeout(ctx, a.Timeout)
	defer cancel()

	ratings, err := a.Store.ListModeratedRatings(cctx, provider, 0)
	if err != nil {
		loggerOr(a.Logger).Error("aggregate recompute read failed", "provider", provider, "error", err)
		return 0, 0, storeErr("list moderated ratings", err)
	}
	avg, n := domain.Summarize(ratings)
	if err := a.Store.WriteAggregate(cctx, provider, avg, n); err != nil {
		loggerOr(a.Logger).Error("aggregate write failed, previous aggregate kept", "provider", provider, "error", err)
		return 0, 0, storeErr("write aggregate", err)
	}
	return avg, n, nil
}

func (a RatingAggregator) ensureProvider(ctx context.Context, provider domain.ProviderID) error {
	if a.Providers == nil {
		return nil
	}
	cctx, cancel := withTimeout(ctx, a.Timeout)
	defer cancel()
	if _, err := a.Providers.GetProvider(cctx, provider); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("provider %d: %w", provider, domain.ErrNotFound)
		}
		return storeErr("get provider", err)
	}
	return nil
}

func normalizeComment(c *string) *string {
	if c == nil {
		return nil
	}
	v := strings.TrimSpace(*c)
	if v == "" {
		return nil
	}
	return &v
}

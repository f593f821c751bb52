package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"marketplace-engine/engagement/domain"
)

// ContactCounter é o contador de contatos do rate limit (RateLimiter satisfaz).
type ContactCounter interface {
	Increment(ctx context.Context, user domain.UserID, class domain.ActionClass) (int64, error)
}

// LedgerStore é o subconjunto do ProviderStore usado pelo Ledger.
type LedgerStore interface {
	domain.FavoriteStore
	domain.ContactStore
}

const (
	defaultRankingLimit = 10
	maxRankingLimit     = 100
)

// Ledger guarda favoritos (idempotentes) e contatos (append-only).
type Ledger struct {
	Store     LedgerStore
	Providers domain.ProviderReader
	// Counter é opcional; quando presente, RecordContact também incrementa o
	// contador de contatos do rate limit.
	Counter ContactCounter
	Timeout time.Duration
	Clock   Clock
	Logger  *slog.Logger
}

// AddFavorite é idempotente: se já favoritado, devolve o registro existente.
func (l Ledger) AddFavorite(ctx context.Context, user domain.UserID, provider domain.ProviderID) (domain.FavoriteRecord, error) {
	if err := l.ensureProvider(ctx, provider); err != nil {
		return domain.FavoriteRecord{}, err
	}
	cctx, cancel := withTimeout(ctx, l.Timeout)
	defer cancel()
	rec, _, err := l.Store.AddFavorite(cctx, user, provider, l.Clock.now())
	if err != nil {
		return domain.FavoriteRecord{}, storeErr("add favorite", err)
	}
	return rec, nil
}

// RemoveFavorite devolve false quando não havia nada a remover (não é erro).
func (l Ledger) RemoveFavorite(ctx context.Context, user domain.UserID, provider domain.ProviderID) (bool, error) {
	cctx, cancel := withTimeout(ctx, l.Timeout)
	defer cancel()
	removed, err := l.Store.RemoveFavorite(cctx, user, provider)
	if err != nil {
		return false, storeErr("remove favorite", err)
	}
	return removed, nil
}

// ListFavorites devolve os prestadores favoritos, mais recente primeiro.
func (l Ledger) ListFavorites(ctx context.Context, user domain.UserID) ([]domain.ProviderID, error) {
	cctx, cancel := withTimeout(ctx, l.Timeout)
	defer cancel()
	recs, err := l.Store.ListFavorites(cctx, user)
	if err != nil {
		return nil, storeErr("list favorites", err)
	}
	ids := make([]domain.ProviderID, len(recs))
	for i, r := range recs {
		ids[i] = r.ProviderID
	}
	return ids, nil
}

func (l Ledger) IsFavorite(ctx context.Context, user domain.UserID, provider domain.ProviderID) (bool, error) {
	cctx, cancel := withTimeout(ctx, l.Timeout)
	defer cancel()
	_, err := l.Store.GetFavorite(cctx, user, provider)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storeErr("get favorite", err)
	}
	return true, nil
}

// RecordContact sempre acrescenta um ContactRecord (sem deduplicação: a
// contagem de contatos é a própria estatística). Depois dispara dois efeitos
// independentes: contact_count do prestador e o contador do rate limit.
// Falha em qualquer um deles é registrada em log, mas não desfaz o contato.
func (l Ledger) RecordContact(ctx context.Context, user domain.UserID, provider domain.ProviderID) (domain.ContactRecord, error) {
	if err := l.ensureProvider(ctx, provider); err != nil {
		return domain.ContactRecord{}, err
	}

	cctx, cancel := withTimeout(ctx, l.Timeout)
	rec, err := l.Store.AppendContact(cctx, user, provider, l.Clock.now())
	cancel()
	if err != nil {
		return domain.ContactRecord{}, storeErr("append contact", err)
	}

	log := loggerOr(l.Logger)

	cctx, cancel = withTimeout(ctx, l.Timeout)
	if err := l.Store.IncrementContactCount(cctx, provider); err != nil {
		log.Warn("contact count increment failed", "provider", provider, "error", err)
	}
	cancel()

	if l.Counter != nil {
		if _, err := l.Counter.Increment(ctx, user, domain.ActionContact); err != nil && !errors.Is(err, domain.ErrLimitExceeded) {
			log.Warn("contact rate counter increment failed", "user", user, "error", err)
		}
	}
	return rec, nil
}

// RecordView é um contador cego (view_count + 1), sem requisito de consistência.
func (l Ledger) RecordView(ctx context.Context, user domain.UserID, provider domain.ProviderID) error {
	cctx, cancel := withTimeout(ctx, l.Timeout)
	defer cancel()
	if err := l.Store.IncrementViewCount(cctx, provider); err != nil {
		loggerOr(l.Logger).Warn("view count increment failed", "user", user, "provider", provider, "error", err)
		return storeErr("increment view count", err)
	}
	return nil
}

// MostContacted é o ranking de todos os tempos derivado do ledger.
func (l Ledger) MostContacted(ctx context.Context, limit int) ([]domain.ContactCount, error) {
	cctx, cancel := withTimeout(ctx, l.Timeout)
	defer cancel()
	out, err := l.Store.MostContacted(cctx, clampLimit(limit))
	if err != nil {
		return nil, storeErr("most contacted", err)
	}
	return out, nil
}

func (l Ledger) ensureProvider(ctx context.Context, provider domain.ProviderID) error {
	if l.Providers == nil {
		return nil
	}
	cctx, cancel := withTimeout(ctx, l.Timeout)
	defer cancel()
	if _, err := l.Providers.GetProvider(cctx, provider); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("provider %d: %w", provider, domain.ErrNotFound)
		}
		return storeErr("get provider", err)
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultRankingLimit
	}
	if limit > maxRankingLimit {
		return maxRankingLimit
	}
	return limit
}

package application

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"marketplace-engine/engagement/domain"
)

// RatingCounter conta avaliações persistidas desde um instante.
type RatingCounter interface {
	CountRatingsSince(ctx context.Context, user domain.UserID, since time.Time) (int64, error)
}

// RateLimiter guarda os contadores por (usuário, classe de ação).
//
// A aplicação é consultiva na borda da chamada (checa, age, incrementa): sob
// rajada concorrente do mesmo usuário uma ação a mais pode passar. É uma corrida
// conhecida e aceita; não há lock distribuído aqui.
//
// Falhas de dependência fecham a porta: sem conseguir verificar, nega a ação.
type RateLimiter struct {
	Cache domain.SessionCache
	// Ratings é a fonte da política de calendário (contagem derivada dos registros).
	Ratings RatingCounter
	Contact domain.Policy
	Rating  domain.Policy
	Timeout time.Duration
	Clock   Clock
	Logger  *slog.Logger
}

func (l RateLimiter) policy(class domain.ActionClass) (domain.Policy, error) {
	switch class {
	case domain.ActionContact:
		if l.Contact.Limit <= 0 {
			return domain.DefaultContactPolicy(), nil
		}
		p := l.Contact
		if p.Kind == domain.WindowTrailing && p.Length <= 0 {
			p.Length = domain.DefaultContactPolicy().Length
		}
		return p, nil
	case domain.ActionRating:
		if l.Rating.Limit <= 0 {
			return domain.DefaultRatingPolicy(), nil
		}
		return l.Rating, nil
	}
	return domain.Policy{}, fmt.Errorf("%w: unknown action class %q", domain.ErrInvalidArgument, class)
}

// Limit devolve o limite configurado para a classe (0 se desconhecida).
func (l RateLimiter) Limit(class domain.ActionClass) int {
	p, err := l.policy(class)
	if err != nil {
		return 0
	}
	return p.Limit
}

// Peek lê a contagem da janela corrente sem criar nem estender a janela.
func (l RateLimiter) Peek(ctx context.Context, user domain.UserID, class domain.ActionClass) (int64, error) {
	p, err := l.policy(class)
	if err != nil {
		return 0, err
	}
	cctx, cancel := withTimeout(ctx, l.Timeout)
	defer cancel()

	switch p.Kind {
	case domain.WindowCalendarDay:
		if l.Ratings == nil {
			return 0, fmt.Errorf("ratelimit: no counter source for %s", class)
		}
		n, err := l.Ratings.CountRatingsSince(cctx, user, p.WindowStart(l.Clock.now()))
		if err != nil {
			return 0, domain.Unavailable("count ratings", err)
		}
		return n, nil
	default:
		b, ok, err := l.Cache.Get(cctx, domain.RateLimitKey(user, class))
		if err != nil {
			return 0, domain.Unavailable("peek rate limit", err)
		}
		if !ok {
			return 0, nil
		}
		n, err := strconv.ParseInt(string(b), 10, 64)
		if err != nil {
			return 0, domain.Unavailable("peek rate limit", err)
		}
		return n, nil
	}
}

// Check é a verificação antes de agir: nil se a ação pode seguir,
// *domain.LimitError se o limite já foi consumido, ou ErrDependencyUnavailable
// quando não dá para verificar (o chamador deve negar).
func (l RateLimiter) Check(ctx context.Context, user domain.UserID, class domain.ActionClass) error {
	p, err := l.policy(class)
	if err != nil {
		return err
	}
	n, err := l.Peek(ctx, user, class)
	if err != nil {
		loggerOr(l.Logger).Warn("rate limit check failed, denying", "user", user, "class", class, "error", err)
		return err
	}
	if p.Exceeded(n) {
		return &domain.LimitError{Class: class, Limit: p.Limit, Count: n}
	}
	return nil
}

// Increment registra uma ação na janela corrente e devolve a contagem.
// Acima do limite, devolve a contagem e um *domain.LimitError.
//
// Para a política de calendário o próprio RatingRecord é o evento durável,
// então Increment apenas relê a contagem derivada.
func (l RateLimiter) Increment(ctx context.Context, user domain.UserID, class domain.ActionClass) (int64, error) {
	p, err := l.policy(class)
	if err != nil {
		return 0, err
	}

	var n int64
	if p.Kind == domain.WindowCalendarDay {
		n, err = l.Peek(ctx, user, class)
		if err != nil {
			return 0, err
		}
	} else {
		cctx, cancel := withTimeout(ctx, l.Timeout)
		defer cancel()
		n, err = l.Cache.Increment(cctx, domain.RateLimitKey(user, class), p.Length)
		if err != nil {
			loggerOr(l.Logger).Warn("rate limit increment failed", "user", user, "class", class, "error", err)
			return 0, domain.Unavailable("increment rate limit", err)
		}
	}

	if n > int64(p.Limit) {
		return n, &domain.LimitError{Class: class, Limit: p.Limit, Count: n}
	}
	return n, nil
}

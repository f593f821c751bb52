package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"marketplace-engine/engagement/domain"
)

// DefaultCallTimeout limita cada chamada a um colaborador externo.
const DefaultCallTimeout = 2 * time.Second

// Clock permite injetar o tempo nos testes. nil => time.Now.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultCallTimeout
	}
	return context.WithTimeout(ctx, d)
}

func loggerOr(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}

// storeErr preserva NotFound/InvalidArgument e trata o resto como dependência indisponível.
func storeErr(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidArgument) {
		return err
	}
	return domain.Unavailable(op, err)
}

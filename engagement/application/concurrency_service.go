package application

import (
	"context"
	"log/slog"
	"time"

	"marketplace-engine/engagement/domain"
)

// Admission é o desfecho de uma tentativa de vaga.
type Admission int

const (
	Admitted Admission = iota
	// Saturated: esperou AcquireTimeout e todas as vagas continuaram ocupadas.
	Saturated
	// Abandoned: o chamador desistiu antes (ctx da requisição encerrou).
	Abandoned
)

func (a Admission) String() string {
	switch a {
	case Admitted:
		return "admitted"
	case Saturated:
		return "saturated"
	default:
		return "abandoned"
	}
}

// ConcurrencyService limita o trabalho em voo do motor (vagas do SlotPool),
// sem saber nada sobre HTTP.
type ConcurrencyService struct {
	Pool domain.SlotPool
	// AcquireTimeout <= 0 espera até o ctx do chamador encerrar.
	AcquireTimeout time.Duration
	Clock          Clock
	Logger         *slog.Logger
}

// Acquire tenta uma vaga. Fora de Admitted, release é nil.
// Saturação é logada; desistência do chamador não (não é falta de capacidade).
func (s ConcurrencyService) Acquire(ctx context.Context) (release func(), adm Admission) {
	if s.Pool == nil {
		return func() {}, Admitted
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	start := s.Clock.now()
	release, ok := s.Pool.Acquire(acqCtx)
	switch {
	case ok:
		return release, Admitted
	case ctx.Err() != nil:
		return nil, Abandoned
	default:
		loggerOr(s.Logger).Warn("no free slot, rejecting", "waited", s.Clock.now().Sub(start), "timeout", s.AcquireTimeout)
		return nil, Saturated
	}
}

package application

import (
	"context"
	"log/slog"
	"time"

	"marketplace-engine/engagement/domain"
)

// StatsService concentra as leituras do operador e a gravação best-effort de eventos.
type StatsService struct {
	Reader domain.StatsReader
	// Events é opcional; nil desliga o registro de ActionEvent.
	Events  domain.StatsStore
	Timeout time.Duration
	Clock   Clock
	Logger  *slog.Logger
}

func (s StatsService) Overview(ctx context.Context) (domain.Overview, error) {
	cctx, cancel := withTimeout(ctx, s.Timeout)
	defer cancel()
	ov, err := s.Reader.Overview(cctx)
	if err != nil {
		return domain.Overview{}, storeErr("stats overview", err)
	}
	return ov, nil
}

// TopRated segue a mesma política de ordenação da navegação.
func (s StatsService) TopRated(ctx context.Context, limit int) ([]domain.Provider, error) {
	cctx, cancel := withTimeout(ctx, s.Timeout)
	defer cancel()
	out, err := s.Reader.TopRated(cctx, clampLimit(limit))
	if err != nil {
		return nil, storeErr("top rated", err)
	}
	return out, nil
}

func (s StatsService) MostContacted(ctx context.Context, limit int) ([]domain.ContactCount, error) {
	cctx, cancel := withTimeout(ctx, s.Timeout)
	defer cancel()
	out, err := s.Reader.MostContacted(cctx, clampLimit(limit))
	if err != nil {
		return nil, storeErr("most contacted", err)
	}
	return out, nil
}

// Record grava um ActionEvent. Erros só vão para o log (não derrubam a ação).
func (s StatsService) Record(ctx context.Context, user domain.UserID, action string, outcome domain.Outcome) {
	if s.Events == nil {
		return
	}
	cctx, cancel := withTimeout(ctx, s.Timeout)
	defer cancel()
	ev := domain.ActionEvent{User: user, Action: action, Outcome: outcome, At: s.Clock.now()}
	if err := s.Events.Record(cctx, ev); err != nil {
		loggerOr(s.Logger).Debug("stats record failed", "action", action, "error", err)
	}
}

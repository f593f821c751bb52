package infra

import (
	"context"
	"sync"

	"marketplace-engine/engagement/domain"
)

type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
	Failed  int64 `json:"failed"`
}

func (c *Counters) add(o domain.Outcome) {
	switch o {
	case domain.OutcomeAllowed:
		c.Allowed++
	case domain.OutcomeDenied:
		c.Denied++
	default:
		c.Failed++
	}
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu       sync.Mutex
	total    Counters
	byAction map[string]Counters
	byUser   map[domain.UserID]Counters

	trackUsers bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackUsers(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackUsers = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byAction: make(map[string]Counters),
		byUser:   make(map[domain.UserID]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.ActionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Outcome)
	c := s.byAction[ev.Action]
	c.add(ev.Outcome)
	s.byAction[ev.Action] = c
	if s.trackUsers {
		u := s.byUser[ev.User]
		u.add(ev.Outcome)
		s.byUser[ev.User] = u
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByAction() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byAction))
	for k, v := range s.byAction {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) ByUser() map[domain.UserID]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.UserID]Counters, len(s.byUser))
	for k, v := range s.byUser {
		out[k] = v
	}
	return out
}

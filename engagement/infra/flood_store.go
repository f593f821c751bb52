package infra

import (
	"context"
	"sync"
	"time"

	"marketplace-engine/engagement/domain"

	"golang.org/x/time/rate"
)

// FloodStore é o guarda de rajada por usuário: token bucket (x/time/rate)
// com cache por chave e limpeza periódica das chaves ociosas.
type FloodStore struct {
	mu           sync.Mutex
	entries      map[domain.Key]*floodEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type floodEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type FloodOption func(*FloodStore)

func WithIdleTTL(d time.Duration) FloodOption {
	return func(s *FloodStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) FloodOption {
	return func(s *FloodStore) { s.cleanupEvery = d }
}

// WithFloodClock troca o relógio usado para ociosidade (testes).
func WithFloodClock(now func() time.Time) FloodOption {
	return func(s *FloodStore) { s.now = now }
}

func NewFloodStore(rps float64, burst int, opts ...FloodOption) *FloodStore {
	s := &FloodStore{
		entries:      make(map[domain.Key]*floodEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FloodStore) RPS() float64 { return float64(s.rps) }
func (s *FloodStore) Burst() int   { return s.burst }

// Get implementa domain.LimiterStore.
func (s *FloodStore) Get(key domain.Key) domain.Limiter {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(s.rps, s.burst)
	s.entries[key] = &floodEntry{lim: lim, lastSeen: now}
	return lim
}

func (s *FloodStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *FloodStore) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *FloodStore) StartJanitor(ctx context.Context) {
	startJanitor(ctx, s.cleanupEvery, s.Cleanup)
}

func startJanitor(ctx context.Context, every time.Duration, fn func()) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				fn()
			}
		}
	}()
}

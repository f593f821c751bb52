package application

import (
	"time"

	"marketplace-engine/engagement/domain"
)

// FloodService decide se um usuário pode disparar mais uma requisição agora
// (guarda de rajada do transporte, independente das cotas por classe de ação).
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type FloodService struct {
	Store      domain.LimiterStore
	RetryAfter time.Duration
}

func (s FloodService) Decide(key domain.Key) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true}
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = 1 * time.Second
	}

	lim := s.Store.Get(key)
	if lim == nil {
		return domain.Decision{Allowed: true}
	}
	if lim.Allow() {
		return domain.Decision{Allowed: true}
	}
	return domain.Decision{Allowed: false, RetryAfter: s.RetryAfter}
}

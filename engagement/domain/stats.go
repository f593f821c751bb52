package domain

import (
	"context"
	"time"
)

// Outcome é o desfecho de uma ação do motor, para estatística.
type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeDenied  Outcome = "denied"
	OutcomeFailed  Outcome = "failed"
)

// ActionEvent representa uma ação de usuário tratada pelo motor.
//
// Observação: cuidado com cardinalidade (ex.: salvar User sem controle pode
// explodir o número de chaves em uma base como Redis).
type ActionEvent struct {
	User    UserID
	Action  string
	Outcome Outcome
	At      time.Time
}

// StatsStore é a estratégia de persistência para estatísticas de ações.
//
// Implementações podem armazenar em Redis, memória, etc.
// Quem grava deve tratar erro como best-effort (não derrubar a ação).
type StatsStore interface {
	Record(ctx context.Context, ev ActionEvent) error
}

// Overview são os totais exibidos ao operador.
type Overview struct {
	TotalUsers       int64 `json:"total_users"`
	ActiveUsers      int64 `json:"active_users"`
	TotalProviders   int64 `json:"total_providers"`
	ActiveProviders  int64 `json:"active_providers"`
	PendingProviders int64 `json:"pending_providers"`
}

// StatsReader lê os totais agregados do ProviderStore.
type StatsReader interface {
	Overview(ctx context.Context) (Overview, error)
	// TopRated: prestadores aprovados e ativos na ordem da política de navegação.
	TopRated(ctx context.Context, limit int) ([]Provider, error)
	MostContacted(ctx context.Context, limit int) ([]ContactCount, error)
}

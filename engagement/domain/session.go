package domain

import (
	"context"
	"time"
)

// SessionCache é o contrato mínimo sobre um key/value com TTL por chave.
// Não há regra de negócio aqui, apenas get/set/delete/increment com expiração.
//
// Implementações podem usar Redis, memória, etc.
type SessionCache interface {
	// Get devolve (valor, true) ou (nil, false) quando a chave não existe/expirou.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Increment incrementa atomicamente e, na criação da janela, define o TTL
	// na mesma operação (sem "get e depois talvez expire").
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Touch estende o TTL de uma chave existente. Devolve false se ela não existe.
	Touch(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// SessionKey monta a chave session:{userId}:{name}.
func SessionKey(user UserID, name string) string {
	return "session:" + user.String() + ":" + name
}

// RateLimitKey monta a chave ratelimit:{userId}:{actionClass}.
func RateLimitKey(user UserID, class ActionClass) string {
	return "ratelimit:" + user.String() + ":" + string(class)
}

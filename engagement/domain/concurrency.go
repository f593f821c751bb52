package domain

import "context"

// SlotPool representa um recurso com capacidade finita (ex: requisições concorrentes).
//
// A semântica é: Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar.
// Ao adquirir, retorna uma função de release que deve ser chamada exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}

// KeyLocker serializa seções críticas por chave (ex: por prestador), nunca globalmente.
// Chaves diferentes nunca se bloqueiam.
type KeyLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

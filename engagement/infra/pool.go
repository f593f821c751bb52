package infra

import (
	"context"
	"sync"

	"marketplace-engine/engagement/domain"
)

type chanPool struct {
	sem chan struct{}
}

// NewChanPool cria um pool simples baseado em channel com capacidade `max`.
func NewChanPool(max int) domain.SlotPool {
	return &chanPool{sem: make(chan struct{}, max)}
}

func (p *chanPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, true
	case <-ctx.Done():
		return nil, false
	}
}

// KeyLock é um domain.KeyLocker de processo: um semáforo de uma vaga por chave.
// Entradas são removidas quando não há mais dono nem espera.
//
// Serializa apenas dentro do processo; basta enquanto o ProviderStore for um
// arquivo SQLite local com um único escritor.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*keyEntry
}

type keyEntry struct {
	sem  chan struct{}
	refs int
}

func NewKeyLock() *KeyLock {
	return &KeyLock{locks: make(map[string]*keyEntry)}
}

func (l *KeyLock) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*keyEntry)
	}
	ent, ok := l.locks[key]
	if !ok {
		ent = &keyEntry{sem: make(chan struct{}, 1)}
		l.locks[key] = ent
	}
	ent.refs++
	l.mu.Unlock()

	select {
	case ent.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-ent.sem
				l.release(key, ent)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, ent)
		return nil, ctx.Err()
	}
}

func (l *KeyLock) release(key string, ent *keyEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ent.refs--
	if ent.refs == 0 {
		delete(l.locks, key)
	}
}

// Len devolve quantas chaves estão em uso (dono ou espera).
func (l *KeyLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

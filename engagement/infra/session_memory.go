package infra

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemorySessionCache é um SessionCache em memória, para desenvolvimento e
// instância única. A expiração é preguiçosa na leitura e o janitor remove o resto.
type MemorySessionCache struct {
	mu           sync.Mutex
	data         map[string]memEntry
	now          func() time.Time
	cleanupEvery time.Duration
}

type memEntry struct {
	val      []byte
	expireAt time.Time
}

type MemoryCacheOption func(*MemorySessionCache)

func WithMemoryClock(now func() time.Time) MemoryCacheOption {
	return func(c *MemorySessionCache) { c.now = now }
}

func WithMemoryCleanupEvery(d time.Duration) MemoryCacheOption {
	return func(c *MemorySessionCache) { c.cleanupEvery = d }
}

func NewMemorySessionCache(opts ...MemoryCacheOption) *MemorySessionCache {
	c := &MemorySessionCache{
		data:         make(map[string]memEntry),
		now:          time.Now,
		cleanupEvery: time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// live devolve a entrada se ainda válida. Chamar com mu.
func (c *MemorySessionCache) live(key string, now time.Time) (memEntry, bool) {
	e, ok := c.data[key]
	if !ok {
		return memEntry{}, false
	}
	if !now.Before(e.expireAt) {
		delete(c.data, key)
		return memEntry{}, false
	}
	return e, true
}

func (c *MemorySessionCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(key, c.now())
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(e.val))
	copy(out, e.val)
	return out, true, nil
}

func (c *MemorySessionCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return errNonPositiveTTL
	}
	v := make([]byte, len(value))
	copy(v, value)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = memEntry{val: v, expireAt: c.now().Add(ttl)}
	return nil
}

func (c *MemorySessionCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// Increment cria a chave com o TTL no primeiro incremento; depois não mexe no TTL.
func (c *MemorySessionCache) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, errNonPositiveTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, ok := c.live(key, now)
	var n int64
	if ok {
		var err error
		n, err = strconv.ParseInt(string(e.val), 10, 64)
		if err != nil {
			return 0, err
		}
	} else {
		e.expireAt = now.Add(ttl)
	}
	n++
	e.val = []byte(strconv.FormatInt(n, 10))
	c.data[key] = e
	return n, nil
}

func (c *MemorySessionCache) Touch(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, errNonPositiveTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	e, ok := c.live(key, now)
	if !ok {
		return false, nil
	}
	e.expireAt = now.Add(ttl)
	c.data[key] = e
	return true, nil
}

// Cleanup remove as chaves expiradas.
func (c *MemorySessionCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.data {
		if !now.Before(e.expireAt) {
			delete(c.data, k)
		}
	}
}

func (c *MemorySessionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

func (c *MemorySessionCache) StartJanitor(ctx context.Context) {
	startJanitor(ctx, c.cleanupEvery, c.Cleanup)
}

func (c *MemorySessionCache) Close() error { return nil }

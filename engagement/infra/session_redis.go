package infra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

var errNonPositiveTTL = errors.New("session cache: ttl must be > 0")

// incrementScript incrementa e, se a janela acabou de nascer (ou perdeu o TTL),
// define a expiração na mesma operação atômica.
var incrementScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 or redis.call('PTTL', KEYS[1]) < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// RedisSessionCache implementa domain.SessionCache sobre Redis.
//
// Não há cliente global: quem cria o *redis.Client (DialRedis) é dono do ciclo
// de vida e fecha com Close.
type RedisSessionCache struct {
	rdb    *redis.Client
	prefix string
	logger *slog.Logger
}

type RedisCacheOption func(*RedisSessionCache)

// WithKeyPrefix prefixa todas as chaves (ex: separar ambientes no mesmo Redis).
func WithKeyPrefix(prefix string) RedisCacheOption {
	return func(c *RedisSessionCache) { c.prefix = prefix }
}

func WithCacheLogger(l *slog.Logger) RedisCacheOption {
	return func(c *RedisSessionCache) { c.logger = l }
}

func NewRedisSessionCache(rdb *redis.Client, opts ...RedisCacheOption) *RedisSessionCache {
	c := &RedisSessionCache{rdb: rdb, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RedisOptions são os parâmetros de conexão.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration
}

// DialRedis cria o cliente e valida a conexão com PING.
func DialRedis(ctx context.Context, o RedisOptions) (*redis.Client, error) {
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Second
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         o.Addr,
		Password:     o.Password,
		DB:           o.DB,
		DialTimeout:  o.Timeout,
		ReadTimeout:  o.Timeout,
		WriteTimeout: o.Timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", o.Addr, err)
	}
	return rdb, nil
}

func (c *RedisSessionCache) key(k string) string { return c.prefix + k }

func (c *RedisSessionCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		c.logger.Debug("redis get failed", "key", key, "error", err)
		return nil, false, err
	}
	return b, true, nil
}

func (c *RedisSessionCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return errNonPositiveTTL
	}
	return c.rdb.Set(ctx, c.key(key), value, ttl).Err()
}

func (c *RedisSessionCache) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, c.key(key)).Err()
}

func (c *RedisSessionCache) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, errNonPositiveTTL
	}
	n, err := incrementScript.Run(ctx, c.rdb, []string{c.key(key)}, ttl.Milliseconds()).Int64()
	if err != nil {
		c.logger.Debug("redis increment failed", "key", key, "error", err)
		return 0, err
	}
	return n, nil
}

func (c *RedisSessionCache) Touch(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, errNonPositiveTTL
	}
	return c.rdb.PExpire(ctx, c.key(key), ttl).Result()
}

func (c *RedisSessionCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

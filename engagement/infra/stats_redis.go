package infra

import (
	"context"
	"strconv"
	"strings"
	"time"

	"marketplace-engine/engagement/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore grava ActionEvent em hashes do Redis:
//
//	{prefix}:total          campo "{action}:{outcome}" (cumulativo, não expira)
//	{prefix}:day:YYYYMMDD   mesmo campo, com TTL
//	{prefix}:user:{id}      mesmo campo, com TTL (só com trackUsers)
type RedisStatsStore struct {
	rdb *redis.Client

	prefix string
	// ttl aplica apenas nas chaves por dia / por usuário.
	ttl time.Duration

	trackUsers bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsTrackUsers(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackUsers = track }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "engagement:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func statsField(ev domain.ActionEvent) string {
	action := strings.TrimSpace(ev.Action)
	if action == "" {
		action = "unknown"
	}
	return action + ":" + string(ev.Outcome)
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.ActionEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := statsField(ev)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	dayKey := s.prefix + ":day:" + at.UTC().Format("20060102")
	pipe.HIncrBy(ctx, dayKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, dayKey, s.ttl)
	}

	if s.trackUsers && ev.User > 0 {
		userKey := s.prefix + ":user:" + ev.User.String()
		pipe.HIncrBy(ctx, userKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, userKey, s.ttl)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Totals lê os contadores cumulativos por "{action}:{outcome}".
func (s *RedisStatsStore) Totals(ctx context.Context) (map[string]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}

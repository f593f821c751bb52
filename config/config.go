// Package config carrega a configuração do motor: padrões, depois um arquivo
// YAML opcional e por fim as variáveis de ambiente.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"marketplace-engine/engagement/domain"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Config struct {
	ListenAddr      string        `yaml:"listen_addr" env:"LISTEN_ADDR"`
	DatabasePath    string        `yaml:"database_path" env:"DATABASE_PATH"`
	CallTimeout     time.Duration `yaml:"call_timeout" env:"CALL_TIMEOUT"`
	DefaultLanguage string        `yaml:"default_language" env:"DEFAULT_LANGUAGE"`
	AdminIDs        []int64       `yaml:"admin_ids" env:"ADMIN_IDS" envSeparator:","`

	Session     SessionConfig     `yaml:"session"`
	Redis       RedisConfig       `yaml:"redis"`
	Limits      LimitsConfig      `yaml:"limits"`
	Flood       FloodConfig       `yaml:"flood"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Stats       StatsConfig       `yaml:"stats"`
	Log         LogConfig         `yaml:"log"`
}

type SessionConfig struct {
	Backend string        `yaml:"backend" env:"SESSION_BACKEND"`
	TTL     time.Duration `yaml:"ttl" env:"SESSION_TTL"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

type LimitsConfig struct {
	ContactPerHour int           `yaml:"contact_per_hour" env:"CONTACT_LIMIT_PER_HOUR"`
	ContactWindow  time.Duration `yaml:"contact_window" env:"CONTACT_WINDOW"`
	RatingPerDay   int           `yaml:"rating_per_day" env:"RATING_LIMIT_PER_DAY"`
}

type FloodConfig struct {
	RPS   float64 `yaml:"rps" env:"FLOOD_RPS"`
	Burst int     `yaml:"burst" env:"FLOOD_BURST"`
}

type ConcurrencyConfig struct {
	Max     int           `yaml:"max" env:"CONCURRENCY_MAX"`
	Timeout time.Duration `yaml:"timeout" env:"CONCURRENCY_TIMEOUT"`
}

type StatsConfig struct {
	Enabled    bool          `yaml:"enabled" env:"STATS_ENABLED"`
	Prefix     string        `yaml:"prefix" env:"STATS_PREFIX"`
	TTL        time.Duration `yaml:"ttl" env:"STATS_TTL"`
	TrackUsers bool          `yaml:"track_users" env:"STATS_TRACK_USERS"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:      ":8080",
		DatabasePath:    "marketplace.db",
		CallTimeout:     2 * time.Second,
		DefaultLanguage: string(domain.LangRU),
		Session:         SessionConfig{Backend: BackendRedis, TTL: time.Hour},
		Redis:           RedisConfig{Addr: "localhost:6379"},
		Limits:          LimitsConfig{ContactPerHour: 10, ContactWindow: time.Hour, RatingPerDay: 20},
		Flood:           FloodConfig{RPS: 5, Burst: 10},
		Concurrency:     ConcurrencyConfig{Max: 100},
		Stats:           StatsConfig{Prefix: "engagement:stats", TTL: 24 * time.Hour},
		Log:             LogConfig{Level: "info", Format: "json"},
	}
}

// Load aplica padrões → YAML (se path != "") → ambiente, e valida.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decodeYAML(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate rejeita limites, TTLs e timeouts não positivos, backend e idioma desconhecidos.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(strings.TrimSpace(c.ListenAddr) != "", "listen_addr is required")
	check(strings.TrimSpace(c.DatabasePath) != "", "database_path is required")
	check(c.CallTimeout > 0, "call_timeout must be > 0, got %s", c.CallTimeout)
	check(domain.Lang(c.DefaultLanguage).Valid(), "default_language %q: want en, ru or uz", c.DefaultLanguage)
	for _, id := range c.AdminIDs {
		check(id > 0, "admin id %d must be > 0", id)
	}

	check(c.Session.Backend == BackendRedis || c.Session.Backend == BackendMemory,
		"session backend %q: want redis or memory", c.Session.Backend)
	check(c.Session.TTL > 0, "session ttl must be > 0, got %s", c.Session.TTL)
	if c.Session.Backend == BackendRedis {
		check(strings.TrimSpace(c.Redis.Addr) != "", "redis addr is required for the redis backend")
	}

	check(c.Limits.ContactPerHour > 0, "contact limit must be > 0, got %d", c.Limits.ContactPerHour)
	check(c.Limits.ContactWindow > 0, "contact window must be > 0, got %s", c.Limits.ContactWindow)
	check(c.Limits.RatingPerDay > 0, "rating limit must be > 0, got %d", c.Limits.RatingPerDay)

	check(c.Flood.RPS > 0, "flood rps must be > 0, got %v", c.Flood.RPS)
	check(c.Flood.Burst > 0, "flood burst must be > 0, got %d", c.Flood.Burst)
	check(c.Concurrency.Max >= 0, "concurrency max must be >= 0, got %d", c.Concurrency.Max)
	check(c.Concurrency.Timeout >= 0, "concurrency timeout must be >= 0, got %s", c.Concurrency.Timeout)

	if c.Stats.Enabled {
		check(c.Stats.TTL > 0, "stats ttl must be > 0, got %s", c.Stats.TTL)
	}
	return errors.Join(errs...)
}

// Admins devolve o conjunto de operadores com acesso às estatísticas.
func (c Config) Admins() map[domain.UserID]bool {
	out := make(map[domain.UserID]bool, len(c.AdminIDs))
	for _, id := range c.AdminIDs {
		out[domain.UserID(id)] = true
	}
	return out
}

// ContactPolicy e RatingPolicy convertem os limites em políticas do domínio.
func (c Config) ContactPolicy() domain.Policy {
	return domain.Policy{Class: domain.ActionContact, Limit: c.Limits.ContactPerHour, Kind: domain.WindowTrailing, Length: c.Limits.ContactWindow}
}

func (c Config) RatingPolicy() domain.Policy {
	return domain.Policy{Class: domain.ActionRating, Limit: c.Limits.RatingPerDay, Kind: domain.WindowCalendarDay}
}

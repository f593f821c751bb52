package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"marketplace-engine/engagement/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultConfig_IsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, BackendRedis, cfg.Session.Backend)
	assert.Equal(t, time.Hour, cfg.Session.TTL)
	assert.Equal(t, 10, cfg.Limits.ContactPerHour)
	assert.Equal(t, 20, cfg.Limits.RatingPerDay)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := writeFile(t, `
listen_addr: ":9090"
default_language: uz
admin_ids: [1, 2]
session:
  backend: memory
  ttl: 30m
limits:
  contact_per_hour: 5
`)
	t.Setenv("CONTACT_LIMIT_PER_HOUR", "7")
	t.Setenv("ADMIN_IDS", "10,11,12")
	t.Setenv("CALL_TIMEOUT", "500ms")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "uz", cfg.DefaultLanguage)
	assert.Equal(t, BackendMemory, cfg.Session.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
	assert.Equal(t, 7, cfg.Limits.ContactPerHour, "env wins over yaml")
	assert.Equal(t, 500*time.Millisecond, cfg.CallTimeout)
	assert.Equal(t, map[domain.UserID]bool{10: true, 11: true, 12: true}, cfg.Admins())
	// valores não tocados continuam no padrão
	assert.Equal(t, 20, cfg.Limits.RatingPerDay)
}

func TestLoad_RejectsUnknownYAMLKey(t *testing.T) {
	path := writeFile(t, "listen_adr: \":1\"\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown backend":    func(c *Config) { c.Session.Backend = "memcached" },
		"zero session ttl":   func(c *Config) { c.Session.TTL = 0 },
		"zero contact":       func(c *Config) { c.Limits.ContactPerHour = 0 },
		"negative window":    func(c *Config) { c.Limits.ContactWindow = -time.Second },
		"zero rating limit":  func(c *Config) { c.Limits.RatingPerDay = 0 },
		"zero timeout":       func(c *Config) { c.CallTimeout = 0 },
		"unknown language":   func(c *Config) { c.DefaultLanguage = "de" },
		"zero flood rps":     func(c *Config) { c.Flood.RPS = 0 },
		"bad admin id":       func(c *Config) { c.AdminIDs = []int64{0} },
		"redis without addr": func(c *Config) { c.Redis.Addr = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	cfg.Session.Backend = BackendMemory
	cfg.Redis.Addr = ""
	cfg.Stats.Enabled = true
	assert.NoError(t, cfg.Validate(), "memory backend keeps stats in memory")
}

func TestPolicies(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, domain.Policy{Class: domain.ActionContact, Limit: 10, Kind: domain.WindowTrailing, Length: time.Hour}, cfg.ContactPolicy())
	assert.Equal(t, domain.WindowCalendarDay, cfg.RatingPolicy().Kind)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"marketplace-engine/config"
	"marketplace-engine/engagement"
	"marketplace-engine/engagement/application"
	"marketplace-engine/engagement/domain"
	"marketplace-engine/engagement/infra"
	"marketplace-engine/logging"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg, logger)
		},
	}
}

// engine junta o handler pronto e o que precisa ser fechado no fim.
type engine struct {
	handler http.Handler
	closers []func() error
}

func (e *engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i]())
	}
	return errors.Join(errs...)
}

// buildEngine monta store, cache, serviços e middlewares. Os janitors
// em memória param quando ctx encerra.
func buildEngine(ctx context.Context, cfg config.Config, logger *slog.Logger) (*engine, error) {
	e := &engine{}
	fail := func(err error) (*engine, error) {
		_ = e.Close()
		return nil, err
	}

	db, err := infra.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return fail(err)
	}
	e.closers = append(e.closers, db.Close)
	if _, err := infra.NewMigrationRunner(db).Run(); err != nil {
		return fail(fmt.Errorf("migrate: %w", err))
	}
	store := infra.NewSQLiteStore(db, infra.WithStoreLogger(logging.Channel(logger, logging.ChannelStore)))

	var (
		cache  domain.SessionCache
		events domain.StatsStore
	)
	switch cfg.Session.Backend {
	case config.BackendRedis:
		rdb, err := infra.DialRedis(ctx, infra.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Timeout:  cfg.CallTimeout,
		})
		if err != nil {
			return fail(err)
		}
		e.closers = append(e.closers, rdb.Close)
		cache = infra.NewRedisSessionCache(rdb, infra.WithCacheLogger(logging.Channel(logger, logging.ChannelCache)))
		if cfg.Stats.Enabled {
			events = newRedisStats(rdb, cfg.Stats)
		}
	default:
		mem := infra.NewMemorySessionCache()
		mem.StartJanitor(ctx)
		cache = mem
		if cfg.Stats.Enabled {
			events = infra.NewMemoryStatsStore(infra.WithTrackUsers(cfg.Stats.TrackUsers))
		}
	}

	limits := application.RateLimiter{
		Cache:   cache,
		Ratings: store,
		Contact: cfg.ContactPolicy(),
		Rating:  cfg.RatingPolicy(),
		Timeout: cfg.CallTimeout,
		Logger:  logging.Channel(logger, logging.ChannelRateLimit),
	}
	h := &engagement.Handler{
		Browse: application.BrowsingService{
			Cache: cache, Providers: store, Catalog: store,
			TTL: cfg.Session.TTL, Timeout: cfg.CallTimeout,
			Logger: logging.Channel(logger, logging.ChannelBrowse),
		},
		Limits: limits,
		Ratings: application.RatingAggregator{
			Store: store, Providers: store, Locks: infra.NewKeyLock(),
			Timeout: cfg.CallTimeout, Logger: logging.Channel(logger, logging.ChannelRating),
		},
		Ledger: application.Ledger{
			Store: store, Providers: store, Counter: limits,
			Timeout: cfg.CallTimeout, Logger: logging.Channel(logger, logging.ChannelLedger),
		},
		Registration: application.RegistrationFlow{
			Cache: cache, Users: store, Catalog: store,
			TTL: cfg.Session.TTL, Timeout: cfg.CallTimeout,
			Logger: logging.Channel(logger, logging.ChannelSignup),
		},
		Stats: application.StatsService{
			Reader: store, Events: events, Timeout: cfg.CallTimeout,
			Logger: logging.Channel(logger, logging.ChannelStats),
		},
		Providers:   store,
		Catalog:     store,
		Admins:      cfg.Admins(),
		DefaultLang: domain.Lang(cfg.DefaultLanguage),
		Logger:      logging.Channel(logger, logging.ChannelHTTP),
	}

	flood := infra.NewFloodStore(cfg.Flood.RPS, cfg.Flood.Burst)
	flood.StartJanitor(ctx)

	var handler http.Handler = h.Routes()
	handler = engagement.ConcurrencyMiddleware(engagement.ConcurrencyOptions{
		Max:            cfg.Concurrency.Max,
		AcquireTimeout: cfg.Concurrency.Timeout,
		Stats:          events,
		Logger:         logging.Channel(logger, logging.ChannelHTTP),
	})(handler)
	handler = engagement.FloodGuard(engagement.FloodOptions{
		Store:      flood,
		Stats:      events,
		RetryAfter: time.Second,
	})(handler)
	e.handler = engagement.RequestID(handler)
	return e, nil
}

func newRedisStats(rdb *redis.Client, sc config.StatsConfig) domain.StatsStore {
	return infra.NewRedisStatsStore(rdb,
		infra.WithStatsPrefix(sc.Prefix),
		infra.WithStatsTTL(sc.TTL),
		infra.WithStatsTrackUsers(sc.TrackUsers),
	)
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	log := logging.Channel(logger, logging.ChannelStartup)

	eng, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(); err != nil {
			log.Warn("close failed", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           eng.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("engine listening",
		"addr", cfg.ListenAddr,
		"database", cfg.DatabasePath,
		"session_backend", cfg.Session.Backend,
		"session_ttl", cfg.Session.TTL,
		"contact_limit", cfg.Limits.ContactPerHour,
		"rating_limit", cfg.Limits.RatingPerDay,
		"flood_rps", cfg.Flood.RPS,
		"flood_burst", cfg.Flood.Burst,
		"concurrency_max", cfg.Concurrency.Max,
		"stats", cfg.Stats.Enabled,
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

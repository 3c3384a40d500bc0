package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/dilneiss/CSRFProtector/config"
	"github.com/dilneiss/CSRFProtector/core"
	"github.com/dilneiss/CSRFProtector/storage"

	"go.uber.org/zap"
)

// StoreOptions maps the store section of cfg onto storage options.
// Backends with native expiry keep records for one token lifetime.
func StoreOptions(cfg *config.Config) storage.Options {
	return storage.Options{
		Backend:             cfg.Store.Backend,
		MemoryMaxEntries:    cfg.Store.Memory.MaxEntries,
		MemoryMaxPerSession: cfg.Store.Memory.MaxPerSession,
		Redis: storage.RedisOptions{
			Addr:      cfg.Store.Redis.Addr,
			Password:  cfg.Store.Redis.Password,
			DB:        cfg.Store.Redis.DB,
			PoolSize:  cfg.Store.Redis.PoolSize,
			KeyPrefix: cfg.Store.Redis.KeyPrefix,
		},
		SQLitePath: cfg.Store.SQLite.Path,
		TTL:        cfg.Token.Lifetime,
	}
}

// InitSessionStore opens the configured token store
func InitSessionStore(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (core.SessionStore, error) {
	opts := StoreOptions(cfg)

	if opts.Backend == storage.BackendSQLite {
		if err := EnsureDataDirectory(opts.SQLitePath, sugar); err != nil {
			return nil, fmt.Errorf("pre-flight check failed: %w", err)
		}
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	store, err := storage.NewSessionStore(connectCtx, opts, sugar)
	if err != nil {
		switch opts.Backend {
		case storage.BackendRedis:
			sugar.Error(ClassifyRedisError(err, opts.Redis.Addr))
		case storage.BackendSQLite:
			sugar.Error(ClassifySQLiteError(err, opts.SQLitePath))
		}
		return nil, fmt.Errorf("failed to initialize %s token store: %w", opts.Backend, err)
	}

	sugar.Infow("Token store initialized", "backend", opts.Backend)
	return store, nil
}

// Sweeper periodically removes records older than one token lifetime.
// Expired records are never accepted, so sweeping only reclaims space.
type Sweeper struct {
	store    core.SessionStore
	interval time.Duration
	lifetime time.Duration
	now      func() time.Time
	logger   *zap.SugaredLogger
}

// NewSweeper creates a Sweeper. A non-positive interval disables it.
func NewSweeper(store core.SessionStore, interval, lifetime time.Duration, logger *zap.SugaredLogger) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		lifetime: lifetime,
		now:      time.Now,
		logger:   logger,
	}
}

// SweepOnce removes every record issued at least one lifetime ago
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	removed, err := s.store.Sweep(ctx, s.now().Add(-s.lifetime))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Debugw("Swept expired tokens", "removed", removed)
	}
	return removed, nil
}

// Run sweeps on every tick until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("Token sweeper disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, s.interval)
			if _, err := s.SweepOnce(sweepCtx); err != nil {
				s.logger.Warnw("Token sweep failed", "error", err)
			}
			cancel()
		}
	}
}

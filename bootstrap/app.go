package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/dilneiss/CSRFProtector/api"
	"github.com/dilneiss/CSRFProtector/config"
	"github.com/dilneiss/CSRFProtector/core"
	"github.com/dilneiss/CSRFProtector/notify"
	"github.com/dilneiss/CSRFProtector/util/goroutine"

	"go.uber.org/zap"
)

// App represents the token service with all its components.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	Store     core.SessionStore
	Notifier  *notify.Notifier
	Guard     *core.Guard
	Sweeper   *Sweeper
	APIServer *api.API

	serviceWg   *sync.WaitGroup
	stopSweeper context.CancelFunc
	listener    net.Listener
}

// NewApp loads configuration from the environment and initializes all components.
func NewApp(ctx context.Context) (*App, error) {
	logger, sugar, level, err := InitLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	sugar.Info("CSRF guard starting...")

	cfg, err := InitConfig(sugar)
	if err != nil {
		return nil, err
	}
	if err := ApplyLogLevel(level, cfg.Log.Level); err != nil {
		return nil, err
	}

	return NewAppWithConfig(ctx, cfg, logger)
}

// NewAppWithConfig initializes all components from an already loaded cfg.
func NewAppWithConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	sugar := logger.Sugar()
	app := &App{
		Config:    cfg,
		Logger:    logger,
		Sugar:     sugar,
		serviceWg: &sync.WaitGroup{},
	}

	store, err := InitSessionStore(ctx, cfg, sugar)
	if err != nil {
		return nil, err
	}
	app.Store = store

	app.Notifier = InitNotifier(cfg, sugar)

	guard, err := InitGuard(cfg, store, app.Notifier, sugar)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	app.Guard = guard

	app.Sweeper = NewSweeper(store, cfg.Store.SweepInterval, cfg.Token.Lifetime, sugar)
	app.APIServer = api.NewAPI(guard, cfg, sugar)

	return app, nil
}

// InitNotifier builds the operator report channels from cfg
func InitNotifier(cfg *config.Config, sugar *zap.SugaredLogger) *notify.Notifier {
	channels := make([]notify.ChannelConfig, 0, len(cfg.Notify.Channels))
	for _, ch := range cfg.Notify.Channels {
		channels = append(channels, notify.ChannelConfig{
			Enabled:        ch.Enabled,
			Type:           notify.ChannelType(ch.Type),
			SMTPHost:       ch.SMTPHost,
			SMTPPort:       ch.SMTPPort,
			SMTPUsername:   ch.SMTPUsername,
			SMTPPassword:   ch.SMTPPassword,
			FromAddress:    ch.FromAddress,
			ToAddresses:    ch.ToAddresses,
			WebhookURL:     ch.WebhookURL,
			WebhookMethod:  ch.WebhookMethod,
			WebhookHeaders: ch.WebhookHeaders,
		})
	}

	enabled := 0
	for _, ch := range channels {
		if ch.Enabled {
			enabled++
		}
	}
	if enabled == 0 && !cfg.IsDevelopment() {
		sugar.Warn("No report channel enabled: unprotected forms will only be logged")
	}

	return notify.NewNotifier(channels, cfg.Notify.System, cfg.Notify.RatePerMinute, sugar)
}

// InitGuard builds the token guard from the token section of cfg
func InitGuard(cfg *config.Config, store core.SessionStore, reporter core.Reporter, sugar *zap.SugaredLogger) (*core.Guard, error) {
	generator, err := core.NewTokenGenerator(cfg.Token.ValueStrategy)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token generator: %w", err)
	}

	if cfg.Token.SaltPrefix == "" || cfg.Token.SaltSuffix == "" {
		sugar.Warn("Using built-in access key salts; set token.salt_prefix and token.salt_suffix per deployment")
	}

	return core.NewGuard(store, generator, reporter, core.GuardConfig{
		Lifetime: cfg.Token.Lifetime,
		Mode:     core.Mode(cfg.Mode),
		Deriver:  core.NewAccessKeyDeriver(cfg.Token.SaltPrefix, cfg.Token.SaltSuffix),
	}, sugar), nil
}

// Start starts the sweeper and the API server.
func (a *App) Start(ctx context.Context) error {
	sweepCtx, cancel := context.WithCancel(ctx)
	a.stopSweeper = cancel
	goroutine.Go(a.serviceWg, "token-sweeper", a.Sugar, func() {
		a.Sweeper.Run(sweepCtx)
	})

	addr := net.JoinHostPort(a.Config.Server.Host, strconv.Itoa(a.Config.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		a.stopSweeper()
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	a.listener = ln

	goroutine.Go(a.serviceWg, "api-server", a.Sugar, func() {
		a.Sugar.Infof("API server started on %s", ln.Addr())

		var err error
		if a.Config.Server.TLS {
			err = a.APIServer.ServeTLS(ln, a.Config.Server.CertFile, a.Config.Server.KeyFile)
		} else {
			err = a.APIServer.Serve(ln)
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Sugar.Errorf("API server error: %v", err)
		}
	})

	return nil
}

// Addr returns the address the API server listens on, or nil before Start
func (a *App) Addr() net.Addr {
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// WaitForShutdown blocks until a shutdown signal is received.
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown() {
	a.Sugar.Info("Shutting down...")

	// Phase 1 - Stop accepting requests so no token is issued after the store closes
	a.Sugar.Info("Phase 1: Stopping API server...")
	if a.APIServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.APIServer.Stop(ctx); err != nil {
			a.Sugar.Errorw("Failed to stop API server", "error", err)
		}
		cancel()
	}

	// Phase 2 - Stop the sweeper
	a.Sugar.Info("Phase 2: Stopping token sweeper...")
	if a.stopSweeper != nil {
		a.stopSweeper()
	}

	// Phase 3 - Wait for service goroutines
	a.Sugar.Info("Phase 3: Waiting for service goroutines to complete...")
	done := make(chan struct{})
	go func() {
		a.serviceWg.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.Sugar.Info("All service goroutines stopped successfully")
	case <-time.After(10 * time.Second):
		a.Sugar.Warn("Service goroutine shutdown timed out")
	}

	// Phase 4 - Close the token store
	a.Sugar.Info("Phase 4: Closing token store...")
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Sugar.Errorw("Failed to close token store", "error", err)
		}
	}

	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
}

// Package server wires the identity service together: it opens the
// credential store, applies migrations, builds the token provider and the
// authorization gates, and runs the API, web and gRPC listeners until a
// shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/libraryauth/internal/logging"
	"github.com/dmitrijs2005/libraryauth/internal/server/api"
	"github.com/dmitrijs2005/libraryauth/internal/server/auth"
	"github.com/dmitrijs2005/libraryauth/internal/server/authz"
	"github.com/dmitrijs2005/libraryauth/internal/server/config"
	"github.com/dmitrijs2005/libraryauth/internal/server/metrics"
	"github.com/dmitrijs2005/libraryauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/libraryauth/internal/server/services"
	"github.com/dmitrijs2005/libraryauth/internal/server/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	gs "github.com/dmitrijs2005/libraryauth/internal/server/grpc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	registry *prometheus.Registry
	api      *api.Server
	web      *web.Server
	grpc     *gs.GRPCServer
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger := logging.NewJSONLogger(os.Stdout, level)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	db, rm, err := repomanager.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	app, err := newApp(cfg, logger, db, rm)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

// newApp builds the listeners on top of an already migrated store.
func newApp(cfg *config.Config, logger logging.Logger, db *sql.DB, rm repomanager.RepositoryManager) (*App, error) {
	tokens, err := auth.NewProvider([]byte(cfg.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("token provider: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	us := services.NewUserService(db, rm, tokens, cfg,
		services.WithLogger(logger),
		services.WithMetrics(m),
	)

	apiGate := authz.NewGate("api", tokens, authz.BearerToken,
		authz.WithLogger(logger),
		authz.WithMetrics(m),
	)

	cookie := auth.SessionCookie{Name: cfg.CookieName, TTL: cfg.SessionTTL, Secure: cfg.CookieSecure}
	webGate := authz.NewGate("web", tokens, authz.CookieSource(cookie),
		authz.WithLogger(logger),
		authz.WithMetrics(m),
		authz.WithDeniedHandler(authz.RedirectToLogin(cfg.LoginPath)),
	)

	return &App{
		config:   cfg,
		logger:   logger,
		db:       db,
		registry: reg,
		api:      api.NewServer(us, apiGate, reg, logger),
		web:      web.NewServer(us, tokens, cookie, webGate, cfg.LoginPath, logger),
		grpc:     gs.NewGRPCServer(cfg.GRPCAddr, logger, tokens, gs.HealthPolicy(), gs.WithMetrics(m)),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// run starts fn and cancels the whole app if it fails.
func (app *App) run(ctx context.Context, cancelFunc context.CancelFunc, name string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		app.logger.Error(ctx, "listener failed", "listener", name, "error", err)
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...",
		"api", app.config.APIAddr,
		"web", app.config.WebAddr,
		"grpc", app.config.GRPCAddr,
	)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.run(ctx, cancelFunc, "api", func(ctx context.Context) error { return app.api.Run(ctx, app.config.APIAddr) })
	}()
	go func() {
		defer wg.Done()
		app.run(ctx, cancelFunc, "web", func(ctx context.Context) error { return app.web.Run(ctx, app.config.WebAddr) })
	}()
	go func() {
		defer wg.Done()
		app.run(ctx, cancelFunc, "grpc", app.grpc.Run)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "closing database", "error", err)
	}
	app.logger.Info(context.Background(), "Stopped")
}

// Package app builds and runs the REMS web application.
//
// CreateApp is the application factory: it turns a resolved config.Config
// into a ready-to-serve Application without binding any socket. Boot is the
// process bootstrap used by cmd/rems:
//
//	func main() {
//	    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	    defer stop()
//	    if err := app.Boot(ctx, app.NewFactory(app.WithRoutes(registerRoutes))); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// Route and model registration belong to the caller; the application only
// ships /healthz and /metrics.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/rems-acc/rems/config"
	"github.com/rems-acc/rems/pkg/cache"
	"github.com/rems-acc/rems/pkg/database"
	"github.com/rems-acc/rems/pkg/logger"
	"github.com/rems-acc/rems/pkg/metrics"
	"github.com/rems-acc/rems/pkg/router"
)

// Factory constructs an Application from resolved configuration.
type Factory func(cfg config.Config) (*Application, error)

// Option customises CreateApp.
type Option func(*options)

type options struct {
	routesFns []func(*router.Router)
	models    []interface{}
	log       *slog.Logger
}

// WithRoutes registers a route-registration callback. Callbacks run in the
// order given, after the built-in routes.
func WithRoutes(fn func(*router.Router)) Option {
	return func(o *options) { o.routesFns = append(o.routesFns, fn) }
}

// WithModels adds GORM models that are auto-migrated during construction.
func WithModels(models ...interface{}) Option {
	return func(o *options) { o.models = append(o.models, models...) }
}

// WithLogger uses log instead of configuring the global logger from cfg.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// NewFactory binds options into a Factory.
func NewFactory(opts ...Option) Factory {
	return func(cfg config.Config) (*Application, error) {
		return CreateApp(cfg, opts...)
	}
}

// Application is a fully wired web application. It owns its database and
// cache connections until Close.
type Application struct {
	cfg     config.Config
	log     *slog.Logger
	db      *gorm.DB
	cache   *cache.Store
	metrics *metrics.Metrics
	router  *router.Router
	handler http.Handler

	closeOnce sync.Once
	closeErr  error
}

// CreateApp opens the database, connects the optional cache, migrates the
// registered models and assembles the HTTP handler. It never listens on a
// socket. On failure everything acquired so far is released.
func CreateApp(cfg config.Config, opts ...Option) (*Application, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	log := o.log
	if log == nil {
		log = logger.Setup(logger.Options{Level: cfg.LogLevel, JSON: cfg.IsProduction()})
	}
	if cfg.Debug && cfg.IsProduction() {
		log.Warn("debug mode is on in a production environment; error responses will expose stack traces")
	}

	a := &Application{cfg: cfg, log: log}

	dbOpts := database.DefaultOptions()
	dbOpts.Debug = cfg.Debug
	db, err := database.Open(cfg.DatabaseURI, dbOpts)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.db = db

	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		store, err := cache.Connect(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		cancel()
		if err != nil {
			// The cache is optional; run without it.
			log.Warn("cache unavailable", "addr", cfg.RedisAddr, "err", err)
		} else {
			a.cache = store
		}
	}

	if len(o.models) > 0 {
		if err := db.AutoMigrate(o.models...); err != nil {
			a.Close() //nolint:errcheck
			return nil, fmt.Errorf("app: auto-migrate: %w", err)
		}
	}

	a.metrics = metrics.New()
	sqlDB, err := db.DB()
	if err != nil {
		a.Close() //nolint:errcheck
		return nil, fmt.Errorf("app: get sql.DB: %w", err)
	}
	if err := a.metrics.RegisterDB(sqlDB, "main"); err != nil {
		a.Close() //nolint:errcheck
		return nil, fmt.Errorf("app: register db metrics: %w", err)
	}

	if err := a.buildHandler(o.routesFns); err != nil {
		a.Close() //nolint:errcheck
		return nil, fmt.Errorf("app: build handler: %w", err)
	}

	log.Debug("application created",
		"db", database.Redact(cfg.DatabaseURI),
		"cache", a.cache.Enabled(),
		"routes", len(a.router.Routes()),
	)
	return a, nil
}

// Config returns the configuration the application was built with.
func (a *Application) Config() config.Config { return a.cfg }

// DB returns the main database handle.
func (a *Application) DB() *gorm.DB { return a.db }

// Cache returns the cache store; it is nil-safe when Redis is not set up.
func (a *Application) Cache() *cache.Store { return a.cache }

// Metrics returns the application's Prometheus registry wrapper.
func (a *Application) Metrics() *metrics.Metrics { return a.metrics }

// Logger returns the application logger.
func (a *Application) Logger() *slog.Logger { return a.log }

// Handler returns the root HTTP handler.
func (a *Application) Handler() http.Handler { return a.handler }

// Routes lists every mounted route.
func (a *Application) Routes() []router.RouteInfo { return a.router.Routes() }

// Close releases the cache and database connections. Later calls return
// the result of the first.
func (a *Application) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		if err := a.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("app: close cache: %w", err))
		}
		if err := database.Close(a.db); err != nil {
			errs = append(errs, fmt.Errorf("app: close database: %w", err))
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

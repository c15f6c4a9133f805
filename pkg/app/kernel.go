package app

// kernel.go assembles the middleware stack and built-in routes.

import (
	"context"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/rems-acc/rems/pkg/database"
	"github.com/rems-acc/rems/pkg/logger"
	"github.com/rems-acc/rems/pkg/middleware"
	"github.com/rems-acc/rems/pkg/reqid"
	"github.com/rems-acc/rems/pkg/response"
	"github.com/rems-acc/rems/pkg/router"
)

const healthTimeout = 2 * time.Second

func (a *Application) buildHandler(routesFns []func(*router.Router)) error {
	r := router.New()

	// Global middleware stack (outermost → innermost):
	//  1. Prometheus metrics, for total latency
	//  2. RealIP, only when TRUST_PROXY is set
	//  3. Request ID, before anything logs
	//  4. Logger, sees the final status even after a recovered panic
	//  5. Recovery, verbose only in debug mode
	//  6. CORS
	//  7. Rate limiter, when RATE_LIMIT_RPS > 0
	r.Use(a.metrics.Middleware())
	if a.cfg.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(reqid.Middleware())
	r.Use(middleware.RequestLogger(a.log))
	r.Use(middleware.Recovery(a.cfg.Debug))

	cors := middleware.DefaultCORSOptions()
	if len(a.cfg.CORSOrigins) > 0 {
		cors.AllowedOrigins = a.cfg.CORSOrigins
	}
	r.Use(middleware.CORS(cors))

	if a.cfg.RateLimit > 0 {
		rl, err := middleware.NewRateLimiter(a.cfg.RateLimit, a.cfg.RateBurst, 0)
		if err != nil {
			return err
		}
		r.Use(rl.Middleware)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) { response.NotFound(w) })
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) { response.MethodNotAllowed(w) })

	r.Get("/healthz", "health", a.health)
	r.Get("/metrics", "metrics", a.metrics.Handler())

	for _, fn := range routesFns {
		fn(r)
	}

	a.router = r
	a.handler = r.Handler()
	return nil
}

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// health pings the database and, when configured, the cache.
func (a *Application) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	log := logger.WithCtx(r.Context())
	report := healthReport{Status: "ok", Checks: map[string]string{}}
	status := http.StatusOK

	if err := database.Ping(ctx, a.db); err != nil {
		log.Warn("health: database unreachable", "err", err)
		report.Checks["database"] = "down"
		status = http.StatusServiceUnavailable
	} else {
		report.Checks["database"] = "up"
	}

	if a.cache.Enabled() {
		if err := a.cache.Ping(ctx); err != nil {
			log.Warn("health: cache unreachable", "err", err)
			report.Checks["cache"] = "down"
			status = http.StatusServiceUnavailable
		} else {
			report.Checks["cache"] = "up"
		}
	}

	if status != http.StatusOK {
		report.Status = "degraded"
	}
	response.JSON(w, status, report)
}

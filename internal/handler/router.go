package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/prn-tf/alexander-library/internal/metrics"
)

// DatabaseChecker reports whether the store is reachable.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// Router wires handlers and middleware into one http.Handler.
type Router struct {
	bookHandler        *BookHandler
	categoryHandler    *CategoryHandler
	reservationHandler *ReservationHandler
	userHandler        *UserHandler
	authMiddleware     func(http.Handler) http.Handler
	rateLimiter        *RateLimiter
	database           DatabaseChecker
	metrics            *metrics.Metrics
	metricsPath        string
	logger             zerolog.Logger
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	BookHandler        *BookHandler
	CategoryHandler    *CategoryHandler
	ReservationHandler *ReservationHandler
	UserHandler        *UserHandler

	// AuthMiddleware resolves the acting user. Required.
	AuthMiddleware func(http.Handler) http.Handler

	// RateLimiter is optional.
	RateLimiter *RateLimiter

	// Database backs the health check. Optional.
	Database DatabaseChecker

	// Metrics and MetricsPath expose Prometheus metrics when Metrics is set.
	Metrics     *metrics.Metrics
	MetricsPath string

	Logger zerolog.Logger
}

// NewRouter creates a new Router.
func NewRouter(config RouterConfig) *Router {
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	return &Router{
		bookHandler:        config.BookHandler,
		categoryHandler:    config.CategoryHandler,
		reservationHandler: config.ReservationHandler,
		userHandler:        config.UserHandler,
		authMiddleware:     config.AuthMiddleware,
		rateLimiter:        config.RateLimiter,
		database:           config.Database,
		metrics:            config.Metrics,
		metricsPath:        config.MetricsPath,
		logger:             config.Logger.With().Str("component", "router").Logger(),
	}
}

// Handler returns the main HTTP handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(rt.logger))
	r.Use(rt.requestIDField)
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(rt.instrument)

	// Operational endpoints skip auth and rate limiting.
	r.Get("/health", rt.handleHealth)
	if rt.metrics != nil {
		r.Handle(rt.metricsPath, rt.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if rt.rateLimiter != nil {
			r.Use(rt.rateLimiter.Middleware)
		}
		r.Use(rt.authMiddleware)

		rt.bookHandler.RegisterRoutes(r)
		rt.categoryHandler.RegisterRoutes(r)
		rt.reservationHandler.RegisterRoutes(r)
		rt.userHandler.RegisterRoutes(r)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method_not_allowed", Message: "method not allowed"})
	})

	return r
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

// handleHealth handles health check requests.
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	if rt.database == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := rt.database.Ping(ctx); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("database ping failed")
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Database: "unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Database: "ok"})
}

// requestIDField adds chi's request id to the request logger.
func (rt *Router) requestIDField(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			logger := zerolog.Ctx(r.Context())
			logger.UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("request_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}

// instrument records request metrics by route pattern.
func (rt *Router) instrument(next http.Handler) http.Handler {
	if rt.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		rt.metrics.RecordHTTPRequest(route, r.Method, strconv.Itoa(status), time.Since(start))
	})
}

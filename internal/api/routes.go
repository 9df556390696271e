package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/ignite/campaign-sheet-sync/internal/config"
	"github.com/ignite/campaign-sheet-sync/internal/pkg/httputil"
	"github.com/ignite/campaign-sheet-sync/internal/pkg/logger"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, cfg config.ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		if cfg.RateLimitPerSecond > 0 {
			burst := cfg.RateLimitBurst
			if burst <= 0 {
				burst = 1
			}
			r.Use(rateLimit(rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), burst)))
		}

		r.Get("/classify", h.Classify)
		r.Get("/appends", h.ListAppends)

		r.Route("/batches", func(r chi.Router) {
			r.Post("/", h.CreateBatch)
			r.Get("/{batchID}", h.GetBatch)
			r.Get("/{batchID}/unmatched.xlsx", h.GetUnmatchedReport)
		})
	})

	return r
}

// rateLimit rejects requests once the shared limiter is exhausted.
func rateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				logger.Warn("api: rate limit exceeded", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
				w.Header().Set("Retry-After", "1")
				httputil.Error(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Info("api: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

/**
 * @description
 * This file sets up the HTTP router for the financial-service using the `chi`
 * routing library. It defines all the API routes and applies middleware.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: The routing library and its stock middleware.
 * - github.com/go-chi/cors: Cross-origin access for browser clients.
 * - go.uber.org/zap: Request logging.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/transfa/financial-service/internal/app"
	"github.com/transfa/financial-service/pkg/middleware"
	"go.uber.org/zap"
)

// RouterOptions carries the cross-cutting settings of the HTTP surface.
type RouterOptions struct {
	AllowedOrigins []string
	// Limiter throttles the mutating endpoints. Nil disables rate limiting.
	Limiter middleware.Limiter
}

// NewRouter creates and configures a new HTTP router.
func NewRouter(service *app.LedgerService, opts RouterOptions, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(LoggerMiddleware(logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	allowedOrigins := opts.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	handler := NewLedgerHandler(service, logger)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Server is running"))
	})
	r.Get("/health", handler.Health)
	r.Get("/getFinancialData", handler.GetFinancialData)

	r.Group(func(r chi.Router) {
		if opts.Limiter != nil {
			r.Use(middleware.RateLimit(opts.Limiter, logger))
		}
		r.Post("/saveFinancialData", handler.SaveFinancialData)
		r.Post("/deposit", handler.Deposit)
		r.Post("/withdraw", handler.Withdraw)
	})

	return r
}

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("request_id", chimw.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr))
		})
	}
}

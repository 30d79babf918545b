package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"docgate/internal/apperr"
	"docgate/internal/auth"
	"docgate/internal/metrics"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestID adds a unique request ID to each request.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", requestID)
		r.Header.Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logging logs each request and records the HTTP metrics under the matched
// route pattern.
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			duration := time.Since(start)
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())

			logger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.statusCode),
				zap.Duration("duration", duration),
				zap.String("request_id", r.Header.Get("X-Request-ID")),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

// Recovery recovers from panics and returns a 500 error.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("panic recovered",
						zap.Any("error", err),
						zap.String("request_id", r.Header.Get("X-Request-ID")),
						zap.String("path", r.URL.Path),
					)
					writeJSON(w, http.StatusInternalServerError, envelope{Message: "Internal server error"})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// TenantRateLimiter gives every authenticated tenant its own token bucket.
// It must run after the API key middleware.
type TenantRateLimiter struct {
	rps     rate.Limit
	burst   int
	onError auth.ErrorWriter
	logger  *zap.Logger

	mu       sync.Mutex
	limiters map[uuid.UUID]*rate.Limiter
}

func NewTenantRateLimiter(requestsPerSecond float64, burst int, onError auth.ErrorWriter, logger *zap.Logger) *TenantRateLimiter {
	return &TenantRateLimiter{
		rps:      rate.Limit(requestsPerSecond),
		burst:    burst,
		onError:  onError,
		logger:   logger,
		limiters: make(map[uuid.UUID]*rate.Limiter),
	}
}

func (rl *TenantRateLimiter) limiter(id uuid.UUID) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[id]
	if !ok {
		l = rate.NewLimiter(rl.rps, rl.burst)
		rl.limiters[id] = l
	}
	return l
}

// Limit applies rate limiting to requests.
func (rl *TenantRateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := auth.TenantFromContext(r.Context())
		if ok && rl.rps > 0 && !rl.limiter(tenant.ID).Allow() {
			rl.logger.Warn("rate limit exceeded",
				zap.String("request_id", r.Header.Get("X-Request-ID")),
				zap.String("tenant", tenant.ID.String()),
				zap.String("path", r.URL.Path),
			)
			rl.onError(w, r, apperr.RateLimited("Too many requests, please retry later."))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// ABOUTME: HTTP middleware for request logging, Prometheus metrics, body limits and idempotency keys
// ABOUTME: Wraps responses with chi's WrapResponseWriter so streaming handlers can still flush

package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/2389/parley/internal/dedupe"
	"github.com/2389/parley/internal/metrics"
)

// HeaderIdempotencyKey lets clients retry a POST without applying it twice.
const HeaderIdempotencyKey = "Idempotency-Key"

// maxBodyBytes caps request bodies; messages are short text.
const maxBodyBytes = 1 << 20

// requestLogger logs each completed request.
func requestLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	logger = logger.With("component", "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info("request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"latency", time.Since(start),
					"request_id", chimw.GetReqID(r.Context()),
					"remote_addr", r.RemoteAddr,
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// metricsMiddleware records request counts and latencies labelled by route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// routePattern returns the matched chi pattern, keeping label cardinality bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// maxBodySize limits request body size.
func maxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				sendJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

type requestKeyRelease struct{}

// releaseRequestKey frees the Idempotency-Key claimed for the request in ctx.
// Streaming handlers call it when a reply fails after the 200 status was sent.
func releaseRequestKey(ctx context.Context) {
	if release, ok := ctx.Value(requestKeyRelease{}).(func()); ok {
		release()
	}
}

// idempotent rejects a POST whose Idempotency-Key was already used on the same
// path with 409. Keys of requests that fail with a 4xx or 5xx status, or whose
// stream ends in an error record, are released so the client can retry.
func idempotent(keys *dedupe.Keys) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}

			scoped := r.URL.Path + "|" + key
			if !keys.Claim(scoped) {
				sendJSONError(w, http.StatusConflict, "duplicate request")
				return
			}

			var once sync.Once
			release := func() {
				once.Do(func() { keys.Release(scoped) })
			}
			r = r.WithContext(context.WithValue(r.Context(), requestKeyRelease{}, release))

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if ww.Status() >= http.StatusBadRequest {
				release()
			}
		})
	}
}

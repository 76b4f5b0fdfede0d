// Package server exposes the HTTP API: health, readiness, metrics, status, run
// history, the Twitch OAuth flow for the chat bot account, and authenticated
// admin endpoints that trigger actions. Correlation IDs are injected into
// request contexts for consistent logging.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/clockbot/telemetry"
)

// NewMux returns the HTTP handler with all routes. ctx bounds the rate
// limiter cleanup goroutine.
func NewMux(ctx context.Context, deps Deps) http.Handler {
	authCfg := loadAuthConfig()
	rateLimiter := newIPRateLimiter(ctx, loadRateLimiterConfig())
	corsCfg := loadCORSConfig()

	handlers := NewHandlers(deps)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/auth/twitch/start", handlers.HandleTwitchOAuthStart)
	mux.HandleFunc("/auth/twitch/callback", handlers.HandleTwitchOAuthCallback)

	mux.HandleFunc("/healthz", handlers.HandleHealthz)
	mux.HandleFunc("/readyz", handlers.HandleReadyz)

	mux.HandleFunc("/config", handlers.HandleConfig)
	mux.HandleFunc("/status", handlers.HandleStatus)
	mux.HandleFunc("/runs", handlers.HandleRuns)

	mux.HandleFunc("POST /admin/actions/{name}", handlers.HandleAdminAction)
	mux.HandleFunc("GET /admin/locate/{name}", handlers.HandleAdminLocate)

	admin := adminAuth(rateLimitMiddleware(mux, rateLimiter), authCfg)
	selectiveHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// OAuth start is rate limited too; each call allocates a pending state.
		switch {
		case strings.HasPrefix(r.URL.Path, "/admin/"):
			admin.ServeHTTP(w, r)
		case strings.HasPrefix(r.URL.Path, "/auth/"):
			rateLimitMiddleware(mux, rateLimiter).ServeHTTP(w, r)
		default:
			mux.ServeHTTP(w, r)
		}
	})

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path,
			telemetry.HTTPMethodAttr(r.Method),
			telemetry.HTTPRouteAttr(r.URL.Path),
			telemetry.HTTPURLAttr(r.URL.String()),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		selectiveHandler.ServeHTTP(wrapped, r.WithContext(ctx))

		telemetry.SetSpanHTTPStatus(span, wrapped.statusCode)
		if wrapped.statusCode >= 400 {
			code, msg := telemetry.ErrorStatus(fmt.Sprintf("HTTP %d", wrapped.statusCode))
			span.SetStatus(code, msg)
		}
	})
	return withCORSConfig(handler, corsCfg)
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
// Admin actions hold the request open for a whole flow, so the write timeout
// is sized for flowTimeout.
func Start(ctx context.Context, addr string, deps Deps, flowTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewMux(ctx, deps),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: flowTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr), slog.String("component", "http"))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}

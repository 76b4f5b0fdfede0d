// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	ActionsTotal         *prometheus.CounterVec // labels: action, status
	AuthFailures         *prometheus.CounterVec // labels: kind
	BrowserStartFailures prometheus.Counter
	ChatCommands         *prometheus.CounterVec // labels: transport, command
	ScheduledRuns        prometheus.Counter

	// Histograms (seconds)
	FlowDuration     prometheus.Observer
	AuthDuration     prometheus.Observer
	LockWaitDuration prometheus.Observer

	// Gauges
	FlowsInFlight prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "clockbot_actions_total", Help: "Completed actions by action and outcome status"}, []string{"action", "status"})
		AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "clockbot_auth_failures_total", Help: "Login failures by kind"}, []string{"kind"})
		BrowserStartFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "clockbot_browser_start_failures_total", Help: "Browser launches that failed"})
		ChatCommands = promauto.NewCounterVec(prometheus.CounterOpts{Name: "clockbot_chat_commands_total", Help: "Chat commands received by transport and command"}, []string{"transport", "command"})
		ScheduledRuns = promauto.NewCounter(prometheus.CounterOpts{Name: "clockbot_scheduled_runs_total", Help: "Actions started by the schedule"})
		FlowDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "clockbot_flow_duration_seconds", Help: "Start, login and action duration seconds", Buckets: []float64{5, 10, 20, 30, 45, 60, 90, 120, 180}})
		AuthDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "clockbot_auth_duration_seconds", Help: "Login duration seconds", Buckets: []float64{2, 4, 8, 15, 30, 45, 60}})
		LockWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "clockbot_lock_wait_seconds", Help: "Time spent queued for the account lock", Buckets: prometheus.DefBuckets})
		FlowsInFlight = promauto.NewGauge(prometheus.GaugeOpts{Name: "clockbot_flows_in_flight", Help: "Flows running or queued"})
	})
}

// ObserveFlow counts a finished action and records its duration.
func ObserveFlow(action, status string, d time.Duration) {
	if ActionsTotal != nil {
		ActionsTotal.WithLabelValues(action, status).Inc()
	}
	if FlowDuration != nil {
		FlowDuration.Observe(d.Seconds())
	}
}

// ObserveAuth records a successful login duration.
func ObserveAuth(d time.Duration) {
	if AuthDuration != nil {
		AuthDuration.Observe(d.Seconds())
	}
}

// ObserveLockWait records queueing time for the account lock.
func ObserveLockWait(d time.Duration) {
	if LockWaitDuration != nil {
		LockWaitDuration.Observe(d.Seconds())
	}
}

// IncAuthFailures counts a failed login by kind.
func IncAuthFailures(kind string) {
	if AuthFailures != nil {
		AuthFailures.WithLabelValues(kind).Inc()
	}
}

// IncBrowserStartFailures counts a failed browser launch.
func IncBrowserStartFailures() {
	if BrowserStartFailures != nil {
		BrowserStartFailures.Inc()
	}
}

// IncChatCommand counts a received chat command.
func IncChatCommand(transport, command string) {
	if ChatCommands != nil {
		ChatCommands.WithLabelValues(transport, command).Inc()
	}
}

// IncScheduledRuns counts a schedule-triggered action.
func IncScheduledRuns() {
	if ScheduledRuns != nil {
		ScheduledRuns.Inc()
	}
}

// SetInFlight records the number of running or queued flows.
func SetInFlight(n int) {
	if FlowsInFlight != nil {
		FlowsInFlight.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}

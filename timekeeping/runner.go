package timekeeping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/clockbot/lock"
	"github.com/onnwee/clockbot/telemetry"
)

// Locker serializes flows for one account.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// Run is one completed flow, as handed to a Recorder.
type Run struct {
	ID       string
	Trigger  string
	Outcome  Outcome
	Duration time.Duration
}

// Recorder persists completed runs.
type Recorder interface {
	RecordRun(ctx context.Context, run Run) error
}

// RunnerConfig wires a Runner.
type RunnerConfig struct {
	Launcher    Launcher
	Credentials Credentials
	Options     Options
	// FlowTimeout bounds start, login, and action together.
	FlowTimeout time.Duration
	// Locker defaults to an in-process lock.
	Locker   Locker
	Recorder Recorder
}

// Runner is the entry point for callers: it turns a command name into a
// serialized start, login, act, close flow.
type Runner struct {
	launcher    Launcher
	creds       Credentials
	opts        Options
	exec        *Executor
	flowTimeout time.Duration
	locker      Locker
	recorder    Recorder

	inflight atomic.Int32
	mu       sync.Mutex
	last     map[Action]Outcome
}

// NewRunner validates credentials up front so a misconfigured bot fails before any browser launches.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Launcher == nil {
		return nil, fmt.Errorf("runner: launcher is required")
	}
	if err := cfg.Credentials.Validate(); err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	if cfg.FlowTimeout <= 0 {
		cfg.FlowTimeout = 3 * time.Minute
	}
	if cfg.Locker == nil {
		cfg.Locker = lock.NewLocal()
	}
	opts := cfg.Options.withDefaults()
	return &Runner{
		launcher:    cfg.Launcher,
		creds:       cfg.Credentials,
		opts:        opts,
		exec:        NewExecutor(opts),
		flowTimeout: cfg.FlowTimeout,
		locker:      cfg.Locker,
		recorder:    cfg.Recorder,
		last:        make(map[Action]Outcome),
	}, nil
}

type triggerKey struct{}

// WithTrigger labels flows started with ctx, e.g. "telegram:12345" or "schedule".
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

// TriggerFrom returns the label set by WithTrigger, or "unknown".
func TriggerFrom(ctx context.Context) string {
	if s, ok := ctx.Value(triggerKey{}).(string); ok && s != "" {
		return s
	}
	return "unknown"
}

// Busy reports whether a flow is running or queued.
func (r *Runner) Busy() bool { return r.inflight.Load() > 0 }

// LastOutcomes returns the most recent outcome per action, in action order.
func (r *Runner) LastOutcomes() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Outcome, 0, len(r.last))
	for _, o := range r.last {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Action < out[j].Action })
	return out
}

// PerformAction runs the named action and returns the formatted reply.
// Unknown names are rejected before any session exists. The error return is
// reserved for rejected names and for callers giving up while queued.
func (r *Runner) PerformAction(ctx context.Context, name string) (Message, error) {
	a, err := ParseAction(name)
	if err != nil {
		return Message{}, err
	}
	o, err := r.Run(ctx, a)
	if err != nil {
		return Message{}, err
	}
	return Format(o), nil
}

// Run executes a in a fresh session and returns its outcome.
func (r *Runner) Run(ctx context.Context, a Action) (Outcome, error) {
	if !a.Valid() {
		return Outcome{}, ErrUnknownAction
	}
	runID := uuid.New().String()
	ctx = telemetry.WithCorrelation(ctx, runID)
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "runner"), slog.String("action", a.String()))
	ctx, span := telemetry.StartSpan(ctx, "timekeeping", "flow "+a.String(),
		attribute.String("action", a.String()), attribute.String("trigger", TriggerFrom(ctx)))
	defer span.End()

	var o Outcome
	start := time.Now()
	err := r.withSession(ctx, logger, func(fctx context.Context, s *Session) {
		o = r.exec.Perform(fctx, s, a)
	}, func(err error) {
		o = OutcomeFromError(a, err, r.opts.Now())
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return Outcome{}, err
	}
	dur := time.Since(start)

	telemetry.ObserveFlow(a.String(), o.Status.String(), dur)
	span.SetAttributes(attribute.String("status", o.Status.String()))
	if o.Status == Failed {
		logger.Warn("action failed", slog.String("detail", o.Detail), slog.Duration("duration", dur))
	} else {
		telemetry.SetSpanSuccess(span)
		logger.Info("action finished", slog.String("status", o.Status.String()), slog.String("detail", o.Detail), slog.Duration("duration", dur))
	}

	r.mu.Lock()
	r.last[a] = o
	r.mu.Unlock()

	if r.recorder != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := r.recorder.RecordRun(rctx, Run{ID: runID, Trigger: TriggerFrom(ctx), Outcome: o, Duration: dur}); err != nil {
			logger.Warn("failed to record run", slog.Any("err", err))
		}
		cancel()
	}
	return o, nil
}

// Locate logs in and reports candidate matches for the named action without clicking.
func (r *Runner) Locate(ctx context.Context, name string) ([]Probe, error) {
	a, err := ParseAction(name)
	if err != nil {
		return nil, err
	}
	ctx = telemetry.WithCorrelation(ctx, uuid.New().String())
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "runner"), slog.String("action", a.String()))
	var probes []Probe
	var flowErr error
	err = r.withSession(ctx, logger, func(fctx context.Context, s *Session) {
		probes, flowErr = r.exec.Inspect(fctx, s, a)
	}, func(err error) {
		flowErr = err
	})
	if err != nil {
		return nil, err
	}
	return probes, flowErr
}

// withSession serializes on the account lock, starts and authenticates a
// session, runs fn, and always closes the session. Start and login failures go
// to onErr. The returned error is only set when the lock could not be taken.
func (r *Runner) withSession(ctx context.Context, logger *slog.Logger, fn func(context.Context, *Session), onErr func(error)) error {
	r.inflight.Add(1)
	telemetry.SetInFlight(int(r.inflight.Load()))
	defer func() {
		r.inflight.Add(-1)
		telemetry.SetInFlight(int(r.inflight.Load()))
	}()

	waitStart := time.Now()
	unlock, err := r.locker.Lock(ctx)
	if err != nil {
		return fmt.Errorf("acquire account lock: %w", err)
	}
	defer unlock()
	telemetry.ObserveLockWait(time.Since(waitStart))

	fctx, cancel := context.WithTimeout(ctx, r.flowTimeout)
	defer cancel()

	s := NewSession(r.launcher, r.opts)
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warn("session close failed", slog.Any("err", err))
		}
	}()

	if err := s.Start(fctx); err != nil {
		telemetry.IncBrowserStartFailures()
		logger.Error("browser start failed", slog.Any("err", err), slog.String("class", ClassifyError(err).String()))
		onErr(err)
		return nil
	}
	authStart := time.Now()
	if err := s.Authenticate(fctx, r.creds); err != nil {
		telemetry.IncAuthFailures(authKind(err))
		logger.Error("login failed", slog.Any("err", err), slog.String("class", ClassifyError(err).String()))
		onErr(err)
		return nil
	}
	telemetry.ObserveAuth(time.Since(authStart))
	fn(fctx, s)
	return nil
}

func authKind(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind.String()
	}
	return "other"
}

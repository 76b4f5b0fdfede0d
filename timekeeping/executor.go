package timekeeping

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Executor performs actions on authenticated sessions.
type Executor struct {
	opts   Options
	logger *slog.Logger
}

// NewExecutor returns an executor using opts.
func NewExecutor(opts Options) *Executor {
	return &Executor{
		opts:   opts.withDefaults(),
		logger: slog.Default().With(slog.String("component", "executor")),
	}
}

// Perform runs a on s and always returns an Outcome; errors and panics become Failed.
func (e *Executor) Perform(ctx context.Context, s *Session, a Action) (o Outcome) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("action panicked", slog.String("action", a.String()), slog.Any("panic", r))
			o = e.outcome(a, Failed, fmt.Sprintf("internal error: %v", r))
		}
	}()
	if !a.Valid() {
		return e.outcome(a, Failed, ErrUnknownAction.Error())
	}
	p, err := s.authenticatedPage()
	if err != nil {
		return e.outcome(a, Failed, err.Error())
	}

	if a.timeEntry() {
		e.openTimeEntry(ctx, p)
	}

	switch a {
	case ClockIn, ClockOut, StartLunch, EndLunch:
		return e.invoke(ctx, p, a)
	case DismissInterstitial:
		el, ok, err := Resolve(ctx, p, Candidates(a))
		if err != nil {
			return e.outcome(a, Failed, err.Error())
		}
		if !ok {
			return e.outcome(a, NotAvailable, "no interstitial present")
		}
		if err := p.Click(ctx, el); err != nil {
			return e.outcome(a, Failed, "click failed: "+err.Error())
		}
		return e.outcome(a, Succeeded, "dismissed")
	case CaptureSnapshot:
		path, err := e.snapshot(ctx, p)
		if err != nil {
			return e.outcome(a, Failed, err.Error())
		}
		o := e.outcome(a, Succeeded, "saved")
		o.Artifact = path
		return o
	case CheckStatus:
		text, err := e.readStatus(ctx, p)
		if err != nil {
			return e.outcome(a, Failed, err.Error())
		}
		return e.outcome(a, Succeeded, text)
	}
	return e.outcome(a, Failed, ErrUnknownAction.Error())
}

// Inspect reports how each candidate for a's control matches, without clicking.
func (e *Executor) Inspect(ctx context.Context, s *Session, a Action) ([]Probe, error) {
	p, err := s.authenticatedPage()
	if err != nil {
		return nil, err
	}
	if a.timeEntry() {
		e.openTimeEntry(ctx, p)
	}
	cands := Candidates(a)
	if a == CheckStatus {
		cands = statusCandidates
	}
	return Inspect(ctx, p, cands)
}

// openTimeEntry follows the Time Entry link if one is present. Absence is not an error.
func (e *Executor) openTimeEntry(ctx context.Context, p Page) {
	el, ok, err := Resolve(ctx, p, timeEntryLinks)
	if err != nil || !ok {
		e.logger.Debug("time entry link not found; staying on current page")
		return
	}
	if err := p.Click(ctx, el); err != nil {
		e.logger.Debug("time entry link click failed", slog.Any("err", err))
		return
	}
	_ = sleep(ctx, e.opts.SettleDelay)
}

func (e *Executor) invoke(ctx context.Context, p Page, a Action) Outcome {
	el, ok, err := Resolve(ctx, p, Candidates(a))
	if err != nil {
		return e.outcome(a, Failed, err.Error())
	}
	if !ok {
		return e.outcome(a, NotAvailable, "no enabled "+strings.ToLower(a.Label())+" control found")
	}
	e.logger.Info("clicking control", slog.String("action", a.String()), slog.String("xpath", el.XPath), slog.String("text", el.Text))
	if err := p.Click(ctx, el); err != nil {
		return e.outcome(a, Failed, "click failed: "+err.Error())
	}
	if err := sleep(ctx, e.opts.SettleDelay); err != nil {
		return e.outcome(a, Failed, err.Error())
	}

	markers := ConfirmMarkers(a)
	if len(markers) == 0 {
		return e.outcome(a, Succeeded, "clicked")
	}
	err = Poll(ctx, PollConfig{Interval: e.opts.PollInterval / 2, Timeout: e.opts.ConfirmTimeout}, func(ctx context.Context) (bool, error) {
		return anyVisible(ctx, p, markers)
	})
	if err != nil {
		if ctx.Err() != nil {
			return e.outcome(a, Failed, ctx.Err().Error())
		}
		// The click landed; a missing marker is not treated as failure.
		return e.outcome(a, Succeeded, "clicked; no confirmation observed")
	}
	return e.outcome(a, Succeeded, "confirmed")
}

func (e *Executor) snapshot(ctx context.Context, p Page) (string, error) {
	buf, err := p.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("capture screenshot: %w", err)
	}
	if err := os.MkdirAll(e.opts.ScreenshotDir, 0o750); err != nil {
		return "", fmt.Errorf("create screenshot dir: %w", err)
	}
	name := "paylocity_screenshot_" + e.opts.Now().Format("20060102_150405") + ".png"
	path := filepath.Join(e.opts.ScreenshotDir, name)
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return path, nil
}

// readStatus returns the shortest visible non-empty status text, or "Unknown".
func (e *Executor) readStatus(ctx context.Context, p Page) (string, error) {
	for _, c := range statusCandidates {
		els, err := p.Query(ctx, c)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		best := ""
		for _, el := range els {
			t := strings.TrimSpace(el.Text)
			if !el.Visible || t == "" {
				continue
			}
			if best == "" || len(t) < len(best) {
				best = t
			}
		}
		if best != "" {
			return truncate(best, 120), nil
		}
	}
	return "Unknown", nil
}

func (e *Executor) outcome(a Action, st Status, detail string) Outcome {
	return Outcome{Action: a, Status: st, Detail: detail, Timestamp: e.opts.Now()}
}

// Package schedule runs the weekday clock-in, lunch and clock-out actions at
// fixed wall-clock times and reports each result to a notifier.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/clockbot/telemetry"
	"github.com/onnwee/clockbot/timekeeping"
)

// Clock is a wall-clock time of day.
type Clock struct {
	Hour, Minute int
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// ParseClock parses "HH:MM" in 24-hour form.
func ParseClock(s string) (Clock, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Clock{}, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return Clock{}, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 || len(m) != 2 {
		return Clock{}, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock{Hour: hour, Minute: minute}, nil
}

// Entry runs Action at At on every scheduled day.
type Entry struct {
	Action timekeeping.Action
	At     Clock
}

// Schedule is a set of daily entries restricted to certain weekdays.
type Schedule struct {
	Entries  []Entry
	Days     []time.Weekday
	Location *time.Location
	// Jitter delays each run by a random amount up to this duration.
	Jitter time.Duration
}

// Config is the textual form loaded from the environment.
type Config struct {
	TZ         string
	ClockIn    string
	LunchStart string
	LunchEnd   string
	ClockOut   string
	Days       []time.Weekday
}

// New builds a Schedule from cfg. Empty times skip that entry.
func New(cfg Config) (*Schedule, error) {
	loc := time.Local
	if cfg.TZ != "" && cfg.TZ != "Local" {
		l, err := time.LoadLocation(cfg.TZ)
		if err != nil {
			return nil, fmt.Errorf("SCHEDULE_TZ: %w", err)
		}
		loc = l
	}
	s := &Schedule{Days: cfg.Days, Location: loc}
	for _, e := range []struct {
		a timekeeping.Action
		v string
	}{
		{timekeeping.ClockIn, cfg.ClockIn},
		{timekeeping.StartLunch, cfg.LunchStart},
		{timekeeping.EndLunch, cfg.LunchEnd},
		{timekeeping.ClockOut, cfg.ClockOut},
	} {
		if e.v == "" {
			continue
		}
		c, err := ParseClock(e.v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.a, err)
		}
		s.Entries = append(s.Entries, Entry{Action: e.a, At: c})
	}
	if len(s.Entries) == 0 {
		return nil, fmt.Errorf("schedule has no entries")
	}
	if len(s.Days) == 0 {
		return nil, fmt.Errorf("schedule has no days")
	}
	sort.SliceStable(s.Entries, func(i, j int) bool {
		a, b := s.Entries[i].At, s.Entries[j].At
		return a.Hour*60+a.Minute < b.Hour*60+b.Minute
	})
	return s, nil
}

func (s *Schedule) runsOn(d time.Weekday) bool {
	for _, x := range s.Days {
		if x == d {
			return true
		}
	}
	return false
}

// NextRun returns the first entry strictly after now, searching up to a week ahead.
func (s *Schedule) NextRun(now time.Time) (Entry, time.Time, bool) {
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	for day := 0; day <= 7; day++ {
		d := local.AddDate(0, 0, day)
		if !s.runsOn(d.Weekday()) {
			continue
		}
		for _, e := range s.Entries {
			at := time.Date(d.Year(), d.Month(), d.Day(), e.At.Hour, e.At.Minute, 0, 0, loc)
			if at.After(now) {
				return e, at, true
			}
		}
	}
	return Entry{}, time.Time{}, false
}

// ActionRunner executes one action flow.
type ActionRunner interface {
	Run(ctx context.Context, a timekeeping.Action) (timekeeping.Outcome, error)
}

// Notifier delivers a formatted result.
type Notifier interface {
	Notify(ctx context.Context, m timekeeping.Message) error
}

// Start blocks, running entries as they come due until ctx is cancelled.
// A nil notifier only logs results.
func (s *Schedule) Start(ctx context.Context, r ActionRunner, n Notifier) {
	logger := slog.Default().With(slog.String("component", "schedule"))
	for {
		e, at, ok := s.NextRun(time.Now())
		if !ok {
			logger.Warn("no upcoming scheduled run; scheduler stopping")
			return
		}
		if s.Jitter > 0 {
			//nolint:gosec // G404: jitter, not security sensitive
			at = at.Add(time.Duration(rand.Int63n(int64(s.Jitter))))
		}
		logger.Info("next scheduled run", slog.String("action", e.Action.String()), slog.Time("at", at))
		t := time.NewTimer(time.Until(at))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		s.fire(ctx, logger, e, r, n)
	}
}

func (s *Schedule) fire(ctx context.Context, logger *slog.Logger, e Entry, r ActionRunner, n Notifier) {
	telemetry.IncScheduledRuns()
	rctx := timekeeping.WithTrigger(ctx, "schedule")
	o, err := r.Run(rctx, e.Action)
	if err != nil {
		logger.Error("scheduled run failed", slog.String("action", e.Action.String()), slog.Any("err", err))
		o = timekeeping.OutcomeFromError(e.Action, err, time.Now())
	}
	logger.Info("scheduled run finished", slog.String("action", e.Action.String()), slog.String("status", o.Status.String()))
	if n == nil {
		return
	}
	msg := timekeeping.Format(o)
	msg.Text = "⏰ Scheduled " + e.Action.Label() + "\n" + msg.Text
	if err := n.Notify(ctx, msg); err != nil {
		logger.Warn("schedule notify failed", slog.Any("err", err))
	}
}

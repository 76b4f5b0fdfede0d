package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/clockbot/timekeeping"
)

var weekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

func defaultSchedule(t *testing.T) *Schedule {
	t.Helper()
	s, err := New(Config{TZ: "UTC", ClockIn: "09:00", LunchStart: "12:00", LunchEnd: "13:00", ClockOut: "17:00", Days: weekdays})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{"09:00", Clock{9, 0}, false},
		{" 17:30 ", Clock{17, 30}, false},
		{"0:05", Clock{0, 5}, false},
		{"24:00", Clock{}, true},
		{"12:60", Clock{}, true},
		{"12:5", Clock{}, true},
		{"noon", Clock{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseClock(%q) = %v, %v", tt.in, got, err)
			}
		})
	}
}

func TestNextRun(t *testing.T) {
	s := defaultSchedule(t)
	// 2024-03-04 is a Monday.
	mon := func(h, m int) time.Time { return time.Date(2024, 3, 4, h, m, 0, 0, time.UTC) }

	tests := []struct {
		name       string
		now        time.Time
		wantAction timekeeping.Action
		wantAt     time.Time
	}{
		{"before work", mon(7, 0), timekeeping.ClockIn, mon(9, 0)},
		{"exactly at clock in moves on", mon(9, 0), timekeeping.StartLunch, mon(12, 0)},
		{"mid lunch", mon(12, 30), timekeeping.EndLunch, mon(13, 0)},
		{"after clock out", mon(18, 0), timekeeping.ClockIn, mon(9, 0).AddDate(0, 0, 1)},
		{"friday evening skips weekend", mon(18, 0).AddDate(0, 0, 4), timekeeping.ClockIn, mon(9, 0).AddDate(0, 0, 7)},
		{"saturday", mon(10, 0).AddDate(0, 0, 5), timekeeping.ClockIn, mon(9, 0).AddDate(0, 0, 7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, at, ok := s.NextRun(tt.now)
			if !ok {
				t.Fatal("NextRun() found nothing")
			}
			if e.Action != tt.wantAction || !at.Equal(tt.wantAt) {
				t.Errorf("NextRun(%v) = %v at %v; want %v at %v", tt.now, e.Action, at, tt.wantAction, tt.wantAt)
			}
		})
	}
}

func TestNextRunHonorsLocation(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	s, err := New(Config{ClockIn: "09:00", Days: weekdays})
	if err != nil {
		t.Fatal(err)
	}
	s.Location = loc
	now := time.Date(2024, 3, 4, 13, 0, 0, 0, time.UTC) // 08:00 EST
	_, at, _ := s.NextRun(now)
	if want := time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC); !at.Equal(want) {
		t.Errorf("NextRun() = %v, want %v", at, want)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(Config{Days: weekdays}); err == nil {
		t.Error("New() with no entries succeeded")
	}
	if _, err := New(Config{ClockIn: "09:00"}); err == nil {
		t.Error("New() with no days succeeded")
	}
	if _, err := New(Config{ClockIn: "9am", Days: weekdays}); err == nil {
		t.Error("New() with bad time succeeded")
	}
	if _, err := New(Config{TZ: "Mars/Olympus", ClockIn: "09:00", Days: weekdays}); err == nil {
		t.Error("New() with bad TZ succeeded")
	}
}

type stubRunner struct {
	mu   sync.Mutex
	ran  []timekeeping.Action
	trig []string
	err  error
}

func (s *stubRunner) Run(ctx context.Context, a timekeeping.Action) (timekeeping.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ran = append(s.ran, a)
	s.trig = append(s.trig, timekeeping.TriggerFrom(ctx))
	if s.err != nil {
		return timekeeping.Outcome{}, s.err
	}
	return timekeeping.Outcome{Action: a, Status: timekeeping.Succeeded, Timestamp: time.Now()}, nil
}

type stubNotifier struct {
	mu   sync.Mutex
	msgs []timekeeping.Message
}

func (n *stubNotifier) Notify(_ context.Context, m timekeeping.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, m)
	return nil
}

func TestFireNotifies(t *testing.T) {
	s := defaultSchedule(t)
	r := &stubRunner{}
	n := &stubNotifier{}
	s.fire(context.Background(), testLogger(), Entry{Action: timekeeping.ClockIn}, r, n)

	if len(r.ran) != 1 || r.ran[0] != timekeeping.ClockIn || r.trig[0] != "schedule" {
		t.Fatalf("runner calls = %v %v", r.ran, r.trig)
	}
	if len(n.msgs) != 1 || !strings.Contains(n.msgs[0].Text, "Scheduled Clock In") || !strings.Contains(n.msgs[0].Text, "Successful") {
		t.Errorf("notifications = %+v", n.msgs)
	}
}

func TestFireReportsRunnerError(t *testing.T) {
	s := defaultSchedule(t)
	r := &stubRunner{err: errors.New("acquire account lock: context canceled")}
	n := &stubNotifier{}
	s.fire(context.Background(), testLogger(), Entry{Action: timekeeping.ClockOut}, r, n)
	if len(n.msgs) != 1 || !strings.Contains(n.msgs[0].Text, "Clock Out Failed") {
		t.Errorf("notifications = %+v", n.msgs)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	s := defaultSchedule(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, &stubRunner{}, nil)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

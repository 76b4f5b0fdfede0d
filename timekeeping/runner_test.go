package timekeeping

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type memRecorder struct {
	mu   sync.Mutex
	runs []Run
}

func (m *memRecorder) RecordRun(_ context.Context, r Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, r)
	return nil
}

func newTestRunner(t *testing.T, l Launcher, rec Recorder) *Runner {
	t.Helper()
	r, err := NewRunner(RunnerConfig{
		Launcher:    l,
		Credentials: testCreds,
		Options:     testOptions(t),
		FlowTimeout: 2 * time.Second,
		Recorder:    rec,
	})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	return r
}

func TestNewRunnerRejectsMissingCredentials(t *testing.T) {
	l := &countingLauncher{newPage: loginPage}
	_, err := NewRunner(RunnerConfig{Launcher: l, Credentials: Credentials{CompanyID: "1"}})
	var ae *AuthError
	if !errors.As(err, &ae) || ae.Kind != AuthMissingCredentials {
		t.Fatalf("NewRunner() error = %v, want missing credentials", err)
	}
	if l.launches.Load() != 0 {
		t.Error("browser launched despite missing credentials")
	}
}

func TestPerformActionUnknownName(t *testing.T) {
	l := &countingLauncher{newPage: loginPage}
	r := newTestRunner(t, l, nil)
	_, err := r.PerformAction(context.Background(), "dance")
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("PerformAction() error = %v, want ErrUnknownAction", err)
	}
	if l.launches.Load() != 0 {
		t.Error("session created for unknown action")
	}
}

func TestPerformActionClosesSession(t *testing.T) {
	l := &countingLauncher{newPage: func() *fakePage {
		p := loginPage()
		p.set(Candidates(ClockIn)[0], usable)
		return p
	}}
	rec := &memRecorder{}
	r := newTestRunner(t, l, rec)

	ctx := WithTrigger(context.Background(), "test")
	msg, err := r.PerformAction(ctx, "clockin")
	if err != nil {
		t.Fatalf("PerformAction() error = %v", err)
	}
	if !strings.Contains(msg.Text, "Clock In Successful!") {
		t.Errorf("reply = %q", msg.Text)
	}
	if l.active.Load() != 0 {
		t.Error("browser left open after flow")
	}
	if len(rec.runs) != 1 || rec.runs[0].Trigger != "test" || rec.runs[0].Outcome.Status != Succeeded {
		t.Errorf("recorded runs = %+v", rec.runs)
	}
	last := r.LastOutcomes()
	if len(last) != 1 || last[0].Action != ClockIn {
		t.Errorf("LastOutcomes() = %+v", last)
	}
}

func TestPerformActionStartFailure(t *testing.T) {
	l := &countingLauncher{err: errors.New("chrome missing")}
	r := newTestRunner(t, l, nil)
	msg, err := r.PerformAction(context.Background(), "clockout")
	if err != nil {
		t.Fatalf("PerformAction() error = %v", err)
	}
	if !strings.Contains(msg.Text, "Clock Out Failed") || !strings.Contains(msg.Text, "could not start the browser") {
		t.Errorf("reply = %q", msg.Text)
	}
}

func TestPerformActionAuthTimeoutClosesBrowser(t *testing.T) {
	l := &countingLauncher{newPage: func() *fakePage {
		p := loginPage()
		p.onClick = nil // login never completes
		return p
	}}
	r := newTestRunner(t, l, nil)
	msg, err := r.PerformAction(context.Background(), "lunchstart")
	if err != nil {
		t.Fatalf("PerformAction() error = %v", err)
	}
	if !strings.Contains(msg.Text, "login failed") {
		t.Errorf("reply = %q", msg.Text)
	}
	if l.active.Load() != 0 {
		t.Error("browser left open after failed login")
	}
}

func TestFlowsAreSerialized(t *testing.T) {
	l := &countingLauncher{newPage: func() *fakePage {
		p := loginPage()
		p.set(Candidates(ClockIn)[0], usable)
		return p
	}}
	r := newTestRunner(t, l, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.PerformAction(context.Background(), "clockin"); err != nil {
				t.Errorf("PerformAction() error = %v", err)
			}
		}()
	}
	wg.Wait()
	if got := l.maxSeen.Load(); got != 1 {
		t.Errorf("max concurrent browsers = %d, want 1", got)
	}
	if got := l.launches.Load(); got != 4 {
		t.Errorf("launches = %d, want 4 (sessions are never reused)", got)
	}
	if r.Busy() {
		t.Error("Busy() true after all flows finished")
	}
}

func TestQueuedCallerGivesUp(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	l := &countingLauncher{newPage: func() *fakePage {
		p := loginPage()
		p.set(Candidates(ClockIn)[0], usable)
		p.onClick = func(p *fakePage, el Element) {
			if el.XPath == loginButtons[0] {
				p.set(dashboardMarkers[0], usable)
				close(started)
				<-release
			}
		}
		return p
	}}
	r := newTestRunner(t, l, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.PerformAction(context.Background(), "clockin")
	}()
	<-started
	if !r.Busy() {
		t.Error("Busy() false while a flow runs")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := r.PerformAction(ctx, "clockin"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("queued PerformAction() error = %v, want deadline exceeded", err)
	}
	close(release)
	<-done
}

func TestLocate(t *testing.T) {
	l := &countingLauncher{newPage: func() *fakePage {
		p := loginPage()
		p.set(Candidates(ClockOut)[2], usable)
		return p
	}}
	r := newTestRunner(t, l, nil)
	probes, err := r.Locate(context.Background(), "clockout")
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	usableCount := 0
	for _, p := range probes {
		if p.Usable() {
			usableCount++
		}
	}
	if usableCount != 1 {
		t.Errorf("usable probes = %d, want 1", usableCount)
	}
	if l.active.Load() != 0 {
		t.Error("browser left open after Locate")
	}
}

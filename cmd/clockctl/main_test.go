package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/clockbot/timekeeping"
)

type stubRunner struct {
	outcome timekeeping.Outcome
	err     error
	probes  []timekeeping.Probe
}

func (s stubRunner) Run(_ context.Context, a timekeeping.Action) (timekeeping.Outcome, error) {
	o := s.outcome
	o.Action = a
	return o, s.err
}

func (s stubRunner) Locate(context.Context, string) ([]timekeeping.Probe, error) {
	return s.probes, s.err
}

func TestRunAction(t *testing.T) {
	at := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		action   string
		runner   stubRunner
		wantCode int
		wantText string
	}{
		{"success", "clockin", stubRunner{outcome: timekeeping.Outcome{Status: timekeeping.Succeeded, Timestamp: at}}, 0, "Clock In"},
		{"failed", "ClockOut", stubRunner{outcome: timekeeping.Outcome{Status: timekeeping.Failed, Detail: "boom", Timestamp: at}}, 1, "Clock Out"},
		{"run error", "lunchstart", stubRunner{err: errors.New("browser start failed: no chrome")}, 1, "Lunch Start"},
		{"unknown", "nap", stubRunner{}, 2, "unknown action"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			code := runAction(context.Background(), tt.runner, tt.action, &out)
			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d", code, tt.wantCode)
			}
			if !strings.Contains(out.String(), tt.wantText) {
				t.Errorf("output = %q, want it to contain %q", out.String(), tt.wantText)
			}
		})
	}
}

func TestRunLocate(t *testing.T) {
	r := stubRunner{probes: []timekeeping.Probe{{XPath: "//button", Matches: 1, Visible: 1, Enabled: 1}}}
	var out bytes.Buffer
	if code := runLocate(context.Background(), r, "/clockin", &out); code != 0 {
		t.Fatalf("exit code = %d, output %q", code, out.String())
	}
	if !strings.Contains(out.String(), "Clock In control found") {
		t.Errorf("output = %q", out.String())
	}

	out.Reset()
	if code := runLocate(context.Background(), stubRunner{err: errors.New("login timed out")}, "clockin", &out); code != 1 {
		t.Errorf("error exit code = %d", code)
	}
}

func TestActionNames(t *testing.T) {
	names := actionNames()
	for _, want := range []string{"clockin", "lunchend", "screenshot", "status"} {
		if !strings.Contains(names, want) {
			t.Errorf("actionNames() = %q, missing %s", names, want)
		}
	}
}

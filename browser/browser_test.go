package browser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/onnwee/clockbot/timekeeping"
)

func TestJSStringEscapes(t *testing.T) {
	got := jsString(`//button[contains(., "it's")]`)
	want := `"//button[contains(., \"it's\")]"`
	if got != want {
		t.Errorf("jsString() = %s, want %s", got, want)
	}
}

func TestNewLauncherDefaults(t *testing.T) {
	l := NewLauncher(Config{})
	if l.cfg.Width != 1920 || l.cfg.Height != 1080 {
		t.Errorf("window = %dx%d", l.cfg.Width, l.cfg.Height)
	}
	if l.cfg.CallTimeout <= 0 {
		t.Error("CallTimeout not defaulted")
	}
	// Default allocator options plus our overrides.
	if n := len(l.allocatorOptions()); n <= len(chromedp.DefaultExecAllocatorOptions) {
		t.Errorf("allocatorOptions() len = %d", n)
	}
}

func TestLaunchMissingBinaryFailsTheFlow(t *testing.T) {
	l := NewLauncher(Config{Headless: true, ExecPath: filepath.Join(t.TempDir(), "no-chrome")})
	s := timekeeping.NewSession(l, timekeeping.DefaultOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.Start(ctx)
	var se *timekeeping.StartError
	if !errors.As(err, &se) {
		t.Fatalf("Start() error = %v, want StartError", err)
	}
	if timekeeping.ClassifyError(err) != timekeeping.ErrorClassFatal {
		t.Errorf("ClassifyError() = %v, want fatal", timekeeping.ClassifyError(err))
	}
	if s.State() == timekeeping.Started {
		t.Error("session reports started without a browser")
	}
}

const fixture = `<!doctype html><html><body>
<input id="Username" type="text">
<button id="go" onclick="document.title='clicked'">Clock In</button>
<button disabled>Clock Out</button>
<div style="display:none"><button>Lunch Start</button></div>
</body></html>`

// Requires a local Chrome; run with CHROME_IT=1.
func TestLauncherAgainstFixture(t *testing.T) {
	if os.Getenv("CHROME_IT") != "1" {
		t.Skip("CHROME_IT not set")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(fixture))
	}))
	defer srv.Close()

	inst, err := Discover(context.Background(), os.Getenv("CHROME_PATH"))
	if err != nil {
		t.Skipf("no browser: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	p, err := NewLauncher(Config{Headless: true, ExecPath: inst.Path}).Launch(ctx)
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	defer p.Close()

	if err := p.Navigate(ctx, srv.URL); err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}
	u, err := p.URL(ctx)
	if err != nil || !strings.HasPrefix(u, srv.URL) {
		t.Fatalf("URL() = %q, %v", u, err)
	}
	if err := p.Fill(ctx, "Username", "jdoe"); err != nil {
		t.Fatalf("Fill() error = %v", err)
	}

	in, err := p.Query(ctx, "//button[contains(., 'Clock In')]")
	if err != nil || len(in) != 1 || !in[0].Visible || !in[0].Enabled {
		t.Fatalf("Query(clock in) = %+v, %v", in, err)
	}
	out, _ := p.Query(ctx, "//button[contains(., 'Clock Out')]")
	if len(out) != 1 || out[0].Enabled {
		t.Errorf("Query(clock out) = %+v, want disabled", out)
	}
	lunch, _ := p.Query(ctx, "//button[contains(., 'Lunch Start')]")
	if len(lunch) != 1 || lunch[0].Visible {
		t.Errorf("Query(lunch) = %+v, want hidden", lunch)
	}
	if _, err := p.Query(ctx, "//button[("); err == nil {
		t.Error("Query() with invalid xpath succeeded")
	}

	if err := p.Click(ctx, in[0]); err != nil {
		t.Fatalf("Click() error = %v", err)
	}
	shot, err := p.Screenshot(ctx)
	if err != nil || len(shot) < 8 || string(shot[1:4]) != "PNG" {
		t.Errorf("Screenshot() len=%d err=%v", len(shot), err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

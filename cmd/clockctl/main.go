// Package main runs a single timekeeping action from the terminal and prints
// the chat-formatted result. It exits 1 when the action fails.
//
// Usage:
//
//	clockctl -action clockin
//	clockctl -locate clockout -headless=false
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/clockbot/browser"
	"github.com/onnwee/clockbot/config"
	"github.com/onnwee/clockbot/timekeeping"
)

func main() {
	action := flag.String("action", "", "action to perform: "+actionNames())
	locate := flag.String("locate", "", "log in and report candidate controls for an action without clicking")
	headless := flag.Bool("headless", true, "run the browser without a window")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	lvl := slog.LevelInfo
	if *verbose {
		lvl = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	_ = godotenv.Load()

	if (*action == "") == (*locate == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -action or -locate is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	cfg.Headless = *headless

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := newRunner(ctx, cfg)
	if err != nil {
		slog.Error("setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	ctx = timekeeping.WithTrigger(ctx, "cli")
	if *locate != "" {
		os.Exit(runLocate(ctx, runner, *locate, os.Stdout))
	}
	os.Exit(runAction(ctx, runner, *action, os.Stdout))
}

func newRunner(ctx context.Context, cfg *config.Config) (*timekeeping.Runner, error) {
	if err := cfg.ValidatePaylocity(); err != nil {
		return nil, err
	}
	bcfg := browser.Config{Headless: cfg.Headless, RemoteURL: cfg.ChromeRemote, CallTimeout: cfg.BrowserTimeout}
	if cfg.ChromeRemote == "" {
		var err error
		if bcfg, _, err = browser.WithDiscoveredExec(ctx, bcfg, cfg.ChromePath); err != nil {
			return nil, err
		}
	}
	opts := timekeeping.DefaultOptions()
	opts.BaseURL = cfg.BaseURL
	opts.AuthTimeout = cfg.AuthTimeout
	opts.PollInterval = cfg.PollInterval
	opts.SettleDelay = cfg.SettleDelay
	opts.ScreenshotDir = cfg.ScreenshotDir
	return timekeeping.NewRunner(timekeeping.RunnerConfig{
		Launcher: browser.NewLauncher(bcfg),
		Credentials: timekeeping.Credentials{
			CompanyID: cfg.CompanyID,
			Username:  cfg.Username,
			Password:  cfg.Password,
		},
		Options:     opts,
		FlowTimeout: cfg.FlowTimeout,
	})
}

// actionRunner is the part of timekeeping.Runner the CLI uses.
type actionRunner interface {
	Run(ctx context.Context, a timekeeping.Action) (timekeeping.Outcome, error)
	Locate(ctx context.Context, name string) ([]timekeeping.Probe, error)
}

func runAction(ctx context.Context, r actionRunner, name string, out io.Writer) int {
	a, err := timekeeping.ParseAction(name)
	if err != nil {
		fmt.Fprintln(out, err)
		return 2
	}
	o, err := r.Run(ctx, a)
	if err != nil {
		o = timekeeping.OutcomeFromError(a, err, time.Now())
	}
	msg := timekeeping.Format(o)
	fmt.Fprintln(out, msg.Text)
	if msg.PhotoPath != "" {
		fmt.Fprintln(out, "saved", msg.PhotoPath)
	}
	if o.Status == timekeeping.Failed {
		return 1
	}
	return 0
}

func runLocate(ctx context.Context, r actionRunner, name string, out io.Writer) int {
	a, err := timekeeping.ParseAction(name)
	if err != nil {
		fmt.Fprintln(out, err)
		return 2
	}
	probes, err := r.Locate(ctx, a.String())
	if err != nil {
		fmt.Fprintln(out, timekeeping.Format(timekeeping.OutcomeFromError(a, err, time.Now())).Text)
		return 1
	}
	fmt.Fprintln(out, timekeeping.FormatProbes(a, probes, time.Now()).Text)
	return 0
}

func actionNames() string {
	names := make([]string, 0, len(timekeeping.Actions))
	for _, a := range timekeeping.Actions {
		names = append(names, a.String())
	}
	return strings.Join(names, ", ")
}

// Command clockbot drives a Paylocity timekeeping account from chat.
// It:
//   - Loads configuration and initializes structured logging, metrics and tracing.
//   - Locates a Chrome binary (or a remote DevTools endpoint) for browser flows.
//   - Optionally connects to Postgres for run history and OAuth token storage,
//     and to Redis for a cross-process account lock.
//   - Starts the Telegram bot and the Twitch chat listener when configured,
//     plus the daily schedule and the Twitch token refresher.
//   - Exposes an HTTP server with /healthz, /readyz, /status, /runs, /metrics
//     and authenticated admin actions.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/clockbot/browser"
	"github.com/onnwee/clockbot/chat"
	"github.com/onnwee/clockbot/config"
	"github.com/onnwee/clockbot/db"
	"github.com/onnwee/clockbot/lock"
	"github.com/onnwee/clockbot/oauth"
	"github.com/onnwee/clockbot/schedule"
	"github.com/onnwee/clockbot/server"
	"github.com/onnwee/clockbot/telemetry"
	"github.com/onnwee/clockbot/timekeeping"
	"github.com/onnwee/clockbot/twitchapi"
)

const version = "1.0.0"

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()
	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidatePaylocity(); err != nil {
		slog.Error("paylocity credentials incomplete", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdown, err := telemetry.InitTracing("clockbot", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	launcher, browserCheck, err := setupBrowser(ctx, cfg)
	if err != nil {
		slog.Error("no usable browser", slog.Any("err", err))
		os.Exit(1)
	}

	locker, closeLock, err := setupLock(ctx, cfg)
	if err != nil {
		slog.Error("account lock setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer closeLock()

	store, err := setupStore(ctx, cfg)
	if err != nil {
		slog.Error("database setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	if store != nil {
		defer func() {
			if err := store.DB.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
	}

	opts := timekeeping.DefaultOptions()
	opts.BaseURL = cfg.BaseURL
	opts.AuthTimeout = cfg.AuthTimeout
	opts.PollInterval = cfg.PollInterval
	opts.SettleDelay = cfg.SettleDelay
	opts.ScreenshotDir = cfg.ScreenshotDir
	runnerCfg := timekeeping.RunnerConfig{
		Launcher: launcher,
		Credentials: timekeeping.Credentials{
			CompanyID: cfg.CompanyID,
			Username:  cfg.Username,
			Password:  cfg.Password,
		},
		Options:     opts,
		FlowTimeout: cfg.FlowTimeout,
		Locker:      locker,
	}
	// Interface fields stay nil without a database.
	var history chat.History
	var apiStore server.Store
	if store != nil {
		runnerCfg.Recorder = store
		history = store
		apiStore = store
	}
	runner, err := timekeeping.NewRunner(runnerCfg)
	if err != nil {
		slog.Error("runner setup failed", slog.Any("err", err))
		os.Exit(1)
	}

	dispatcher := chat.NewDispatcher(runner, history, allowedSenders(cfg))

	var wg sync.WaitGroup
	var notifier schedule.Notifier = logNotifier{}

	if cfg.TelegramEnabled() {
		if err := cfg.ValidateTelegram(); err != nil {
			slog.Error("telegram config invalid", slog.Any("err", err))
			os.Exit(1)
		}
		tg, err := chat.NewTelegram(cfg.TelegramToken, dispatcher, cfg.TelegramChatIDs)
		if err != nil {
			slog.Error("telegram bot setup failed", slog.Any("err", err))
			os.Exit(1)
		}
		notifier = tg
		wg.Add(1)
		go func() {
			defer wg.Done()
			tg.Run(ctx)
		}()
	} else {
		slog.Info("telegram bot disabled (TELEGRAM_BOT_TOKEN not set)")
	}

	var twitchOAuth *twitchapi.OAuth
	if cfg.TwitchClientID != "" && cfg.TwitchRedirectURI != "" {
		twitchOAuth, err = twitchapi.NewOAuth(cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.TwitchRedirectURI, cfg.TwitchScopes)
		if err != nil {
			slog.Error("twitch oauth setup failed", slog.Any("err", err))
			os.Exit(1)
		}
		if store != nil && cfg.TwitchClientSecret != "" {
			oauth.StartRefresher(ctx, store, twitchapi.Provider, 5*time.Minute, 15*time.Minute, twitchOAuth.Refresh)
		}
	}

	if cfg.TwitchEnabled() {
		if err := cfg.ValidateTwitch(); err != nil {
			slog.Error("twitch config invalid", slog.Any("err", err))
			os.Exit(1)
		}
		token := cfg.TwitchOAuthToken
		if token == "" && store != nil {
			// Authorized through /auth/twitch/start.
			if t, ok, err := store.GetOAuthToken(ctx, twitchapi.Provider); err != nil {
				slog.Warn("failed to load stored twitch token", slog.Any("err", err))
			} else if ok {
				token = t.AccessToken
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			chat.StartTwitchListener(ctx, chat.TwitchConfig{
				Channel:  cfg.TwitchChannel,
				Username: cfg.TwitchBotUsername,
				Token:    token,
			}, dispatcher)
		}()
	}

	if cfg.ScheduleEnabled {
		sched, err := schedule.New(schedule.Config{
			TZ:         cfg.ScheduleTZ,
			ClockIn:    cfg.ClockInTime,
			LunchStart: cfg.LunchStartTime,
			LunchEnd:   cfg.LunchEndTime,
			ClockOut:   cfg.ClockOutTime,
			Days:       cfg.ScheduleWeekdays,
		})
		if err != nil {
			slog.Error("schedule config invalid", slog.Any("err", err))
			os.Exit(1)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.Start(ctx, runner, notifier)
		}()
	}

	startPprof()

	deps := server.Deps{
		Flows:        runner,
		Store:        apiStore,
		OAuth:        twitchOAuth,
		BrowserCheck: browserCheck,
		Config:       cfg,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(ctx, cfg.HTTPAddr, deps, cfg.FlowTimeout); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
			stop()
		}
	}()

	slog.Info("clockbot started",
		slog.Bool("telegram", cfg.TelegramEnabled()),
		slog.Bool("twitch", cfg.TwitchEnabled()),
		slog.Bool("schedule", cfg.ScheduleEnabled),
		slog.Bool("database", store != nil))

	<-ctx.Done()
	slog.Info("shutting down")
	wg.Wait()
}

// setupLogging configures level + format. Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

// setupBrowser finds a local Chrome unless a remote DevTools URL is configured.
// The returned check backs /readyz and is nil when chromedp does its own lookup.
func setupBrowser(ctx context.Context, cfg *config.Config) (*browser.Launcher, func(context.Context) error, error) {
	bcfg := browser.Config{
		Headless:    cfg.Headless,
		RemoteURL:   cfg.ChromeRemote,
		CallTimeout: cfg.BrowserTimeout,
	}
	if cfg.ChromeRemote != "" {
		slog.Info("using remote browser", slog.String("component", "browser"))
		return browser.NewLauncher(bcfg), nil, nil
	}
	bcfg, inst, err := browser.WithDiscoveredExec(ctx, bcfg, cfg.ChromePath)
	if err != nil {
		return nil, nil, err
	}
	if inst.Path == "" {
		return browser.NewLauncher(bcfg), nil, nil
	}
	slog.Info("browser found", slog.String("component", "browser"), slog.String("path", inst.Path), slog.String("version", inst.Version))
	check := func(ctx context.Context) error {
		_, err := browser.Discover(ctx, inst.Path)
		return err
	}
	return browser.NewLauncher(bcfg), check, nil
}

// setupLock serializes flows in-process, and across processes when REDIS_URL is set.
func setupLock(ctx context.Context, cfg *config.Config) (timekeeping.Locker, func(), error) {
	local := lock.NewLocal()
	if cfg.RedisURL == "" {
		return local, func() {}, nil
	}
	rl, err := lock.NewRedis(ctx, lock.RedisOptions{
		URL:     cfg.RedisURL,
		Account: cfg.CompanyID + ":" + strings.ToLower(cfg.Username),
		TTL:     cfg.FlowTimeout + time.Minute,
	})
	if err != nil {
		return nil, nil, err
	}
	slog.Info("redis account lock enabled", slog.String("component", "lock"))
	return lock.Chain{local, rl}, func() { _ = rl.Close() }, nil
}

// setupStore connects and migrates when DB_DSN is set; otherwise it returns nil.
func setupStore(ctx context.Context, cfg *config.Config) (*db.Store, error) {
	if cfg.DBDsn == "" {
		slog.Info("DB_DSN not set; run history and token storage disabled", slog.String("component", "db"))
		return nil, nil
	}
	database, err := db.Connect(ctx, cfg.DBDsn)
	if err != nil {
		return nil, err
	}
	// Versioned migrations first; the embedded idempotent schema is the fallback.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err), slog.String("component", "db_migrate"))
		if err := db.Migrate(ctx, database); err != nil {
			_ = database.Close()
			return nil, errors.Join(errors.New("both versioned and embedded migrations failed"), err)
		}
	}
	store, err := db.NewStore(database, cfg.EncryptionKey)
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	return store, nil
}

// allowedSenders turns the configured chat ids and Twitch users into dispatcher keys.
func allowedSenders(cfg *config.Config) []string {
	var out []string
	for _, id := range cfg.TelegramChatIDs {
		out = append(out, chat.SenderKey("telegram", strconv.FormatInt(id, 10)))
	}
	for _, u := range cfg.TwitchAllowedUsers {
		out = append(out, chat.SenderKey("twitch", u))
	}
	return out
}

// logNotifier reports scheduled results when no chat transport is configured.
type logNotifier struct{}

func (logNotifier) Notify(_ context.Context, m timekeeping.Message) error {
	slog.Info("scheduled result", slog.String("component", "schedule"), slog.String("text", m.Text), slog.String("photo", m.PhotoPath))
	return nil
}

// startPprof serves /debug/pprof when ENABLE_PPROF=1.
func startPprof() {
	if os.Getenv("ENABLE_PPROF") != "1" {
		return
	}
	addr := os.Getenv("PPROF_ADDR")
	if addr == "" {
		addr = "localhost:6060"
	}
	go func() {
		slog.Info("pprof profiling enabled", slog.String("addr", addr))
		srv := &http.Server{
			Addr:              addr,
			Handler:           nil, // default mux exposes /debug/pprof
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("pprof server error", slog.Any("err", err))
		}
	}()
}

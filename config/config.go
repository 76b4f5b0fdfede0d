// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with only Paylocity credentials set.
// Use ValidatePaylocity before launching any browser, and ValidateTelegram / ValidateTwitch
// to decide which chat transports to start.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/clockbot/crypto"
)

type Config struct {
	// Paylocity
	CompanyID string
	Username  string
	Password  string
	BaseURL   string

	// Browser
	Headless       bool
	ChromePath     string
	ChromeRemote   string
	AuthTimeout    time.Duration
	PollInterval   time.Duration
	SettleDelay    time.Duration
	FlowTimeout    time.Duration
	ScreenshotDir  string
	BrowserTimeout time.Duration

	// Telegram
	TelegramToken   string
	TelegramChatIDs []int64

	// Twitch
	TwitchChannel      string
	TwitchBotUsername  string
	TwitchOAuthToken   string
	TwitchAllowedUsers []string
	TwitchClientID     string
	TwitchClientSecret string
	TwitchRedirectURI  string
	TwitchScopes       string

	// Schedule
	ScheduleEnabled  bool
	ScheduleTZ       string
	ClockInTime      string
	LunchStartTime   string
	LunchEndTime     string
	ClockOutTime     string
	ScheduleWeekdays []time.Weekday

	// Database; empty disables persistence.
	DBDsn string
	// Redis; empty keeps the account lock in-process.
	RedisURL string

	// HTTP
	HTTPAddr      string
	EncryptionKey string
}

// Load reads environment variables and applies defaults. It doesn't fail if Paylocity creds are missing;
// use ValidatePaylocity() when a browser flow is about to run. Malformed values are reported.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.CompanyID = strings.TrimSpace(os.Getenv("PAYLOCITY_COMPANY_ID"))
	cfg.Username = strings.TrimSpace(os.Getenv("PAYLOCITY_USERNAME"))
	cfg.EncryptionKey = os.Getenv("ENCRYPTION_KEY")
	// Sealed with cmd/seal-secret: enc:<base64>.
	cfg.Password, err = crypto.Reveal(os.Getenv("PAYLOCITY_PASSWORD"), cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("PAYLOCITY_PASSWORD: %w", err)
	}
	cfg.BaseURL = envOr("PAYLOCITY_BASE_URL", "https://access.paylocity.com/")

	// Browser
	if cfg.Headless, err = envBool("BROWSER_HEADLESS", true); err != nil {
		return nil, err
	}
	cfg.ChromePath = os.Getenv("CHROME_PATH")
	cfg.ChromeRemote = os.Getenv("CHROME_REMOTE_URL")
	if cfg.AuthTimeout, err = envDuration("AUTH_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = envDuration("AUTH_POLL_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.SettleDelay, err = envDuration("ACTION_SETTLE", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.FlowTimeout, err = envDuration("FLOW_TIMEOUT", 3*time.Minute); err != nil {
		return nil, err
	}
	if cfg.BrowserTimeout, err = envDuration("BROWSER_CALL_TIMEOUT", 20*time.Second); err != nil {
		return nil, err
	}
	cfg.ScreenshotDir = envOr("SCREENSHOT_DIR", "logs")

	// Telegram
	cfg.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	for _, s := range splitList(os.Getenv("TELEGRAM_ALLOWED_CHAT_IDS")) {
		id, perr := strconv.ParseInt(s, 10, 64)
		if perr != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_ALLOWED_CHAT_IDS entry %q: %w", s, perr)
		}
		cfg.TelegramChatIDs = append(cfg.TelegramChatIDs, id)
	}

	// Twitch
	cfg.TwitchChannel = os.Getenv("TWITCH_CHANNEL")
	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")
	for _, u := range splitList(os.Getenv("TWITCH_ALLOWED_USERS")) {
		cfg.TwitchAllowedUsers = append(cfg.TwitchAllowedUsers, strings.ToLower(u))
	}
	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")
	cfg.TwitchRedirectURI = os.Getenv("TWITCH_REDIRECT_URI")
	cfg.TwitchScopes = envOr("TWITCH_SCOPES", "chat:read chat:edit")

	// Schedule
	if cfg.ScheduleEnabled, err = envBool("SCHEDULE_ENABLED", false); err != nil {
		return nil, err
	}
	cfg.ScheduleTZ = envOr("SCHEDULE_TZ", "Local")
	cfg.ClockInTime = envOr("CLOCK_IN_TIME", "09:00")
	cfg.LunchStartTime = envOr("LUNCH_START_TIME", "12:00")
	cfg.LunchEndTime = envOr("LUNCH_END_TIME", "13:00")
	cfg.ClockOutTime = envOr("CLOCK_OUT_TIME", "17:00")
	if cfg.ScheduleWeekdays, err = parseWeekdays(envOr("SCHEDULE_DAYS", "mon,tue,wed,thu,fri")); err != nil {
		return nil, err
	}

	cfg.DBDsn = os.Getenv("DB_DSN")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.HTTPAddr = envOr("HTTP_ADDR", ":8080")

	return cfg, nil
}

// ValidatePaylocity checks the credentials required before any browser launches.
func (c *Config) ValidatePaylocity() error {
	var missing []string
	if c.CompanyID == "" {
		missing = append(missing, "PAYLOCITY_COMPANY_ID")
	}
	if c.Username == "" {
		missing = append(missing, "PAYLOCITY_USERNAME")
	}
	if c.Password == "" {
		missing = append(missing, "PAYLOCITY_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing paylocity env: require %s", strings.Join(missing, ", "))
	}
	return nil
}

// ValidateTelegram checks required fields when the Telegram bot is enabled.
// An empty allowlist is rejected so the bot never answers strangers.
func (c *Config) ValidateTelegram() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("missing telegram env: require TELEGRAM_BOT_TOKEN")
	}
	if len(c.TelegramChatIDs) == 0 {
		return fmt.Errorf("missing telegram env: require TELEGRAM_ALLOWED_CHAT_IDS")
	}
	return nil
}

// ValidateTwitch checks required fields for the Twitch chat listener. The OAuth
// token may instead come from the stored token, so only identity is required here.
func (c *Config) ValidateTwitch() error {
	if c.TwitchChannel == "" || c.TwitchBotUsername == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CHANNEL, TWITCH_BOT_USERNAME")
	}
	if len(c.TwitchAllowedUsers) == 0 {
		return fmt.Errorf("missing twitch env: require TWITCH_ALLOWED_USERS")
	}
	return nil
}

// TelegramEnabled reports whether a bot token was configured.
func (c *Config) TelegramEnabled() bool { return c.TelegramToken != "" }

// TwitchEnabled reports whether a Twitch channel was configured.
func (c *Config) TwitchEnabled() bool { return c.TwitchChannel != "" }

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid %s %q: want true/false", key, v)
}

// envDuration accepts Go durations ("90s") or bare seconds ("90").
func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: want a positive duration", key, v)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == ';' }) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

func parseWeekdays(s string) ([]time.Weekday, error) {
	var out []time.Weekday
	seen := map[time.Weekday]bool{}
	for _, p := range splitList(strings.ToLower(s)) {
		if len(p) > 3 {
			p = p[:3]
		}
		d, ok := weekdayNames[p]
		if !ok {
			return nil, fmt.Errorf("invalid SCHEDULE_DAYS entry %q", p)
		}
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("SCHEDULE_DAYS is empty")
	}
	return out, nil
}

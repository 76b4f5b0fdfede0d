package timekeeping

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultBaseURL is the timekeeping provider's login entry point.
const DefaultBaseURL = "https://access.paylocity.com/"

// Options tunes timing and output locations for sessions and actions.
// Zero values are replaced by defaults in withDefaults.
type Options struct {
	BaseURL        string
	PageLoadDelay  time.Duration // pause after the first navigation
	FormTimeout    time.Duration // wait for the login form
	AuthTimeout    time.Duration // post-submit polling budget
	PollInterval   time.Duration
	SettleDelay    time.Duration // pause after a click
	ConfirmTimeout time.Duration
	ScreenshotDir  string
	Now            func() time.Time
}

func (o Options) withDefaults() Options {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.PageLoadDelay < 0 {
		o.PageLoadDelay = 0
	}
	if o.FormTimeout <= 0 {
		o.FormTimeout = 10 * time.Second
	}
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = 60 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
	if o.ConfirmTimeout <= 0 {
		o.ConfirmTimeout = 6 * time.Second
	}
	if o.ScreenshotDir == "" {
		o.ScreenshotDir = "logs"
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// DefaultOptions returns the production timings.
func DefaultOptions() Options {
	return Options{PageLoadDelay: 3 * time.Second, SettleDelay: 2 * time.Second}.withDefaults()
}

// State is the lifecycle position of a Session.
type State int

const (
	Unstarted State = iota
	Started
	Authenticated
	Closed
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Started:
		return "started"
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session owns one browser page for the duration of a single flow.
// Sessions are not reused: once Closed they cannot be started again.
type Session struct {
	launcher Launcher
	opts     Options
	logger   *slog.Logger

	mu       sync.Mutex
	state    State
	page     Page
	loginURL string
}

// NewSession returns an Unstarted session.
func NewSession(l Launcher, opts Options) *Session {
	return &Session{
		launcher: l,
		opts:     opts.withDefaults(),
		logger:   slog.Default().With(slog.String("component", "session")),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start launches the browser. Calling Start on a started session is a no-op.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Closed:
		return &StartError{Err: ErrSessionClosed}
	case Started, Authenticated:
		return nil
	}
	if s.launcher == nil {
		return &StartError{Err: errors.New("no browser launcher configured")}
	}
	p, err := s.launcher.Launch(ctx)
	if err != nil {
		return &StartError{Err: err}
	}
	s.page = p
	s.state = Started
	s.logger.Debug("browser started")
	return nil
}

// Authenticate logs in with creds and polls until the dashboard or a post-login
// URL appears. The optional "skip for now" interstitial is dismissed while polling.
func (s *Session) Authenticate(ctx context.Context, creds Credentials) error {
	s.mu.Lock()
	state, p := s.state, s.page
	s.mu.Unlock()

	switch state {
	case Authenticated:
		return nil
	case Started:
	default:
		return &AuthError{Kind: AuthDriverUnavailable, Err: errors.New("session is " + state.String())}
	}
	if err := creds.Validate(); err != nil {
		return err
	}

	if err := p.Navigate(ctx, s.opts.BaseURL); err != nil {
		return &AuthError{Kind: AuthFormUnavailable, Err: fieldError("navigate", err)}
	}
	if err := sleep(ctx, s.opts.PageLoadDelay); err != nil {
		return &AuthError{Kind: AuthTimeout, Err: err}
	}
	loginURL, err := p.URL(ctx)
	if err != nil {
		return &AuthError{Kind: AuthFormUnavailable, Err: fieldError("read url", err)}
	}

	err = Poll(ctx, PollConfig{Interval: s.opts.PollInterval / 4, Timeout: s.opts.FormTimeout}, func(ctx context.Context) (bool, error) {
		return anyVisible(ctx, p, loginForm)
	})
	if err != nil {
		return &AuthError{Kind: AuthFormUnavailable, Err: fieldError("wait for form", err)}
	}

	for _, f := range []struct{ id, value string }{
		{"CompanyId", creds.CompanyID},
		{"Username", creds.Username},
		{"Password", creds.Password},
	} {
		if err := p.Fill(ctx, f.id, f.value); err != nil {
			return &AuthError{Kind: AuthFormUnavailable, Err: fieldError("fill "+f.id, err)}
		}
	}

	if el, ok, _ := Resolve(ctx, p, rememberUsername); ok && !el.Checked {
		if err := p.Click(ctx, el); err != nil {
			s.logger.Debug("remember username toggle failed", slog.Any("err", err))
		}
	}

	btn, ok, err := Resolve(ctx, p, loginButtons)
	if err != nil {
		return &AuthError{Kind: AuthTimeout, Err: err}
	}
	if !ok {
		return &AuthError{Kind: AuthFormUnavailable, Err: errors.New("login button not found")}
	}
	if err := p.Click(ctx, btn); err != nil {
		return &AuthError{Kind: AuthFormUnavailable, Err: fieldError("submit", err)}
	}

	err = Poll(ctx, PollConfig{Interval: s.opts.PollInterval, Timeout: s.opts.AuthTimeout}, func(ctx context.Context) (bool, error) {
		return s.loggedIn(ctx, p, loginURL), nil
	})
	if err != nil {
		return &AuthError{Kind: AuthTimeout, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return &AuthError{Kind: AuthDriverUnavailable, Err: ErrSessionClosed}
	}
	s.state = Authenticated
	s.loginURL = loginURL
	s.logger.Info("login succeeded")
	return nil
}

// loggedIn is one polling iteration: dismiss the interstitial, then accept either
// a dashboard marker or a URL that has left the login page.
func (s *Session) loggedIn(ctx context.Context, p Page, loginURL string) bool {
	if el, ok, _ := Resolve(ctx, p, actionCandidates[DismissInterstitial]); ok {
		if err := p.Click(ctx, el); err == nil {
			s.logger.Info("dismissed interstitial during login")
		}
	}
	if found, _ := anyVisible(ctx, p, dashboardMarkers); found {
		return true
	}
	cur, err := p.URL(ctx)
	if err != nil || cur == "" {
		return false
	}
	return cur != loginURL && !looksLikeLogin(cur)
}

func looksLikeLogin(u string) bool {
	l := strings.ToLower(u)
	return strings.Contains(l, "login") || strings.Contains(l, "signin") || strings.Contains(l, "sign-in")
}

// authenticatedPage returns the live page, or why it cannot be used.
func (s *Session) authenticatedPage() (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Authenticated:
		return s.page, nil
	case Closed:
		return nil, ErrSessionClosed
	default:
		return nil, ErrNotAuthenticated
	}
}

// Close releases the browser. It is idempotent and safe after a failed Start.
func (s *Session) Close() (err error) {
	s.mu.Lock()
	p := s.page
	already := s.state == Closed
	s.state = Closed
	s.page = nil
	s.mu.Unlock()
	if already || p == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("browser close panicked", slog.Any("panic", r))
			err = errors.New("browser close panicked")
		}
	}()
	if err := p.Close(); err != nil {
		s.logger.Warn("browser close failed", slog.Any("err", err))
		return err
	}
	s.logger.Debug("browser closed")
	return nil
}

// Package browser implements timekeeping.Launcher and timekeeping.Page on top
// of chromedp. Each Launch starts a dedicated browser (or attaches to a remote
// DevTools endpoint) with automation fingerprints masked.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/onnwee/clockbot/timekeeping"
)

// Config controls how browsers are launched.
type Config struct {
	Headless bool
	// ExecPath is the Chrome binary; empty lets chromedp locate one.
	ExecPath string
	// RemoteURL attaches to an existing DevTools websocket instead of launching.
	RemoteURL string
	UserAgent string
	Width     int
	Height    int
	// CallTimeout bounds each individual browser call.
	CallTimeout time.Duration
}

const stealthScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
window.chrome = window.chrome || {runtime: {}};
Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});`

// Launcher starts chromedp-backed pages.
type Launcher struct {
	cfg    Config
	logger *slog.Logger
}

// NewLauncher applies defaults to cfg.
func NewLauncher(cfg Config) *Launcher {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 1920, 1080
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 20 * time.Second
	}
	return &Launcher{cfg: cfg, logger: slog.Default().With(slog.String("component", "browser"))}
}

func (l *Launcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.WindowSize(l.cfg.Width, l.cfg.Height),
	)
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	if l.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.cfg.UserAgent))
	}
	return opts
}

// Launch starts a browser whose lifetime is bounded by ctx and by Page.Close.
func (l *Launcher) Launch(ctx context.Context) (timekeeping.Page, error) {
	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if l.cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, l.cfg.RemoteURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, l.allocatorOptions()...)
	}
	bctx, bcancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			l.logger.Debug("chromedp: " + fmt.Sprintf(format, args...))
		}),
	)

	// The first Run allocates the browser and must use the browser context itself.
	err := chromedp.Run(bctx,
		chromedp.EmulateViewport(int64(l.cfg.Width), int64(l.cfg.Height)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
	)
	if err != nil {
		bcancel()
		allocCancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	l.logger.Debug("browser launched", slog.Bool("headless", l.cfg.Headless), slog.Bool("remote", l.cfg.RemoteURL != ""))
	return &Page{ctx: bctx, cancel: bcancel, allocCancel: allocCancel, timeout: l.cfg.CallTimeout}, nil
}

// Page is a single browser tab.
type Page struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	timeout     time.Duration
	closeOnce   sync.Once
	closeErr    error
}

// run executes actions on the tab, bounded by both ctx and the call timeout.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	rctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	err := chromedp.Run(rctx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *Page) URL(ctx context.Context) (string, error) {
	var u string
	err := p.run(ctx, chromedp.Location(&u))
	return u, err
}

// Fill clears the input with the given id and types value into it.
func (p *Page) Fill(ctx context.Context, id, value string) error {
	sel := "#" + id
	return p.run(ctx,
		chromedp.WaitVisible(sel, chromedp.ByQuery),
		chromedp.SetValue(sel, "", chromedp.ByQuery),
		chromedp.SendKeys(sel, value, chromedp.ByQuery),
	)
}

type jsNode struct {
	Tag     string `json:"tag"`
	Text    string `json:"text"`
	Visible bool   `json:"visible"`
	Enabled bool   `json:"enabled"`
	Checked bool   `json:"checked"`
}

type queryResult struct {
	Error string   `json:"error"`
	Nodes []jsNode `json:"nodes"`
}

// queryScript snapshots nodes matching an XPath without touching the page.
const queryScript = `(function(xp) {
	var snap;
	try {
		snap = document.evaluate(xp, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
	} catch (e) {
		return {error: String(e), nodes: []};
	}
	var out = [];
	for (var i = 0; i < snap.snapshotLength && i < 25; i++) {
		var el = snap.snapshotItem(i);
		if (el.nodeType !== 1) { out.push({tag: '', text: '', visible: false, enabled: false, checked: false}); continue; }
		var r = el.getBoundingClientRect();
		var st = window.getComputedStyle(el);
		var visible = st.visibility !== 'hidden' && st.display !== 'none' && r.width > 0 && r.height > 0;
		var text = (el.innerText || el.value || el.textContent || '').trim().slice(0, 200);
		out.push({
			tag: el.tagName.toLowerCase(),
			text: text,
			visible: visible,
			enabled: !el.disabled && el.getAttribute('aria-disabled') !== 'true',
			checked: !!el.checked
		});
	}
	return {error: '', nodes: out};
})(%s)`

const clickScript = `(function(xp, idx) {
	var snap = document.evaluate(xp, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
	var el = snap.snapshotItem(idx);
	if (!el) { return false; }
	el.scrollIntoView({block: 'center'});
	el.click();
	return true;
})(%s, %d)`

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func (p *Page) Query(ctx context.Context, xpath string) ([]timekeeping.Element, error) {
	var res queryResult
	if err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(queryScript, jsString(xpath)), &res)); err != nil {
		return nil, err
	}
	if res.Error != "" {
		return nil, fmt.Errorf("xpath %q: %s", xpath, res.Error)
	}
	out := make([]timekeeping.Element, 0, len(res.Nodes))
	for i, n := range res.Nodes {
		out = append(out, timekeeping.Element{
			XPath:   xpath,
			Index:   i,
			Tag:     n.Tag,
			Text:    n.Text,
			Visible: n.Visible,
			Enabled: n.Enabled,
			Checked: n.Checked,
		})
	}
	return out, nil
}

// errStale is returned when a previously matched node has left the document.
var errStale = errors.New("element no longer present")

func (p *Page) Click(ctx context.Context, el timekeeping.Element) error {
	var ok bool
	if err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(clickScript, jsString(el.XPath), el.Index), &ok)); err != nil {
		return err
	}
	if !ok {
		return errStale
	}
	return nil
}

// Screenshot captures the full page as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.FullScreenshot(&buf, 100))
	return buf, err
}

// Close shuts the browser down gracefully, then releases the allocator.
func (p *Page) Close() error {
	p.closeOnce.Do(func() {
		if err := chromedp.Cancel(p.ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.closeErr = err
		}
		p.cancel()
		p.allocCancel()
	})
	return p.closeErr
}

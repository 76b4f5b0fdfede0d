package timekeeping

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakePage is a scripted DOM keyed by XPath expression.
type fakePage struct {
	mu        sync.Mutex
	url       string
	nodes     map[string][]Element
	queryErr  map[string]error
	clickErr  error
	filled    map[string]string
	clicks    []string
	navigated []string
	onClick   func(p *fakePage, el Element)
	shot      []byte
	closed    int
	panicOn   string
}

func newFakePage() *fakePage {
	return &fakePage{
		nodes:    make(map[string][]Element),
		queryErr: make(map[string]error),
		filled:   make(map[string]string),
	}
}

// set registers elements for xpath; callers hold no lock.
func (p *fakePage) set(xpath string, els ...Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setLocked(xpath, els...)
}

func (p *fakePage) setLocked(xpath string, els ...Element) {
	for i := range els {
		els[i].XPath = xpath
		els[i].Index = i
	}
	p.nodes[xpath] = els
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	p.url = url
	return nil
}

func (p *fakePage) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePage) Fill(_ context.Context, id, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filled[id] = value
	return nil
}

func (p *fakePage) Query(ctx context.Context, xpath string) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.panicOn != "" && xpath == p.panicOn {
		panic("boom")
	}
	if err := p.queryErr[xpath]; err != nil {
		return nil, err
	}
	return append([]Element(nil), p.nodes[xpath]...), nil
}

func (p *fakePage) Click(_ context.Context, el Element) error {
	p.mu.Lock()
	if p.clickErr != nil {
		p.mu.Unlock()
		return p.clickErr
	}
	p.clicks = append(p.clicks, el.XPath)
	hook := p.onClick
	p.mu.Unlock()
	if hook != nil {
		hook(p, el)
	}
	return nil
}

func (p *fakePage) Screenshot(context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shot == nil {
		return nil, errors.New("no screenshot")
	}
	return p.shot, nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakePage) clicked(xpath string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clicks {
		if c == xpath {
			return true
		}
	}
	return false
}

var usable = Element{Tag: "button", Visible: true, Enabled: true}

// loginPage returns a page whose login button leads to the dashboard.
func loginPage() *fakePage {
	p := newFakePage()
	p.set(loginForm[0], Element{Tag: "input", Visible: true, Enabled: true})
	p.set(loginButtons[0], Element{Tag: "button", Text: "Login", Visible: true, Enabled: true})
	p.onClick = func(p *fakePage, el Element) {
		if el.XPath == loginButtons[0] {
			p.mu.Lock()
			p.url = "https://app.paylocity.com/Dashboard"
			p.setLocked(dashboardMarkers[0], Element{Tag: "a", Text: "Time Entry", Visible: true, Enabled: true})
			p.mu.Unlock()
		}
	}
	return p
}

// countingLauncher hands out pages from newPage and tracks concurrency.
type countingLauncher struct {
	newPage  func() *fakePage
	err      error
	launches atomic.Int32
	active   atomic.Int32
	maxSeen  atomic.Int32
	pages    []*fakePage
	mu       sync.Mutex
}

func (l *countingLauncher) Launch(context.Context) (Page, error) {
	l.launches.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	n := l.active.Add(1)
	for {
		m := l.maxSeen.Load()
		if n <= m || l.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	p := l.newPage()
	l.mu.Lock()
	l.pages = append(l.pages, p)
	l.mu.Unlock()
	return &trackedPage{fakePage: p, l: l}, nil
}

type trackedPage struct {
	*fakePage
	l    *countingLauncher
	once sync.Once
}

func (t *trackedPage) Close() error {
	t.once.Do(func() { t.l.active.Add(-1) })
	return t.fakePage.Close()
}

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		PollInterval:   time.Millisecond,
		FormTimeout:    30 * time.Millisecond,
		AuthTimeout:    60 * time.Millisecond,
		ConfirmTimeout: 15 * time.Millisecond,
		ScreenshotDir:  t.TempDir(),
		Now:            func() time.Time { return time.Date(2024, 3, 4, 9, 0, 5, 0, time.UTC) },
	}
}

var testCreds = Credentials{CompanyID: "12345", Username: "jane", Password: "hunter2"}

// authenticated returns a session already logged in to p.
func authenticated(t *testing.T, p *fakePage) *Session {
	t.Helper()
	s := NewSession(LauncherFunc(func(context.Context) (Page, error) { return p, nil }), testOptions(t))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Authenticate(context.Background(), testCreds); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	return s
}

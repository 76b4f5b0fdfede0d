package timekeeping

import (
	"context"
	"log/slog"
	"strings"
)

// Resolve walks candidates in order and returns the first element that is both
// visible and enabled. A candidate whose query fails is skipped. An empty list
// yields not-found. Only context cancellation is reported as an error.
func Resolve(ctx context.Context, p Page, candidates []string) (Element, bool, error) {
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return Element{}, false, err
		}
		els, err := p.Query(ctx, c)
		if err != nil {
			if ctx.Err() != nil {
				return Element{}, false, ctx.Err()
			}
			slog.Debug("locator candidate failed", slog.String("xpath", c), slog.Any("err", err), slog.String("component", "locator"))
			continue
		}
		for _, el := range els {
			if el.Visible && el.Enabled {
				return el, true, nil
			}
		}
	}
	return Element{}, false, nil
}

// anyVisible reports whether any candidate matches a visible element, enabled or not.
func anyVisible(ctx context.Context, p Page, candidates []string) (bool, error) {
	for _, c := range candidates {
		els, err := p.Query(ctx, c)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			continue
		}
		for _, el := range els {
			if el.Visible {
				return true, nil
			}
		}
	}
	return false, nil
}

// Probe describes what a single candidate matched, for diagnostics.
type Probe struct {
	XPath   string
	Matches int
	Visible int
	Enabled int
	Texts   []string
	Err     string
}

// Usable reports whether the candidate would have been picked by Resolve.
func (p Probe) Usable() bool { return p.Err == "" && p.Visible > 0 && p.Enabled > 0 }

// Inspect runs every candidate without clicking and reports per-candidate matches.
func Inspect(ctx context.Context, p Page, candidates []string) ([]Probe, error) {
	out := make([]Probe, 0, len(candidates))
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		pr := Probe{XPath: c}
		els, err := p.Query(ctx, c)
		if err != nil {
			pr.Err = err.Error()
			out = append(out, pr)
			continue
		}
		pr.Matches = len(els)
		for _, el := range els {
			if el.Visible {
				pr.Visible++
			}
			if el.Visible && el.Enabled {
				pr.Enabled++
			}
			if t := strings.TrimSpace(el.Text); t != "" && len(pr.Texts) < 3 {
				pr.Texts = append(pr.Texts, truncate(t, 60))
			}
		}
		out = append(out, pr)
	}
	return out, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

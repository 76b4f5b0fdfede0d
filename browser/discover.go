package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// candidateBinaries are probed in order when CHROME_PATH is unset.
var candidateBinaries = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
}

// ErrNoBrowser is returned when no local Chrome or Chromium can be found.
var ErrNoBrowser = errors.New("no chrome or chromium binary found")

// Installation describes a discovered browser binary.
type Installation struct {
	Path    string
	Version string
	Major   int
}

// lookPath and runVersion are swappable for tests.
var (
	lookPath   = exec.LookPath
	runVersion = func(ctx context.Context, path string) (string, error) {
		out, err := exec.CommandContext(ctx, path, "--version").Output() //nolint:gosec // G204: path comes from config or a fixed list
		return string(out), err
	}
)

var versionRe = regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)(?:\.(\d+))?`)

// ParseVersion extracts the dotted version and major number from `--version` output
// such as "Google Chrome 120.0.6099.109" or "Chromium 119.0.6045.159 built on Debian".
func ParseVersion(out string) (string, int, error) {
	m := versionRe.FindStringSubmatch(out)
	if m == nil {
		return "", 0, fmt.Errorf("no version in %q", strings.TrimSpace(out))
	}
	major, err := strconv.Atoi(m[1])
	if err != nil {
		return "", 0, err
	}
	return m[0], major, nil
}

// Discover finds a usable browser. An explicit path must exist; otherwise the
// candidate list is probed. A binary whose version cannot be read is still used.
func Discover(ctx context.Context, explicit string) (Installation, error) {
	paths := candidateBinaries
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if p, lerr := lookPath(explicit); lerr == nil {
				explicit = p
			} else {
				return Installation{}, fmt.Errorf("CHROME_PATH %q: %w", explicit, err)
			}
		}
		paths = []string{explicit}
	}
	for _, name := range paths {
		p, err := lookPath(name)
		if err != nil {
			continue
		}
		inst := Installation{Path: p}
		vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		out, err := runVersion(vctx, p)
		cancel()
		if err == nil {
			if v, major, perr := ParseVersion(out); perr == nil {
				inst.Version, inst.Major = v, major
			}
		}
		return inst, nil
	}
	return Installation{}, ErrNoBrowser
}

// WithDiscoveredExec sets cfg.ExecPath from Discover. When no local binary is
// found the path stays empty and chromedp searches its own list at launch, so a
// missing browser surfaces as a failed flow rather than a failed startup. The
// returned Installation is zero in that case.
func WithDiscoveredExec(ctx context.Context, cfg Config, explicit string) (Config, Installation, error) {
	inst, err := Discover(ctx, explicit)
	switch {
	case errors.Is(err, ErrNoBrowser):
		slog.Warn("no local browser found, deferring to chromedp lookup", slog.String("component", "browser"))
		cfg.ExecPath = ""
		return cfg, Installation{}, nil
	case err != nil:
		return cfg, Installation{}, err
	}
	cfg.ExecPath = inst.Path
	return cfg, inst, nil
}

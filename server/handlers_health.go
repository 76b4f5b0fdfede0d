package server

import (
	"context"
	"net/http"
)

// HandleHealthz is the liveness probe. It never touches the browser.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.deps.Store != nil {
		if err := h.deps.Store.Ping(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz runs each configured dependency check and reports the first failure.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	type check struct {
		name string
		fn   func(context.Context) error
	}
	var checks []check
	if h.deps.Store != nil {
		checks = append(checks, check{"database", h.deps.Store.Ping})
	}
	if h.deps.BrowserCheck != nil {
		checks = append(checks, check{"browser", h.deps.BrowserCheck})
	}

	for _, c := range checks {
		if err := c.fn(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": c.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

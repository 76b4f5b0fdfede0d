package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/clockbot/telemetry"
	"github.com/onnwee/clockbot/timekeeping"
)

// HandleAdminAction runs POST /admin/actions/{name} and returns the chat-formatted result.
func (h *Handlers) HandleAdminAction(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	ctx := timekeeping.WithTrigger(r.Context(), "http")
	telemetry.IncChatCommand("http", name)

	msg, err := h.deps.Flows.PerformAction(ctx, name)
	switch {
	case errors.Is(err, timekeeping.ErrUnknownAction):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "gave up waiting for the running action", http.StatusServiceUnavailable)
		return
	case err != nil:
		telemetry.LoggerWithCorr(ctx).Error("admin action failed", slog.String("component", "http"), slog.String("action", name), slog.Any("err", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"action":  name,
		"message": msg.Text,
		"photo":   msg.PhotoPath,
	})
}

type probeView struct {
	XPath   string   `json:"xpath"`
	Matches int      `json:"matches"`
	Visible int      `json:"visible"`
	Enabled int      `json:"enabled"`
	Texts   []string `json:"texts,omitempty"`
	Error   string   `json:"error,omitempty"`
	Usable  bool     `json:"usable"`
}

// HandleAdminLocate runs GET /admin/locate/{name}: log in and report candidate
// matches without clicking.
func (h *Handlers) HandleAdminLocate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	ctx := timekeeping.WithTrigger(r.Context(), "http")
	probes, err := h.deps.Flows.Locate(ctx, name)
	if errors.Is(err, timekeeping.ErrUnknownAction) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	out := make([]probeView, 0, len(probes))
	for _, p := range probes {
		out = append(out, probeView{
			XPath: p.XPath, Matches: p.Matches, Visible: p.Visible, Enabled: p.Enabled,
			Texts: p.Texts, Error: p.Err, Usable: p.Usable(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"action": name, "probes": out})
}

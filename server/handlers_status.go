package server

import (
	"net/http"
	"strings"

	"github.com/onnwee/clockbot/timekeeping"
)

type outcomeView struct {
	Action    string `json:"action"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Timestamp string `json:"timestamp"`
	Artifact  string `json:"artifact,omitempty"`
}

func viewOutcome(o timekeeping.Outcome) outcomeView {
	return outcomeView{
		Action:    o.Action.String(),
		Status:    o.Status.String(),
		Detail:    o.Detail,
		Timestamp: o.Timestamp.Format(timekeeping.TimestampLayout),
		Artifact:  o.Artifact,
	}
}

// HandleStatus returns whether a flow is running and the latest outcome per action
// since the process started.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	last := h.deps.Flows.LastOutcomes()
	views := make([]outcomeView, 0, len(last))
	for _, o := range last {
		views = append(views, viewOutcome(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"busy":        h.deps.Flows.Busy(),
		"last":        views,
		"persistence": h.deps.Store != nil,
	})
}

// HandleRuns lists recorded runs, newest first. Query: limit, action.
func (h *Handlers) HandleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Store == nil {
		http.Error(w, "run history requires DB_DSN", http.StatusNotFound)
		return
	}
	action := strings.TrimSpace(r.URL.Query().Get("action"))
	if action != "" {
		a, err := timekeeping.ParseAction(action)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		action = a.String()
	}
	runs, err := h.deps.Store.RecentRuns(r.Context(), parseIntQuery(r, "limit", 50), action)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// HandleConfig returns the effective non-secret configuration.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cfg := h.deps.Config
	if cfg == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	days := make([]string, 0, len(cfg.ScheduleWeekdays))
	for _, d := range cfg.ScheduleWeekdays {
		days = append(days, strings.ToLower(d.String()[:3]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"base_url":         cfg.BaseURL,
		"company_id":       cfg.CompanyID,
		"headless":         cfg.Headless,
		"remote_browser":   cfg.ChromeRemote != "",
		"auth_timeout":     cfg.AuthTimeout.String(),
		"flow_timeout":     cfg.FlowTimeout.String(),
		"screenshot_dir":   cfg.ScreenshotDir,
		"telegram_enabled": cfg.TelegramEnabled(),
		"twitch_enabled":   cfg.TwitchEnabled(),
		"twitch_channel":   cfg.TwitchChannel,
		"schedule": map[string]any{
			"enabled":     cfg.ScheduleEnabled,
			"tz":          cfg.ScheduleTZ,
			"clock_in":    cfg.ClockInTime,
			"lunch_start": cfg.LunchStartTime,
			"lunch_end":   cfg.LunchEndTime,
			"clock_out":   cfg.ClockOutTime,
			"days":        days,
		},
		"redis_lock": cfg.RedisURL != "",
	})
}

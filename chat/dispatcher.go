package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/clockbot/db"
	"github.com/onnwee/clockbot/telemetry"
	"github.com/onnwee/clockbot/timekeeping"
)

// Command is a parsed chat command, independent of transport.
type Command struct {
	Source string // "telegram" or "twitch"
	Sender string // chat id or login
	Name   string
	Args   []string
}

// ParseCommand splits "/clockin@bot arg" or "!locate clockin" into a Command.
// ok is false when text is not a command.
func ParseCommand(source, sender, text string) (Command, bool) {
	text = strings.TrimSpace(text)
	if text == "" || (text[0] != '/' && text[0] != '!') {
		return Command{}, false
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return Command{}, false
	}
	name, _, _ := strings.Cut(fields[0], "@")
	return Command{Source: source, Sender: sender, Name: strings.ToLower(name), Args: fields[1:]}, true
}

// Reply is what a transport sends back; PhotoPath, when set, is uploaded as an image.
type Reply = timekeeping.Message

// Flows is the part of timekeeping.Runner the dispatcher drives.
type Flows interface {
	PerformAction(ctx context.Context, name string) (timekeeping.Message, error)
	Locate(ctx context.Context, name string) ([]timekeeping.Probe, error)
	Busy() bool
}

// History lists recent runs; nil disables /history.
type History interface {
	RecentRuns(ctx context.Context, limit int, action string) ([]db.RunRecord, error)
}

// Dispatcher authorizes and executes commands from any transport.
type Dispatcher struct {
	flows   Flows
	history History
	allowed map[string]bool
	now     func() time.Time
	logger  *slog.Logger
}

// SenderKey builds the allowlist key for a transport identity.
func SenderKey(source, sender string) string {
	return source + ":" + strings.ToLower(strings.TrimSpace(sender))
}

// NewDispatcher builds a dispatcher. allowed holds SenderKey values; an empty
// allowlist rejects everyone.
func NewDispatcher(flows Flows, history History, allowed []string) *Dispatcher {
	m := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		m[strings.ToLower(a)] = true
	}
	return &Dispatcher{
		flows:   flows,
		history: history,
		allowed: m,
		now:     time.Now,
		logger:  slog.Default().With(slog.String("component", "chat")),
	}
}

// Authorized reports whether sender may use the bot.
func (d *Dispatcher) Authorized(source, sender string) bool {
	return d.allowed[SenderKey(source, sender)]
}

const unauthorizedText = "❌ You are not authorized to use this bot."

const helpText = `🕐 Paylocity Clock Bot

Time actions:
• clockin - Clock in to start your work day
• clockout - Clock out to end your work day
• lunchstart - Start your lunch break
• lunchend - End your lunch break

Utilities:
• skip - Click "Skip for Now" if it appears
• status - Check your current clock status
• screenshot - Take a screenshot of the time entry page
• locate <action> - Find a button without clicking it
• history - Show recent runs

• help - Show this help message`

// Handle runs cmd and streams replies through send. Every command, including
// help, is authorization-checked first.
func (d *Dispatcher) Handle(ctx context.Context, cmd Command, send func(Reply)) {
	telemetry.IncChatCommand(cmd.Source, cmd.Name)
	logger := d.logger.With(slog.String("source", cmd.Source), slog.String("command", cmd.Name))

	if !d.Authorized(cmd.Source, cmd.Sender) {
		logger.Warn("unauthorized chat command", slog.String("sender", cmd.Sender))
		send(Reply{Text: unauthorizedText})
		return
	}
	ctx = timekeeping.WithTrigger(ctx, SenderKey(cmd.Source, cmd.Sender))

	switch cmd.Name {
	case "start", "help":
		send(Reply{Text: helpText})
	case "history":
		d.handleHistory(ctx, cmd, send)
	case "locate":
		d.handleLocate(ctx, cmd, send)
	default:
		a, err := timekeeping.ParseAction(cmd.Name)
		if err != nil {
			send(Reply{Text: "❓ Unknown command. Use /help to see available commands."})
			return
		}
		send(Reply{Text: d.ack(a)})
		msg, err := d.flows.PerformAction(ctx, cmd.Name)
		if err != nil {
			logger.Error("chat action failed", slog.Any("err", err))
			send(timekeeping.Format(timekeeping.OutcomeFromError(a, err, d.now())))
			return
		}
		send(msg)
	}
}

func (d *Dispatcher) ack(a timekeeping.Action) string {
	if d.flows.Busy() {
		return fmt.Sprintf("⏳ %s queued behind a running action...", a.Label())
	}
	return fmt.Sprintf("✅ Received %s. Processing...", a.Label())
}

func (d *Dispatcher) handleLocate(ctx context.Context, cmd Command, send func(Reply)) {
	name := "clockin"
	if len(cmd.Args) > 0 {
		name = cmd.Args[0]
	}
	a, err := timekeeping.ParseAction(name)
	if err != nil {
		send(Reply{Text: fmt.Sprintf("❓ Unknown action %q. Try: locate clockin", name)})
		return
	}
	send(Reply{Text: fmt.Sprintf("🔍 Locating %s control...", a.Label())})
	probes, err := d.flows.Locate(ctx, name)
	if err != nil {
		send(Reply{Text: fmt.Sprintf("❌ Error locating %s control: %v", a.Label(), err)})
		return
	}
	send(timekeeping.FormatProbes(a, probes, d.now()))
}

func (d *Dispatcher) handleHistory(ctx context.Context, cmd Command, send func(Reply)) {
	if d.history == nil {
		send(Reply{Text: "History is not enabled (no database configured)."})
		return
	}
	action := ""
	if len(cmd.Args) > 0 {
		a, err := timekeeping.ParseAction(cmd.Args[0])
		if err != nil {
			send(Reply{Text: fmt.Sprintf("❓ Unknown action %q", cmd.Args[0])})
			return
		}
		action = a.String()
	}
	runs, err := d.history.RecentRuns(ctx, 10, action)
	if err != nil {
		send(Reply{Text: fmt.Sprintf("❌ Could not load history: %v", err)})
		return
	}
	if len(runs) == 0 {
		send(Reply{Text: "No runs recorded yet."})
		return
	}
	var b strings.Builder
	b.WriteString("🗂 Recent runs\n")
	for _, r := range runs {
		fmt.Fprintf(&b, "%s  %-10s %-13s %s\n", r.CreatedAt.Local().Format(timekeeping.TimestampLayout), r.Action, r.Status, r.Source)
	}
	send(Reply{Text: strings.TrimRight(b.String(), "\n")})
}

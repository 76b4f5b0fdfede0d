package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// ircClient is the subset of *twitch.Client used by the listener.
type ircClient interface {
	OnPrivateMessage(callback func(message twitch.PrivateMessage))
	Say(channel, text string)
	Join(channels ...string)
	Connect() error
	Disconnect() error
}

// TwitchConfig identifies the bot and the channel it listens in.
type TwitchConfig struct {
	Channel  string
	Username string
	Token    string // with or without the "oauth:" prefix
}

// twitch chat messages are capped at 500 characters
const maxTwitchMessage = 480

// StartTwitchListener connects to Twitch IRC and dispatches "!command" messages
// from cfg.Channel. It blocks until ctx is cancelled.
func StartTwitchListener(ctx context.Context, cfg TwitchConfig, d *Dispatcher) {
	if cfg.Channel == "" || cfg.Username == "" || cfg.Token == "" {
		slog.Info("twitch creds not set; skipping chat listener")
		return
	}
	token := cfg.Token
	if !strings.HasPrefix(token, "oauth:") {
		token = "oauth:" + token
	}
	runTwitch(ctx, twitch.NewClient(cfg.Username, token), cfg.Channel, d)
}

func runTwitch(ctx context.Context, client ircClient, channel string, d *Dispatcher) {
	logger := slog.Default().With(slog.String("component", "twitch_chat"), slog.String("channel", channel))
	var handlers sync.WaitGroup

	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		cmd, ok := ParseCommand("twitch", msg.User.Name, msg.Message)
		if !ok {
			return
		}
		handlers.Add(1)
		go func() {
			defer handlers.Done()
			d.Handle(ctx, cmd, func(r Reply) {
				client.Say(channel, twitchText(msg.User.Name, r))
			})
		}()
	})

	// Handle context cancellation by closing the client
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		if err := client.Disconnect(); err != nil {
			logger.Debug("twitch disconnect", slog.Any("err", err))
		}
		close(done)
	}()

	client.Join(channel)
	if err := client.Connect(); err != nil {
		logger.Error("twitch chat connect error", slog.Any("err", err))
	}
	<-done
	handlers.Wait()
}

// twitchText flattens a reply onto one line, since IRC has no newlines or images.
func twitchText(user string, r Reply) string {
	text := strings.Join(strings.Fields(strings.ReplaceAll(r.Text, "\n", " | ")), " ")
	if r.PhotoPath != "" {
		text += " (saved " + r.PhotoPath + ")"
	}
	text = "@" + user + " " + text
	if len([]rune(text)) > maxTwitchMessage {
		text = string([]rune(text)[:maxTwitchMessage-1]) + "…"
	}
	return text
}

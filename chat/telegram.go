package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/onnwee/clockbot/timekeeping"
)

// botAPI is the subset of *tgbotapi.BotAPI used here.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram is a long-polling bot that feeds commands to a Dispatcher and
// doubles as the notifier for scheduled runs.
type Telegram struct {
	api     botAPI
	d       *Dispatcher
	notify  []int64
	logger  *slog.Logger
	handled sync.WaitGroup
}

// NewTelegram connects to the Bot API. notify lists chats that receive Notify messages.
func NewTelegram(token string, d *Dispatcher, notify []int64) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	t := newTelegram(api, d, notify)
	t.logger.Info("telegram bot authorized", slog.String("bot", api.Self.UserName))
	return t, nil
}

func newTelegram(api botAPI, d *Dispatcher, notify []int64) *Telegram {
	return &Telegram{api: api, d: d, notify: notify, logger: slog.Default().With(slog.String("component", "telegram"))}
}

// Run polls for updates until ctx is cancelled, handling each message in its own
// goroutine so a long flow never blocks polling. In-flight handlers are awaited on exit.
func (t *Telegram) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.api.GetUpdatesChan(u)
	defer t.handled.Wait()
	defer t.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			if up.Message == nil || up.Message.Chat == nil {
				continue
			}
			t.handled.Add(1)
			go func(m *tgbotapi.Message) {
				defer t.handled.Done()
				t.handle(ctx, m)
			}(up.Message)
		}
	}
}

func (t *Telegram) handle(ctx context.Context, m *tgbotapi.Message) {
	chatID := m.Chat.ID
	cmd := Command{Source: "telegram", Sender: strconv.FormatInt(chatID, 10)}
	if m.IsCommand() {
		cmd.Name = strings.ToLower(m.Command())
		cmd.Args = strings.Fields(m.CommandArguments())
	}
	t.d.Handle(ctx, cmd, func(r Reply) {
		if err := t.send(chatID, r); err != nil {
			t.logger.Warn("telegram send failed", slog.Int64("chat_id", chatID), slog.Any("err", err))
		}
	})
}

func (t *Telegram) send(chatID int64, r Reply) error {
	if r.PhotoPath != "" {
		p := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(r.PhotoPath))
		p.Caption = r.Text
		_, err := t.api.Send(p)
		return err
	}
	_, err := t.api.Send(tgbotapi.NewMessage(chatID, r.Text))
	return err
}

// Notify sends m to every configured notification chat.
func (t *Telegram) Notify(_ context.Context, m timekeeping.Message) error {
	var errs []error
	for _, id := range t.notify {
		if err := t.send(id, m); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

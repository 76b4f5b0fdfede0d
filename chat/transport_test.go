package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/onnwee/clockbot/timekeeping"
)

type fakeBot struct {
	mu      sync.Mutex
	updates chan tgbotapi.Update
	sent    []tgbotapi.Chattable
	stopped bool
	sendErr error
}

func (b *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return b.updates }

func (b *fakeBot) StopReceivingUpdates() {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, c)
	return tgbotapi.Message{}, b.sendErr
}

func (b *fakeBot) snapshot() []tgbotapi.Chattable {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), b.sent...)
}

func commandUpdate(chatID int64, text string) tgbotapi.Update {
	cmdLen := len(text)
	if i := strings.IndexByte(text, ' '); i > 0 {
		cmdLen = i
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chatID},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}}
}

func TestTelegramRunHandlesCommands(t *testing.T) {
	bot := &fakeBot{updates: make(chan tgbotapi.Update, 4)}
	flows := &fakeFlows{reply: timekeeping.Message{Text: "📸 Screenshot taken", PhotoPath: "logs/shot.png"}}
	tg := newTelegram(bot, NewDispatcher(flows, nil, []string{"telegram:42"}), []int64{42})

	bot.updates <- commandUpdate(42, "/screenshot")
	bot.updates <- commandUpdate(7, "/clockin")
	bot.updates <- tgbotapi.Update{Message: &tgbotapi.Message{Text: "hi", Chat: &tgbotapi.Chat{ID: 42}}}
	close(bot.updates)

	tg.Run(context.Background())

	var texts []string
	var photos int
	for _, c := range bot.snapshot() {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			texts = append(texts, m.Text)
		case tgbotapi.PhotoConfig:
			photos++
			if m.ChatID != 42 || m.Caption != "📸 Screenshot taken" {
				t.Errorf("photo = %+v", m)
			}
		}
	}
	if photos != 1 {
		t.Errorf("photos sent = %d, want 1", photos)
	}
	joined := strings.Join(texts, "\n")
	for _, want := range []string{"Processing", unauthorizedText, "Unknown command"} {
		if !strings.Contains(joined, want) {
			t.Errorf("sent texts missing %q: %v", want, texts)
		}
	}
	if len(flows.names) != 1 || flows.names[0] != "screenshot" {
		t.Errorf("flows = %v", flows.names)
	}
	if !bot.stopped {
		t.Error("StopReceivingUpdates not called")
	}
}

func TestTelegramNotify(t *testing.T) {
	bot := &fakeBot{updates: make(chan tgbotapi.Update)}
	tg := newTelegram(bot, NewDispatcher(&fakeFlows{}, nil, nil), []int64{1, 2})
	if err := tg.Notify(context.Background(), timekeeping.Message{Text: "⏰ Scheduled Clock In"}); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if n := len(bot.snapshot()); n != 2 {
		t.Errorf("sent = %d, want 2", n)
	}

	bot.sendErr = errors.New("forbidden: bot was blocked by the user")
	if err := tg.Notify(context.Background(), timekeeping.Message{Text: "x"}); err == nil || !strings.Contains(err.Error(), "chat 2") {
		t.Errorf("Notify() error = %v", err)
	}
}

type fakeIRC struct {
	mu      sync.Mutex
	onMsg   func(twitch.PrivateMessage)
	said    []string
	joined  []string
	replied chan struct{}
	release chan struct{}
}

func (f *fakeIRC) OnPrivateMessage(cb func(twitch.PrivateMessage)) {
	f.mu.Lock()
	f.onMsg = cb
	f.mu.Unlock()
}

func (f *fakeIRC) Say(_ string, text string) {
	f.mu.Lock()
	f.said = append(f.said, text)
	f.mu.Unlock()
	select {
	case f.replied <- struct{}{}:
	default:
	}
}

func (f *fakeIRC) Join(channels ...string) {
	f.mu.Lock()
	f.joined = append(f.joined, channels...)
	f.mu.Unlock()
}

func (f *fakeIRC) Connect() error {
	<-f.release
	return nil
}

func (f *fakeIRC) Disconnect() error {
	close(f.release)
	return nil
}

func TestTwitchListener(t *testing.T) {
	irc := &fakeIRC{release: make(chan struct{}), replied: make(chan struct{}, 8)}
	flows := &fakeFlows{reply: timekeeping.Message{Text: "ℹ️ Current status: Clocked In"}}
	d := NewDispatcher(flows, nil, []string{"twitch:owner"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runTwitch(ctx, irc, "chan", d)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		irc.mu.Lock()
		registered := irc.onMsg != nil
		irc.mu.Unlock()
		if registered {
			break
		}
		select {
		case <-deadline:
			t.Fatal("OnPrivateMessage never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	irc.onMsg(twitch.PrivateMessage{User: twitch.User{Name: "Owner"}, Message: "!status", Channel: "chan"})
	irc.onMsg(twitch.PrivateMessage{User: twitch.User{Name: "viewer"}, Message: "just chatting", Channel: "chan"})

	for i := 0; i < 2; i++ {
		select {
		case <-irc.replied:
		case <-time.After(2 * time.Second):
			t.Fatal("no reply from listener")
		}
	}
	cancel()
	<-done

	irc.mu.Lock()
	defer irc.mu.Unlock()
	if len(irc.joined) != 1 || irc.joined[0] != "chan" {
		t.Errorf("joined = %v", irc.joined)
	}
	if len(irc.said) != 2 || !strings.HasPrefix(irc.said[0], "@Owner ") || !strings.Contains(irc.said[1], "Current status: Clocked In") {
		t.Errorf("said = %v", irc.said)
	}
}

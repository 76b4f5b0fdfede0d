package timekeeping

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the terminal result of performing an action.
type Status int

const (
	Succeeded Status = iota + 1
	// NotAvailable means no usable control was found; usually the account is
	// already in the requested state.
	NotAvailable
	Failed
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case NotAvailable:
		return "not_available"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the immutable result of one action invocation.
type Outcome struct {
	Action    Action
	Status    Status
	Detail    string
	Timestamp time.Time
	// Artifact is a file path produced by the action, such as a screenshot.
	Artifact string
}

// Message is a presentation-ready reply.
type Message struct {
	Text      string
	PhotoPath string
}

// TimestampLayout is used in every user-facing message.
const TimestampLayout = "2006-01-02 15:04:05"

// Format renders an outcome for chat. It is pure.
func Format(o Outcome) Message {
	ts := o.Timestamp.Format(TimestampLayout)
	label := o.Action.Label()
	switch o.Status {
	case Succeeded:
		switch o.Action {
		case CaptureSnapshot:
			return Message{Text: fmt.Sprintf("📸 Screenshot taken at %s", ts), PhotoPath: o.Artifact}
		case CheckStatus:
			return Message{Text: fmt.Sprintf("ℹ️ Current status: %s\nTime: %s", orUnknown(o.Detail), ts)}
		case DismissInterstitial:
			return Message{Text: fmt.Sprintf("✅ Interstitial dismissed\nTime: %s", ts)}
		default:
			return Message{Text: fmt.Sprintf("✅ %s Successful!\nTime: %s", label, ts)}
		}
	case NotAvailable:
		return Message{Text: fmt.Sprintf("⚠️ %s not available\nTime: %s\nThe button might not be available or you're already in that state.", label, ts)}
	default:
		detail := firstLine(o.Detail)
		if detail == "" {
			detail = "unexpected error"
		}
		return Message{Text: fmt.Sprintf("❌ %s Failed\nTime: %s\nReason: %s", label, ts, detail)}
	}
}

// OutcomeFromError maps a start or login failure onto a Failed outcome so that
// every reply is produced by Format.
func OutcomeFromError(a Action, err error, at time.Time) Outcome {
	o := Outcome{Action: a, Status: Failed, Timestamp: at}
	var se *StartError
	var ae *AuthError
	switch {
	case err == nil:
		o.Detail = "unexpected error"
	case errors.As(err, &se):
		o.Detail = "could not start the browser"
	case errors.As(err, &ae):
		switch ae.Kind {
		case AuthMissingCredentials:
			o.Detail = "login failed: missing " + strings.Join(ae.Missing, ", ")
		case AuthTimeout:
			o.Detail = "login failed: no dashboard after waiting"
		default:
			o.Detail = "login failed: " + ae.Kind.String()
		}
	default:
		o.Detail = err.Error()
	}
	return o
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// FormatProbes renders a locate report: the first usable candidate, or a
// per-candidate breakdown when nothing would be clicked.
func FormatProbes(a Action, probes []Probe, at time.Time) Message {
	ts := at.Format(TimestampLayout)
	for _, p := range probes {
		if p.Usable() {
			text := ""
			if len(p.Texts) > 0 {
				text = p.Texts[0]
			}
			return Message{Text: fmt.Sprintf("✅ %s control found\nTime: %s\nXPath: %s\nText: '%s'\nVisible/enabled: %d/%d\n\n🚫 Not clicked, located only",
				a.Label(), ts, p.XPath, text, p.Visible, p.Enabled)}
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "❌ %s control not found\nTime: %s\n", a.Label(), ts)
	for i, p := range probes {
		switch {
		case p.Err != "":
			fmt.Fprintf(&b, "%d. error: %s\n", i+1, truncate(p.Err, 80))
		case p.Matches > 0:
			fmt.Fprintf(&b, "%d. %d match(es), %d visible, %d enabled\n", i+1, p.Matches, p.Visible, p.Enabled)
		}
	}
	b.WriteString("💡 The control might not be available or the page did not load")
	return Message{Text: b.String()}
}

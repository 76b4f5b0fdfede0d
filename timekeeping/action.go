package timekeeping

import (
	"errors"
	"fmt"
	"strings"
)

// Action is a closed set of operations the bot can drive in the timekeeping UI.
type Action int

const (
	ClockIn Action = iota + 1
	ClockOut
	StartLunch
	EndLunch
	DismissInterstitial
	CaptureSnapshot
	CheckStatus
)

// ErrUnknownAction is returned for command names outside the accepted set.
var ErrUnknownAction = errors.New("unknown action")

// Actions lists every action in display order.
var Actions = []Action{ClockIn, ClockOut, StartLunch, EndLunch, DismissInterstitial, CaptureSnapshot, CheckStatus}

// String returns the caller-facing command name.
func (a Action) String() string {
	switch a {
	case ClockIn:
		return "clockin"
	case ClockOut:
		return "clockout"
	case StartLunch:
		return "lunchstart"
	case EndLunch:
		return "lunchend"
	case DismissInterstitial:
		return "skip"
	case CaptureSnapshot:
		return "screenshot"
	case CheckStatus:
		return "status"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Label returns a human readable title for messages.
func (a Action) Label() string {
	switch a {
	case ClockIn:
		return "Clock In"
	case ClockOut:
		return "Clock Out"
	case StartLunch:
		return "Lunch Start"
	case EndLunch:
		return "Lunch End"
	case DismissInterstitial:
		return "Skip"
	case CaptureSnapshot:
		return "Screenshot"
	case CheckStatus:
		return "Status"
	default:
		return a.String()
	}
}

// Valid reports whether a is one of the declared actions.
func (a Action) Valid() bool { return a >= ClockIn && a <= CheckStatus }

// timeEntry reports whether the action lives on the time entry page.
func (a Action) timeEntry() bool {
	switch a {
	case ClockIn, ClockOut, StartLunch, EndLunch, CheckStatus:
		return true
	default:
		return false
	}
}

// ParseAction maps a caller name (case-insensitive, optional leading '/' or '!') to an Action.
func ParseAction(name string) (Action, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimLeft(n, "/!")
	for _, a := range Actions {
		if a.String() == n {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAction, name)
}

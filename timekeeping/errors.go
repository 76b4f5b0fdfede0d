package timekeeping

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSessionClosed is returned when a closed session is used again.
	ErrSessionClosed = errors.New("session closed")
	// ErrNotAuthenticated is returned when an action runs before login completed.
	ErrNotAuthenticated = errors.New("session not authenticated")
)

// StartError reports that the browser could not be launched.
type StartError struct {
	Err error
}

func (e *StartError) Error() string { return "browser start failed: " + e.Err.Error() }
func (e *StartError) Unwrap() error { return e.Err }

// AuthErrorKind enumerates the ways authentication can fail.
type AuthErrorKind int

const (
	// AuthDriverUnavailable means no started browser was available.
	AuthDriverUnavailable AuthErrorKind = iota + 1
	// AuthMissingCredentials means one or more credential fields were empty.
	AuthMissingCredentials
	// AuthFormUnavailable means the login form could not be loaded or submitted.
	AuthFormUnavailable
	// AuthTimeout means no post-login signal was seen within the polling budget.
	AuthTimeout
)

func (k AuthErrorKind) String() string {
	switch k {
	case AuthDriverUnavailable:
		return "driver unavailable"
	case AuthMissingCredentials:
		return "missing credentials"
	case AuthFormUnavailable:
		return "login form unavailable"
	case AuthTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// AuthError reports a failed login attempt.
type AuthError struct {
	Kind AuthErrorKind
	// Missing lists empty credential fields for AuthMissingCredentials.
	Missing []string
	Err     error
}

func (e *AuthError) Error() string {
	msg := "authentication failed: " + e.Kind.String()
	if len(e.Missing) > 0 {
		msg += " (" + strings.Join(e.Missing, ", ") + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// Recoverable reports whether retrying later may succeed without operator action.
func (e *AuthError) Recoverable() bool { return e.Kind == AuthTimeout || e.Kind == AuthFormUnavailable }

// ErrorClass represents whether a flow failure is worth retrying.
type ErrorClass int

const (
	// ErrorClassRetryable indicates a transient failure.
	ErrorClassRetryable ErrorClass = iota
	// ErrorClassFatal indicates operator action is required.
	ErrorClassFatal
	// ErrorClassUnknown indicates the error could not be classified.
	ErrorClassUnknown
)

func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassRetryable:
		return "retryable"
	case ErrorClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ClassifyError sorts flow errors into retryable and fatal buckets.
//
// Fatal: missing credentials, any browser start failure, closed sessions.
// Retryable: login timeouts, unreachable login form, deadline exceeded, websocket drops.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		switch ae.Kind {
		case AuthMissingCredentials, AuthDriverUnavailable:
			return ErrorClassFatal
		default:
			return ErrorClassRetryable
		}
	}
	var se *StartError
	if errors.As(err, &se) || errors.Is(err, ErrSessionClosed) {
		return ErrorClassFatal
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrPollTimeout) {
		return ErrorClassRetryable
	}
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "executable file not found") ||
		strings.Contains(lower, "no such file or directory") ||
		strings.Contains(lower, "permission denied") {
		return ErrorClassFatal
	}
	if strings.Contains(lower, "websocket") ||
		strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "target closed") {
		return ErrorClassRetryable
	}
	return ErrorClassUnknown
}

func fieldError(field string, err error) error { return fmt.Errorf("%s: %w", field, err) }

package api

import (
	"github.com/cockroachdb/errors"
)

// Kind groups failures by how a caller should react to them.
type Kind int

const (
	// KindApplication is a non-2xx response carrying an ordinary server message.
	KindApplication Kind = iota
	// KindTimeout means the request exceeded the client deadline.
	KindTimeout
	// KindNetwork is a transport failure such as an unreachable host.
	KindNetwork
	// KindSessionFatal means the server ended the session.
	KindSessionFatal
	// KindRefreshFailure means renewing the credential failed.
	KindRefreshFailure
	// KindMalformed is a 2xx response whose body is not JSON.
	KindMalformed
	// KindCanceled means the caller's context was canceled.
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindApplication:
		return "application"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindSessionFatal:
		return "session_fatal"
	case KindRefreshFailure:
		return "refresh_failure"
	case KindMalformed:
		return "malformed"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Messages attached to failures that do not carry a server message.
const (
	TimeoutMessage        = "Request timeout - please try again"
	NetworkMessage        = "Network error - please check your connection"
	FallbackMessage       = "Network error"
	MalformedMessage      = "Invalid response from server"
	CanceledMessage       = "Request canceled"
	SessionExpiredMessage = "Session expired - please sign in again"
)

// Error is the single error type returned by Client.
type Error struct {
	URL      string
	Method   string
	Status   int
	Message  string
	Body     string
	Kind     Kind
	TheError error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.TheError != nil {
		return e.TheError.Error()
	}
	return FallbackMessage
}

func (e *Error) Unwrap() error {
	return e.TheError
}

// Retryable reports whether retrying the same call may succeed. The client
// never retries these itself.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindNetwork:
		return true
	case KindApplication:
		return Classify(e.Status, e.Message).Retryable
	default:
		return false
	}
}

// SessionEnded reports whether the failure tore down the session.
func (e *Error) SessionEnded() bool {
	return e.Kind == KindSessionFatal || e.Kind == KindRefreshFailure
}

func newError(url, method string, status int, kind Kind, message, body string, err error) *Error {
	return &Error{
		URL:      url,
		Method:   method,
		Status:   status,
		Message:  message,
		Body:     body,
		Kind:     kind,
		TheError: err,
	}
}

// KindOf returns the Kind of err, and false if err is not an *Error.
func KindOf(err error) (Kind, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind, true
	}
	return 0, false
}

// IsTimeout reports whether err is a client timeout.
func IsTimeout(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindTimeout
}

// IsSessionEnded reports whether err ended the session.
func IsSessionEnded(err error) bool {
	k, ok := KindOf(err)
	return ok && (k == KindSessionFatal || k == KindRefreshFailure)
}

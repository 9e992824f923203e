// Package payment defines the hosted checkout boundary.
package payment

import (
	"context"
	"errors"
)

// SessionIDPlaceholder is replaced by the gateway with its session id inside
// return URLs.
const SessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"

type SessionRequest struct {
	AmountMinor   int64
	Currency      string
	Description   string
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
	Metadata      map[string]string
}

type Session struct {
	ID          string
	RedirectURL string
}

// Gateway creates hosted checkout sessions. Implementations make a single
// attempt per call and honour ctx deadlines.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}

// Verifier is implemented by gateways that can report whether a session has
// been paid.
type Verifier interface {
	SessionPaid(ctx context.Context, sessionID string) (bool, error)
}

// Error carries the provider's own message for the user.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns the provider message for err, or err's text.
func Message(err error) string {
	var pe *Error
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	return err.Error()
}

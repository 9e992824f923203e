package booking

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kirinyoku/feisbook/internal/domain"
)

var (
	ErrEventNotFound          = errors.New("event not found")
	ErrIncompleteReturn       = errors.New("incomplete payment return, booking not recorded")
	ErrReturnMismatch         = errors.New("payment return does not match the checkout session")
	ErrPaymentIncomplete      = errors.New("payment has not been completed")
	ErrConfirmationInProgress = errors.New("confirmation already in progress")
	ErrStoreUnavailable       = errors.New("booking data temporarily unavailable, please retry later")
	ErrInvalidTransition      = errors.New("invalid booking transition")
)

// ValidationError lists rejected attendee fields.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}

	return "invalid booking: " + strings.Join(parts, "; ")
}

// GatewayError is a payment provider failure. Message is shown to the user
// as the provider wrote it.
type GatewayError struct {
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter.Round(time.Second))
}

// stateError records the workflow state an operation stopped in.
type stateError struct {
	state domain.State
	err   error
}

func (e *stateError) Error() string { return e.err.Error() }
func (e *stateError) Unwrap() error { return e.err }

func fail(state domain.State, err error) error {
	return &stateError{state: state, err: err}
}

// StateOf reports the workflow state left behind by an error returned from
// Service. Errors from elsewhere report StateFailed.
func StateOf(err error) domain.State {
	var se *stateError
	if errors.As(err, &se) {
		return se.state
	}
	return domain.StateFailed
}

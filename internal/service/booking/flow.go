package booking

import (
	"fmt"
	"time"

	"github.com/kirinyoku/feisbook/internal/domain"
)

// Flow is one attendee's position in the workflow, returned from every step
// instead of being kept in server memory.
type Flow struct {
	State       domain.State
	Draft       *domain.BookingDraft
	Pending     *domain.PendingPayment
	RedirectURL string
}

func (f *Flow) advance(next domain.State) error {
	state, err := f.State.Transition(next)
	if err != nil {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, f.State, next)
	}
	f.State = state
	return nil
}

// Confirmation is the outcome of a payment return.
type Confirmation struct {
	State   domain.State
	Booking domain.BookingRecord
	// Event is nil when a duplicate is replayed for an event that can no
	// longer be read.
	Event *domain.Event
	// Duplicate is set when the session was already recorded; nothing was
	// written or sent.
	Duplicate bool
	// Warning is set when the booking stands but the attendee was not
	// notified.
	Warning string
}

// DefaultOptions is the option catalogue used when Config.Options is nil.
var DefaultOptions = []string{"Heavy Jig", "Light Jig", "Reel", "Championship"}

type DraftInput struct {
	EventID string
	Name    string
	Email   string
	Options []string
}

type Config struct {
	// PublicBaseURL is where the payment return endpoint is reachable.
	PublicBaseURL  string
	Currency       string
	GatewayTimeout time.Duration
	NotifyTimeout  time.Duration
	// LockTTL bounds how long one confirmation may hold its idempotency key.
	LockTTL time.Duration
	// PendingTTL is how long an unconfirmed checkout is kept before it is
	// treated as abandoned.
	PendingTTL time.Duration
	// Options is the accepted option catalogue. Nil means DefaultOptions,
	// an empty non-nil slice accepts any label.
	Options []string
	// VerifyPayment asks gateways that can verify sessions to confirm the
	// payment before a booking is recorded.
	VerifyPayment bool
}

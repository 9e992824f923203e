// Package notification delivers booking confirmations to attendees.
package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirinyoku/feisbook/internal/domain"
)

// Sender delivers one message per call and makes a single attempt.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Confirmation renders the subject and body sent after a booking is recorded.
func Confirmation(e domain.Event, b domain.BookingRecord) (subject, body string) {
	subject = fmt.Sprintf("Booking confirmed: %s", e.Title)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Hi %s,\n\n", b.Name)
	fmt.Fprintf(&sb, "Your booking for %s on %s is confirmed.\n\n", e.Title, e.Date)
	if e.Location != "" {
		fmt.Fprintf(&sb, "Location: %s\n", e.Location)
	}
	fmt.Fprintf(&sb, "Selections: %s\n", strings.Join(b.Options, ", "))
	if b.AmountMinor > 0 {
		fmt.Fprintf(&sb, "Paid: %s\n", domain.FormatMinor(b.AmountMinor))
	}
	fmt.Fprintf(&sb, "Booking reference: %s\n", b.ID)

	return subject, sb.String()
}

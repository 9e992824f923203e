package domain

import (
	"time"
)

type Event struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Date       Date      `json:"date"`
	Location   string    `json:"location,omitempty"`
	Info       string    `json:"info,omitempty"`
	PriceMinor int64     `json:"price_minor"`
	CreatedAt  time.Time `json:"created_at"`
}

// BookingDraft is the attendee's selection before a checkout session exists.
// It is never persisted.
type BookingDraft struct {
	EventID     string   `json:"event_id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Options     []string `json:"options"`
	AmountMinor int64    `json:"amount_minor"`
}

// PendingPayment is a draft promoted after the gateway accepted a checkout
// session. It is keyed by the gateway session id.
type PendingPayment struct {
	SessionID   string    `json:"session_id"`
	EventID     string    `json:"event_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Options     []string  `json:"options"`
	AmountMinor int64     `json:"amount_minor"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"created_at"`
}

type BookingRecord struct {
	ID             string    `json:"id"`
	EventID        string    `json:"event_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Options        []string  `json:"options"`
	SessionID      string    `json:"session_id"`
	IdempotencyKey string    `json:"idempotency_key"`
	AmountMinor    int64     `json:"amount_minor"`
	CreatedAt      time.Time `json:"created_at"`
}

// IdempotencyKey derives the ledger key for a gateway checkout session.
func IdempotencyKey(sessionID string) string {
	return "checkout-session:" + sessionID
}

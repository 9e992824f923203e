package httpgin

import (
	"github.com/kirinyoku/feisbook/internal/domain"
	"github.com/kirinyoku/feisbook/internal/service/booking"
	"github.com/shopspring/decimal"
)

type CreateEventRequest struct {
	Title    string      `json:"title"`
	Date     domain.Date `json:"date"`
	Location string      `json:"location"`
	Info     string      `json:"info"`
	// Price accepts a JSON number or string, e.g. 12.50 or "12.50".
	Price decimal.Decimal `json:"price"`
}

type DraftRequest struct {
	EventID string   `json:"event_id"`
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Options []string `json:"options"`
}

func (r DraftRequest) input() booking.DraftInput {
	return booking.DraftInput{
		EventID: r.EventID,
		Name:    r.Name,
		Email:   r.Email,
		Options: r.Options,
	}
}

type ErrorResponse struct {
	Error  string            `json:"error"`
	State  string            `json:"state,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

type IndexResponse struct {
	State   string         `json:"state"`
	Events  []domain.Event `json:"events"`
	Options []string       `json:"options"`
}

type DraftResponse struct {
	State  string              `json:"state"`
	Draft  domain.BookingDraft `json:"draft"`
	Amount string              `json:"amount"`
}

type CheckoutResponse struct {
	State       string `json:"state"`
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
	AmountMinor int64  `json:"amount_minor"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
}

type ConfirmationResponse struct {
	State     string               `json:"state"`
	Duplicate bool                 `json:"duplicate"`
	Warning   string               `json:"warning,omitempty"`
	Booking   domain.BookingRecord `json:"booking"`
	Event     *domain.Event        `json:"event,omitempty"`
}

type AbandonResponse struct {
	State   string `json:"state"`
	Message string `json:"message"`
}

func newDraftResponse(f *booking.Flow) DraftResponse {
	return DraftResponse{
		State:  string(f.State),
		Draft:  *f.Draft,
		Amount: domain.FormatMinor(f.Draft.AmountMinor),
	}
}

func newCheckoutResponse(f *booking.Flow) CheckoutResponse {
	return CheckoutResponse{
		State:       string(f.State),
		SessionID:   f.Pending.SessionID,
		RedirectURL: f.RedirectURL,
		AmountMinor: f.Pending.AmountMinor,
		Amount:      domain.FormatMinor(f.Pending.AmountMinor),
		Currency:    f.Pending.Currency,
	}
}

func newConfirmationResponse(c *booking.Confirmation) ConfirmationResponse {
	return ConfirmationResponse{
		State:     string(c.State),
		Duplicate: c.Duplicate,
		Warning:   c.Warning,
		Booking:   c.Booking,
		Event:     c.Event,
	}
}

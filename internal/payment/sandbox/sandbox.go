// Package sandbox is a local stand-in for a hosted checkout. Its hosted page
// is served by the HTTP transport under /sandbox/checkout/:id.
package sandbox

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kirinyoku/feisbook/internal/payment"
)

var ErrUnknownSession = errors.New("unknown sandbox session")

type session struct {
	successURL string
	cancelURL  string
	amount     int64
	currency   string
	paid       bool
}

type Gateway struct {
	baseURL string

	mu       sync.Mutex
	sessions map[string]*session
}

var (
	_ payment.Gateway  = (*Gateway)(nil)
	_ payment.Verifier = (*Gateway)(nil)
)

// New returns a gateway whose hosted pages live under baseURL.
func New(baseURL string) *Gateway {
	return &Gateway{
		baseURL:  strings.TrimRight(baseURL, "/"),
		sessions: make(map[string]*session),
	}
}

func (g *Gateway) CreateSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if req.AmountMinor <= 0 {
		return nil, &payment.Error{Message: "amount must be at least 1 minor unit"}
	}

	if len(req.Currency) != 3 {
		return nil, &payment.Error{Message: fmt.Sprintf("invalid currency: %q", req.Currency)}
	}

	id := "sess_" + randomHex(12)

	g.mu.Lock()
	g.sessions[id] = &session{
		successURL: strings.ReplaceAll(req.SuccessURL, payment.SessionIDPlaceholder, id),
		cancelURL:  strings.ReplaceAll(req.CancelURL, payment.SessionIDPlaceholder, id),
		amount:     req.AmountMinor,
		currency:   req.Currency,
	}
	g.mu.Unlock()

	return &payment.Session{
		ID:          id,
		RedirectURL: g.baseURL + "/sandbox/checkout/" + id,
	}, nil
}

func (g *Gateway) SessionPaid(_ context.Context, sessionID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[sessionID]
	if !ok {
		return false, ErrUnknownSession
	}

	return s.paid, nil
}

// Pay marks the session paid and returns the URL the payer is sent back to.
func (g *Gateway) Pay(sessionID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[sessionID]
	if !ok {
		return "", ErrUnknownSession
	}

	s.paid = true

	return s.successURL, nil
}

// Cancel returns the cancel URL for the session.
func (g *Gateway) Cancel(sessionID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[sessionID]
	if !ok {
		return "", ErrUnknownSession
	}

	return s.cancelURL, nil
}

// Describe reports the amount and currency of a session for the hosted page.
func (g *Gateway) Describe(sessionID string) (amountMinor int64, currency string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[sessionID]
	if !ok {
		return 0, "", ErrUnknownSession
	}

	return s.amount, s.currency, nil
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

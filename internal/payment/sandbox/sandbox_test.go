package sandbox

import (
	"context"
	"strings"
	"testing"

	"github.com/kirinyoku/feisbook/internal/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateway_Lifecycle(t *testing.T) {
	ctx := context.Background()
	g := New("http://localhost:8080/")

	s, err := g.CreateSession(ctx, payment.SessionRequest{
		AmountMinor: 1250,
		Currency:    "gbp",
		SuccessURL:  "http://localhost:8080/?page=confirm&session_id=" + payment.SessionIDPlaceholder,
		CancelURL:   "http://localhost:8080/?page=cancel&session_id=" + payment.SessionIDPlaceholder,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s.ID, "sess_"))
	assert.Equal(t, "http://localhost:8080/sandbox/checkout/"+s.ID, s.RedirectURL)

	amount, currency, err := g.Describe(s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), amount)
	assert.Equal(t, "gbp", currency)

	paid, err := g.SessionPaid(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, paid)

	cancelURL, err := g.Cancel(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/?page=cancel&session_id="+s.ID, cancelURL)

	successURL, err := g.Pay(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/?page=confirm&session_id="+s.ID, successURL)

	paid, err = g.SessionPaid(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, paid)
}

func TestGateway_Rejections(t *testing.T) {
	ctx := context.Background()
	g := New("http://localhost:8080")

	_, err := g.CreateSession(ctx, payment.SessionRequest{AmountMinor: 0, Currency: "gbp"})
	require.Error(t, err)
	assert.Equal(t, "amount must be at least 1 minor unit", payment.Message(err))

	_, err = g.CreateSession(ctx, payment.SessionRequest{AmountMinor: 100, Currency: "pounds"})
	require.Error(t, err)

	_, err = g.Pay("sess_missing")
	assert.ErrorIs(t, err, ErrUnknownSession)

	_, err = g.SessionPaid(ctx, "sess_missing")
	assert.ErrorIs(t, err, ErrUnknownSession)
}

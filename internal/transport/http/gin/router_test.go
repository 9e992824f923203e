package httpgin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/feisbook/internal/domain"
	"github.com/kirinyoku/feisbook/internal/payment"
	"github.com/kirinyoku/feisbook/internal/payment/sandbox"
	"github.com/kirinyoku/feisbook/internal/repository/memory"
	redisrepo "github.com/kirinyoku/feisbook/internal/repository/redis"
	"github.com/kirinyoku/feisbook/internal/service"
	"github.com/kirinyoku/feisbook/internal/service/booking"
	"github.com/kirinyoku/feisbook/internal/service/catalog"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseURL = "http://feis.test"

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingSender struct {
	mu sync.Mutex
	to []string
}

func (s *recordingSender) Send(_ context.Context, to, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.to = append(s.to, to)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.to)
}

type countingGateway struct {
	payment.Gateway
	mu    sync.Mutex
	calls int
}

func (g *countingGateway) CreateSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	return g.Gateway.CreateSession(ctx, req)
}

type declineGateway struct{}

func (declineGateway) CreateSession(context.Context, payment.SessionRequest) (*payment.Session, error) {
	return nil, &payment.Error{Message: "Invalid currency: xyz.", Err: errors.New("invalid_request_error")}
}

type testServer struct {
	router  *gin.Engine
	svcs    *service.Services
	sender  *recordingSender
	gateway *countingGateway
}

func newTestServer(t *testing.T, gw payment.Gateway, idem *redisrepo.IdempotencyStore) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sb := sandbox.New(baseURL)
	if gw == nil {
		gw = sb
	}

	ts := &testServer{
		sender:  &recordingSender{},
		gateway: &countingGateway{Gateway: gw},
	}

	ts.svcs = service.NewServices(service.Infra{
		Store:   memory.NewStore(),
		Locker:  memory.NewLocker(),
		Gateway: ts.gateway,
		Sender:  ts.sender,
	}, logger, service.Config{
		Booking: booking.Config{PublicBaseURL: baseURL},
	})

	ts.router = NewRouter(ts.svcs, idem, sb, logger)

	return ts
}

func (ts *testServer) do(t *testing.T, method, target string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) createEvent(t *testing.T) domain.Event {
	t.Helper()

	w := ts.do(t, http.MethodPost, "/events", map[string]any{
		"title":    "Spring Feis",
		"date":     "2025-05-01",
		"location": "Dublin",
		"price":    "12.50",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var e domain.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func draftBody(eventID string) map[string]any {
	return map[string]any{
		"event_id": eventID,
		"name":     "Aoife Byrne",
		"email":    "aoife@example.com",
		"options":  []string{"Reel", "Heavy Jig"},
	}
}

func TestRouter_BookingJourney(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	event := ts.createEvent(t)
	assert.Equal(t, int64(1250), event.PriceMinor)

	w := ts.do(t, http.MethodPost, "/drafts", draftBody(event.ID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	draft := decode[DraftResponse](t, w)
	assert.Equal(t, "draft_selected", draft.State)
	assert.Equal(t, "12.50", draft.Amount)

	w = ts.do(t, http.MethodPost, "/checkout", draftBody(event.ID), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	checkout := decode[CheckoutResponse](t, w)
	assert.Equal(t, "awaiting_payment", checkout.State)
	assert.Equal(t, int64(1250), checkout.AmountMinor)
	assert.Equal(t, "gbp", checkout.Currency)

	hosted, err := url.Parse(checkout.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "/sandbox/checkout/"+checkout.SessionID, hosted.Path)

	w = ts.do(t, http.MethodGet, hosted.RequestURI(), nil, nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
	back, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, checkout.SessionID, back.Query().Get("session_id"))

	w = ts.do(t, http.MethodGet, back.RequestURI(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode[ConfirmationResponse](t, w)
	assert.Equal(t, "confirmed", first.State)
	assert.False(t, first.Duplicate)
	assert.Equal(t, int64(1250), first.Booking.AmountMinor)
	assert.Equal(t, []string{"Reel", "Heavy Jig"}, first.Booking.Options)

	w = ts.do(t, http.MethodGet, back.RequestURI(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	second := decode[ConfirmationResponse](t, w)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Booking.ID, second.Booking.ID)

	w = ts.do(t, http.MethodGet, "/bookings", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]domain.BookingRecord](t, w), 1)
	assert.Equal(t, 1, ts.sender.count())
}

func TestRouter_CheckoutValidation(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	event := ts.createEvent(t)

	body := draftBody(event.ID)
	body["email"] = "nope"

	w := ts.do(t, http.MethodPost, "/checkout", body, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, "browsing", resp.State)
	assert.Contains(t, resp.Fields, "email")
	assert.Zero(t, ts.gateway.calls)
}

func TestRouter_GatewayErrorVerbatim(t *testing.T) {
	ts := newTestServer(t, declineGateway{}, nil)
	event := ts.createEvent(t)

	w := ts.do(t, http.MethodPost, "/checkout", draftBody(event.ID), nil)
	require.Equal(t, http.StatusBadGateway, w.Code)
	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, "Invalid currency: xyz.", resp.Error)
	assert.Equal(t, "failed", resp.State)
}

func TestRouter_ReturnEdgeCases(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	event := ts.createEvent(t)

	w := ts.do(t, http.MethodGet, "/?page=confirm&session_id=sess_1&event_id="+event.ID, nil, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "incomplete payment return, booking not recorded", decode[ErrorResponse](t, w).Error)

	q := url.Values{
		"page":       {"confirm"},
		"session_id": {"sess_1"},
		"event_id":   {"missing"},
		"name":       {"A"},
		"email":      {"a@example.com"},
		"options":    {"Reel"},
	}
	w = ts.do(t, http.MethodGet, "/?"+q.Encode(), nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/?page=cancel&session_id=sess_unknown", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abandoned", decode[AbandonResponse](t, w).State)

	w = ts.do(t, http.MethodGet, "/sandbox/checkout/sess_unknown", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Zero(t, ts.sender.count())
}

func TestRouter_SandboxCancel(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	event := ts.createEvent(t)

	w := ts.do(t, http.MethodPost, "/checkout", draftBody(event.ID), nil)
	require.Equal(t, http.StatusCreated, w.Code)
	checkout := decode[CheckoutResponse](t, w)

	w = ts.do(t, http.MethodGet, "/sandbox/checkout/"+checkout.SessionID+"?action=cancel", nil, nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
	back, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "cancel", back.Query().Get("page"))

	w = ts.do(t, http.MethodGet, back.RequestURI(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abandoned", decode[AbandonResponse](t, w).State)

	w = ts.do(t, http.MethodGet, "/bookings", nil, nil)
	assert.Empty(t, decode[[]domain.BookingRecord](t, w))
}

func TestRouter_EventsETagAndSearch(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.createEvent(t)

	w := ts.do(t, http.MethodGet, "/events", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	tag := w.Header().Get("ETag")
	require.NotEmpty(t, tag)

	w = ts.do(t, http.MethodGet, "/events", nil, map[string]string{"If-None-Match": tag})
	assert.Equal(t, http.StatusNotModified, w.Code)

	w = ts.do(t, http.MethodGet, "/events?q=dublin", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]domain.Event](t, w), 1)

	w = ts.do(t, http.MethodGet, "/events?from=2025-06-01", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]domain.Event](t, w))

	w = ts.do(t, http.MethodGet, "/events?date=01-05-2025", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/events/unknown", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_CheckoutIdempotencyKey(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ts := newTestServer(t, nil, redisrepo.NewIdempotencyStore(rdb, time.Hour))
	event := ts.createEvent(t)

	header := map[string]string{"Idempotency-Key": "k-1"}

	w := ts.do(t, http.MethodPost, "/checkout", draftBody(event.ID), header)
	require.Equal(t, http.StatusCreated, w.Code)
	first := decode[CheckoutResponse](t, w)
	assert.Equal(t, "k-1", w.Header().Get("Idempotency-Key"))

	w = ts.do(t, http.MethodPost, "/checkout", draftBody(event.ID), header)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, first.SessionID, decode[CheckoutResponse](t, w).SessionID)

	assert.Equal(t, 1, ts.gateway.calls)
}

func TestRouter_Health(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	w := ts.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestWriteErr(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantRetry  string
	}{
		{"booking validation", &booking.ValidationError{Fields: map[string]string{"name": "is required"}}, http.StatusBadRequest, ""},
		{"catalog validation", &catalog.ValidationError{Fields: map[string]string{"title": "is required"}}, http.StatusBadRequest, ""},
		{"gateway", &booking.GatewayError{Message: "declined"}, http.StatusBadGateway, ""},
		{"rate limited", &booking.RateLimitedError{RetryAfter: 1500 * time.Millisecond}, http.StatusTooManyRequests, "2"},
		{"event not found", fmt.Errorf("op: %w", booking.ErrEventNotFound), http.StatusNotFound, ""},
		{"incomplete", booking.ErrIncompleteReturn, http.StatusBadRequest, ""},
		{"mismatch", booking.ErrReturnMismatch, http.StatusBadRequest, ""},
		{"unpaid", booking.ErrPaymentIncomplete, http.StatusPaymentRequired, ""},
		{"in progress", booking.ErrConfirmationInProgress, http.StatusConflict, "1"},
		{"booking store", fmt.Errorf("op: %w: %w", booking.ErrStoreUnavailable, errors.New("conn refused")), http.StatusServiceUnavailable, ""},
		{"catalog not found", catalog.ErrEventNotFound, http.StatusNotFound, ""},
		{"catalog conflict", catalog.ErrEventConflict, http.StatusConflict, ""},
		{"catalog store", catalog.ErrStoreUnavailable, http.StatusServiceUnavailable, ""},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			writeErr(c, tt.err, "")

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantRetry, w.Header().Get("Retry-After"))
		})
	}
}

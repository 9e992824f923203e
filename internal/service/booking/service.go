package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/feisbook/internal/domain"
	"github.com/kirinyoku/feisbook/internal/metrics"
	"github.com/kirinyoku/feisbook/internal/notification"
	"github.com/kirinyoku/feisbook/internal/payment"
	"github.com/kirinyoku/feisbook/internal/repository"
	"github.com/kirinyoku/feisbook/internal/service/catalog"
	"github.com/kirinyoku/feisbook/internal/service/ledger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/kirinyoku/feisbook/internal/service/booking")

// EventFinder resolves event references. *catalog.Service implements it.
type EventFinder interface {
	FindByID(ctx context.Context, id string) (*domain.Event, error)
}

// Ledger is the booking record store. *ledger.Service implements it.
type Ledger interface {
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.BookingRecord, error)
	Append(ctx context.Context, b domain.BookingRecord) (*domain.BookingRecord, error)
	ListAll(ctx context.Context) ([]domain.BookingRecord, error)
}

type Limiter interface {
	Allow(ctx context.Context, id string) (allowed bool, retryAfter time.Duration, err error)
}

type Deps struct {
	Catalog EventFinder
	Ledger  Ledger
	Pending repository.PendingStore
	Locker  repository.Locker
	Gateway payment.Gateway
	Sender  notification.Sender
	// Limiter is optional.
	Limiter Limiter
	Logger  *slog.Logger
}

type Service struct {
	catalog  EventFinder
	ledger   Ledger
	pending  repository.PendingStore
	locker   repository.Locker
	gateway  payment.Gateway
	verifier payment.Verifier
	sender   notification.Sender
	limiter  Limiter
	logger   *slog.Logger
	cfg      Config
	options  map[string]string
	now      func() time.Time
}

func New(deps Deps, cfg Config) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "gbp"
	}

	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}

	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 5 * time.Second
	}

	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}

	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 24 * time.Hour
	}

	if cfg.Options == nil {
		cfg.Options = DefaultOptions
	}

	cfg.Currency = strings.ToLower(cfg.Currency)

	options := make(map[string]string, len(cfg.Options))
	for _, o := range cfg.Options {
		if o = strings.TrimSpace(o); o != "" {
			options[strings.ToLower(o)] = o
		}
	}

	s := &Service{
		catalog: deps.Catalog,
		ledger:  deps.Ledger,
		pending: deps.Pending,
		locker:  deps.Locker,
		gateway: deps.Gateway,
		sender:  deps.Sender,
		limiter: deps.Limiter,
		logger:  deps.Logger,
		cfg:     cfg,
		options: options,
		now:     time.Now,
	}

	if v, ok := deps.Gateway.(payment.Verifier); ok && cfg.VerifyPayment {
		s.verifier = v
	}

	return s
}

// Options returns the accepted option labels, empty when any label is
// accepted.
func (s *Service) Options() []string {
	return append([]string(nil), s.cfg.Options...)
}

// SelectEvent validates the attendee's selection and prices it from the
// catalog.
//
// Parameters:
//   - ctx: request-scoped context.
//   - in: event reference, attendee details and options.
//
// Returns:
//   - *Flow: in StateDraftSelected with the draft and the amount due.
//   - error: *booking.ValidationError or booking.ErrEventNotFound (state
//     browsing), booking.ErrStoreUnavailable.
func (s *Service) SelectEvent(ctx context.Context, in DraftInput) (*Flow, error) {
	const op = "service.booking.SelectEvent"

	flow, _, err := s.selectEvent(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return flow, nil
}

func (s *Service) selectEvent(ctx context.Context, in DraftInput) (*Flow, *domain.Event, error) {
	flow := &Flow{State: domain.StateBrowsing}

	draft, err := s.validateDraft(in)
	if err != nil {
		return nil, nil, fail(flow.State, err)
	}

	event, err := s.findEvent(ctx, draft.EventID)
	if err != nil {
		return nil, nil, fail(flow.State, err)
	}

	draft.AmountMinor = event.PriceMinor

	if err := flow.advance(domain.StateDraftSelected); err != nil {
		return nil, nil, fail(flow.State, err)
	}
	flow.Draft = draft

	return flow, event, nil
}

// BeginCheckout creates a hosted checkout session for the selection. The
// amount is always read from the catalog, never taken from the caller.
//
// Parameters:
//   - ctx: request-scoped context.
//   - in: the selection, validated again here.
//   - rlKey: client key for rate limiting, empty to skip.
//
// Returns:
//   - *Flow: in StateAwaitingPayment with the redirect URL and pending
//     payment.
//   - error: *booking.ValidationError (state browsing, no gateway call),
//     *booking.RateLimitedError (state draft_selected),
//     *booking.GatewayError (state failed, draft kept for a manual retry).
func (s *Service) BeginCheckout(ctx context.Context, in DraftInput, rlKey string) (*Flow, error) {
	const op = "service.booking.BeginCheckout"

	ctx, span := tracer.Start(ctx, "booking.BeginCheckout")
	defer span.End()

	flow, event, err := s.selectEvent(ctx, in)
	if err != nil {
		metrics.RecordCheckout("rejected")
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	span.SetAttributes(attribute.String("event.id", event.ID))

	if err := s.allow(ctx, rlKey); err != nil {
		metrics.RecordCheckout("rate_limited")
		return nil, fmt.Errorf("%s: %w", op, fail(flow.State, err))
	}

	draft := flow.Draft
	req := payment.SessionRequest{
		AmountMinor:   event.PriceMinor,
		Currency:      s.cfg.Currency,
		Description:   fmt.Sprintf("%s (%s)", event.Title, event.Date),
		SuccessURL:    successURL(s.cfg.PublicBaseURL, draft.EventID, draft.Name, draft.Email, draft.Options),
		CancelURL:     cancelURL(s.cfg.PublicBaseURL),
		CustomerEmail: draft.Email,
		Metadata:      map[string]string{"event_id": event.ID},
	}

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	sess, err := s.gateway.CreateSession(gctx, req)
	if err != nil {
		metrics.RecordCheckout("gateway_error")
		span.SetStatus(codes.Error, "create session failed")
		s.logger.WarnContext(ctx, "checkout session failed",
			slog.String("event_id", event.ID),
			slog.Int64("amount_minor", req.AmountMinor),
			slog.Any("error", err),
		)
		_ = flow.advance(domain.StateFailed)
		gwErr := &GatewayError{Message: payment.Message(err), Err: err}
		return nil, fmt.Errorf("%s: %w", op, fail(flow.State, gwErr))
	}

	if err := flow.advance(domain.StateAwaitingPayment); err != nil {
		return nil, fmt.Errorf("%s: %w", op, fail(flow.State, err))
	}

	pending := domain.PendingPayment{
		SessionID:   sess.ID,
		EventID:     draft.EventID,
		Name:        draft.Name,
		Email:       draft.Email,
		Options:     draft.Options,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.pending.SavePending(ctx, pending); err != nil {
		// the return URL alone still carries everything needed to confirm
		s.logger.WarnContext(ctx, "pending payment not saved",
			slog.String("session_id", sess.ID),
			slog.Any("error", err),
		)
	}

	flow.Pending = &pending
	flow.RedirectURL = sess.RedirectURL

	metrics.RecordCheckout("created")
	s.logger.InfoContext(ctx, "checkout session created",
		slog.String("session_id", sess.ID),
		slog.String("event_id", event.ID),
		slog.Int64("amount_minor", req.AmountMinor),
		slog.String("currency", req.Currency),
	)

	return flow, nil
}

// CompleteCheckout records the booking for a successful payment return,
// exactly once per gateway session. Repeating a return replays the first
// confirmation without writing or notifying again.
//
// Parameters:
//   - ctx: request-scoped context.
//   - ret: parameters carried back by the payment return.
//
// Returns:
//   - *Confirmation: in StateConfirmed, with Duplicate set on replays and
//     Warning set when the attendee could not be notified.
//   - error: booking.ErrIncompleteReturn, booking.ErrEventNotFound,
//     booking.ErrReturnMismatch, booking.ErrPaymentIncomplete,
//     *booking.GatewayError (state failed); booking.ErrConfirmationInProgress
//     or booking.ErrStoreUnavailable (state awaiting_payment, retry later).
func (s *Service) CompleteCheckout(ctx context.Context, ret ReturnParams) (*Confirmation, error) {
	const op = "service.booking.CompleteCheckout"

	ctx, span := tracer.Start(ctx, "booking.CompleteCheckout")
	defer span.End()

	flow := &Flow{State: domain.StateAwaitingPayment}

	if missing := ret.missing(); len(missing) > 0 {
		metrics.RecordConfirmation("incomplete")
		s.logger.WarnContext(ctx, "incomplete payment return",
			slog.String("session_id", ret.SessionID),
			slog.String("missing", strings.Join(missing, ",")),
		)
		return nil, fmt.Errorf("%s: %w", op, s.failConfirm(flow, ErrIncompleteReturn))
	}

	span.SetAttributes(
		attribute.String("checkout.session_id", ret.SessionID),
		attribute.String("event.id", ret.EventID),
	)

	key := domain.IdempotencyKey(ret.SessionID)

	existing, err := s.findBooking(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, fail(flow.State, err))
	}
	if existing != nil {
		return s.replay(ctx, existing), nil
	}

	event, err := s.findEvent(ctx, ret.EventID)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			metrics.RecordConfirmation("unknown_event")
			s.logger.WarnContext(ctx, "payment return references unknown event",
				slog.String("session_id", ret.SessionID),
				slog.String("event_id", ret.EventID),
			)
			return nil, fmt.Errorf("%s: %w", op, s.failConfirm(flow, err))
		}
		return nil, fmt.Errorf("%s: %w", op, fail(flow.State, err))
	}

	pending := s.lookupPending(ctx, ret.SessionID)
	if pending != nil && pending.EventID != ret.EventID {
		metrics.RecordConfirmation("mismatch")
		s.logger.WarnContext(ctx, "payment return does not match pending checkout",
			slog.String("session_id", ret.SessionID),
			slog.String("event_id", ret.EventID),
			slog.String("pending_event_id", pending.EventID),
		)
		return nil, fmt.Errorf("%s: %w", op, s.failConfirm(flow, ErrReturnMismatch))
	}

	if err := s.verifyPaid(ctx, ret.SessionID); err != nil {
		metrics.RecordConfirmation("unpaid")
		return nil, fmt.Errorf("%s: %w", op, s.failConfirm(flow, err))
	}

	locked, err := s.locker.AcquireLock(ctx, key, s.cfg.LockTTL)
	switch {
	case err != nil:
		// the ledger's unique key still rejects a concurrent second write
		s.logger.WarnContext(ctx, "confirmation lock unavailable",
			slog.String("session_id", ret.SessionID),
			slog.Any("error", err),
		)
	case !locked:
		existing, err := s.findBooking(ctx, key)
		if err == nil && existing != nil {
			return s.replay(ctx, existing), nil
		}
		metrics.RecordConfirmation("in_progress")
		return nil, fmt.Errorf("%s: %w", op, fail(flow.State, ErrConfirmationInProgress))
	default:
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), key); err != nil {
				s.logger.WarnContext(ctx, "confirmation lock release failed",
					slog.String("session_id", ret.SessionID),
					slog.Any("error", err),
				)
			}
		}()

		existing, err := s.findBooking(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, fail(flow.State, err))
		}
		if existing != nil {
			return s.replay(ctx, existing), nil
		}
	}

	amount := event.PriceMinor
	if pending != nil {
		amount = pending.AmountMinor
	}

	record := domain.BookingRecord{
		ID:             uuid.NewString(),
		EventID:        event.ID,
		Name:           ret.Name,
		Email:          ret.Email,
		Options:        ret.Options,
		SessionID:      ret.SessionID,
		IdempotencyKey: key,
		AmountMinor:    amount,
		CreatedAt:      s.now().UTC(),
	}

	stored, err := s.ledger.Append(ctx, record)
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateKey) {
			if winner, ferr := s.findBooking(ctx, key); ferr == nil && winner != nil {
				return s.replay(ctx, winner), nil
			}
		}

		metrics.RecordConfirmation("store_error")
		span.SetStatus(codes.Error, "ledger append failed")
		s.logger.ErrorContext(ctx, "booking not recorded for paid session",
			slog.String("session_id", ret.SessionID),
			slog.String("event_id", event.ID),
			slog.String("email", ret.Email),
			slog.String("options", strings.Join(ret.Options, ",")),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("%s: %w", op, fail(flow.State, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)))
	}

	if err := flow.advance(domain.StateConfirmed); err != nil {
		return nil, fmt.Errorf("%s: %w", op, fail(flow.State, err))
	}

	if err := s.pending.DeletePending(ctx, ret.SessionID); err != nil {
		s.logger.WarnContext(ctx, "pending payment not removed",
			slog.String("session_id", ret.SessionID),
			slog.Any("error", err),
		)
	}

	metrics.RecordConfirmation("confirmed")
	s.logger.InfoContext(ctx, "booking confirmed",
		slog.String("booking_id", stored.ID),
		slog.String("session_id", stored.SessionID),
		slog.String("event_id", stored.EventID),
	)

	return &Confirmation{
		State:   flow.State,
		Booking: *stored,
		Event:   event,
		Warning: s.notify(ctx, *event, *stored),
	}, nil
}

// AbandonCheckout handles the cancel return. It has no side effect besides
// dropping the pending payment, and an unknown session is not an error.
func (s *Service) AbandonCheckout(ctx context.Context, sessionID string) (*Flow, error) {
	const op = "service.booking.AbandonCheckout"

	flow := &Flow{State: domain.StateAwaitingPayment}

	if sessionID != "" {
		existing, err := s.findBooking(ctx, domain.IdempotencyKey(sessionID))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, fail(flow.State, err))
		}
		if existing != nil {
			// paid and recorded before the attendee navigated to cancel
			return &Flow{State: domain.StateConfirmed}, nil
		}

		if err := s.pending.DeletePending(ctx, sessionID); err != nil {
			s.logger.WarnContext(ctx, "pending payment not removed",
				slog.String("session_id", sessionID),
				slog.Any("error", err),
			)
		}
	}

	if err := flow.advance(domain.StateAbandoned); err != nil {
		return nil, fmt.Errorf("%s: %w", op, fail(flow.State, err))
	}

	metrics.RecordCheckout("abandoned")
	s.logger.InfoContext(ctx, "checkout abandoned", slog.String("session_id", sessionID))

	return flow, nil
}

// ExpireAbandoned removes pending payments older than Config.PendingTTL.
//
// Parameters:
//   - ctx: request-scoped context.
//
// Returns:
//   - int64: the number of checkouts expired.
//   - error: booking.ErrStoreUnavailable.
func (s *Service) ExpireAbandoned(ctx context.Context) (int64, error) {
	const op = "service.booking.ExpireAbandoned"

	n, err := s.pending.DeletePendingBefore(ctx, s.now().Add(-s.cfg.PendingTTL))
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}

	if n > 0 {
		s.logger.InfoContext(ctx, "pending payments expired", slog.Int64("count", n))
	}

	return n, nil
}

func (s *Service) ListBookings(ctx context.Context) ([]domain.BookingRecord, error) {
	const op = "service.booking.ListBookings"

	out, err := s.ledger.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}

	return out, nil
}

func (s *Service) validateDraft(in DraftInput) (*domain.BookingDraft, error) {
	fields := make(map[string]string)

	eventID := strings.TrimSpace(in.EventID)
	if eventID == "" {
		fields["event_id"] = "is required"
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		fields["name"] = "is required"
	}

	email := strings.TrimSpace(in.Email)
	if email == "" {
		fields["email"] = "is required"
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		fields["email"] = "is not a valid address"
	}

	options, problem := s.normalizeOptions(in.Options)
	if problem != "" {
		fields["options"] = problem
	}

	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	return &domain.BookingDraft{
		EventID: eventID,
		Name:    name,
		Email:   email,
		Options: options,
	}, nil
}

func (s *Service) normalizeOptions(in []string) ([]string, string) {
	opts := dedupe(in)
	if len(opts) == 0 {
		return nil, "select at least one option"
	}

	for i, o := range opts {
		if strings.Contains(o, ",") {
			return nil, fmt.Sprintf("%q must not contain a comma", o)
		}

		if len(s.options) == 0 {
			continue
		}

		canonical, ok := s.options[strings.ToLower(o)]
		if !ok {
			return nil, fmt.Sprintf("%q is not offered", o)
		}
		opts[i] = canonical
	}

	return opts, ""
}

func (s *Service) allow(ctx context.Context, rlKey string) error {
	if s.limiter == nil || rlKey == "" {
		return nil
	}

	ok, retry, err := s.limiter.Allow(ctx, rlKey)
	if err != nil {
		s.logger.WarnContext(ctx, "rate limiter unavailable", slog.Any("error", err))
		return nil
	}

	if !ok {
		return &RateLimitedError{RetryAfter: retry}
	}

	return nil
}

func (s *Service) findEvent(ctx context.Context, id string) (*domain.Event, error) {
	e, err := s.catalog.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, catalog.ErrEventNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return e, nil
}

// findBooking returns nil, nil when no booking uses key.
func (s *Service) findBooking(ctx context.Context, key string) (*domain.BookingRecord, error) {
	b, err := s.ledger.FindByIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, ledger.ErrBookingNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return b, nil
}

func (s *Service) lookupPending(ctx context.Context, sessionID string) *domain.PendingPayment {
	p, err := s.pending.GetPending(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.WarnContext(ctx, "pending payment lookup failed",
				slog.String("session_id", sessionID),
				slog.Any("error", err),
			)
		}
		return nil
	}
	return p
}

func (s *Service) verifyPaid(ctx context.Context, sessionID string) error {
	if s.verifier == nil {
		return nil
	}

	vctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	paid, err := s.verifier.SessionPaid(vctx, sessionID)
	if err != nil {
		s.logger.WarnContext(ctx, "payment verification failed",
			slog.String("session_id", sessionID),
			slog.Any("error", err),
		)
		return &GatewayError{Message: payment.Message(err), Err: err}
	}

	if !paid {
		return ErrPaymentIncomplete
	}

	return nil
}

func (s *Service) replay(ctx context.Context, b *domain.BookingRecord) *Confirmation {
	metrics.RecordConfirmation("duplicate")
	s.logger.InfoContext(ctx, "duplicate confirmation",
		slog.String("booking_id", b.ID),
		slog.String("session_id", b.SessionID),
	)

	c := &Confirmation{
		State:     domain.StateConfirmed,
		Booking:   *b,
		Duplicate: true,
	}

	if e, err := s.catalog.FindByID(ctx, b.EventID); err == nil {
		c.Event = e
	}

	return c
}

func (s *Service) failConfirm(flow *Flow, err error) error {
	if aerr := flow.advance(domain.StateFailed); aerr != nil {
		return fail(flow.State, aerr)
	}
	return fail(flow.State, err)
}

// notify makes one delivery attempt. The booking is already recorded, so
// the attempt outlives a cancelled request and failure only yields a
// warning.
func (s *Service) notify(ctx context.Context, e domain.Event, b domain.BookingRecord) string {
	subject, body := notification.Confirmation(e, b)

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)
	defer cancel()

	if err := s.sender.Send(nctx, b.Email, subject, body); err != nil {
		metrics.RecordNotification("failed")
		s.logger.WarnContext(ctx, "confirmation notification failed",
			slog.String("booking_id", b.ID),
			slog.String("email", b.Email),
			slog.Any("error", err),
		)
		return "booking confirmed, but the confirmation email could not be sent"
	}

	metrics.RecordNotification("sent")

	return ""
}

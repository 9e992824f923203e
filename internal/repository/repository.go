package repository

import (
	"context"
	"time"

	"github.com/kirinyoku/feisbook/internal/domain"
)

// EventStore is the persistence boundary of the event catalog.
type EventStore interface {
	ListEvents(ctx context.Context) ([]domain.Event, error)
	GetEvent(ctx context.Context, id string) (*domain.Event, error)
	// InsertEvent appends e. An existing id yields ErrConflict.
	InsertEvent(ctx context.Context, e domain.Event) error
}

// BookingStore is the append-only persistence boundary of the booking ledger.
type BookingStore interface {
	ListBookings(ctx context.Context) ([]domain.BookingRecord, error)
	GetBookingByIdempotencyKey(ctx context.Context, key string) (*domain.BookingRecord, error)
	// InsertBooking appends b atomically. A duplicate id or idempotency key
	// yields ErrConflict and leaves the ledger unchanged.
	InsertBooking(ctx context.Context, b domain.BookingRecord) error
}

// PendingStore keeps checkout sessions that have not been confirmed yet.
type PendingStore interface {
	SavePending(ctx context.Context, p domain.PendingPayment) error
	GetPending(ctx context.Context, sessionID string) (*domain.PendingPayment, error)
	DeletePending(ctx context.Context, sessionID string) error
	// DeletePendingBefore removes sessions created before t and returns how
	// many were removed.
	DeletePendingBefore(ctx context.Context, t time.Time) (int64, error)
}

// Store bundles the stores of one backend.
type Store interface {
	Events() EventStore
	Bookings() BookingStore
	Pending() PendingStore
	Close() error
}

// Locker serializes work on a single key.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Package ledger is the append-only record of confirmed bookings.
//
// Append never deduplicates on its own: a second record for the same
// idempotency key is an error the caller has to handle.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirinyoku/feisbook/internal/domain"
	"github.com/kirinyoku/feisbook/internal/repository"
)

type Service struct {
	bookings repository.BookingStore
}

func New(bookings repository.BookingStore) *Service {
	return &Service{bookings: bookings}
}

func (s *Service) FindByIdempotencyKey(ctx context.Context, key string) (*domain.BookingRecord, error) {
	const op = "service.ledger.FindByIdempotencyKey"

	b, err := s.bookings.GetBookingByIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrBookingNotFound)
		}

		return nil, fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}

	return b, nil
}

// Append records b atomically.
//
// Parameters:
//   - ctx: request-scoped context.
//   - b: the record; ID, EventID and IdempotencyKey are required.
//
// Returns:
//   - *domain.BookingRecord: the stored record.
//   - error: ledger.ErrDuplicateKey if the key is already recorded,
//     ledger.ErrInvalidRecord or ledger.ErrStoreUnavailable.
func (s *Service) Append(ctx context.Context, b domain.BookingRecord) (*domain.BookingRecord, error) {
	const op = "service.ledger.Append"

	if b.ID == "" || b.EventID == "" || b.IdempotencyKey == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidRecord)
	}

	if err := s.bookings.InsertBooking(ctx, b); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%s: %w", op, ErrDuplicateKey)
		}

		return nil, fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}

	return &b, nil
}

func (s *Service) ListAll(ctx context.Context) ([]domain.BookingRecord, error) {
	const op = "service.ledger.ListAll"

	out, err := s.bookings.ListBookings(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}

	return out, nil
}

package postgresrepo

import (
	"context"

	"github.com/kirinyoku/feisbook/internal/domain"
)

type BookingRepo struct {
	db DB
}

const bookingColumns = `id, event_id, name, email, options, session_id, idempotency_key, amount_minor, created_at`

func (r *BookingRepo) ListBookings(ctx context.Context) ([]domain.BookingRecord, error) {
	const op = "postgresrepo.BookingRepo.ListBookings"

	rows, err := r.db.Query(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := make([]domain.BookingRecord, 0)
	for rows.Next() {
		var b domain.BookingRecord
		if err := rows.Scan(
			&b.ID, &b.EventID, &b.Name, &b.Email, &b.Options,
			&b.SessionID, &b.IdempotencyKey, &b.AmountMinor, &b.CreatedAt,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}

		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// GetBookingByIdempotencyKey retrieves the booking recorded for a key.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - key: idempotency key derived from the checkout session.
//
// Returns:
//   - *domain.BookingRecord: the booking when found.
//   - error: repository.ErrNotFound if no booking uses the key.
func (r *BookingRepo) GetBookingByIdempotencyKey(ctx context.Context, key string) (*domain.BookingRecord, error) {
	const op = "postgresrepo.BookingRepo.GetBookingByIdempotencyKey"

	var b domain.BookingRecord
	err := r.db.QueryRow(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings WHERE idempotency_key = $1`,
		key,
	).Scan(
		&b.ID, &b.EventID, &b.Name, &b.Email, &b.Options,
		&b.SessionID, &b.IdempotencyKey, &b.AmountMinor, &b.CreatedAt,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &b, nil
}

// InsertBooking appends a booking. The UNIQUE constraint on idempotency_key
// turns a concurrent duplicate into repository.ErrConflict.
func (r *BookingRepo) InsertBooking(ctx context.Context, b domain.BookingRecord) error {
	const op = "postgresrepo.BookingRepo.InsertBooking"

	_, err := r.db.Exec(ctx,
		`INSERT INTO bookings(`+bookingColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		b.ID, b.EventID, b.Name, b.Email, b.Options,
		b.SessionID, b.IdempotencyKey, b.AmountMinor, b.CreatedAt,
	)

	return wrapDBErr(op, err)
}

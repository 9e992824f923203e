package sqliterepo

import (
	"context"

	"github.com/kirinyoku/feisbook/internal/domain"
)

type BookingRepo struct {
	db DB
}

const bookingColumns = `id, event_id, name, email, options, session_id, idempotency_key, amount_minor, created_at`

func scanBooking(row scanner) (domain.BookingRecord, error) {
	var (
		b          domain.BookingRecord
		opts, tsCA string
	)
	if err := row.Scan(
		&b.ID, &b.EventID, &b.Name, &b.Email, &opts,
		&b.SessionID, &b.IdempotencyKey, &b.AmountMinor, &tsCA,
	); err != nil {
		return domain.BookingRecord{}, err
	}

	var err error
	if b.Options, err = decodeOptions(opts); err != nil {
		return domain.BookingRecord{}, err
	}

	if b.CreatedAt, err = parseTS(tsCA); err != nil {
		return domain.BookingRecord{}, err
	}

	return b, nil
}

func (r *BookingRepo) ListBookings(ctx context.Context) ([]domain.BookingRecord, error) {
	const op = "sqliterepo.BookingRepo.ListBookings"

	rows, err := r.db.QueryContext(ctx,
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
		b, err := scanBooking(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *BookingRepo) GetBookingByIdempotencyKey(ctx context.Context, key string) (*domain.BookingRecord, error) {
	const op = "sqliterepo.BookingRepo.GetBookingByIdempotencyKey"

	row := r.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings WHERE idempotency_key = ?`,
		key,
	)

	b, err := scanBooking(row)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &b, nil
}

func (r *BookingRepo) InsertBooking(ctx context.Context, b domain.BookingRecord) error {
	const op = "sqliterepo.BookingRepo.InsertBooking"

	opts, err := encodeOptions(b.Options)
	if err != nil {
		return wrapDBErr(op, err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO bookings(`+bookingColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		b.ID, b.EventID, b.Name, b.Email, opts,
		b.SessionID, b.IdempotencyKey, b.AmountMinor, formatTS(b.CreatedAt),
	)

	return insertOnce(op, res, err)
}

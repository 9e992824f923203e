package sqliterepo

import (
	"context"
	"time"

	"github.com/kirinyoku/feisbook/internal/domain"
)

type PendingRepo struct {
	db DB
}

func (r *PendingRepo) SavePending(ctx context.Context, p domain.PendingPayment) error {
	const op = "sqliterepo.PendingRepo.SavePending"

	opts, err := encodeOptions(p.Options)
	if err != nil {
		return wrapDBErr(op, err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO pending_payments(session_id, event_id, name, email, options, amount_minor, currency, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_id) DO UPDATE
		 SET event_id = excluded.event_id,
		     name = excluded.name,
		     email = excluded.email,
		     options = excluded.options,
		     amount_minor = excluded.amount_minor,
		     currency = excluded.currency`,
		p.SessionID, p.EventID, p.Name, p.Email, opts, p.AmountMinor, p.Currency, formatTS(p.CreatedAt),
	)

	return wrapDBErr(op, err)
}

func (r *PendingRepo) GetPending(ctx context.Context, sessionID string) (*domain.PendingPayment, error) {
	const op = "sqliterepo.PendingRepo.GetPending"

	var (
		p          domain.PendingPayment
		opts, tsCA string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT session_id, event_id, name, email, options, amount_minor, currency, created_at
		 FROM pending_payments WHERE session_id = ?`,
		sessionID,
	).Scan(&p.SessionID, &p.EventID, &p.Name, &p.Email, &opts, &p.AmountMinor, &p.Currency, &tsCA)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	if p.Options, err = decodeOptions(opts); err != nil {
		return nil, wrapDBErr(op, err)
	}

	if p.CreatedAt, err = parseTS(tsCA); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &p, nil
}

func (r *PendingRepo) DeletePending(ctx context.Context, sessionID string) error {
	const op = "sqliterepo.PendingRepo.DeletePending"

	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_payments WHERE session_id = ?`, sessionID)

	return wrapDBErr(op, err)
}

func (r *PendingRepo) DeletePendingBefore(ctx context.Context, t time.Time) (int64, error) {
	const op = "sqliterepo.PendingRepo.DeletePendingBefore"

	res, err := r.db.ExecContext(ctx, `DELETE FROM pending_payments WHERE created_at < ?`, formatTS(t))
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return n, nil
}

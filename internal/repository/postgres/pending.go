package postgresrepo

import (
	"context"
	"time"

	"github.com/kirinyoku/feisbook/internal/domain"
)

type PendingRepo struct {
	db DB
}

// SavePending upserts a pending payment. The gateway never reuses a session
// id, so a repeated save only refreshes the same checkout.
func (r *PendingRepo) SavePending(ctx context.Context, p domain.PendingPayment) error {
	const op = "postgresrepo.PendingRepo.SavePending"

	_, err := r.db.Exec(ctx,
		`INSERT INTO pending_payments(session_id, event_id, name, email, options, amount_minor, currency, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (session_id) DO UPDATE
		 SET event_id = EXCLUDED.event_id,
		     name = EXCLUDED.name,
		     email = EXCLUDED.email,
		     options = EXCLUDED.options,
		     amount_minor = EXCLUDED.amount_minor,
		     currency = EXCLUDED.currency`,
		p.SessionID, p.EventID, p.Name, p.Email, p.Options, p.AmountMinor, p.Currency, p.CreatedAt,
	)

	return wrapDBErr(op, err)
}

func (r *PendingRepo) GetPending(ctx context.Context, sessionID string) (*domain.PendingPayment, error) {
	const op = "postgresrepo.PendingRepo.GetPending"

	var p domain.PendingPayment
	err := r.db.QueryRow(ctx,
		`SELECT session_id, event_id, name, email, options, amount_minor, currency, created_at
		 FROM pending_payments WHERE session_id = $1`,
		sessionID,
	).Scan(&p.SessionID, &p.EventID, &p.Name, &p.Email, &p.Options, &p.AmountMinor, &p.Currency, &p.CreatedAt)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &p, nil
}

func (r *PendingRepo) DeletePending(ctx context.Context, sessionID string) error {
	const op = "postgresrepo.PendingRepo.DeletePending"

	_, err := r.db.Exec(ctx, `DELETE FROM pending_payments WHERE session_id = $1`, sessionID)

	return wrapDBErr(op, err)
}

func (r *PendingRepo) DeletePendingBefore(ctx context.Context, t time.Time) (int64, error) {
	const op = "postgresrepo.PendingRepo.DeletePendingBefore"

	tag, err := r.db.Exec(ctx, `DELETE FROM pending_payments WHERE created_at < $1`, t)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}

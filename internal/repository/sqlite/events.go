package sqliterepo

import (
	"context"

	"github.com/kirinyoku/feisbook/internal/domain"
)

type EventRepo struct {
	db DB
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (domain.Event, error) {
	var (
		e          domain.Event
		date, tsCA string
	)
	if err := row.Scan(&e.ID, &e.Title, &date, &e.Location, &e.Info, &e.PriceMinor, &tsCA); err != nil {
		return domain.Event{}, err
	}

	d, err := domain.ParseDate(date)
	if err != nil {
		return domain.Event{}, err
	}
	e.Date = d

	e.CreatedAt, err = parseTS(tsCA)
	if err != nil {
		return domain.Event{}, err
	}

	return e, nil
}

func (r *EventRepo) ListEvents(ctx context.Context) ([]domain.Event, error) {
	const op = "sqliterepo.EventRepo.ListEvents"

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, event_date, location, info, price_minor, created_at
		 FROM events
		 ORDER BY event_date, title`,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := make([]domain.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *EventRepo) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	const op = "sqliterepo.EventRepo.GetEvent"

	row := r.db.QueryRowContext(ctx,
		`SELECT id, title, event_date, location, info, price_minor, created_at
		 FROM events WHERE id = ?`,
		id,
	)

	e, err := scanEvent(row)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &e, nil
}

func (r *EventRepo) InsertEvent(ctx context.Context, e domain.Event) error {
	const op = "sqliterepo.EventRepo.InsertEvent"

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO events(id, title, event_date, location, info, price_minor, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		e.ID, e.Title, e.Date.String(), e.Location, e.Info, e.PriceMinor, formatTS(e.CreatedAt),
	)

	return insertOnce(op, res, err)
}

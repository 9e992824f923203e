package postgresrepo

import (
	"context"
	"time"

	"github.com/kirinyoku/feisbook/internal/domain"
)

type EventRepo struct {
	db DB
}

// ListEvents lists all events ordered by date and title.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//
// Returns:
//   - []domain.Event: all stored events, empty when there are none.
//   - error: any database failure.
func (r *EventRepo) ListEvents(ctx context.Context) ([]domain.Event, error) {
	const op = "postgresrepo.EventRepo.ListEvents"

	rows, err := r.db.Query(ctx,
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
		var (
			e    domain.Event
			date time.Time
		)
		if err := rows.Scan(&e.ID, &e.Title, &date, &e.Location, &e.Info, &e.PriceMinor, &e.CreatedAt); err != nil {
			return nil, wrapDBErr(op, err)
		}

		e.Date = domain.DateOf(date)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// GetEvent retrieves an event by its ID.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - id: unique identifier of the event to retrieve.
//
// Returns:
//   - *domain.Event: the event when found.
//   - error: repository.ErrNotFound if the event is not found.
func (r *EventRepo) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	const op = "postgresrepo.EventRepo.GetEvent"

	var (
		e    domain.Event
		date time.Time
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, title, event_date, location, info, price_minor, created_at
		 FROM events WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.Title, &date, &e.Location, &e.Info, &e.PriceMinor, &e.CreatedAt)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	e.Date = domain.DateOf(date)

	return &e, nil
}

func (r *EventRepo) InsertEvent(ctx context.Context, e domain.Event) error {
	const op = "postgresrepo.EventRepo.InsertEvent"

	_, err := r.db.Exec(ctx,
		`INSERT INTO events(id, title, event_date, location, info, price_minor, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.Title, e.Date.Time, e.Location, e.Info, e.PriceMinor, e.CreatedAt,
	)

	return wrapDBErr(op, err)
}

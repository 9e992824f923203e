package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/feisbook/internal/domain"
	"github.com/kirinyoku/feisbook/internal/repository"
	redisrepo "github.com/kirinyoku/feisbook/internal/repository/redis"
	"github.com/shopspring/decimal"
)

type Config struct {
	// ListTTL bounds how stale a cached event list may be.
	ListTTL time.Duration
}

type Service struct {
	events repository.EventStore
	cache  *redisrepo.Cache
	pubsub *redisrepo.EventsPubSub
	logger *slog.Logger
	cfg    Config
	now    func() time.Time
}

// New builds the catalog. cache and pubsub may be nil, in which case every
// read goes to the store.
func New(
	events repository.EventStore,
	cache *redisrepo.Cache,
	pubsub *redisrepo.EventsPubSub,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.ListTTL <= 0 {
		cfg.ListTTL = 2 * time.Minute
	}

	return &Service{
		events: events,
		cache:  cache,
		pubsub: pubsub,
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

type CreateInput struct {
	Title    string
	Date     domain.Date
	Location string
	Info     string
	Price    decimal.Decimal
}

// Filter narrows Search. Zero fields match everything.
type Filter struct {
	// Query matches title or location, case-insensitively.
	Query string
	Date  domain.Date
	From  domain.Date
	To    domain.Date
}

// List returns all events ordered by date. With a cache configured the
// result may be up to Config.ListTTL old.
//
// Parameters:
//   - ctx: request-scoped context.
//
// Returns:
//   - []domain.Event: the events.
//   - error: catalog.ErrStoreUnavailable if the store cannot be read.
func (s *Service) List(ctx context.Context) ([]domain.Event, error) {
	const op = "service.catalog.List"

	load := func(ctx context.Context) ([]domain.Event, error) {
		return s.events.ListEvents(ctx)
	}

	var (
		events []domain.Event
		err    error
	)
	if s.cache != nil {
		events, err = redisrepo.GetOrSetJSON(ctx, s.cache, redisrepo.KeyEventList(), s.cfg.ListTTL, load)
	} else {
		events, err = load(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}

	return events, nil
}

// FindByID reads the event from the store, bypassing any cache, so prices
// used for checkout are current.
//
// Parameters:
//   - ctx: request-scoped context.
//   - id: event identifier.
//
// Returns:
//   - *domain.Event: the event.
//   - error: catalog.ErrEventNotFound or catalog.ErrStoreUnavailable.
func (s *Service) FindByID(ctx context.Context, id string) (*domain.Event, error) {
	const op = "service.catalog.FindByID"

	e, err := s.events.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrEventNotFound)
		}

		return nil, fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}

	return e, nil
}

// Create validates and appends a new event. The id is always generated here.
//
// Parameters:
//   - ctx: request-scoped context.
//   - in: organizer submission.
//
// Returns:
//   - *domain.Event: the stored event.
//   - error: *catalog.ValidationError, catalog.ErrEventConflict or
//     catalog.ErrStoreUnavailable.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Event, error) {
	const op = "service.catalog.Create"

	e, err := s.newEvent(in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.events.InsertEvent(ctx, *e); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%s: %w", op, ErrEventConflict)
		}

		return nil, fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}

	s.afterCreate(ctx, e.ID)

	s.logger.InfoContext(ctx, "event created",
		slog.String("event_id", e.ID),
		slog.String("title", e.Title),
		slog.String("date", e.Date.String()),
		slog.Int64("price_minor", e.PriceMinor),
	)

	return e, nil
}

func (s *Service) Search(ctx context.Context, f Filter) ([]domain.Event, error) {
	const op = "service.catalog.Search"

	events, err := s.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	q := strings.ToLower(strings.TrimSpace(f.Query))

	out := make([]domain.Event, 0, len(events))
	for _, e := range events {
		if q != "" &&
			!strings.Contains(strings.ToLower(e.Title), q) &&
			!strings.Contains(strings.ToLower(e.Location), q) {
			continue
		}
		if !f.Date.IsZero() && !e.Date.Equal(f.Date) {
			continue
		}
		if !f.From.IsZero() && e.Date.Before(f.From.Time) {
			continue
		}
		if !f.To.IsZero() && e.Date.After(f.To.Time) {
			continue
		}
		out = append(out, e)
	}

	return out, nil
}

// InvalidateCache drops the cached event list on this node.
func (s *Service) InvalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}

	if err := s.cache.InvalidateEvents(ctx); err != nil {
		s.logger.WarnContext(ctx, "event cache invalidation failed", slog.Any("error", err))
	}
}

func (s *Service) afterCreate(ctx context.Context, eventID string) {
	s.InvalidateCache(ctx)

	if s.pubsub == nil {
		return
	}

	if err := s.pubsub.PublishEventCreated(ctx, eventID); err != nil {
		s.logger.WarnContext(ctx, "event change publish failed", slog.String("event_id", eventID), slog.Any("error", err))
	}
}

func (s *Service) newEvent(in CreateInput) (*domain.Event, error) {
	fields := make(map[string]string)

	title := strings.TrimSpace(in.Title)
	if title == "" {
		fields["title"] = "is required"
	}

	if in.Date.IsZero() {
		fields["date"] = "is required"
	}

	price, err := domain.MinorUnits(in.Price)
	if err != nil {
		fields["price"] = err.Error()
	}

	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	return &domain.Event{
		ID:         uuid.NewString(),
		Title:      title,
		Date:       in.Date,
		Location:   strings.TrimSpace(in.Location),
		Info:       strings.TrimSpace(in.Info),
		PriceMinor: price,
		CreatedAt:  s.now().UTC(),
	}, nil
}

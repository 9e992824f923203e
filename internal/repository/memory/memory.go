// Package memory holds process-local stores for development and tests. They
// give every guarantee the workflow relies on except durability.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/kirinyoku/feisbook/internal/domain"
	"github.com/kirinyoku/feisbook/internal/repository"
)

type Store struct {
	mu       sync.RWMutex
	events   map[string]domain.Event
	bookings []domain.BookingRecord
	byKey    map[string]int
	pending  map[string]domain.PendingPayment
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		events:  make(map[string]domain.Event),
		byKey:   make(map[string]int),
		pending: make(map[string]domain.PendingPayment),
	}
}

func (s *Store) Events() repository.EventStore     { return s }
func (s *Store) Bookings() repository.BookingStore { return s }
func (s *Store) Pending() repository.PendingStore  { return s }
func (s *Store) Close() error                      { return nil }

func (s *Store) ListEvents(_ context.Context) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date.Time)
		}
		return out[i].Title < out[j].Title
	})

	return out, nil
}

func (s *Store) GetEvent(_ context.Context, id string) (*domain.Event, error) {
	const op = "memory.Store.GetEvent"

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return &e, nil
}

func (s *Store) InsertEvent(_ context.Context, e domain.Event) error {
	const op = "memory.Store.InsertEvent"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[e.ID]; ok {
		return fmt.Errorf("%s: %w", op, repository.ErrConflict)
	}

	s.events[e.ID] = e

	return nil
}

func (s *Store) ListBookings(_ context.Context) ([]domain.BookingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.BookingRecord, len(s.bookings))
	for i, b := range s.bookings {
		b.Options = slices.Clone(b.Options)
		out[i] = b
	}

	return out, nil
}

func (s *Store) GetBookingByIdempotencyKey(_ context.Context, key string) (*domain.BookingRecord, error) {
	const op = "memory.Store.GetBookingByIdempotencyKey"

	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	b := s.bookings[i]
	b.Options = slices.Clone(b.Options)

	return &b, nil
}

func (s *Store) InsertBooking(_ context.Context, b domain.BookingRecord) error {
	const op = "memory.Store.InsertBooking"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byKey[b.IdempotencyKey]; ok {
		return fmt.Errorf("%s: %w", op, repository.ErrConflict)
	}

	for _, existing := range s.bookings {
		if existing.ID == b.ID {
			return fmt.Errorf("%s: %w", op, repository.ErrConflict)
		}
	}

	b.Options = slices.Clone(b.Options)
	s.bookings = append(s.bookings, b)
	s.byKey[b.IdempotencyKey] = len(s.bookings) - 1

	return nil
}

func (s *Store) SavePending(_ context.Context, p domain.PendingPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.Options = slices.Clone(p.Options)
	s.pending[p.SessionID] = p

	return nil
}

func (s *Store) GetPending(_ context.Context, sessionID string) (*domain.PendingPayment, error) {
	const op = "memory.Store.GetPending"

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pending[sessionID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	p.Options = slices.Clone(p.Options)

	return &p, nil
}

func (s *Store) DeletePending(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, sessionID)

	return nil
}

func (s *Store) DeletePendingBefore(_ context.Context, t time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, p := range s.pending {
		if p.CreatedAt.Before(t) {
			delete(s.pending, id)
			n++
		}
	}

	return n, nil
}

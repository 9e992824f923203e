package sqliterepo

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/kirinyoku/feisbook/internal/domain"
	"github.com/kirinyoku/feisbook/internal/repository"
	"github.com/kirinyoku/feisbook/internal/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sqlite.New(context.Background(), sqlite.Config{Path: filepath.Join(t.TempDir(), "feisbook.db")})
	require.NoError(t, err)

	s := NewStore(db)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestEventRepo(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	later := domain.Event{ID: "E2", Title: "Summer Feis", Date: domain.NewDate(2025, 7, 1), PriceMinor: 1000, CreatedAt: created}
	first := domain.Event{ID: "E1", Title: "Spring Feis", Date: domain.NewDate(2025, 5, 1), Location: "Dublin", PriceMinor: 1250, CreatedAt: created}

	require.NoError(t, s.Events().InsertEvent(ctx, later))
	require.NoError(t, s.Events().InsertEvent(ctx, first))

	err := s.Events().InsertEvent(ctx, first)
	assert.ErrorIs(t, err, repository.ErrConflict)

	got, err := s.Events().GetEvent(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, "Spring Feis", got.Title)
	assert.Equal(t, "2025-05-01", got.Date.String())
	assert.Equal(t, int64(1250), got.PriceMinor)
	assert.True(t, got.CreatedAt.Equal(created))

	_, err = s.Events().GetEvent(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	all, err := s.Events().ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "E1", all[0].ID)
	assert.Equal(t, "E2", all[1].ID)
}

func TestBookingRepo(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	b := domain.BookingRecord{
		ID:             "b1",
		EventID:        "E1",
		Name:           "Ada",
		Email:          "ada@example.com",
		Options:        []string{"Reel"},
		SessionID:      "sess_1",
		IdempotencyKey: domain.IdempotencyKey("sess_1"),
		AmountMinor:    1250,
		CreatedAt:      time.Now(),
	}
	require.NoError(t, s.Bookings().InsertBooking(ctx, b))

	dup := b
	dup.ID = "b2"
	err := s.Bookings().InsertBooking(ctx, dup)
	assert.ErrorIs(t, err, repository.ErrConflict)

	got, err := s.Bookings().GetBookingByIdempotencyKey(ctx, domain.IdempotencyKey("sess_1"))
	require.NoError(t, err)
	assert.Equal(t, "b1", got.ID)
	assert.Equal(t, []string{"Reel"}, got.Options)

	_, err = s.Bookings().GetBookingByIdempotencyKey(ctx, domain.IdempotencyKey("sess_2"))
	assert.ErrorIs(t, err, repository.ErrNotFound)

	all, err := s.Bookings().ListBookings(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPendingRepo(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	old := domain.PendingPayment{SessionID: "sess_old", EventID: "E1", Name: "Ada", Email: "ada@example.com", Options: []string{"Reel"}, AmountMinor: 1250, Currency: "gbp", CreatedAt: now.Add(-48 * time.Hour)}
	fresh := domain.PendingPayment{SessionID: "sess_new", EventID: "E1", Name: "Bea", Email: "bea@example.com", Options: []string{"Light Jig", "Reel"}, AmountMinor: 1250, Currency: "gbp", CreatedAt: now}

	require.NoError(t, s.Pending().SavePending(ctx, old))
	require.NoError(t, s.Pending().SavePending(ctx, fresh))
	require.NoError(t, s.Pending().SavePending(ctx, fresh))

	got, err := s.Pending().GetPending(ctx, "sess_new")
	require.NoError(t, err)
	assert.Equal(t, []string{"Light Jig", "Reel"}, got.Options)

	n, err := s.Pending().DeletePendingBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Pending().GetPending(ctx, "sess_old")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, s.Pending().DeletePending(ctx, "sess_new"))
	require.NoError(t, s.Pending().DeletePending(ctx, "sess_new"))

	_, err = s.Pending().GetPending(ctx, "sess_new")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestBookingRepo_StoreFailures(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewStore(db)
	diskErr := errors.New("disk I/O error")

	mock.ExpectQuery("SELECT (.+) FROM bookings").WillReturnError(diskErr)
	_, err = s.Bookings().ListBookings(ctx)
	assert.ErrorIs(t, err, diskErr)
	assert.Contains(t, err.Error(), "sqliterepo.BookingRepo.ListBookings")

	mock.ExpectExec("INSERT INTO bookings").WillReturnResult(sqlmock.NewResult(0, 0))
	err = s.Bookings().InsertBooking(ctx, domain.BookingRecord{ID: "b1", IdempotencyKey: "k"})
	assert.ErrorIs(t, err, repository.ErrConflict)

	mock.ExpectExec("INSERT INTO bookings").WillReturnError(diskErr)
	err = s.Bookings().InsertBooking(ctx, domain.BookingRecord{ID: "b2", IdempotencyKey: "k2"})
	assert.ErrorIs(t, err, diskErr)
	assert.NotErrorIs(t, err, repository.ErrConflict)

	assert.NoError(t, mock.ExpectationsWereMet())
}

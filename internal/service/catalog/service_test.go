package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kirinyoku/feisbook/internal/domain"
	"github.com/kirinyoku/feisbook/internal/repository/memory"
	redisrepo "github.com/kirinyoku/feisbook/internal/repository/redis"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustDate(t *testing.T, s string) domain.Date {
	t.Helper()
	d, err := domain.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := New(store, nil, nil, newTestLogger(), Config{})

	e, err := svc.Create(ctx, CreateInput{
		Title:    "  Spring Feis ",
		Date:     mustDate(t, "2025-05-01"),
		Location: "Dublin",
		Price:    decimal.RequireFromString("12.50"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "Spring Feis", e.Title)
	assert.Equal(t, int64(1250), e.PriceMinor)

	got, err := svc.FindByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
}

func TestCreate_Validation(t *testing.T) {
	svc := New(memory.NewStore(), nil, nil, newTestLogger(), Config{})

	_, err := svc.Create(context.Background(), CreateInput{Title: " ", Price: decimal.NewFromInt(-1)})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "title")
	assert.Contains(t, verr.Fields, "date")
	assert.Contains(t, verr.Fields, "price")
}

func TestCreate_PriceRounding(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.NewStore(), nil, nil, newTestLogger(), Config{})

	tests := []struct {
		price string
		want  int64
	}{
		{"12.50", 1250},
		{"12.5", 1250},
		{"0", 0},
		{"0.005", 1},
		{"19.999", 2000},
		{"7", 700},
	}

	for _, tt := range tests {
		e, err := svc.Create(ctx, CreateInput{Title: "Feis", Date: mustDate(t, "2025-05-01"), Price: decimal.RequireFromString(tt.price)})
		require.NoError(t, err, tt.price)
		assert.Equal(t, tt.want, e.PriceMinor, tt.price)
	}
}

func TestFindByID_NotFound(t *testing.T) {
	svc := New(memory.NewStore(), nil, nil, newTestLogger(), Config{})

	_, err := svc.FindByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.NewStore(), nil, nil, newTestLogger(), Config{})

	for _, in := range []CreateInput{
		{Title: "Spring Feis", Date: mustDate(t, "2025-05-01"), Location: "Dublin"},
		{Title: "Summer Championship", Date: mustDate(t, "2025-07-12"), Location: "Galway"},
		{Title: "Autumn Open", Date: mustDate(t, "2025-10-04"), Location: "Cork, Spring Hall"},
	} {
		_, err := svc.Create(ctx, in)
		require.NoError(t, err)
	}

	titles := func(events []domain.Event) []string {
		out := make([]string, 0, len(events))
		for _, e := range events {
			out = append(out, e.Title)
		}
		return out
	}

	all, err := svc.Search(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	got, err := svc.Search(ctx, Filter{Query: "SPRING"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Spring Feis", "Autumn Open"}, titles(got))

	got, err = svc.Search(ctx, Filter{Query: "galway"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Summer Championship"}, titles(got))

	got, err = svc.Search(ctx, Filter{Date: mustDate(t, "2025-07-12")})
	require.NoError(t, err)
	assert.Equal(t, []string{"Summer Championship"}, titles(got))

	got, err = svc.Search(ctx, Filter{From: mustDate(t, "2025-06-01"), To: mustDate(t, "2025-12-31")})
	require.NoError(t, err)
	assert.Equal(t, []string{"Summer Championship", "Autumn Open"}, titles(got))

	got, err = svc.Search(ctx, Filter{Query: "spring", Date: mustDate(t, "2025-07-12")})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestList_CachedAndInvalidatedOnCreate(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := memory.NewStore()
	svc := New(store, redisrepo.New(rdb), redisrepo.NewEventsPubSub(rdb), newTestLogger(), Config{ListTTL: time.Minute})

	_, err := svc.Create(ctx, CreateInput{Title: "Spring Feis", Date: mustDate(t, "2025-05-01")})
	require.NoError(t, err)

	first, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.True(t, mr.Exists(redisrepo.KeyEventList()))

	// written behind the catalog's back: stays invisible until the ttl passes
	require.NoError(t, store.InsertEvent(ctx, domain.Event{ID: "direct", Title: "Direct", Date: mustDate(t, "2025-06-01")}))
	cached, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, cached, 1)

	mr.FastForward(2 * time.Minute)
	fresh, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, fresh, 2)

	_, err = svc.Create(ctx, CreateInput{Title: "Summer Feis", Date: mustDate(t, "2025-07-01")})
	require.NoError(t, err)

	afterCreate, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, afterCreate, 3, "create invalidates the cached list")
}

type brokenStore struct{}

var errDown = errors.New("store down")

func (brokenStore) ListEvents(context.Context) ([]domain.Event, error) { return nil, errDown }
func (brokenStore) GetEvent(context.Context, string) (*domain.Event, error) {
	return nil, errDown
}
func (brokenStore) InsertEvent(context.Context, domain.Event) error { return errDown }

func TestStoreFailures(t *testing.T) {
	ctx := context.Background()
	svc := New(&brokenStore{}, nil, nil, newTestLogger(), Config{})

	_, err := svc.List(ctx)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, errDown)

	_, err = svc.FindByID(ctx, "E1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.NotErrorIs(t, err, ErrEventNotFound)

	_, err = svc.Create(ctx, CreateInput{Title: "T", Date: mustDate(t, "2025-05-01")})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

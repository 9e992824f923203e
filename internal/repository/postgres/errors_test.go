package postgresrepo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kirinyoku/feisbook/internal/repository"
	"github.com/stretchr/testify/assert"
)

func TestWrapDBErr(t *testing.T) {
	other := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "no rows", err: pgx.ErrNoRows, want: repository.ErrNotFound},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: repository.ErrConflict},
		{name: "wrapped unique violation", err: fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23505"}), want: repository.ErrConflict},
		{name: "other pg error", err: &pgconn.PgError{Code: "42P01"}, want: nil},
		{name: "plain error", err: other, want: other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapDBErr("op", tt.err)
			assert.Error(t, got)
			assert.Contains(t, got.Error(), "op: ")
			if tt.want != nil {
				assert.ErrorIs(t, got, tt.want)
			} else {
				assert.NotErrorIs(t, got, repository.ErrConflict)
				assert.NotErrorIs(t, got, repository.ErrNotFound)
			}
		})
	}

	assert.NoError(t, wrapDBErr("op", nil))
}

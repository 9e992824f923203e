package sqliterepo

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirinyoku/feisbook/internal/repository"
)

func wrapDBErr(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return fmt.Errorf("%s: %w", op, err)
}

// insertOnce checks the result of an INSERT ... ON CONFLICT DO NOTHING.
func insertOnce(op string, res sql.Result, err error) error {
	if err != nil {
		return wrapDBErr(op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBErr(op, err)
	}

	if n == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrConflict)
	}

	return nil
}

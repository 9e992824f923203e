package ledger

import "errors"

var (
	ErrBookingNotFound  = errors.New("booking not found")
	ErrDuplicateKey     = errors.New("booking already recorded for idempotency key")
	ErrInvalidRecord    = errors.New("invalid booking record")
	ErrStoreUnavailable = errors.New("booking store unavailable")
)

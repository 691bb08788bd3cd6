package store

import "errors"

var (
	ErrValidation             = errors.New("validation failed")
	ErrReservationNotFound    = errors.New("reservation not found")
	ErrStorageUnavailable     = errors.New("storage unavailable")
	ErrQueueNumberTaken       = errors.New("queue number already taken")
	ErrConflictRetryExhausted = errors.New("queue number allocation retries exhausted")
)

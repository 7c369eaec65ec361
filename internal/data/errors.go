package data

import (
	"errors"
	"fmt"
)

// Shared sentinel errors for the record stores and queues.
var (
	ErrNotFound            = errors.New("job record not found")
	ErrDuplicateIdentifier = errors.New("job identifier already exists")
	ErrInvalidTransition   = errors.New("invalid job status transition")
	ErrConflict            = errors.New("job record changed concurrently")
	ErrStoreUnavailable    = errors.New("job record store unavailable")

	ErrQueueUnavailable = errors.New("job queue unavailable")
	ErrLeaseLost        = errors.New("queue lease lost")
	ErrIDRequired       = errors.New("job id is required")
)

// ErrTerminal is returned when a mutation targets a completed, failed or cancelled record.
var ErrTerminal = fmt.Errorf("%w: record is terminal", ErrInvalidTransition)

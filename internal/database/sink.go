package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eeg-backend/internal/models"
)

// ErrNotFound is returned by range queries that match no rows
var ErrNotFound = errors.New("no records in range")

// Sink durably records one epoch. Both rows are written or neither is.
type Sink interface {
	Persist(ctx context.Context, engagement models.EngagementRecord, raw models.RawRecord) (models.PersistResult, error)
	Close() error
}

// Reader serves inclusive time range queries over both stores, oldest first.
// A zero start and end returns every row.
type Reader interface {
	EngagementBetween(ctx context.Context, start, end time.Time) ([]models.EngagementRecord, error)
	RawBetween(ctx context.Context, start, end time.Time) ([]models.RawRecord, error)
}

// Store is a Sink that can also be queried
type Store interface {
	Sink
	Reader
}

// PersistenceError wraps a failed or rolled back epoch write
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// unbounded reports whether a range query should skip the time filter
func unbounded(start, end time.Time) bool {
	return start.IsZero() && end.IsZero()
}

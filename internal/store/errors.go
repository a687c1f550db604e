package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound reports a missing profile, channel or match record.
	ErrNotFound = errors.New("not found")
	// ErrOptedOut reports a requester excluded from matching.
	ErrOptedOut = errors.New("opted out")
	// ErrDuplicatePairing reports an existing record for the directed
	// (requester, candidate, channel) triple.
	ErrDuplicatePairing = errors.New("duplicate pairing")
	// ErrTimeout reports a store call that exceeded its deadline.
	ErrTimeout = errors.New("store timeout")
	// ErrPersistence reports a write the backing store rejected.
	ErrPersistence = errors.New("persistence failure")
)

// Classify maps a driver error onto the error taxonomy. Deadline errors
// become ErrTimeout; anything else is wrapped with fallback (nil keeps err as is).
func Classify(ctx context.Context, err, fallback error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if fallback == nil || errors.Is(err, fallback) {
		return err
	}
	return fmt.Errorf("%w: %w", fallback, err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// Sentinel errors for common store conditions.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrIllegalTransition indicates an attempt to move a queue entry out of
	// a terminal state (for example, marking a failed row applied). Programmer
	// error: fatal to the operation, never to the process.
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrCorruptPayload indicates a stored payload failed to deserialize. The
	// row is left untouched.
	ErrCorruptPayload = errors.New("corrupt payload")

	// ErrCorruptStore indicates schema verification failed even after a
	// migration retry.
	ErrCorruptStore = errors.New("corrupt store: schema verification failed")

	// ErrConflictBusy indicates the busy timeout elapsed while another writer
	// held the database lock.
	ErrConflictBusy = errors.New("database busy")
)

// WrapDBError wraps a database error with operation context, converting
// sql.ErrNoRows to ErrNotFound and lock contention to ErrConflictBusy.
func WrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if isBusy(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrConflictBusy, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

package state

import (
	"errors"
	"fmt"
	"strings"
)

// LockHeldError is returned when the run lock is held by someone else.
type LockHeldError struct {
	// Holder is the current lock holder, if the backend knows it.
	Holder *LockInfo
}

// Error returns a string representation of the error.
func (e *LockHeldError) Error() string {
	if e.Holder == nil || e.Holder.Owner == "" {
		return "migration state is locked by another run"
	}
	if e.Holder.AcquiredAt.IsZero() {
		return "migration state is locked by " + e.Holder.Owner
	}
	return fmt.Sprintf("migration state is locked by %s since %s",
		e.Holder.Owner, e.Holder.AcquiredAt.Format("2006-01-02 15:04:05 MST"))
}

// OrderingError is returned when rolling back a migration that isn't the most
// recently applied one.
type OrderingError struct {
	Name string
	// Tail is the most recently applied migration, or empty if none is applied.
	Tail string
}

// Error returns a string representation of the error.
func (e *OrderingError) Error() string {
	if e.Tail == "" {
		return fmt.Sprintf("cannot roll back migration '%s': no migrations are applied", e.Name)
	}
	return fmt.Sprintf("cannot roll back migration '%s': the most recently applied migration is '%s'",
		e.Name, e.Tail)
}

// DuplicateRecordError is returned when recording a migration that is already
// recorded as applied.
type DuplicateRecordError struct {
	Name string
}

// Error returns a string representation of the error.
func (e *DuplicateRecordError) Error() string {
	return fmt.Sprintf("migration '%s' is already recorded as applied", e.Name)
}

// CorruptStateError is returned when the persisted state can't be decoded.
type CorruptStateError struct {
	Payload []byte
	Err     error
}

// Error returns a string representation of the error.
func (e *CorruptStateError) Error() string {
	payload := strings.TrimSpace(string(e.Payload))
	if len(payload) > 200 {
		payload = payload[:200] + "..."
	}
	return fmt.Sprintf("failed decoding migration state: %s; payload: %q", e.Err, payload)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *CorruptStateError) Unwrap() error {
	return e.Err
}

// ErrLockLost is returned when releasing a lock that was broken or taken over
// by someone else in the meantime.
var ErrLockLost = errors.New("run lock is no longer held by this process")

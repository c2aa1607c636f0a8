package state

import (
	"context"
	"time"
)

// Store is the durable record of applied migrations.
type Store interface {
	// Applied returns the names of applied migrations, in application order.
	Applied(ctx context.Context) ([]string, error)

	// RecordApplied appends name to the applied list.
	RecordApplied(ctx context.Context, name string) error

	// RecordRolledBack removes name from the applied list. It must be the most
	// recently applied migration, otherwise an *OrderingError is returned.
	RecordRolledBack(ctx context.Context, name string) error

	// Lock acquires the exclusive run lock. If it's held by someone else a
	// *LockHeldError is returned immediately.
	Lock(ctx context.Context) (Lock, error)
}

// Lock is a held run lock.
type Lock interface {
	Unlock(ctx context.Context) error
}

// Record is a single entry of the applied list.
type Record struct {
	Name      string    `json:"name" yaml:"name"`
	AppliedAt time.Time `json:"applied_at" yaml:"applied_at"`
}

// RecordLister is implemented by stores that keep application timestamps.
type RecordLister interface {
	Records(ctx context.Context) ([]Record, error)
}

// ForceUnlocker is implemented by stores that can break a stale lock left
// behind by a crashed run.
type ForceUnlocker interface {
	ForceUnlock(ctx context.Context) error
}

// Names returns the names of the given records.
func Names(records []Record) []string {
	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.Name
	}
	return names
}

// Package statetest provides a conformance test suite for state.Store
// implementations.
package statetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.hackfix.me/migrate/state"
)

// NewStoreFunc returns a new empty store. Every call must return a store
// that's independent from stores returned by previous calls.
type NewStoreFunc func(t *testing.T) state.Store

// Run runs the conformance suite against stores created by newStore.
func Run(t *testing.T, newStore NewStoreFunc) {
	t.Helper()

	t.Run("ok/empty", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)

		applied, err := s.Applied(t.Context())
		require.NoError(t, err)
		assert.Empty(t, applied)
	})

	t.Run("ok/record_applied", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := t.Context()

		recordAll(ctx, t, s, "a", "b", "c")

		applied, err := s.Applied(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, applied)
	})

	t.Run("ok/record_rolled_back", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := t.Context()

		recordAll(ctx, t, s, "a", "b", "c")
		require.NoError(t, s.RecordRolledBack(ctx, "c"))
		require.NoError(t, s.RecordRolledBack(ctx, "b"))

		applied, err := s.Applied(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, applied)

		recordAll(ctx, t, s, "b")
		applied, err = s.Applied(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, applied)
	})

	t.Run("ok/records", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		lister, ok := s.(state.RecordLister)
		if !ok {
			t.Skip("store doesn't implement state.RecordLister")
		}
		ctx := t.Context()

		recordAll(ctx, t, s, "a", "b")

		records, err := lister.Records(ctx)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, []string{"a", "b"}, state.Names(records))
		for _, r := range records {
			assert.False(t, r.AppliedAt.IsZero(), "record %s has no timestamp", r.Name)
		}
	})

	t.Run("err/duplicate_record", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := t.Context()

		recordAll(ctx, t, s, "a")
		err := s.RecordApplied(ctx, "a")
		var dupErr *state.DuplicateRecordError
		require.ErrorAs(t, err, &dupErr)
		assert.Equal(t, "a", dupErr.Name)

		applied, err := s.Applied(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, applied)
	})

	t.Run("err/rollback_not_tail", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := t.Context()

		recordAll(ctx, t, s, "a", "b")
		err := s.RecordRolledBack(ctx, "a")
		var ordErr *state.OrderingError
		require.ErrorAs(t, err, &ordErr)
		assert.Equal(t, "a", ordErr.Name)
		assert.Equal(t, "b", ordErr.Tail)

		applied, err := s.Applied(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, applied)
	})

	t.Run("err/rollback_empty", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)

		err := s.RecordRolledBack(t.Context(), "a")
		var ordErr *state.OrderingError
		require.ErrorAs(t, err, &ordErr)
		assert.Empty(t, ordErr.Tail)
	})

	t.Run("ok/lock_unlock", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := t.Context()

		for range 3 {
			lock, err := s.Lock(ctx)
			require.NoError(t, err)
			require.NoError(t, lock.Unlock(ctx))
		}
	})

	t.Run("err/lock_held", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := t.Context()

		lock, err := s.Lock(ctx)
		require.NoError(t, err)

		_, err = s.Lock(ctx)
		var lhErr *state.LockHeldError
		require.ErrorAs(t, err, &lhErr)

		require.NoError(t, lock.Unlock(ctx))

		lock, err = s.Lock(ctx)
		require.NoError(t, err)
		require.NoError(t, lock.Unlock(ctx))
	})

	t.Run("ok/force_unlock", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		fu, ok := s.(state.ForceUnlocker)
		if !ok {
			t.Skip("store doesn't implement state.ForceUnlocker")
		}
		ctx := t.Context()

		stale, err := s.Lock(ctx)
		require.NoError(t, err)

		require.NoError(t, fu.ForceUnlock(ctx))

		lock, err := s.Lock(ctx)
		require.NoError(t, err)

		// Releasing the broken lock must not release the new one.
		_ = stale.Unlock(ctx)
		_, err = s.Lock(ctx)
		var lhErr *state.LockHeldError
		require.ErrorAs(t, err, &lhErr)

		require.NoError(t, lock.Unlock(ctx))
	})

	t.Run("ok/force_unlock_not_locked", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		fu, ok := s.(state.ForceUnlocker)
		if !ok {
			t.Skip("store doesn't implement state.ForceUnlocker")
		}

		require.NoError(t, fu.ForceUnlock(t.Context()))
	})
}

func recordAll(ctx context.Context, t *testing.T, s state.Store, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, s.RecordApplied(ctx, name))
	}
}

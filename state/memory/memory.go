// Package memory implements an in-process migration state store. It's useful
// for tests and for plans whose state doesn't need to outlive the process.
package memory

import (
	"context"
	"sync"
	"time"

	"go.hackfix.me/migrate/state"
)

// Store keeps the applied list in memory.
type Store struct {
	mx      sync.Mutex
	doc     *state.Document
	lock    *state.LockInfo
	failErr error // to simulate errors
	timeNow func() time.Time
}

var (
	_ state.Store         = (*Store)(nil)
	_ state.RecordLister  = (*Store)(nil)
	_ state.ForceUnlocker = (*Store)(nil)
)

// New returns a new empty Store. If timeNow is nil, time.Now is used.
func New(timeNow func() time.Time) *Store {
	if timeNow == nil {
		timeNow = time.Now
	}
	return &Store{doc: state.NewDocument(), timeNow: timeNow}
}

// Applied implements the state.Store interface.
func (s *Store) Applied(_ context.Context) ([]string, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.doc.Names(), nil
}

// Records implements the state.RecordLister interface.
func (s *Store) Records(_ context.Context) ([]state.Record, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	records := make([]state.Record, len(s.doc.Applied))
	copy(records, s.doc.Applied)
	return records, nil
}

// RecordApplied implements the state.Store interface.
func (s *Store) RecordApplied(_ context.Context, name string) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	return s.doc.Append(name, s.timeNow())
}

// RecordRolledBack implements the state.Store interface.
func (s *Store) RecordRolledBack(_ context.Context, name string) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	return s.doc.RemoveTail(name)
}

// Lock implements the state.Store interface.
//
//nolint:ireturn // Intentional, this implements the state.Store interface.
func (s *Store) Lock(_ context.Context) (state.Lock, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.lock != nil {
		holder := *s.lock
		return nil, &state.LockHeldError{Holder: &holder}
	}

	info, err := state.NewLockInfo(s.timeNow())
	if err != nil {
		return nil, err
	}
	s.lock = info

	return &memLock{store: s, token: info.Token}, nil
}

// ForceUnlock implements the state.ForceUnlocker interface.
func (s *Store) ForceUnlock(_ context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.lock = nil
	return nil
}

// Locked reports whether the run lock is currently held.
func (s *Store) Locked() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.lock != nil
}

// SetFailError makes all subsequent record operations fail with err. Passing
// nil restores normal operation.
func (s *Store) SetFailError(err error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.failErr = err
}

type memLock struct {
	store    *Store
	token    string
	released bool
}

func (l *memLock) Unlock(_ context.Context) error {
	l.store.mx.Lock()
	defer l.store.mx.Unlock()

	if l.released {
		return nil
	}
	l.released = true
	if l.store.lock == nil || l.store.lock.Token != l.token {
		return state.ErrLockLost
	}
	l.store.lock = nil

	return nil
}

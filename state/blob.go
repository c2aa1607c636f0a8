package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLockExists is returned by Blob.CreateLock when the lock object already
// exists.
var ErrLockExists = errors.New("lock object already exists")

// Blob is byte-oriented storage for a serialized Document and its lock object.
type Blob interface {
	// Read returns the stored document, or nil if it doesn't exist yet.
	Read(ctx context.Context) ([]byte, error)
	// Write replaces the stored document.
	Write(ctx context.Context, data []byte) error
	// ReadLock returns the lock object, or nil if it doesn't exist.
	ReadLock(ctx context.Context) ([]byte, error)
	// CreateLock atomically creates the lock object, failing with
	// ErrLockExists if it already exists.
	CreateLock(ctx context.Context, data []byte) error
	// RemoveLock deletes the lock object. It's not an error if it doesn't exist.
	RemoveLock(ctx context.Context) error
}

// BlobStore is a Store that keeps a Document in a Blob. Every mutation reads,
// modifies and writes back the whole document.
type BlobStore struct {
	mx      sync.Mutex
	blob    Blob
	timeNow func() time.Time
}

var (
	_ Store         = (*BlobStore)(nil)
	_ RecordLister  = (*BlobStore)(nil)
	_ ForceUnlocker = (*BlobStore)(nil)
)

// BlobOption is a function that allows configuring the BlobStore.
type BlobOption func(*BlobStore)

// WithTimeNow sets the function used to timestamp records and locks.
func WithTimeNow(timeNowFn func() time.Time) BlobOption {
	return func(s *BlobStore) {
		s.timeNow = timeNowFn
	}
}

// NewBlobStore returns a new BlobStore backed by blob.
func NewBlobStore(blob Blob, opts ...BlobOption) *BlobStore {
	s := &BlobStore{blob: blob, timeNow: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Applied implements the Store interface.
func (s *BlobStore) Applied(ctx context.Context) ([]string, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	return doc.Names(), nil
}

// Records implements the RecordLister interface.
func (s *BlobStore) Records(ctx context.Context) ([]Record, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	return doc.Applied, nil
}

// RecordApplied implements the Store interface.
func (s *BlobStore) RecordApplied(ctx context.Context, name string) error {
	return s.update(ctx, func(doc *Document) error {
		return doc.Append(name, s.timeNow())
	})
}

// RecordRolledBack implements the Store interface.
func (s *BlobStore) RecordRolledBack(ctx context.Context, name string) error {
	return s.update(ctx, func(doc *Document) error {
		return doc.RemoveTail(name)
	})
}

// Lock implements the Store interface.
//
//nolint:ireturn // Intentional, this implements the Store interface.
func (s *BlobStore) Lock(ctx context.Context) (Lock, error) {
	info, err := NewLockInfo(s.timeNow())
	if err != nil {
		return nil, err
	}
	data, err := info.Encode()
	if err != nil {
		return nil, err
	}

	err = s.blob.CreateLock(ctx, data)
	if errors.Is(err, ErrLockExists) {
		return nil, &LockHeldError{Holder: s.holder(ctx)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed creating lock: %w", err)
	}

	return &blobLock{store: s, token: info.Token}, nil
}

// ForceUnlock implements the ForceUnlocker interface.
func (s *BlobStore) ForceUnlock(ctx context.Context) error {
	if err := s.blob.RemoveLock(ctx); err != nil {
		return fmt.Errorf("failed removing lock: %w", err)
	}
	return nil
}

func (s *BlobStore) holder(ctx context.Context) *LockInfo {
	data, err := s.blob.ReadLock(ctx)
	if err != nil || data == nil {
		return nil
	}
	info, err := DecodeLockInfo(data)
	if err != nil {
		return nil
	}
	return info
}

func (s *BlobStore) load(ctx context.Context) (*Document, error) {
	data, err := s.blob.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed reading migration state: %w", err)
	}
	return DecodeDocument(data)
}

func (s *BlobStore) update(ctx context.Context, fn func(*Document) error) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return err
	}
	if err = fn(doc); err != nil {
		return err
	}

	data, err := doc.Encode()
	if err != nil {
		return err
	}
	if err = s.blob.Write(ctx, data); err != nil {
		return fmt.Errorf("failed writing migration state: %w", err)
	}

	return nil
}

type blobLock struct {
	mx       sync.Mutex
	store    *BlobStore
	token    string
	released bool
}

func (l *blobLock) Unlock(ctx context.Context) error {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.released {
		return nil
	}

	holder := l.store.holder(ctx)
	if holder == nil || holder.Token != l.token {
		l.released = true
		return ErrLockLost
	}
	if err := l.store.blob.RemoveLock(ctx); err != nil {
		return fmt.Errorf("failed removing lock: %w", err)
	}
	l.released = true

	return nil
}

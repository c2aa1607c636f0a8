// Package objectstore implements a migration state store kept as an object in
// S3-compatible storage. The run lock is a separate object created with a
// conditional write.
package objectstore

import (
	"context"
	"errors"
	"fmt"

	"go.hackfix.me/migrate/state"
)

var (
	// ErrNotFound is returned by Client.Get when the object doesn't exist.
	ErrNotFound = errors.New("object not found")
	// ErrExists is returned by Client.PutIfAbsent when the object exists.
	ErrExists = errors.New("object already exists")
)

// Client is the subset of object storage operations used by the state store.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	PutIfAbsent(ctx context.Context, key string, data []byte) error
	// Delete removes the object. It's not an error if it doesn't exist.
	Delete(ctx context.Context, key string) error
}

// New returns a state store that keeps its document in the object at key. The
// lock object is created at key with a ".lock" suffix.
func New(client Client, key string, opts ...state.BlobOption) *state.BlobStore {
	return state.NewBlobStore(NewBlob(client, key), opts...)
}

// Blob stores the state document and lock as objects.
type Blob struct {
	client  Client
	key     string
	lockKey string
}

var _ state.Blob = (*Blob)(nil)

// NewBlob returns a new Blob for the state object at key.
func NewBlob(client Client, key string) *Blob {
	return &Blob{client: client, key: key, lockKey: key + ".lock"}
}

// Read implements the state.Blob interface.
func (b *Blob) Read(ctx context.Context) ([]byte, error) {
	return b.get(ctx, b.key)
}

// Write implements the state.Blob interface.
func (b *Blob) Write(ctx context.Context, data []byte) error {
	if err := b.client.Put(ctx, b.key, data); err != nil {
		return fmt.Errorf("failed writing object '%s': %w", b.key, err)
	}
	return nil
}

// ReadLock implements the state.Blob interface.
func (b *Blob) ReadLock(ctx context.Context) ([]byte, error) {
	return b.get(ctx, b.lockKey)
}

// CreateLock implements the state.Blob interface.
func (b *Blob) CreateLock(ctx context.Context, data []byte) error {
	err := b.client.PutIfAbsent(ctx, b.lockKey, data)
	if errors.Is(err, ErrExists) {
		return state.ErrLockExists
	}
	if err != nil {
		return fmt.Errorf("failed writing object '%s': %w", b.lockKey, err)
	}
	return nil
}

// RemoveLock implements the state.Blob interface.
func (b *Blob) RemoveLock(ctx context.Context) error {
	if err := b.client.Delete(ctx, b.lockKey); err != nil {
		return fmt.Errorf("failed deleting object '%s': %w", b.lockKey, err)
	}
	return nil
}

func (b *Blob) get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed reading object '%s': %w", key, err)
	}
	return data, nil
}

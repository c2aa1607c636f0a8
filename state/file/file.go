// Package file implements a migration state store kept in a JSON file, with
// an advisory lock file next to it.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mandelsoft/vfs/pkg/vfs"

	"go.hackfix.me/migrate/state"
)

// New returns a state store that keeps its document at path on fs. The lock
// file is created at path with a ".lock" suffix.
func New(fs vfs.FileSystem, path string, opts ...state.BlobOption) *state.BlobStore {
	return state.NewBlobStore(NewBlob(fs, path), opts...)
}

// Blob stores the state document and lock in files.
type Blob struct {
	fs       vfs.FileSystem
	path     string
	lockPath string
}

var _ state.Blob = (*Blob)(nil)

// NewBlob returns a new Blob for the state file at path.
func NewBlob(fs vfs.FileSystem, path string) *Blob {
	return &Blob{fs: fs, path: path, lockPath: path + ".lock"}
}

// Path returns the path of the state file.
func (b *Blob) Path() string {
	return b.path
}

// Read implements the state.Blob interface.
func (b *Blob) Read(_ context.Context) ([]byte, error) {
	return b.readFile(b.path)
}

// Write implements the state.Blob interface. The file is replaced by renaming
// a temporary file over it, so readers never observe a partial write.
func (b *Blob) Write(_ context.Context, data []byte) error {
	if err := b.fs.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("failed creating state directory: %w", err)
	}

	tmpPath := b.path + ".tmp"
	if err := vfs.WriteFile(b.fs, tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed writing temporary state file: %w", err)
	}
	if err := b.replace(tmpPath); err != nil {
		_ = b.fs.Remove(tmpPath)
		return fmt.Errorf("failed replacing state file: %w", err)
	}

	return nil
}

// replace renames tmpPath over the state file. Not every vfs.FileSystem
// replaces an existing target on rename (memoryfs refuses), so the existing
// file is removed and the rename retried once in that case.
func (b *Blob) replace(tmpPath string) error {
	err := b.fs.Rename(tmpPath, b.path)
	if err == nil {
		return nil
	}
	if _, serr := b.fs.Stat(b.path); serr != nil {
		return err
	}
	if rerr := b.fs.Remove(b.path); rerr != nil {
		return rerr
	}

	return b.fs.Rename(tmpPath, b.path)
}

// ReadLock implements the state.Blob interface.
func (b *Blob) ReadLock(_ context.Context) ([]byte, error) {
	return b.readFile(b.lockPath)
}

// CreateLock implements the state.Blob interface.
func (b *Blob) CreateLock(_ context.Context, data []byte) error {
	if err := b.fs.MkdirAll(filepath.Dir(b.lockPath), 0o755); err != nil {
		return fmt.Errorf("failed creating state directory: %w", err)
	}

	if _, err := b.fs.Stat(b.lockPath); err == nil {
		return state.ErrLockExists
	} else if !vfs.IsErrNotExist(err) {
		return err //nolint:wrapcheck // This is wrapped by the caller.
	}

	f, err := b.fs.OpenFile(b.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return state.ErrLockExists
		}
		return err //nolint:wrapcheck // This is wrapped by the caller.
	}
	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		_ = b.fs.Remove(b.lockPath)
		return err //nolint:wrapcheck // This is wrapped by the caller.
	}

	return f.Close() //nolint:wrapcheck // This is wrapped by the caller.
}

// RemoveLock implements the state.Blob interface.
func (b *Blob) RemoveLock(_ context.Context) error {
	err := b.fs.Remove(b.lockPath)
	if err != nil && !vfs.IsErrNotExist(err) {
		return err //nolint:wrapcheck // This is wrapped by the caller.
	}
	return nil
}

func (b *Blob) readFile(path string) ([]byte, error) {
	data, err := vfs.ReadFile(b.fs, path)
	if err != nil {
		if vfs.IsErrNotExist(err) {
			return nil, nil
		}
		return nil, err //nolint:wrapcheck // This is wrapped by the caller.
	}
	return data, nil
}

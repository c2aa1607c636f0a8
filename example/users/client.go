package users

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/mandelsoft/vfs/pkg/vfs"
)

// Client is the database client the migrations run against.
type Client interface {
	// GetAll returns all stored user records.
	GetAll(ctx context.Context) ([]json.RawMessage, error)
	// Overwrite replaces all stored user records.
	Overwrite(ctx context.Context, users []json.RawMessage) error
}

// FileClient stores user records as a JSON array in a file.
type FileClient struct {
	fs   vfs.FileSystem
	path string
}

var _ Client = (*FileClient)(nil)

// NewFileClient returns a new FileClient for the file at path.
func NewFileClient(fs vfs.FileSystem, path string) *FileClient {
	return &FileClient{fs: fs, path: path}
}

// GetAll implements the Client interface. A missing file has no users.
func (c *FileClient) GetAll(_ context.Context) ([]json.RawMessage, error) {
	data, err := vfs.ReadFile(c.fs, c.path)
	if err != nil {
		if vfs.IsErrNotExist(err) {
			return []json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("failed reading users file: %w", err)
	}

	var users []json.RawMessage
	if err = json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("failed parsing users file '%s': %w", c.path, err)
	}

	return users, nil
}

// Overwrite implements the Client interface.
func (c *FileClient) Overwrite(_ context.Context, users []json.RawMessage) error {
	if users == nil {
		users = []json.RawMessage{}
	}
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return fmt.Errorf("failed encoding users: %w", err)
	}

	if err = c.fs.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed creating users file directory: %w", err)
	}
	if err = vfs.WriteFile(c.fs, c.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed writing users file: %w", err)
	}

	return nil
}

// DryRunClient reads from another client, but only logs writes.
type DryRunClient struct {
	reader Client
	logger *slog.Logger
}

var _ Client = (*DryRunClient)(nil)

// NewDryRunClient returns a new DryRunClient that reads from reader.
func NewDryRunClient(reader Client, logger *slog.Logger) *DryRunClient {
	return &DryRunClient{reader: reader, logger: logger.With("component", "users-dry-run")}
}

// GetAll implements the Client interface.
func (c *DryRunClient) GetAll(ctx context.Context) ([]json.RawMessage, error) {
	return c.reader.GetAll(ctx) //nolint:wrapcheck // This is fine.
}

// Overwrite implements the Client interface. Nothing is written.
func (c *DryRunClient) Overwrite(_ context.Context, users []json.RawMessage) error {
	c.logger.Info("skipping write of users file", "users", len(users))
	return nil
}

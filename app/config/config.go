package config

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is the serialization format of the configuration file.
type Format string

// Supported configuration file formats.
const (
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatFromPath returns the configuration format based on the file extension
// of path. Unknown extensions default to JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Config represents the application configuration, backed by a filesystem for
// persistence.
type Config struct {
	// State is the URL of the migration state backend.
	State sql.Null[string]
	// Output is the default output format of commands.
	Output sql.Null[string]

	fs   vfs.FileSystem
	path string
}

// NewConfig creates a new Config instance with the specified filesystem
// and configuration file path.
func NewConfig(fs vfs.FileSystem, path string) *Config {
	return &Config{fs: fs, path: path}
}

// Load reads and parses the configuration file from the filesystem.
// If the file doesn't exist, it initializes with an empty configuration.
func (c *Config) Load() error {
	data, err := vfs.ReadFile(c.fs, c.path)
	if err != nil && !vfs.IsErrNotExist(err) {
		return fmt.Errorf("failed reading configuration file: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	var w cfgWrapper
	switch c.Format() {
	case FormatTOML:
		err = toml.Unmarshal(data, &w)
	case FormatYAML:
		err = yaml.Unmarshal(data, &w)
	default:
		err = json.Unmarshal(data, &w)
	}
	if err != nil {
		return fmt.Errorf("failed parsing configuration file: %w", err)
	}

	c.fromWrapper(w)

	return nil
}

// Format returns the serialization format of the configuration file.
func (c *Config) Format() Format {
	return FormatFromPath(c.path)
}

// Path returns the filesystem path where the configuration is stored.
func (c *Config) Path() string {
	return c.path
}

// Save writes the current configuration to the filesystem.
func (c *Config) Save() error {
	if err := c.fs.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed creating configuration directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	w := c.toWrapper()
	switch c.Format() {
	case FormatTOML:
		data, err = toml.Marshal(w)
	case FormatYAML:
		data, err = yaml.Marshal(w)
	default:
		data, err = json.MarshalIndent(w, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed serializing configuration data: %w", err)
	}

	if err = vfs.WriteFile(c.fs, c.path, data, 0o644); err != nil {
		return fmt.Errorf("failed writing configuration file: %w", err)
	}

	return nil
}

type cfgWrapper struct {
	State  string `json:"state,omitempty" toml:"state,omitempty" yaml:"state,omitempty"`
	Output string `json:"output,omitempty" toml:"output,omitempty" yaml:"output,omitempty"`
}

func (c *Config) toWrapper() cfgWrapper {
	w := cfgWrapper{}
	if c.State.Valid {
		w.State = c.State.V
	}
	if c.Output.Valid {
		w.Output = c.Output.V
	}
	return w
}

func (c *Config) fromWrapper(w cfgWrapper) {
	if w.State != "" {
		c.State = sql.Null[string]{V: w.State, Valid: true}
	}
	if w.Output != "" {
		c.Output = sql.Null[string]{V: w.Output, Valid: true}
	}
}

// MarshalJSON implements custom JSON marshaling to convert sql.Null values
// to their underlying types, omitting invalid/null fields from the output.
func (c Config) MarshalJSON() ([]byte, error) {
	//nolint:wrapcheck // This is fine.
	return json.Marshal(c.toWrapper())
}

// UnmarshalJSON implements custom JSON unmarshaling to convert plain values
// into sql.Null types.
func (c *Config) UnmarshalJSON(data []byte) error {
	var w cfgWrapper
	if err := json.Unmarshal(data, &w); err != nil {
		//nolint:wrapcheck // This is fine.
		return err
	}
	c.fromWrapper(w)

	return nil
}

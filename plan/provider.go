package plan

import (
	"context"
	"errors"
	"fmt"
)

// RunMode determines whether a run has real effects.
type RunMode int

// Run modes.
const (
	// Commit runs migrations against a real context, and records them in the
	// state store.
	Commit RunMode = iota
	// NoCommit runs migrations against a context without lasting effects, and
	// leaves the state store untouched.
	NoCommit
)

func (m RunMode) String() string {
	if m == NoCommit {
		return "no-commit"
	}
	return "commit"
}

// MarshalText implements the encoding.TextMarshaler interface.
func (m RunMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (m *RunMode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "commit":
		*m = Commit
	case "no-commit":
		*m = NoCommit
	default:
		return fmt.Errorf("invalid run mode '%s'", text)
	}
	return nil
}

// ContextProvider creates the value migrations are run against. If the
// returned value implements io.Closer, it's closed after the run.
type ContextProvider[C any] interface {
	// CommitContext returns a context whose effects are real.
	CommitContext(ctx context.Context) (C, error)
	// NoCommitContext returns a context whose effects are discarded. ok is
	// false if the provider doesn't support dry runs.
	NoCommitContext(ctx context.Context) (c C, ok bool, err error)
}

// ProviderFuncs is a ContextProvider built from functions. A nil NoCommit
// function means dry runs are unsupported.
type ProviderFuncs[C any] struct {
	Commit   func(ctx context.Context) (C, error)
	NoCommit func(ctx context.Context) (C, error)
}

var _ ContextProvider[any] = ProviderFuncs[any]{}

// CommitContext implements the ContextProvider interface.
func (p ProviderFuncs[C]) CommitContext(ctx context.Context) (C, error) {
	if p.Commit == nil {
		var zero C
		return zero, errors.New("no commit context function configured")
	}
	return p.Commit(ctx)
}

// NoCommitContext implements the ContextProvider interface.
func (p ProviderFuncs[C]) NoCommitContext(ctx context.Context) (C, bool, error) {
	if p.NoCommit == nil {
		var zero C
		return zero, false, nil
	}
	c, err := p.NoCommit(ctx)
	return c, true, err
}

package plan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.hackfix.me/migrate/state"
)

// Plan is an ordered, immutable list of named migrations bound to a context
// provider and a state store.
type Plan[C any] struct {
	entries  []entry[C]
	index    map[string]int
	provider ContextProvider[C]
	store    state.Store
	logger   *slog.Logger
	timeNow  func() time.Time
	newID    func() string
}

// Runner is the part of a Plan that doesn't depend on its context type. It
// allows handling plans of different types uniformly.
type Runner interface {
	Names() []string
	Status(ctx context.Context) ([]Status, error)
	Resolve(ctx context.Context, sel Selection) (Resolution, error)
	Exec(ctx context.Context, sel Selection, mode RunMode) (*Report, error)
	Store() state.Store
}

var _ Runner = (*Plan[any])(nil)

// Status is the state of a single migration of the plan.
type Status struct {
	Index      int        `json:"index" yaml:"index"`
	Name       string     `json:"name" yaml:"name"`
	Reversible bool       `json:"reversible" yaml:"reversible"`
	Applied    bool       `json:"applied" yaml:"applied"`
	AppliedAt  *time.Time `json:"applied_at,omitempty" yaml:"applied_at,omitempty"`
}

// Names returns the migration names in plan order.
func (p *Plan[C]) Names() []string {
	names := make([]string, len(p.entries))
	for i, e := range p.entries {
		names[i] = e.name
	}
	return names
}

// Len returns the number of migrations in the plan.
func (p *Plan[C]) Len() int {
	return len(p.entries)
}

// Store returns the state store of the plan.
//
//nolint:ireturn // Intentional, the store is pluggable.
func (p *Plan[C]) Store() state.Store {
	return p.store
}

// Reversible reports whether the named migration can be rolled back. It
// returns false for unknown names.
func (p *Plan[C]) Reversible(name string) bool {
	i, ok := p.index[name]
	if !ok {
		return false
	}
	_, ok = p.entries[i].migration.(Reversible[C])
	return ok
}

// Resolve returns the migrations sel would run, given the current state. The
// state lock isn't acquired, so the result is only advisory.
func (p *Plan[C]) Resolve(ctx context.Context, sel Selection) (Resolution, error) {
	applied, err := p.store.Applied(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed reading migration state: %w", err)
	}
	return Resolve(p.Names(), applied, sel, p.Reversible)
}

// Status returns the state of every migration of the plan, in plan order.
func (p *Plan[C]) Status(ctx context.Context) ([]Status, error) {
	var records []state.Record
	if lister, ok := p.store.(state.RecordLister); ok {
		var err error
		if records, err = lister.Records(ctx); err != nil {
			return nil, fmt.Errorf("failed reading migration state: %w", err)
		}
	} else {
		applied, err := p.store.Applied(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed reading migration state: %w", err)
		}
		records = make([]state.Record, len(applied))
		for i, name := range applied {
			records[i] = state.Record{Name: name}
		}
	}

	names := p.Names()
	if err := checkPrefix(names, state.Names(records)); err != nil {
		return nil, err
	}

	statuses := make([]Status, len(names))
	for i, name := range names {
		statuses[i] = Status{Index: i, Name: name, Reversible: p.Reversible(name)}
		if i < len(records) {
			statuses[i].Applied = true
			if at := records[i].AppliedAt; !at.IsZero() {
				statuses[i].AppliedAt = &at
			}
		}
	}

	return statuses, nil
}

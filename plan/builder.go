package plan

import (
	"go.hackfix.me/migrate/state"
)

type entry[C any] struct {
	name      string
	migration Migration[C]
}

// Builder assembles a Plan. Structural errors are reported by Build, so Add
// calls can be chained.
type Builder[C any] struct {
	provider ContextProvider[C]
	store    state.Store
	opts     []Option
	entries  []entry[C]
}

// NewBuilder returns a Builder for a plan whose migrations are run against
// contexts created by provider, and recorded in store.
func NewBuilder[C any](provider ContextProvider[C], store state.Store, opts ...Option) *Builder[C] {
	return &Builder[C]{provider: provider, store: store, opts: opts}
}

// Add appends a migration to the plan.
func (b *Builder[C]) Add(name string, m Migration[C]) *Builder[C] {
	b.entries = append(b.entries, entry[C]{name: name, migration: m})
	return b
}

// Build validates the added migrations and returns the Plan. It does no I/O.
func (b *Builder[C]) Build() (*Plan[C], error) {
	if b.provider == nil {
		return nil, &InvalidPlanError{Reason: "context provider is required"}
	}
	if b.store == nil {
		return nil, &InvalidPlanError{Reason: "state store is required"}
	}
	if len(b.entries) == 0 {
		return nil, &EmptyPlanError{}
	}

	index := make(map[string]int, len(b.entries))
	for i, e := range b.entries {
		if e.name == "" {
			return nil, &InvalidMigrationError{Index: i, Reason: "name is empty"}
		}
		if e.migration == nil {
			return nil, &InvalidMigrationError{Name: e.name, Index: i, Reason: "migration is nil"}
		}
		if first, ok := index[e.name]; ok {
			return nil, &DuplicateNameError{Name: e.name, Index: i, FirstIndex: first}
		}
		index[e.name] = i
	}

	o := &options{}
	opts := append(DefaultOptions(), b.opts...)
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	return &Plan[C]{
		entries:  append([]entry[C](nil), b.entries...),
		index:    index,
		provider: b.provider,
		store:    b.store,
		logger:   o.logger,
		timeNow:  o.timeNow,
		newID:    o.newID,
	}, nil
}

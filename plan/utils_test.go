package plan_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.hackfix.me/migrate/plan"
	"go.hackfix.me/migrate/state"
	"go.hackfix.me/migrate/state/memory"
)

var timeNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func timeNowFn() time.Time {
	return timeNow
}

// testCtx is the context migrations run against in tests. It records the
// operations that ran against it.
type testCtx struct {
	mx       sync.Mutex
	ops      []string
	closed   bool
	closeErr error
}

var _ io.Closer = (*testCtx)(nil)

func (c *testCtx) record(op string) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.ops = append(c.ops, op)
}

func (c *testCtx) Ops() []string {
	c.mx.Lock()
	defer c.mx.Unlock()
	return append([]string{}, c.ops...)
}

func (c *testCtx) Close() error {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.closed = true
	return c.closeErr
}

// testProvider hands out fixed contexts and counts how often it was asked.
type testProvider struct {
	mx            sync.Mutex
	commit        *testCtx
	noCommit      *testCtx
	commitErr     error
	commitCalls   int
	noCommitCalls int
}

var _ plan.ContextProvider[*testCtx] = (*testProvider)(nil)

func newTestProvider() *testProvider {
	return &testProvider{commit: &testCtx{}, noCommit: &testCtx{}}
}

func (p *testProvider) CommitContext(_ context.Context) (*testCtx, error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.commitCalls++
	if p.commitErr != nil {
		return nil, p.commitErr
	}
	return p.commit, nil
}

func (p *testProvider) NoCommitContext(_ context.Context) (*testCtx, bool, error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.noCommitCalls++
	if p.noCommit == nil {
		return nil, false, nil
	}
	return p.noCommit, true, nil
}

func up(name string) func(context.Context, *testCtx) error {
	return func(_ context.Context, c *testCtx) error {
		c.record("up:" + name)
		return nil
	}
}

func down(name string) func(context.Context, *testCtx) error {
	return func(_ context.Context, c *testCtx) error {
		c.record("down:" + name)
		return nil
	}
}

// reversible returns a reversible migration that records its operations.
func reversible(name string) plan.Migration[*testCtx] {
	return plan.Funcs(up(name), down(name))
}

// flaky returns a reversible migration whose Up fails while *fail is true.
func flaky(name string, fail *bool) plan.Migration[*testCtx] {
	return plan.Funcs(func(ctx context.Context, c *testCtx) error {
		if *fail {
			c.record("fail:" + name)
			return fmt.Errorf("%s exploded", name)
		}
		return up(name)(ctx, c)
	}, down(name))
}

type namedMigration struct {
	name string
	m    plan.Migration[*testCtx]
}

func newTestPlan(
	t *testing.T, provider plan.ContextProvider[*testCtx], store state.Store,
	migrations ...namedMigration,
) *plan.Plan[*testCtx] {
	t.Helper()

	b := plan.NewBuilder(provider, store,
		plan.WithLogger(slog.New(slog.DiscardHandler)),
		plan.WithTimeNow(timeNowFn),
		plan.WithRunIDGenerator(func() string { return "test-run" }),
	)
	for _, m := range migrations {
		b.Add(m.name, m.m)
	}
	p, err := b.Build()
	require.NoError(t, err)

	return p
}

func abc() []namedMigration {
	return []namedMigration{
		{"a", reversible("a")},
		{"b", reversible("b")},
		{"c", reversible("c")},
	}
}

// unlockFailStore is a memory store whose locks fail to release.
type unlockFailStore struct {
	*memory.Store
	unlockErr error
}

//nolint:ireturn // Intentional, this implements the state.Store interface.
func (s *unlockFailStore) Lock(ctx context.Context) (state.Lock, error) {
	lock, err := s.Store.Lock(ctx)
	if err != nil {
		return nil, err
	}
	return &failingLock{Lock: lock, err: s.unlockErr}, nil
}

type failingLock struct {
	state.Lock
	err error
}

func (l *failingLock) Unlock(ctx context.Context) error {
	return errors.Join(l.Lock.Unlock(ctx), l.err)
}

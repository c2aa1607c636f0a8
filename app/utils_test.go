package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mandelsoft/vfs/pkg/memoryfs"
	"github.com/mandelsoft/vfs/pkg/vfs"

	actx "go.hackfix.me/migrate/app/context"
	"go.hackfix.me/migrate/plan"
)

var timeNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func timeNowFn() time.Time {
	return timeNow
}

// The migrations of the test plan, in order. seed-admin can't be rolled back.
var testMigrations = []string{"create-users", "add-email", "seed-admin"}

type testApp struct {
	*App
	fs             vfs.FileSystem
	stdout, stderr *safeBuffer
	env            *mockEnv

	mx sync.Mutex
	// events recorded by migrations run in commit and no-commit mode
	commit, noCommit *recorder
	// names of migrations that fail when run
	failing map[string]bool
}

func newTestApp(ctx context.Context) (*testApp, error) {
	tapp := &testApp{
		fs:       memoryfs.New(),
		stdout:   newSafeBuffer(),
		stderr:   newSafeBuffer(),
		env:      &mockEnv{env: map[string]string{}},
		commit:   &recorder{},
		noCommit: &recorder{},
		failing:  map[string]bool{},
	}

	opts := []Option{
		WithTimeNow(timeNowFn),
		WithEnv(tapp.env),
		WithContext(ctx),
		WithFDs(&bytes.Buffer{}, tapp.stdout, tapp.stderr),
		WithFS(tapp.fs),
		WithLogger(false, false),
		WithConfigFilePath("/config.json"),
		WithDefaultState("/state.json"),
		WithVersion("v1.2.3"),
	}
	app, err := New("migrate", tapp.newPlan, opts...)
	if err != nil {
		return nil, err
	}
	tapp.App = app

	return tapp, nil
}

// Run resets the output buffers and runs the app with args.
func (ta *testApp) Run(args ...string) error {
	ta.stdout.Reset()
	ta.stderr.Reset()
	return ta.App.Run(args)
}

func (ta *testApp) setFailing(name string, fail bool) {
	ta.mx.Lock()
	defer ta.mx.Unlock()
	ta.failing[name] = fail
}

func (ta *testApp) newPlan(appCtx *actx.Context) (plan.Runner, error) {
	provider := plan.ProviderFuncs[*recorder]{
		Commit: func(context.Context) (*recorder, error) {
			return ta.commit, nil
		},
		NoCommit: func(context.Context) (*recorder, error) {
			return ta.noCommit, nil
		},
	}

	b := plan.NewBuilder[*recorder](provider, appCtx.Store,
		plan.WithLogger(appCtx.Logger),
		plan.WithTimeNow(appCtx.TimeNow),
		plan.WithRunIDGenerator(func() string { return "test-run" }),
	)
	for _, name := range testMigrations {
		if name == "seed-admin" {
			b.Add(name, plan.Func(ta.migrationFunc("up", name)))
			continue
		}
		b.Add(name, plan.Funcs(ta.migrationFunc("up", name), ta.migrationFunc("down", name)))
	}

	p, err := b.Build()
	if err != nil {
		return nil, err
	}

	return p, nil
}

func (ta *testApp) migrationFunc(dir, name string) func(context.Context, *recorder) error {
	return func(_ context.Context, r *recorder) error {
		ta.mx.Lock()
		fail := ta.failing[name]
		ta.mx.Unlock()
		if fail {
			return fmt.Errorf("%s exploded", name)
		}
		r.record(dir + ":" + name)
		return nil
	}
}

type recorder struct {
	mx     sync.Mutex
	events []string
}

func (r *recorder) record(event string) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) Events() []string {
	r.mx.Lock()
	defer r.mx.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return append([]string{}, r.events...)
}

type mockEnv struct {
	mx  sync.RWMutex
	env map[string]string
}

var _ actx.Environment = (*mockEnv)(nil)

func (me *mockEnv) Get(key string) string {
	me.mx.RLock()
	defer me.mx.RUnlock()
	return me.env[key]
}

func (me *mockEnv) Set(key, val string) error {
	me.mx.Lock()
	defer me.mx.Unlock()
	if strings.TrimSpace(key) == "" {
		return errors.New("empty environment variable name")
	}
	me.env[key] = val
	return nil
}

// newTestContext returns a context that times out after timeout, and an
// assertion handling function that cancels the context prematurely and fails
// the test if the assertion fails. This is done to avoid waiting for the
// context timeout to be reached.
func newTestContext(t *testing.T, timeout time.Duration) (
	ctx context.Context, cancelCtx func(), assertHandler func(bool),
) {
	ctx, cancelCtx = context.WithTimeout(t.Context(), timeout)
	assertHandler = func(success bool) {
		if !success {
			cancelCtx()
			t.FailNow()
		}
	}

	return
}

// safeBuffer is a thread-safe buffer.
type safeBuffer struct {
	mx  sync.RWMutex
	buf *bytes.Buffer
}

func newSafeBuffer() *safeBuffer {
	return &safeBuffer{buf: &bytes.Buffer{}}
}

func (b *safeBuffer) Write(p []byte) (n int, err error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) Reset() {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.buf.Reset()
}

func (b *safeBuffer) String() string {
	b.mx.RLock()
	defer b.mx.RUnlock()
	return b.buf.String()
}

func (b *safeBuffer) Bytes() []byte {
	b.mx.RLock()
	defer b.mx.RUnlock()
	return bytes.Clone(b.buf.Bytes())
}

package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"go.hackfix.me/migrate/plan"
	"go.hackfix.me/migrate/state"
	"go.hackfix.me/migrate/state/file"
)

func TestAppUp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		args        []string
		expCommit   []string
		expNoCommit []string
		expApplied  []string
		expStdout   []string
		expErr      string
	}{
		{
			name:       "ok/all",
			args:       []string{"up"},
			expCommit:  []string{"up:create-users", "up:add-email", "up:seed-admin"},
			expApplied: []string{"create-users", "add-email", "seed-admin"},
			expStdout:  []string{"create-users", "add-email", "seed-admin", "succeeded"},
		},
		{
			name:       "ok/count",
			args:       []string{"up", "--count", "2"},
			expCommit:  []string{"up:create-users", "up:add-email"},
			expApplied: []string{"create-users", "add-email"},
			expStdout:  []string{"create-users", "add-email"},
		},
		{
			name:       "ok/to",
			args:       []string{"up", "--to", "create-users"},
			expCommit:  []string{"up:create-users"},
			expApplied: []string{"create-users"},
			expStdout:  []string{"create-users"},
		},
		{
			name:        "ok/no_commit",
			args:        []string{"up", "--no-commit"},
			expNoCommit: []string{"up:create-users", "up:add-email", "up:seed-admin"},
			expApplied:  []string{},
			expStdout:   []string{"seed-admin", "Dry run: no changes were committed."},
		},
		{
			name:       "ok/no_run",
			args:       []string{"up", "--count", "1", "--no-run"},
			expApplied: []string{},
			expStdout:  []string{"create-users"},
		},
		{
			name:   "err/count_zero",
			args:   []string{"up", "--count", "0"},
			expErr: "invalid count 0: must be at least 1",
		},
		{
			name:   "err/unknown_target",
			args:   []string{"up", "--to", "nope"},
			expErr: "migration 'nope' not found; available migrations: create-users, add-email, seed-admin",
		},
		{
			name:   "err/mode_conflict",
			args:   []string{"up", "--no-commit", "--no-run"},
			expErr: "can't be used together",
		},
		{
			name:   "err/bound_conflict",
			args:   []string{"up", "--count", "1", "--to", "add-email"},
			expErr: "can't be used together",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tctx, cancel, h := newTestContext(t, 5*time.Second)
			defer cancel()

			app, err := newTestApp(tctx)
			h(assert.NoError(t, err))

			err = app.Run(tt.args...)
			if tt.expErr != "" {
				h(assert.ErrorContains(t, err, tt.expErr))
				h(assert.Empty(t, app.commit.Events()))
				return
			}

			h(assert.NoError(t, err))
			h(assert.Equal(t, tt.expCommit, app.commit.Events()))
			h(assert.Equal(t, tt.expNoCommit, app.noCommit.Events()))
			stdout := app.stdout.String()
			for _, exp := range tt.expStdout {
				h(assert.Contains(t, stdout, exp))
			}

			h(assert.Equal(t, tt.expApplied, readApplied(t, app)))
		})
	}
}

func TestAppUpIdempotent(t *testing.T) {
	t.Parallel()

	tctx, cancel, h := newTestContext(t, 5*time.Second)
	defer cancel()

	app, err := newTestApp(tctx)
	h(assert.NoError(t, err))

	h(assert.NoError(t, app.Run("up")))
	h(assert.NoError(t, app.Run("up")))
	h(assert.Equal(t, "No migrations to run.\n", app.stdout.String()))
	h(assert.Contains(t, app.stderr.String(), "no migrations to run"))
	h(assert.Len(t, app.commit.Events(), 3))
}

func TestAppDown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		setup      []string
		args       []string
		expCommit  []string
		expApplied []string
		expErr     string
	}{
		{
			name:       "ok/count",
			setup:      []string{"up", "--count", "2"},
			args:       []string{"down", "--count", "1"},
			expCommit:  []string{"down:add-email"},
			expApplied: []string{"create-users"},
		},
		{
			name:       "ok/to",
			setup:      []string{"up", "--count", "2"},
			args:       []string{"down", "--to", "create-users"},
			expCommit:  []string{"down:add-email", "down:create-users"},
			expApplied: []string{},
		},
		{
			name:       "ok/to_not_applied",
			setup:      []string{"up", "--count", "1"},
			args:       []string{"down", "--to", "add-email"},
			expApplied: []string{"create-users"},
		},
		{
			name:       "ok/all",
			setup:      []string{"up", "--count", "2"},
			args:       []string{"down", "--all"},
			expCommit:  []string{"down:add-email", "down:create-users"},
			expApplied: []string{},
		},
		{
			name:       "ok/no_run",
			setup:      []string{"up", "--count", "2"},
			args:       []string{"down", "--all", "--no-run"},
			expApplied: []string{"create-users", "add-email"},
		},
		{
			name:   "err/no_bound",
			setup:  []string{"up"},
			args:   []string{"down"},
			expErr: "missing flags",
		},
		{
			name:   "err/irreversible",
			setup:  []string{"up"},
			args:   []string{"down", "--all"},
			expErr: "migration 'seed-admin' at index 2 can't be rolled back",
		},
		{
			name:   "err/negative_count",
			setup:  []string{"up"},
			args:   []string{"down", "--count=-1"},
			expErr: "invalid count -1: must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tctx, cancel, h := newTestContext(t, 5*time.Second)
			defer cancel()

			app, err := newTestApp(tctx)
			h(assert.NoError(t, err))

			h(assert.NoError(t, app.Run(tt.setup...)))
			setupEvents := len(app.commit.Events())
			applied := readApplied(t, app)

			err = app.Run(tt.args...)
			if tt.expErr != "" {
				h(assert.ErrorContains(t, err, tt.expErr))
				h(assert.Len(t, app.commit.Events(), setupEvents))
				h(assert.Equal(t, applied, readApplied(t, app)))
				return
			}

			h(assert.NoError(t, err))
			h(assert.Equal(t, tt.expCommit, nilIfEmpty(app.commit.Events()[setupEvents:])))
			h(assert.Equal(t, tt.expApplied, readApplied(t, app)))
		})
	}
}

func TestAppFailure(t *testing.T) {
	t.Parallel()

	tctx, cancel, h := newTestContext(t, 5*time.Second)
	defer cancel()

	app, err := newTestApp(tctx)
	h(assert.NoError(t, err))

	app.setFailing("add-email", true)
	err = app.Run("up")
	h(assert.EqualError(t, err,
		"migration 'add-email' at index 1 failed running up: add-email exploded"))
	var migErr *plan.MigrationError
	h(assert.ErrorAs(t, err, &migErr))
	h(assert.Contains(t, app.stdout.String(), "failed"))
	h(assert.Equal(t, []string{"create-users"}, readApplied(t, app)))

	app.setFailing("add-email", false)
	h(assert.NoError(t, app.Run("up")))
	h(assert.Equal(t,
		[]string{"up:create-users", "up:add-email", "up:seed-admin"}, app.commit.Events()))
	h(assert.Equal(t, []string{"create-users", "add-email", "seed-admin"}, readApplied(t, app)))
}

func TestAppList(t *testing.T) {
	t.Parallel()

	tctx, cancel, h := newTestContext(t, 5*time.Second)
	defer cancel()

	app, err := newTestApp(tctx)
	h(assert.NoError(t, err))

	h(assert.NoError(t, app.Run("up", "--count", "1")))
	h(assert.NoError(t, app.Run("ls")))

	stdout := app.stdout.String()
	appliedAt := timeNow.Local().Format(time.DateTime)
	for _, exp := range append(testMigrations, appliedAt, "yes", "no") {
		h(assert.Contains(t, stdout, exp))
	}

	h(assert.NoError(t, app.Run("list", "--output", "yaml")))
	var status []plan.Status
	h(assert.NoError(t, yaml.Unmarshal(app.stdout.Bytes(), &status)))
	h(assert.Len(t, status, 3))
	h(assert.True(t, status[0].Applied))
	h(assert.NotNil(t, status[0].AppliedAt))
	h(assert.True(t, timeNow.Equal(*status[0].AppliedAt)))
	h(assert.False(t, status[1].Applied))
	h(assert.False(t, status[2].Reversible))
}

func TestAppOutputGolden(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup []string
		args  []string
	}{
		{name: "up_json", args: []string{"up", "-o", "json"}},
		{name: "up_no_run_json", args: []string{"up", "--no-run", "-o", "json"}},
		{name: "down_json", setup: []string{"up", "--count", "2"}, args: []string{"down", "--all", "-o", "json"}},
		{name: "list_json", setup: []string{"up", "--count", "2"}, args: []string{"list", "-o", "json"}},
		{name: "up_empty_json", setup: []string{"up"}, args: []string{"up", "-o", "json"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tctx, cancel, h := newTestContext(t, 5*time.Second)
			defer cancel()

			app, err := newTestApp(tctx)
			h(assert.NoError(t, err))

			if len(tt.setup) > 0 {
				h(assert.NoError(t, app.Run(tt.setup...)))
			}
			h(assert.NoError(t, app.Run(tt.args...)))

			g := goldie.New(t,
				goldie.WithFixtureDir("testdata/golden"),
				goldie.WithNameSuffix(".golden"),
			)
			g.Assert(t, tt.name, app.stdout.Bytes())
		})
	}
}

func TestAppFailureJSON(t *testing.T) {
	t.Parallel()

	tctx, cancel, h := newTestContext(t, 5*time.Second)
	defer cancel()

	app, err := newTestApp(tctx)
	h(assert.NoError(t, err))

	app.setFailing("seed-admin", true)
	err = app.Run("up", "-o", "json")
	h(assert.Error(t, err))

	var report plan.Report
	h(assert.NoError(t, json.Unmarshal(app.stdout.Bytes(), &report)))
	h(assert.Len(t, report.Steps, 3))
	h(assert.Equal(t, plan.StepFailed, report.Steps[2].Status))
	h(assert.Contains(t, report.Steps[2].Error, "seed-admin exploded"))
	h(assert.Equal(t, err.Error(), report.Error))
}

func TestAppStateLocation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		files    map[string]string
		env      map[string]string
		args     []string
		expState string
		expErr   string
	}{
		{
			name:     "ok/default",
			args:     []string{"up"},
			expState: "/state.json",
		},
		{
			name:     "ok/flag",
			args:     []string{"--state", "/flag/state.json", "up"},
			expState: "/flag/state.json",
		},
		{
			name:     "ok/flag_file_url",
			args:     []string{"--state", "file:///url/state.json", "up"},
			expState: "/url/state.json",
		},
		{
			name:     "ok/env",
			env:      map[string]string{"MIGRATE_STATE": "/env/state.json"},
			args:     []string{"up"},
			expState: "/env/state.json",
		},
		{
			name:     "ok/flag_over_env",
			env:      map[string]string{"MIGRATE_STATE": "/env/state.json"},
			args:     []string{"--state", "/flag/state.json", "up"},
			expState: "/flag/state.json",
		},
		{
			name:     "ok/env_file",
			files:    map[string]string{"/.env": "# state\nMIGRATE_STATE=/dotenv/state.json\n"},
			args:     []string{"--env-file", "/.env", "up"},
			expState: "/dotenv/state.json",
		},
		{
			name:     "ok/env_over_env_file",
			files:    map[string]string{"/.env": "MIGRATE_STATE=/dotenv/state.json\n"},
			env:      map[string]string{"MIGRATE_STATE": "/env/state.json"},
			args:     []string{"--env-file", "/.env", "up"},
			expState: "/env/state.json",
		},
		{
			name:     "ok/config_json",
			files:    map[string]string{"/config.json": `{"state": "/cfg/state.json"}`},
			args:     []string{"up"},
			expState: "/cfg/state.json",
		},
		{
			name:     "ok/config_toml",
			files:    map[string]string{"/migrate.toml": "state = \"/toml/state.json\"\n"},
			args:     []string{"--config-file", "/migrate.toml", "up"},
			expState: "/toml/state.json",
		},
		{
			name:     "ok/env_over_config",
			files:    map[string]string{"/config.json": `{"state": "/cfg/state.json"}`},
			env:      map[string]string{"MIGRATE_STATE": "/env/state.json"},
			args:     []string{"up"},
			expState: "/env/state.json",
		},
		{
			name:   "err/env_file_missing",
			args:   []string{"--env-file", "/missing.env", "up"},
			expErr: "failed opening env file",
		},
		{
			name:   "err/config_invalid",
			files:  map[string]string{"/config.json": `{"state": `},
			args:   []string{"up"},
			expErr: "failed parsing configuration file",
		},
		{
			name:   "err/config_invalid_output",
			files:  map[string]string{"/config.json": `{"output": "xml"}`},
			args:   []string{"up"},
			expErr: "invalid configuration file '/config.json': invalid output format 'xml'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tctx, cancel, h := newTestContext(t, 5*time.Second)
			defer cancel()

			app, err := newTestApp(tctx)
			h(assert.NoError(t, err))

			for path, content := range tt.files {
				h(assert.NoError(t, vfs.WriteFile(app.fs, path, []byte(content), 0o644)))
			}
			for key, val := range tt.env {
				h(assert.NoError(t, app.env.Set(key, val)))
			}

			err = app.Run(tt.args...)
			if tt.expErr != "" {
				h(assert.ErrorContains(t, err, tt.expErr))
				return
			}

			h(assert.NoError(t, err))
			applied, err := file.New(app.fs, tt.expState).Applied(tctx)
			h(assert.NoError(t, err))
			h(assert.Equal(t, testMigrations, applied))
		})
	}
}

func TestAppConfigOutput(t *testing.T) {
	t.Parallel()

	tctx, cancel, h := newTestContext(t, 5*time.Second)
	defer cancel()

	app, err := newTestApp(tctx)
	h(assert.NoError(t, err))

	err = vfs.WriteFile(app.fs, "/config.yaml", []byte("output: json\n"), 0o644)
	h(assert.NoError(t, err))

	h(assert.NoError(t, app.Run("--config-file", "/config.yaml", "up", "--no-run")))
	var res plan.Resolution
	h(assert.NoError(t, json.Unmarshal(app.stdout.Bytes(), &res)))
	h(assert.Len(t, res.Steps, 3))

	// The flag takes precedence.
	h(assert.NoError(t, app.Run("--config-file", "/config.yaml", "-o", "table", "up", "--no-run")))
	h(assert.Error(t, json.Unmarshal(app.stdout.Bytes(), &res)))
}

func TestAppStateBackends(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		state  string
		expErr string
	}{
		{name: "ok/memory", state: "memory://"},
		{name: "ok/sqlite", state: "sqlite://file:app-backends?mode=memory&cache=shared"},
		{name: "err/unsupported_scheme", state: "ftp://host/state.json",
			expErr: "unsupported migration state URL scheme 'ftp'"},
		{name: "err/file_no_path", state: "file://",
			expErr: "file state URL has no path"},
		{name: "err/sqlite_no_path", state: "sqlite:",
			expErr: "SQLite state URL has no database path"},
		{name: "err/s3_no_bucket", state: "s3:///state.json",
			expErr: "object storage bucket is required"},
		{name: "err/s3_invalid_secure", state: "s3://bucket/state.json?secure=maybe",
			expErr: "invalid value of 'secure' in state URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tctx, cancel, h := newTestContext(t, 5*time.Second)
			defer cancel()

			app, err := newTestApp(tctx)
			h(assert.NoError(t, err))

			err = app.Run("--state", tt.state, "up")
			if tt.expErr != "" {
				h(assert.ErrorContains(t, err, tt.expErr))
				h(assert.Empty(t, app.commit.Events()))
				return
			}

			h(assert.NoError(t, err))
			h(assert.Len(t, app.commit.Events(), 3))
		})
	}
}

func TestAppUnlock(t *testing.T) {
	t.Parallel()

	tctx, cancel, h := newTestContext(t, 5*time.Second)
	defer cancel()

	app, err := newTestApp(tctx)
	h(assert.NoError(t, err))

	store := file.New(app.fs, "/state.json", state.WithTimeNow(timeNowFn))
	_, err = store.Lock(tctx)
	h(assert.NoError(t, err))

	err = app.Run("up")
	var lhErr *state.LockHeldError
	h(assert.ErrorAs(t, err, &lhErr))
	h(assert.NotNil(t, lhErr.Holder))
	h(assert.Empty(t, app.commit.Events()))

	h(assert.NoError(t, app.Run("unlock")))
	h(assert.Contains(t, app.stderr.String(), "released migration state lock"))

	h(assert.NoError(t, app.Run("up")))
	h(assert.Len(t, app.commit.Events(), 3))
}

func TestAppInvalidArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		args   []string
		expErr string
	}{
		{name: "err/no_command", args: []string{}, expErr: "failed parsing CLI arguments"},
		{name: "err/unknown_command", args: []string{"sideways"}, expErr: "failed parsing CLI arguments"},
		{name: "err/invalid_output", args: []string{"-o", "xml", "up"},
			expErr: "invalid output format 'xml'"},
		{name: "err/invalid_log_level", args: []string{"--log-level", "LOUD", "up"},
			expErr: "failed parsing CLI arguments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tctx, cancel, h := newTestContext(t, 5*time.Second)
			defer cancel()

			app, err := newTestApp(tctx)
			h(assert.NoError(t, err))

			err = app.Run(tt.args...)
			h(assert.ErrorContains(t, err, tt.expErr))
			h(assert.Empty(t, app.commit.Events()))
		})
	}
}

func TestNewNilPlanFunc(t *testing.T) {
	t.Parallel()

	_, err := New("migrate", nil)
	require.EqualError(t, err, "plan function is required")
}

func readApplied(t *testing.T, app *testApp) []string {
	t.Helper()

	applied, err := file.New(app.fs, "/state.json").Applied(context.Background())
	require.NoError(t, err)
	if applied == nil {
		applied = []string{}
	}

	return applied
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

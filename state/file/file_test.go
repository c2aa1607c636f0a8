package file_test

import (
	"testing"
	"time"

	"github.com/mandelsoft/vfs/pkg/memoryfs"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.hackfix.me/migrate/state"
	"go.hackfix.me/migrate/state/file"
	"go.hackfix.me/migrate/state/statetest"
)

var timeNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func timeNowFn() time.Time {
	return timeNow
}

func TestStoreConformance(t *testing.T) {
	t.Parallel()

	statetest.Run(t, func(*testing.T) state.Store {
		return file.New(memoryfs.New(), "/var/lib/app/state.json")
	})
}

func TestStoreDocument(t *testing.T) {
	t.Parallel()

	fs := memoryfs.New()
	s := file.New(fs, "/state/migrations.json", state.WithTimeNow(timeNowFn))
	ctx := t.Context()

	require.NoError(t, s.RecordApplied(ctx, "create-users"))
	require.NoError(t, s.RecordApplied(ctx, "add-surname"))

	data, err := vfs.ReadFile(fs, "/state/migrations.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"version": 1,
		"applied": [
			{"name": "create-users", "applied_at": "2025-01-01T00:00:00Z"},
			{"name": "add-surname", "applied_at": "2025-01-01T00:00:00Z"}
		]
	}`, string(data))

	_, err = fs.Stat("/state/migrations.json.tmp")
	assert.True(t, vfs.IsErrNotExist(err))

	// A new store over the same file sees the same state.
	records, err := file.New(fs, "/state/migrations.json").Records(ctx)
	require.NoError(t, err)
	assert.Equal(t, []state.Record{
		{Name: "create-users", AppliedAt: timeNow},
		{Name: "add-surname", AppliedAt: timeNow},
	}, records)
}

func TestBlobWrite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		writes []string
	}{
		{name: "ok/create", writes: []string{`{"a":1}`}},
		{name: "ok/replace_existing", writes: []string{`{"a":1}`, `{"a":2}`}},
		{name: "ok/replace_twice", writes: []string{`{"a":1}`, `{"a":2}`, `{"a":3}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fs := memoryfs.New()
			b := file.NewBlob(fs, "/state/migrations.json")
			for _, w := range tt.writes {
				require.NoError(t, b.Write(t.Context(), []byte(w)))
			}

			data, err := b.Read(t.Context())
			require.NoError(t, err)
			assert.Equal(t, tt.writes[len(tt.writes)-1], string(data))

			_, err = fs.Stat("/state/migrations.json.tmp")
			assert.True(t, vfs.IsErrNotExist(err))
		})
	}
}

func TestStoreRecordAfterRollback(t *testing.T) {
	t.Parallel()

	s := file.New(memoryfs.New(), "/state.json")
	ctx := t.Context()

	require.NoError(t, s.RecordApplied(ctx, "a"))
	require.NoError(t, s.RecordApplied(ctx, "b"))
	require.NoError(t, s.RecordRolledBack(ctx, "b"))
	require.NoError(t, s.RecordApplied(ctx, "c"))

	applied, err := s.Applied(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, applied)
}

func TestStoreCorrupt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		expErr  string
	}{
		{
			name:    "err/invalid_json",
			content: `{"version": 1, "applied": [`,
			expErr:  "failed decoding migration state",
		},
		{
			name:    "err/unknown_version",
			content: `{"version": 7, "applied": []}`,
			expErr:  "unsupported state version 7",
		},
		{
			name:    "err/duplicate_name",
			content: `{"version": 1, "applied": [{"name": "a"}, {"name": "a"}]}`,
			expErr:  "migration 'a' is recorded more than once",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fs := memoryfs.New()
			require.NoError(t, vfs.WriteFile(fs, "/state.json", []byte(tt.content), 0o644))

			_, err := file.New(fs, "/state.json").Applied(t.Context())
			var csErr *state.CorruptStateError
			require.ErrorAs(t, err, &csErr)
			assert.ErrorContains(t, err, tt.expErr)
			assert.Equal(t, tt.content, string(csErr.Payload))
		})
	}
}

func TestStoreStaleLock(t *testing.T) {
	t.Parallel()

	fs := memoryfs.New()
	s := file.New(fs, "/state.json", state.WithTimeNow(timeNowFn))
	ctx := t.Context()

	_, err := s.Lock(ctx)
	require.NoError(t, err)

	data, err := vfs.ReadFile(fs, "/state.json.lock")
	require.NoError(t, err)
	info, err := state.DecodeLockInfo(data)
	require.NoError(t, err)
	assert.NotEmpty(t, info.Token)
	assert.Equal(t, timeNow, info.AcquiredAt)

	// Simulate another process trying to run while the lock file exists.
	_, err = file.New(fs, "/state.json").Lock(ctx)
	var lhErr *state.LockHeldError
	require.ErrorAs(t, err, &lhErr)
	require.NotNil(t, lhErr.Holder)
	assert.Equal(t, info.Owner, lhErr.Holder.Owner)
	assert.ErrorContains(t, err, "migration state is locked by "+info.Owner)

	require.NoError(t, s.ForceUnlock(ctx))
	_, err = fs.Stat("/state.json.lock")
	assert.True(t, vfs.IsErrNotExist(err))
}

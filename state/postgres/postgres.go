// Package postgres implements a migration state store kept in a PostgreSQL
// table, guarded by a session-level advisory lock.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	//nolint:revive,nolintlint // Idiomatic way of loading DB libraries.
	_ "github.com/jackc/pgx/v5/stdlib"

	"go.hackfix.me/migrate/state"
)

// DefaultTable is the name of the state table if none is configured.
const DefaultTable = "_migrations"

const uniqueViolation = "23505"

var identRx = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store keeps the applied list in a PostgreSQL table.
type Store struct {
	db          *sql.DB
	ownDB       bool
	table       string
	lockKey     int64
	pingTimeout time.Duration
	timeNow     func() time.Time
}

var (
	_ state.Store         = (*Store)(nil)
	_ state.RecordLister  = (*Store)(nil)
	_ state.ForceUnlocker = (*Store)(nil)
)

// Option is a function that allows configuring the Store.
type Option func(*Store) error

// WithTable sets the name of the state table. The advisory lock key is
// derived from it, so stores using different tables don't block each other.
func WithTable(name string) Option {
	return func(s *Store) error {
		if !identRx.MatchString(name) {
			return fmt.Errorf("invalid state table name '%s'", name)
		}
		s.table = name
		return nil
	}
}

// WithPingTimeout sets the maximum time to wait for the database to respond
// when opening the store.
func WithPingTimeout(timeout time.Duration) Option {
	return func(s *Store) error {
		if timeout <= 0 {
			return errors.New("ping timeout must be positive")
		}
		s.pingTimeout = timeout
		return nil
	}
}

// WithTimeNow sets the function used to timestamp records.
func WithTimeNow(timeNowFn func() time.Time) Option {
	return func(s *Store) error {
		s.timeNow = timeNowFn
		return nil
	}
}

// DefaultOptions returns the default Store options.
func DefaultOptions() []Option {
	return []Option{
		WithTable(DefaultTable),
		WithPingTimeout(5 * time.Second),
		WithTimeNow(time.Now),
	}
}

// Open connects to the database at url and creates the state table if it
// doesn't exist. The connection is closed by Close.
func Open(ctx context.Context, url string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed opening PostgreSQL database: %w", err)
	}

	s, err := New(ctx, db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownDB = true

	return s, nil
}

// New returns a Store that uses an existing database handle, and creates the
// state table if it doesn't exist. Close doesn't close db.
func New(ctx context.Context, db *sql.DB, opts ...Option) (*Store, error) {
	s := &Store{db: db}

	opts = append(DefaultOptions(), opts...)
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if db == nil {
		return nil, errors.New("database handle is required")
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte("migrate:" + s.table))
	s.lockKey = int64(h.Sum64()) //nolint:gosec // Wrapping is fine for a lock key.

	pingCtx, cancel := context.WithTimeout(ctx, s.pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("failed connecting to PostgreSQL database: %w", err)
	}

	_, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		position   BIGINT PRIMARY KEY,
		name       TEXT NOT NULL UNIQUE,
		applied_at TIMESTAMPTZ NOT NULL
	)`, s.ident()))
	if err != nil {
		return nil, fmt.Errorf("failed creating %s table: %w", s.table, err)
	}

	return s, nil
}

// Close closes the database connection, if it was opened by Open.
func (s *Store) Close() error {
	if !s.ownDB {
		return nil
	}
	return s.db.Close() //nolint:wrapcheck // This is fine.
}

// Drop removes the state table and everything recorded in it.
func (s *Store) Drop(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.ident())); err != nil {
		return fmt.Errorf("failed dropping %s table: %w", s.table, err)
	}
	return nil
}

// Applied implements the state.Store interface.
func (s *Store) Applied(ctx context.Context) ([]string, error) {
	records, err := s.Records(ctx)
	if err != nil {
		return nil, err
	}
	return state.Names(records), nil
}

// Records implements the state.RecordLister interface.
func (s *Store) Records(ctx context.Context) ([]state.Record, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT name, applied_at FROM %s ORDER BY position ASC`, s.ident()))
	if err != nil {
		return nil, fmt.Errorf("failed querying migration state: %w", err)
	}
	defer rows.Close()

	records := []state.Record{}
	for rows.Next() {
		var r state.Record
		if err = rows.Scan(&r.Name, &r.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed scanning %s data: %w", s.table, err)
		}
		r.AppliedAt = r.AppliedAt.UTC()
		records = append(records, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed querying migration state: %w", err)
	}

	return records, nil
}

// RecordApplied implements the state.Store interface.
func (s *Store) RecordApplied(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %[1]s (position, name, applied_at)
		VALUES ((SELECT COALESCE(MAX(position), 0) + 1 FROM %[1]s), $1, $2)`, s.ident()),
		name, s.timeNow().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return &state.DuplicateRecordError{Name: name}
		}
		return fmt.Errorf("failed recording migration '%s': %w", name, err)
	}

	return nil
}

// RecordRolledBack implements the state.Store interface.
func (s *Store) RecordRolledBack(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		position int64
		tail     string
	)
	err = tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT position, name FROM %s ORDER BY position DESC LIMIT 1 FOR UPDATE`, s.ident()),
	).Scan(&position, &tail)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return &state.OrderingError{Name: name}
	case err != nil:
		return fmt.Errorf("failed querying migration state: %w", err)
	case tail != name:
		return &state.OrderingError{Name: name, Tail: tail}
	}

	if _, err = tx.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE position = $1`, s.ident()), position); err != nil {
		return fmt.Errorf("failed removing migration '%s': %w", name, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed committing transaction: %w", err)
	}

	return nil
}

// Lock implements the state.Store interface. The advisory lock is tied to a
// dedicated connection, which is kept out of the pool until Unlock.
//
//nolint:ireturn // Intentional, this implements the state.Store interface.
func (s *Store) Lock(ctx context.Context) (state.Lock, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed acquiring database connection: %w", err)
	}

	var ok bool
	err = conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, s.lockKey).Scan(&ok)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed acquiring lock: %w", err)
	}
	if !ok {
		_ = conn.Close()
		return nil, &state.LockHeldError{Holder: s.holder(ctx)}
	}

	return &advisoryLock{conn: conn, key: s.lockKey}, nil
}

// ForceUnlock implements the state.ForceUnlocker interface. It terminates the
// backend session holding the advisory lock, which releases it.
func (s *Store) ForceUnlock(ctx context.Context) error {
	classID, objID := s.lockIDs()
	_, err := s.db.ExecContext(ctx, `
		SELECT pg_terminate_backend(pid) FROM pg_locks
		WHERE locktype = 'advisory' AND granted
			AND classid::bigint = $1 AND objid::bigint = $2 AND objsubid = 1`,
		classID, objID)
	if err != nil {
		return fmt.Errorf("failed terminating lock holder: %w", err)
	}
	return nil
}

func (s *Store) holder(ctx context.Context) *state.LockInfo {
	classID, objID := s.lockIDs()
	var (
		pid     int64
		app     string
		started time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT l.pid, COALESCE(a.application_name, ''), a.backend_start
		FROM pg_locks l JOIN pg_stat_activity a ON a.pid = l.pid
		WHERE l.locktype = 'advisory' AND l.granted
			AND l.classid::bigint = $1 AND l.objid::bigint = $2 AND l.objsubid = 1`,
		classID, objID).Scan(&pid, &app, &started)
	if err != nil {
		return nil
	}

	owner := fmt.Sprintf("backend pid %d", pid)
	if app != "" {
		owner = fmt.Sprintf("%s (%s)", owner, app)
	}

	// pg_locks doesn't record when a lock was granted. The holder's session
	// start is the closest bound available, since the lock is session-level.
	return &state.LockInfo{Owner: owner, AcquiredAt: started.UTC()}
}

// lockIDs returns the key halves as they appear in pg_locks.
func (s *Store) lockIDs() (int64, int64) {
	key := uint64(s.lockKey) //nolint:gosec // Bit reinterpretation is intended.
	return int64(key >> 32), int64(key & 0xffffffff)
}

func (s *Store) ident() string {
	return pgx.Identifier{s.table}.Sanitize()
}

type advisoryLock struct {
	conn *sql.Conn
	key  int64
}

func (l *advisoryLock) Unlock(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		_ = l.conn.Close()
		l.conn = nil
	}()

	var ok bool
	err := l.conn.QueryRowContext(ctx, `SELECT pg_advisory_unlock($1)`, l.key).Scan(&ok)
	if err != nil {
		return fmt.Errorf("failed releasing lock: %w", err)
	}
	if !ok {
		return state.ErrLockLost
	}

	return nil
}

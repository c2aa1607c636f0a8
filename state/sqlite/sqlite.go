// Package sqlite implements a migration state store kept in SQLite tables.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	//nolint:revive,nolintlint // Idiomatic way of loading DB libraries.
	_ "github.com/glebarez/go-sqlite"

	"go.hackfix.me/migrate/state"
)

const (
	stateTable = "_migrations"
	lockTable  = "_migrations_lock"
)

// Store keeps the applied list in a SQLite table, and the run lock as a single
// row in a separate table.
type Store struct {
	db      *sql.DB
	path    string
	timeNow func() time.Time
}

var (
	_ state.Store         = (*Store)(nil)
	_ state.RecordLister  = (*Store)(nil)
	_ state.ForceUnlocker = (*Store)(nil)
)

// Option is a function that allows configuring the Store.
type Option func(*Store)

// WithTimeNow sets the function used to timestamp records and locks.
func WithTimeNow(timeNowFn func() time.Time) Option {
	return func(s *Store) {
		s.timeNow = timeNowFn
	}
}

// Open opens the SQLite database at path and creates the state tables if they
// don't exist.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	sqliteDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed opening SQLite database: %w", err)
	}

	if strings.Contains(path, "mode=memory") || strings.Contains(path, ":memory:") {
		// See https://github.com/mattn/go-sqlite3#faq
		sqliteDB.SetMaxIdleConns(10)
		sqliteDB.SetConnMaxLifetime(time.Duration(math.Inf(1)))
	}

	s := &Store{db: sqliteDB, path: path, timeNow: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if err = s.init(ctx); err != nil {
		_ = sqliteDB.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+stateTable+` (
		position   INTEGER PRIMARY KEY,
		name       TEXT NOT NULL UNIQUE,
		applied_at TIMESTAMP NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed creating %s table: %w", stateTable, err)
	}

	_, err = s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+lockTable+` (
		id          INTEGER PRIMARY KEY CHECK (id = 1),
		token       TEXT NOT NULL,
		owner       TEXT NOT NULL,
		acquired_at TIMESTAMP NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed creating %s table: %w", lockTable, err)
	}

	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close() //nolint:wrapcheck // This is fine.
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
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, applied_at FROM `+stateTable+` ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed querying migration state: %w", err)
	}
	defer rows.Close()

	records := []state.Record{}
	for rows.Next() {
		var r state.Record
		if err = rows.Scan(&r.Name, &r.AppliedAt); err != nil {
			return nil, &ScanError{Table: stateTable, Err: err}
		}
		records = append(records, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed querying migration state: %w", err)
	}

	return records, nil
}

// RecordApplied implements the state.Store interface.
func (s *Store) RecordApplied(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+stateTable+` (position, name, applied_at)
		VALUES ((SELECT COALESCE(MAX(position), 0) + 1 FROM `+stateTable+`), ?, ?)`,
		name, s.timeNow().UTC())
	if err != nil {
		if isConstraintErr(err) {
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
	err = tx.QueryRowContext(ctx,
		`SELECT position, name FROM `+stateTable+` ORDER BY position DESC LIMIT 1`,
	).Scan(&position, &tail)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return &state.OrderingError{Name: name}
	case err != nil:
		return &ScanError{Table: stateTable, Err: err}
	case tail != name:
		return &state.OrderingError{Name: name, Tail: tail}
	}

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM `+stateTable+` WHERE position = ?`, position); err != nil {
		return fmt.Errorf("failed removing migration '%s': %w", name, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed committing transaction: %w", err)
	}

	return nil
}

// Lock implements the state.Store interface.
//
//nolint:ireturn // Intentional, this implements the state.Store interface.
func (s *Store) Lock(ctx context.Context) (state.Lock, error) {
	info, err := state.NewLockInfo(s.timeNow())
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO `+lockTable+` (id, token, owner, acquired_at) VALUES (1, ?, ?, ?)`,
		info.Token, info.Owner, info.AcquiredAt)
	if err != nil {
		if isConstraintErr(err) {
			return nil, &state.LockHeldError{Holder: s.holder(ctx)}
		}
		return nil, fmt.Errorf("failed acquiring lock: %w", err)
	}

	return &dbLock{store: s, token: info.Token}, nil
}

// ForceUnlock implements the state.ForceUnlocker interface.
func (s *Store) ForceUnlock(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM `+lockTable); err != nil {
		return fmt.Errorf("failed removing lock: %w", err)
	}
	return nil
}

func (s *Store) holder(ctx context.Context) *state.LockInfo {
	info := &state.LockInfo{}
	err := s.db.QueryRowContext(ctx,
		`SELECT token, owner, acquired_at FROM `+lockTable+` WHERE id = 1`,
	).Scan(&info.Token, &info.Owner, &info.AcquiredAt)
	if err != nil {
		return nil
	}
	return info
}

type dbLock struct {
	store    *Store
	token    string
	released bool
}

func (l *dbLock) Unlock(ctx context.Context) error {
	if l.released {
		return nil
	}

	res, err := l.store.db.ExecContext(ctx,
		`DELETE FROM `+lockTable+` WHERE id = 1 AND token = ?`, l.token)
	if err != nil {
		return fmt.Errorf("failed releasing lock: %w", err)
	}
	l.released = true

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed releasing lock: %w", err)
	}
	if n == 0 {
		return state.ErrLockLost
	}

	return nil
}

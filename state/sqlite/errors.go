package sqlite

import (
	"errors"
	"fmt"

	"github.com/glebarez/go-sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ScanError represents an error that occurred while scanning database results
// into Go types.
type ScanError struct {
	Table string
	Err   error
}

// Error returns a string representation of the error.
func (e *ScanError) Error() string {
	return fmt.Sprintf("failed scanning %s data: %s", e.Table, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScanError) Unwrap() error {
	return e.Err
}

func isConstraintErr(err error) bool {
	var sqlErr *sqlite.Error
	if !errors.As(err, &sqlErr) {
		return false
	}

	switch sqlErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}

	return false
}

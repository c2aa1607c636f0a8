package plan

import (
	"errors"
	"fmt"
	"strings"

	"go.hackfix.me/migrate/state"
)

// DuplicateNameError is returned by Build when two migrations share a name.
type DuplicateNameError struct {
	Name       string
	Index      int
	FirstIndex int
}

// Error returns a string representation of the error.
func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate migration name '%s' at index %d, first registered at index %d",
		e.Name, e.Index, e.FirstIndex)
}

// EmptyPlanError is returned by Build when no migrations were added.
type EmptyPlanError struct{}

// Error returns a string representation of the error.
func (e *EmptyPlanError) Error() string {
	return "plan has no migrations"
}

// InvalidMigrationError is returned by Build for a migration with an empty
// name or a nil implementation.
type InvalidMigrationError struct {
	Name   string
	Index  int
	Reason string
}

// Error returns a string representation of the error.
func (e *InvalidMigrationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("invalid migration at index %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("invalid migration '%s' at index %d: %s", e.Name, e.Index, e.Reason)
}

// InvalidPlanError is returned by Build when the plan is missing a required
// dependency.
type InvalidPlanError struct {
	Reason string
}

// Error returns a string representation of the error.
func (e *InvalidPlanError) Error() string {
	return "invalid plan: " + e.Reason
}

// InvalidSelectionError is returned for a malformed Selection.
type InvalidSelectionError struct {
	Selection Selection
	Reason    string
}

// Error returns a string representation of the error.
func (e *InvalidSelectionError) Error() string {
	return fmt.Sprintf("invalid selection '%s': %s", e.Selection, e.Reason)
}

// StateDriftError is returned when the applied list in the state store isn't a
// prefix of the plan order.
type StateDriftError struct {
	// Index is the position in the applied list where the drift starts.
	Index int
	// Recorded is the name found in the applied list at Index.
	Recorded string
	// Expected is the plan's migration at Index, or empty if the applied list
	// is longer than the plan.
	Expected string
	// Unknown is true if Recorded isn't part of the plan at all.
	Unknown bool
}

// Error returns a string representation of the error.
func (e *StateDriftError) Error() string {
	switch {
	case e.Unknown:
		return fmt.Sprintf("migration state drift: applied migration '%s' at index %d is not part of the plan",
			e.Recorded, e.Index)
	case e.Expected == "":
		return fmt.Sprintf("migration state drift: applied migration '%s' at index %d is beyond the end of the plan",
			e.Recorded, e.Index)
	}
	return fmt.Sprintf("migration state drift: applied migration at index %d is '%s', but the plan expects '%s'",
		e.Index, e.Recorded, e.Expected)
}

// TargetNotFoundError is returned when a selection targets a migration that
// isn't part of the plan.
type TargetNotFoundError struct {
	Name      string
	Available []string
}

// Error returns a string representation of the error.
func (e *TargetNotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("migration '%s' not found", e.Name)
	}
	return fmt.Sprintf("migration '%s' not found; available migrations: %s",
		e.Name, strings.Join(e.Available, ", "))
}

// IrreversibleMigrationError is returned when a rollback selection includes a
// migration without a reverse operation. Nothing is run in this case.
type IrreversibleMigrationError struct {
	Name  string
	Index int
}

// Error returns a string representation of the error.
func (e *IrreversibleMigrationError) Error() string {
	return fmt.Sprintf("migration '%s' at index %d can't be rolled back", e.Name, e.Index)
}

// DryRunUnsupportedError is returned when running in NoCommit mode with a
// provider that can't supply a no-commit context.
type DryRunUnsupportedError struct{}

// Error returns a string representation of the error.
func (e *DryRunUnsupportedError) Error() string {
	return "the context provider doesn't support no-commit mode"
}

// ContextError is returned when the provider fails to create a context.
type ContextError struct {
	Mode RunMode
	Err  error
}

// Error returns a string representation of the error.
func (e *ContextError) Error() string {
	return fmt.Sprintf("failed creating %s context: %s", e.Mode, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ContextError) Unwrap() error {
	return e.Err
}

// MigrationError is returned when a migration's own operation fails.
type MigrationError struct {
	Name      string
	Index     int
	Direction Direction
	Err       error
}

// Error returns a string representation of the error.
func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration '%s' at index %d failed running %s: %s",
		e.Name, e.Index, e.Direction, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *MigrationError) Unwrap() error {
	return e.Err
}

// StateRecordError is returned when a migration ran successfully, but its
// result couldn't be recorded in the state store. The state store no longer
// reflects reality, and needs manual intervention.
type StateRecordError struct {
	Name      string
	Index     int
	Direction Direction
	Err       error
}

// Error returns a string representation of the error.
func (e *StateRecordError) Error() string {
	return fmt.Sprintf("migration '%s' at index %d ran %s successfully, but recording it failed; "+
		"the migration state must be fixed manually: %s", e.Name, e.Index, e.Direction, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *StateRecordError) Unwrap() error {
	return e.Err
}

// UnlockError is returned when the state lock couldn't be released after a run.
type UnlockError struct {
	Err error
}

// Error returns a string representation of the error.
func (e *UnlockError) Error() string {
	return fmt.Sprintf("failed releasing migration state lock: %s", e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *UnlockError) Unwrap() error {
	return e.Err
}

// IsBuildError reports whether err is an error that's detected before any
// migration runs, and which requires no cleanup.
func IsBuildError(err error) bool {
	var (
		dupErr    *DuplicateNameError
		emptyErr  *EmptyPlanError
		invMigErr *InvalidMigrationError
		invPlnErr *InvalidPlanError
		invSelErr *InvalidSelectionError
		driftErr  *StateDriftError
		tnfErr    *TargetNotFoundError
		irrErr    *IrreversibleMigrationError
		dryErr    *DryRunUnsupportedError
		lhErr     *state.LockHeldError
	)
	return errors.As(err, &dupErr) ||
		errors.As(err, &emptyErr) ||
		errors.As(err, &invMigErr) ||
		errors.As(err, &invPlnErr) ||
		errors.As(err, &invSelErr) ||
		errors.As(err, &driftErr) ||
		errors.As(err, &tnfErr) ||
		errors.As(err, &irrErr) ||
		errors.As(err, &dryErr) ||
		errors.As(err, &lhErr)
}

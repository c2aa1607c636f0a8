package errors

import (
	"errors"

	"go.hackfix.me/migrate/plan"
	"go.hackfix.me/migrate/state"
)

// fromPlan converts the migration plan errors that carry useful details into
// a StructuredError. It returns nil for any other error.
func fromPlan(err error) *StructuredError {
	var (
		migErr   *plan.MigrationError
		recErr   *plan.StateRecordError
		driftErr *plan.StateDriftError
		irrErr   *plan.IrreversibleMigrationError
		tnfErr   *plan.TargetNotFoundError
		ctxErr   *plan.ContextError
		lhErr    *state.LockHeldError
	)

	switch {
	case errors.As(err, &migErr):
		return NewWithCause("migration failed", migErr.Err,
			"migration", migErr.Name, "index", migErr.Index, "direction", migErr.Direction.String())
	case errors.As(err, &recErr):
		return NewWithCause("migration ran but recording it failed; the migration state must be fixed manually",
			recErr.Err,
			"migration", recErr.Name, "index", recErr.Index, "direction", recErr.Direction.String())
	case errors.As(err, &driftErr):
		fields := []any{"index", driftErr.Index, "recorded", driftErr.Recorded}
		if driftErr.Expected != "" {
			fields = append(fields, "expected", driftErr.Expected)
		}
		return NewWith("migration state doesn't match the plan", fields...)
	case errors.As(err, &irrErr):
		return NewWith("migration can't be rolled back", "migration", irrErr.Name, "index", irrErr.Index)
	case errors.As(err, &tnfErr):
		return NewWith("migration not found", "migration", tnfErr.Name, "available", tnfErr.Available)
	case errors.As(err, &ctxErr):
		return NewWithCause("failed creating migration context", ctxErr.Err, "mode", ctxErr.Mode.String())
	case errors.As(err, &lhErr):
		if lhErr.Holder == nil {
			return nil
		}
		fields := []any{"owner", lhErr.Holder.Owner}
		if !lhErr.Holder.AcquiredAt.IsZero() {
			fields = append(fields, "since", lhErr.Holder.AcquiredAt)
		}
		return NewWith("migration state is locked by another run", fields...)
	}

	return nil
}

package plan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Exec runs the migrations selected by sel in the given mode.
//
// The state lock is held for the whole run, in both modes. Migrations run
// sequentially, and in Commit mode each one is recorded before the next one
// starts. The run stops at the first failure. The returned Report is never
// nil, and describes every migration that was attempted.
func (p *Plan[C]) Exec(ctx context.Context, sel Selection, mode RunMode) (report *Report, err error) {
	report = &Report{
		RunID:     p.newID(),
		Selection: sel.String(),
		Direction: sel.Direction(),
		Mode:      mode,
		Steps:     []StepResult{},
	}
	defer func() { report.setErr(err) }()

	logger := p.logger.With("run_id", report.RunID, "mode", mode.String())

	lock, err := p.store.Lock(ctx)
	if err != nil {
		return report, fmt.Errorf("failed acquiring migration state lock: %w", err)
	}
	defer func() {
		if uerr := lock.Unlock(context.WithoutCancel(ctx)); uerr != nil {
			err = errors.Join(err, &UnlockError{Err: uerr})
		}
	}()

	applied, err := p.store.Applied(ctx)
	if err != nil {
		return report, fmt.Errorf("failed reading migration state: %w", err)
	}

	res, err := Resolve(p.Names(), applied, sel, p.Reversible)
	if err != nil {
		return report, err
	}
	if res.Empty() {
		if mode == NoCommit {
			if err = p.checkNoCommit(ctx); err != nil {
				return report, err
			}
		}
		logger.Info("no migrations to run", "selection", sel.String())
		return report, nil
	}

	c, err := p.newContext(ctx, mode)
	if err != nil {
		return report, err
	}
	if closer, ok := any(c).(io.Closer); ok {
		defer func() {
			if cerr := closer.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("failed closing %s context: %w", mode, cerr))
			}
		}()
	}

	logger.Debug("running migrations",
		"selection", sel.String(), "direction", res.Direction.String(), "count", len(res.Steps))

	for _, step := range res.Steps {
		if err = ctx.Err(); err != nil {
			logger.Warn("run interrupted", "next_migration", step.Name)
			return report, fmt.Errorf("run interrupted before migration '%s': %w", step.Name, err)
		}

		result, serr := p.runStep(ctx, logger, c, step, res.Direction, mode)
		report.Steps = append(report.Steps, result)
		if serr != nil {
			return report, serr
		}
	}

	logger.Info("migrations completed",
		"selection", sel.String(), "direction", res.Direction.String(), "count", len(res.Steps))

	return report, nil
}

func (p *Plan[C]) runStep(
	ctx context.Context, logger *slog.Logger, c C, step Step, dir Direction, mode RunMode,
) (StepResult, error) {
	logger = logger.With("migration", step.Name, "index", step.Index, "direction", dir.String())
	result := StepResult{Index: step.Index, Name: step.Name, Direction: dir}

	logger.Info("running migration")

	m := p.entries[step.Index].migration
	start := p.timeNow()
	var err error
	if dir == Reverse {
		// Reversibility is checked during resolution.
		err = m.(Reversible[C]).Down(ctx, c) //nolint:forcetypeassert // See above.
	} else {
		err = m.Up(ctx, c)
	}
	result.Duration = p.timeNow().Sub(start)

	if err != nil {
		merr := &MigrationError{Name: step.Name, Index: step.Index, Direction: dir, Err: err}
		result.Status = StepFailed
		result.setErr(merr)
		logger.Error("migration failed", "error", err)
		return result, merr
	}

	if mode == Commit {
		if rerr := p.record(ctx, step.Name, dir); rerr != nil {
			serr := &StateRecordError{Name: step.Name, Index: step.Index, Direction: dir, Err: rerr}
			result.Status = StepUnrecorded
			result.setErr(serr)
			logger.Error("failed recording migration; the migration state must be fixed manually",
				"error", rerr)
			return result, serr
		}
	}

	result.Status = StepSucceeded
	logger.Info("migration completed", "duration", result.Duration)

	return result, nil
}

// checkNoCommit fails with DryRunUnsupportedError if the provider can't run
// migrations without committing them. A context it returns is released
// right away.
func (p *Plan[C]) checkNoCommit(ctx context.Context) error {
	c, err := p.newContext(ctx, NoCommit)
	if err != nil {
		return err
	}
	if closer, ok := any(c).(io.Closer); ok {
		if cerr := closer.Close(); cerr != nil {
			return fmt.Errorf("failed closing %s context: %w", NoCommit, cerr)
		}
	}
	return nil
}

func (p *Plan[C]) record(ctx context.Context, name string, dir Direction) error {
	// The migration already had its effect, so recording it must not be
	// skipped because the run was cancelled in the meantime.
	ctx = context.WithoutCancel(ctx)
	if dir == Reverse {
		return p.store.RecordRolledBack(ctx, name)
	}
	return p.store.RecordApplied(ctx, name)
}

func (p *Plan[C]) newContext(ctx context.Context, mode RunMode) (C, error) {
	if mode == NoCommit {
		c, ok, err := p.provider.NoCommitContext(ctx)
		if err != nil {
			return c, &ContextError{Mode: mode, Err: err}
		}
		if !ok {
			return c, &DryRunUnsupportedError{}
		}
		return c, nil
	}

	c, err := p.provider.CommitContext(ctx)
	if err != nil {
		return c, &ContextError{Mode: mode, Err: err}
	}
	return c, nil
}

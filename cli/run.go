package cli

import (
	"errors"
	"fmt"

	actx "go.hackfix.me/migrate/app/context"
	"go.hackfix.me/migrate/plan"
)

// RunFlags are the flags shared by the commands that run migrations.
type RunFlags struct {
	NoCommit bool `kong:"xor='mode',help='Run migrations without committing their effects, and without recording them.'"`
	NoRun    bool `kong:"xor='mode',help='Only print the migrations that would run.'"`
}

func (f RunFlags) run(appCtx *actx.Context, out OutputFormat, sel plan.Selection) error {
	if f.NoRun {
		res, err := appCtx.Plan.Resolve(appCtx.Ctx, sel)
		if err != nil {
			return err //nolint:wrapcheck // Plan errors are descriptive enough.
		}
		return renderResolution(appCtx.Stdout, out, res)
	}

	mode := plan.Commit
	if f.NoCommit {
		mode = plan.NoCommit
	}

	report, err := appCtx.Plan.Exec(appCtx.Ctx, sel, mode)
	if report != nil {
		if rerr := renderReport(appCtx.Stdout, out, report); rerr != nil {
			return errors.Join(err, rerr)
		}
	}

	return err //nolint:wrapcheck // Plan errors are descriptive enough.
}

func countSelection(count *int, sel func(int) plan.Selection) (plan.Selection, error) {
	if *count < 1 {
		return plan.Selection{}, fmt.Errorf("invalid count %d: must be at least 1", *count)
	}
	return sel(*count), nil
}

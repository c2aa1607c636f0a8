package cli

import (
	actx "go.hackfix.me/migrate/app/context"
)

// List is the list command.
type List struct{}

// Run the list command.
func (c *List) Run(appCtx *actx.Context, out OutputFormat) error {
	status, err := appCtx.Plan.Status(appCtx.Ctx)
	if err != nil {
		return err //nolint:wrapcheck // Plan errors are descriptive enough.
	}

	return renderStatus(appCtx.Stdout, out, status)
}

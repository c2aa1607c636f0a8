package cli

import (
	actx "go.hackfix.me/migrate/app/context"
	"go.hackfix.me/migrate/plan"
)

// Up is the up command.
type Up struct {
	Count *int   `kong:"xor='bound',placeholder='N',help='Apply only the next N pending migrations.'"`
	To    string `kong:"xor='bound',placeholder='NAME',help='Apply pending migrations up to and including NAME.'"`

	RunFlags `kong:"embed"`
}

// Run the up command. Without a bound, all pending migrations are applied.
func (c *Up) Run(appCtx *actx.Context, out OutputFormat) error {
	sel := plan.ApplyAll()
	switch {
	case c.Count != nil:
		var err error
		if sel, err = countSelection(c.Count, plan.ApplyNext); err != nil {
			return err
		}
	case c.To != "":
		sel = plan.ApplyTo(c.To)
	}

	return c.run(appCtx, out, sel)
}

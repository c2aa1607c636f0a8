package cli

import (
	actx "go.hackfix.me/migrate/app/context"
	"go.hackfix.me/migrate/plan"
)

// Down is the down command. A bound is required, so that all migrations aren't
// rolled back by accident.
type Down struct {
	Count *int   `kong:"xor='bound',required,placeholder='N',help='Roll back the last N applied migrations.'"`
	To    string `kong:"xor='bound',required,placeholder='NAME',help='Roll back applied migrations down to and including NAME.'"`
	All   bool   `kong:"xor='bound',required,help='Roll back all applied migrations.'"`

	RunFlags `kong:"embed"`
}

// Run the down command.
func (c *Down) Run(appCtx *actx.Context, out OutputFormat) error {
	var sel plan.Selection
	switch {
	case c.Count != nil:
		var err error
		if sel, err = countSelection(c.Count, plan.RollbackLast); err != nil {
			return err
		}
	case c.To != "":
		sel = plan.RollbackTo(c.To)
	default:
		sel = plan.RollbackAll()
	}

	return c.run(appCtx, out, sel)
}

package cli

import (
	"errors"
	"fmt"

	actx "go.hackfix.me/migrate/app/context"
	"go.hackfix.me/migrate/state"
)

// Unlock is the unlock command.
type Unlock struct{}

// Run the unlock command.
func (c *Unlock) Run(appCtx *actx.Context, _ OutputFormat) error {
	fu, ok := appCtx.Store.(state.ForceUnlocker)
	if !ok {
		return errors.New("the migration state backend doesn't support force unlocking")
	}

	if err := fu.ForceUnlock(appCtx.Ctx); err != nil {
		return fmt.Errorf("failed releasing migration state lock: %w", err)
	}

	appCtx.Logger.Info("released migration state lock")

	return nil
}

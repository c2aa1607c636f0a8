package main

import (
	"log/slog"
	"os"

	"github.com/mandelsoft/vfs/pkg/osfs"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"go.hackfix.me/migrate/app"
	actx "go.hackfix.me/migrate/app/context"
	aerrors "go.hackfix.me/migrate/app/errors"
	"go.hackfix.me/migrate/example/users"
	"go.hackfix.me/migrate/plan"
)

const (
	envUsersFile     = "MIGRATE_USERS_FILE"
	defaultUsersFile = "./database.json"
)

func main() {
	a, err := app.New("migrate-users", newPlan,
		app.WithEnv(osEnv{}),
		app.WithFDs(
			os.Stdin,
			colorable.NewColorable(os.Stdout),
			colorable.NewColorable(os.Stderr),
		),
		app.WithFS(osfs.New()),
		app.WithLogger(
			isatty.IsTerminal(os.Stdout.Fd()),
			isatty.IsTerminal(os.Stderr.Fd()),
		),
	)
	if err != nil {
		aerrors.Log(slog.Default(), err)
		os.Exit(1)
	}
	if err = a.Run(os.Args[1:]); err != nil {
		aerrors.Log(slog.Default(), err)
		os.Exit(1)
	}
}

func newPlan(appCtx *actx.Context) (plan.Runner, error) {
	path := actx.Getenv(appCtx.Env, envUsersFile)
	if path == "" {
		path = defaultUsersFile
	}

	p, err := users.NewPlan(appCtx.FS, path, appCtx.Store, appCtx.Logger,
		plan.WithTimeNow(appCtx.TimeNow))
	if err != nil {
		return nil, err //nolint:wrapcheck // Build errors are descriptive enough.
	}

	return p, nil
}

type osEnv struct{}

var _ actx.Environment = &osEnv{}

func (e osEnv) Get(key string) string {
	return os.Getenv(key)
}

func (e osEnv) Set(key, val string) error {
	return os.Setenv(key, val)
}

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/mandelsoft/vfs/pkg/memoryfs"

	"go.hackfix.me/migrate/app/config"
	actx "go.hackfix.me/migrate/app/context"
	"go.hackfix.me/migrate/cli"
	"go.hackfix.me/migrate/plan"
)

// envState is the environment variable consulted for the state backend URL
// when it isn't set via the CLI. It's read from the application environment,
// so it can also be set in an env file.
const envState = "MIGRATE_STATE"

// PlanFunc builds the migration plan of the application. It's called after the
// state store is opened, which is available as appCtx.Store.
type PlanFunc func(appCtx *actx.Context) (plan.Runner, error)

// App is the application.
type App struct {
	name   string
	ctx    *actx.Context
	cli    *cli.CLI
	planFn PlanFunc

	configFilePath string
	defaultState   string
	// the logging level is set via the CLI, if the app was initialized with the
	// WithLogger option.
	logLevel *slog.LevelVar
}

// New initializes a new application that runs the migration plan built by
// planFn.
func New(name string, planFn PlanFunc, opts ...Option) (*App, error) {
	if planFn == nil {
		return nil, errors.New("plan function is required")
	}

	defaultCtx := &actx.Context{
		Ctx:     context.Background(),
		FS:      memoryfs.New(),
		Logger:  slog.Default(),
		TimeNow: time.Now,
		Stdin:   &nilReader{},
		Stdout:  io.Discard,
		Stderr:  io.Discard,
		Version: buildVersion(),
	}
	app := &App{
		name:           name,
		ctx:            defaultCtx,
		planFn:         planFn,
		configFilePath: filepath.Join(xdg.ConfigHome, name, "config.json"),
		defaultState:   filepath.Join(xdg.StateHome, name, "migration-state.json"),
	}

	for _, opt := range opts {
		opt(app)
	}

	var err error
	ver := fmt.Sprintf("%s %s", app.name, app.ctx.Version)
	app.cli, err = cli.New(app.ctx, app.name, app.configFilePath, ver)
	if err != nil {
		return nil, err
	}

	return app, nil
}

// Run initializes the application environment and starts execution of the
// application.
func (app *App) Run(args []string) (err error) {
	if err = app.cli.Parse(args); err != nil {
		return err
	}

	if app.logLevel != nil {
		app.logLevel.Set(app.cli.Log.Level)
		slog.SetLogLoggerLevel(app.cli.Log.Level)
	}

	if app.cli.EnvFile != "" {
		if err = app.loadEnvFile(app.cli.EnvFile); err != nil {
			return err
		}
	}

	cfg := config.NewConfig(app.ctx.FS, app.cli.ConfigFile)
	if err = cfg.Load(); err != nil {
		return err
	}
	if env := actx.Getenv(app.ctx.Env, envState); app.cli.State == "" && env != "" {
		app.cli.State = env
	}
	if err = app.cli.ApplyConfig(cfg, app.defaultState); err != nil {
		return err
	}

	app.ctx.Logger.Debug("opening migration state store",
		"state", redactURL(app.cli.State), "command", app.cli.Command())

	store, err := openStore(app.ctx.Ctx, app.ctx, app.cli.State)
	if err != nil {
		return fmt.Errorf("failed opening migration state store: %w", err)
	}
	if closer, ok := store.(io.Closer); ok {
		defer func() {
			if cerr := closer.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("failed closing migration state store: %w", cerr))
			}
		}()
	}
	app.ctx.Store = store

	if app.ctx.Plan, err = app.planFn(app.ctx); err != nil {
		return fmt.Errorf("failed building migration plan: %w", err)
	}

	return app.cli.Execute(app.ctx)
}

// loadEnvFile reads environment variables from a dotenv file at path. Variables
// already set in the environment take precedence.
func (app *App) loadEnvFile(path string) error {
	if app.ctx.Env == nil {
		return errors.New("no environment to load the env file into")
	}

	f, err := app.ctx.FS.Open(path)
	if err != nil {
		return fmt.Errorf("failed opening env file: %w", err)
	}
	defer f.Close()

	vars, err := godotenv.Parse(f)
	if err != nil {
		return fmt.Errorf("failed parsing env file '%s': %w", path, err)
	}

	for key, val := range vars {
		if app.ctx.Env.Get(key) != "" {
			continue
		}
		if err = app.ctx.Env.Set(key, val); err != nil {
			return fmt.Errorf("failed setting environment variable '%s': %w", key, err)
		}
	}

	return nil
}

type nilReader struct{}

func (nilReader) Read(_ []byte) (int, error) {
	return 0, io.EOF
}

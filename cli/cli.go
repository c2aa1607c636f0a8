package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/alecthomas/kong"

	"go.hackfix.me/migrate/app/config"
	actx "go.hackfix.me/migrate/app/context"
)

// CLI is the command line interface of the migration runner.
type CLI struct {
	Up     Up     `kong:"cmd,help='Apply pending migrations.'"`
	Down   Down   `kong:"cmd,help='Roll back applied migrations.'"`
	List   List   `kong:"cmd,aliases='ls',help='List migrations and their status.'"`
	Unlock Unlock `kong:"cmd,help='Force release a stale migration state lock.'"`

	Log struct {
		Level slog.Level `enum:"DEBUG,INFO,WARN,ERROR" default:"INFO" help:"Set the app logging level."`
	} `embed:"" prefix:"log-"`
	// NOTE: kong.ConfigFlag isn't used, since configuration is managed
	// independently from the CLI.
	ConfigFile string           `kong:"default='${configFile}',help='Path to the configuration file.'"`
	EnvFile    string           `kong:"placeholder='PATH',help='Path to a dotenv file to load environment variables from.'"`
	State      string           `kong:"placeholder='URL',help='Location of the migration state. Either a file path, or a file://, sqlite://, postgres://, s3:// or memory:// URL.'"`
	Output     OutputFormat     `kong:"short='o',placeholder='FORMAT',help='Output format. Valid values: table, json, yaml. Default: table.'"`
	Version    kong.VersionFlag `kong:"help='Output version and exit.'"`

	kong *kong.Kong
	kctx *kong.Context
}

// New initializes the command-line interface.
func New(appCtx *actx.Context, name, configFilePath, version string) (*CLI, error) {
	c := &CLI{}
	kparser, err := kong.New(c,
		kong.Name(name),
		kong.Description("Apply and roll back migrations."),
		kong.UsageOnError(),
		kong.DefaultEnvars("MIGRATE"),
		kong.Writers(appCtx.Stdout, appCtx.Stderr),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			Summary:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"configFile": configFilePath,
			"version":    version,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed creating the Kong parser: %w", err)
	}

	c.kong = kparser

	return c, nil
}

// Execute starts the command execution. Parse must be called before this method.
func (c *CLI) Execute(appCtx *actx.Context) error {
	if c.kctx == nil {
		panic("the CLI wasn't initialized properly")
	}
	c.kong.Stdout = appCtx.Stdout
	c.kong.Stderr = appCtx.Stderr

	//nolint:wrapcheck // This is fine.
	return c.kctx.Run(appCtx, c.Output)
}

// Parse the given command line arguments. This method must be called before
// Execute.
func (c *CLI) Parse(args []string) error {
	kctx, err := c.kong.Parse(args)
	if err != nil {
		return fmt.Errorf("failed parsing CLI arguments: %w", err)
	}
	c.kctx = kctx

	return nil
}

// Command returns the full path of the executed command.
func (c *CLI) Command() string {
	if c.kctx == nil {
		panic("the CLI wasn't initialized properly")
	}
	cmdPath := []string{}
	for _, p := range c.kctx.Path {
		if p.Command != nil {
			cmdPath = append(cmdPath, p.Command.Name)
		}
	}

	return strings.Join(cmdPath, " ")
}

// ApplyConfig applies configuration values to the CLI, but only if they weren't
// already set. defaultState is used if the state location isn't set anywhere.
func (c *CLI) ApplyConfig(cfg *config.Config, defaultState string) error {
	if c.State == "" && cfg.State.Valid {
		c.State = cfg.State.V
	}
	if c.State == "" {
		c.State = defaultState
	}

	if c.Output == "" && cfg.Output.Valid {
		c.Output = OutputFormat(cfg.Output.V)
		if err := c.Output.Validate(); err != nil {
			return fmt.Errorf("invalid configuration file '%s': %w", cfg.Path(), err)
		}
	}
	if c.Output == "" {
		c.Output = OutputTable
	}

	return nil
}

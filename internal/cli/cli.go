// Package cli provides the command-line interface with injectable io.Writer for testing.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/chainguard-dev/clog"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mcdonaldj/wptsync/internal/config"
	"github.com/mcdonaldj/wptsync/internal/journal"
	"github.com/mcdonaldj/wptsync/internal/update"
)

// ConfigService provides configuration loading for the CLI.
type ConfigService interface {
	Env(ctx context.Context) (config.Env, error)
	Load(path, dataRoot string) (*config.Config, error)
}

// UpdateService runs one update.
type UpdateService interface {
	Update(ctx context.Context, cfg *config.Config, opts config.Options) (*update.Result, error)
}

// JournalStore is the part of the run journal the CLI reads and repairs.
type JournalStore interface {
	List() ([]journal.Run, error)
	Orphans() ([]journal.Run, error)
	MarkCleaned(runID string) error
	Close() error
}

// JournalService opens the run journal.
type JournalService interface {
	Open(path string) (JournalStore, error)
}

// BranchService removes isolation branches left behind by earlier runs.
type BranchService interface {
	DeleteBranch(ctx context.Context, cfg *config.Config, run journal.Run) error
}

// CLI represents the command-line interface with injectable dependencies.
type CLI struct {
	Out     io.Writer // Standard output
	Err     io.Writer // Standard error
	Version string    // Application version
	Args    []string  // Command arguments (like os.Args)

	// Exit function for testability (defaults to os.Exit)
	Exit func(code int)

	// Injectable dependencies (nil means use defaults)
	ConfigSvc  ConfigService
	UpdateSvc  UpdateService
	JournalSvc JournalService
	BranchSvc  BranchService

	// Color functions (can be disabled for testing)
	green  func(a ...interface{}) string
	yellow func(a ...interface{}) string
	cyan   func(a ...interface{}) string
	gray   func(a ...interface{}) string
	red    func(a ...interface{}) string

	global globalFlags
}

type globalFlags struct {
	configPath string
	dataRoot   string
	verbose    bool
}

// New creates a new CLI with default settings.
func New(version string) *CLI {
	return &CLI{
		Out:     os.Stdout,
		Err:     os.Stderr,
		Version: version,
		Args:    os.Args,
		Exit:    os.Exit,
		green:   color.New(color.FgGreen, color.Bold).SprintFunc(),
		yellow:  color.New(color.FgYellow).SprintFunc(),
		cyan:    color.New(color.FgCyan).SprintFunc(),
		gray:    color.New(color.FgHiBlack).SprintFunc(),
		red:     color.New(color.FgRed).SprintFunc(),
	}
}

// NewForTesting creates a CLI configured for testing (no colors, captured output).
func NewForTesting(out, errOut io.Writer, args []string) *CLI {
	noColor := func(a ...interface{}) string { return fmt.Sprint(a...) }
	exitCode := 0
	return &CLI{
		Out:     out,
		Err:     errOut,
		Version: "test",
		Args:    args,
		Exit:    func(code int) { exitCode = code; _ = exitCode },
		green:   noColor,
		yellow:  noColor,
		cyan:    noColor,
		gray:    noColor,
		red:     noColor,
	}
}

// Helper methods to get the service or default
func (c *CLI) configSvc() ConfigService {
	if c.ConfigSvc != nil {
		return c.ConfigSvc
	}
	return &defaultConfigService{}
}

func (c *CLI) updateSvc() UpdateService {
	if c.UpdateSvc != nil {
		return c.UpdateSvc
	}
	return &defaultUpdateService{}
}

func (c *CLI) journalSvc() JournalService {
	if c.JournalSvc != nil {
		return c.JournalSvc
	}
	return &defaultJournalService{}
}

func (c *CLI) branchSvc() BranchService {
	if c.BranchSvc != nil {
		return c.BranchSvc
	}
	return &defaultBranchService{}
}

// Run executes the CLI with the configured arguments.
func (c *CLI) Run() {
	root := c.rootCommand()
	if len(c.Args) > 1 {
		root.SetArgs(c.Args[1:])
	} else {
		root.SetArgs([]string{})
	}

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(c.Err, "%s %v\n", c.red("Error:"), err)
		c.Exit(1)
	}
}

func (c *CLI) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "wptsync",
		Short:         "Synchronize web-platform-tests into a local tree",
		Version:       c.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SetContext(clog.WithLogger(cmd.Context(), c.logger()))
		},
	}
	root.SetOut(c.Out)
	root.SetErr(c.Err)
	root.SetVersionTemplate("wptsync v{{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVar(&c.global.configPath, "config", "", "config file (default $WPTSYNC_CONFIG or wptsync.ini)")
	flags.StringVar(&c.global.dataRoot, "data-root", "", "base for relative config paths (default $WPTSYNC_DATA_ROOT or the config file's directory)")
	flags.BoolVar(&c.global.verbose, "verbose", false, "log debug output")

	root.AddCommand(
		c.updateCommand(),
		c.journalCommand(),
		c.recoverCommand(),
		c.versionCommand(),
	)
	return root
}

func (c *CLI) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.Out, "wptsync v%s\n", c.Version)
		},
	}
}

// logger writes structured logs to the error stream.
func (c *CLI) logger() *clog.Logger {
	level := slog.LevelInfo
	if c.global.verbose {
		level = slog.LevelDebug
	}
	return clog.New(slog.NewTextHandler(c.Err, &slog.HandlerOptions{Level: level}))
}

// loadConfig resolves the config location from flags and environment.
func (c *CLI) loadConfig(ctx context.Context) (*config.Config, config.Options, error) {
	svc := c.configSvc()
	env, err := svc.Env(ctx)
	if err != nil {
		return nil, config.Options{}, err
	}
	opts := config.Options{
		ConfigPath: env.ConfigPath,
		DataRoot:   env.DataRoot,
		Verbose:    c.global.verbose,
	}
	if c.global.configPath != "" {
		opts.ConfigPath = c.global.configPath
	}
	if c.global.dataRoot != "" {
		opts.DataRoot = c.global.dataRoot
	}
	cfg, err := svc.Load(opts.ConfigPath, opts.DataRoot)
	if err != nil {
		return nil, opts, err
	}
	return cfg, opts, nil
}

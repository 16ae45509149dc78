package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/hunt/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	DB      string // overrides HUNT_DB_PATH (sqlite) or HUNT_DATABASE_URL (postgres)
	Def     string // overrides HUNT_DEF
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the hunt CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "hunt",
		Short: "hunt - puzzle-hunt progression engine",
		Long: `Tracks per-team puzzle visibility for a puzzle hunt and derives unlocks
from declarative CUE hunt definitions.

Configuration comes from HUNT_* environment variables; global flags
override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "database path or URL (default from HUNT_DB_PATH / HUNT_DATABASE_URL)")
	cmd.PersistentFlags().StringVar(&opts.Def, "def", "", "hunt definition file (default from HUNT_DEF)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewStartCommand(opts))
	cmd.AddCommand(NewSubmitCommand(opts))
	cmd.AddCommand(NewReleaseCommand(opts))
	cmd.AddCommand(NewSetCommand(opts))
	cmd.AddCommand(NewHintCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// formatter builds the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// settings loads HUNT_* configuration and applies flag overrides.
func (o *RootOptions) settings() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, ErrCodeConfig, err)
	}
	if o.DB != "" {
		if cfg.DBDriver == config.DriverPostgres {
			cfg.DatabaseURL = o.DB
		} else {
			cfg.DBPath = o.DB
		}
	}
	if o.Def != "" {
		cfg.Definition = o.Def
	}
	if o.Verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// newLogger returns a text logger on w at the configured level.
func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	level, err := cfg.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// definitionPath resolves the definition argument, then --def, then HUNT_DEF.
func (o *RootOptions) definitionPath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := o.settings()
	if err != nil {
		return "", err
	}
	return cfg.Definition, nil
}

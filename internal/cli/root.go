package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/roach88/bakery/internal/config"
	"github.com/roach88/bakery/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string

	// EnvFiles overrides the .env files read by config.Load (for testing).
	EnvFiles []string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the bakery CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "bakery",
		Short: "bakery - personal Nostr event store",
		Long: `A local event store for a personal Nostr node.

Events are kept in a single SQLite file with replaceable and addressable
slots resolved on write, tag and full-text indexes, and a private index
over decrypted message content.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (.cue, .yaml, .json)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewCountCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewReplaceableCommand(opts))
	cmd.AddCommand(NewSearchCommand(opts))
	cmd.AddCommand(NewDecryptedCommand(opts))
	cmd.AddCommand(NewReindexCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// formatter builds the output formatter for a command invocation.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// loadConfig resolves configuration and applies flag overrides.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath, o.EnvFiles...)
	if err != nil {
		return config.Config{}, err
	}
	if o.Database != "" {
		cfg.Database = o.Database
		cfg.Resolve()
	}
	if o.Verbose {
		cfg.LogLevel = zerolog.DebugLevel.String()
	}
	return cfg, nil
}

// openStore loads configuration and opens the configured database.
// Logs go to the command's stderr.
func (o *RootOptions) openStore(cmd *cobra.Command, extra ...store.Option) (*store.Store, zerolog.Logger, error) {
	nop := zerolog.Nop()

	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nop, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	log, err := cfg.Logger(cmd.ErrOrStderr())
	if err != nil {
		return nil, nop, WrapExitError(ExitCommandError, "invalid logging config", err)
	}

	if err := ensureParentDir(cfg.Database); err != nil {
		return nil, nop, WrapExitError(ExitCommandError, "failed to create data directory", err)
	}

	opts := append([]store.Option{
		store.WithKeepHistory(cfg.KeepHistory),
		store.WithPreserveEphemeral(cfg.PreserveEphemeral),
		store.WithLogger(log),
	}, extra...)

	st, err := store.Open(cfg.Database, opts...)
	if err != nil {
		return nil, nop, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, log, nil
}

func ensureParentDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0755)
}

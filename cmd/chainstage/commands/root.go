package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/chainstage/pkg/config"
	"github.com/openfroyo/chainstage/pkg/stores"
	"github.com/openfroyo/chainstage/pkg/telemetry"
)

// Process exit codes.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitUsage    = 2
	ExitComplete = 3
)

// ExitError carries a process exit code. An ExitError without Err signals
// an outcome rather than a failure.
type ExitError struct {
	Code int
	Err  error
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps an Execute error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	jsonOutput bool
	logLevel   string
	version    string
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	opts := &rootOptions{version: version}

	rootCmd := &cobra.Command{
		Use:   "chainstage",
		Short: "chainstage - staged deployment of upgradeable contracts",
		Long: `chainstage deploys and wires a fixed set of upgradeable contracts in
dependency order, one confirmed step per invocation.

Each invocation reads the deployment record, skips every step that is
already done, executes the first one that is not and exits:

  exit 0   a step was applied (the record has been updated)
  exit 1   the step failed (nothing was recorded)
  exit 2   invalid flags or arguments
  exit 3   every step is already complete

Run it repeatedly until it exits 3.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logLevel != "" {
				zerolog.SetGlobalLevel(telemetry.ParseLevel(opts.logLevel))
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "chainstage.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides LOG_LEVEL and the config)")

	rootCmd.AddCommand(newRunCommand(opts))
	rootCmd.AddCommand(newStatusCommand(opts))
	rootCmd.AddCommand(newRecordCommand(opts))
	rootCmd.AddCommand(newArtifactCommand(opts))
	rootCmd.AddCommand(newNetworksCommand(opts))
	rootCmd.AddCommand(newValidateCommand(opts))
	rootCmd.AddCommand(newInitCommand(opts))
	rootCmd.AddCommand(newHistoryCommand(opts))

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &ExitError{Code: ExitUsage, Err: err}
	})
	usageArgs(rootCmd)

	return rootCmd
}

// usageArgs makes positional argument errors of cmd and its subcommands
// exit with ExitUsage.
func usageArgs(cmd *cobra.Command) {
	if validate := cmd.Args; validate != nil {
		cmd.Args = func(c *cobra.Command, args []string) error {
			if err := validate(c, args); err != nil {
				return &ExitError{Code: ExitUsage, Err: err}
			}
			return nil
		}
	}
	for _, sub := range cmd.Commands() {
		usageArgs(sub)
	}
}

func (o *rootOptions) logger() zerolog.Logger {
	return log.Logger
}

func (o *rootOptions) loadConfig(ctx context.Context) (*config.Config, error) {
	return config.NewLoader(o.logger()).Load(ctx, o.configPath)
}

// openStore opens the configured record store.
func (o *rootOptions) openStore(ctx context.Context, cfg *config.Config) (stores.RecordStore, error) {
	store, err := stores.Open(ctx, stores.Backend(cfg.Record.Backend), cfg.RecordPath(), o.logger())
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	return store, nil
}

// openHistory opens the SQLite store holding run history, or fails when the
// record backend keeps none.
func (o *rootOptions) openHistory(ctx context.Context, cfg *config.Config) (*stores.SQLiteStore, error) {
	if cfg.Record.Backend != config.BackendSQLite {
		return nil, fmt.Errorf("run history requires the sqlite record backend (configured: %s)", cfg.Record.Backend)
	}
	return stores.OpenSQLite(ctx, cfg.RecordPath())
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

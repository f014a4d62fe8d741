package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/openfroyo/chainstage/pkg/engine"
	"github.com/openfroyo/chainstage/pkg/stores"
)

func newRecordCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Inspect and edit the deployment record",
		Long: `Read and correct the deployment record by hand.

Use these commands to register contracts deployed outside chainstage, to
record a step whose write-back failed, or to move a record between the
file and sqlite backends.`,
	}

	cmd.AddCommand(newRecordGetCommand(opts))
	cmd.AddCommand(newRecordSetCommand(opts))
	cmd.AddCommand(newRecordUnsetCommand(opts))
	cmd.AddCommand(newRecordExportCommand(opts))
	cmd.AddCommand(newRecordImportCommand(opts))

	return cmd
}

type recordRow struct {
	Role        engine.Role     `json:"role"`
	Address     *common.Address `json:"address,omitempty"`
	Initialized bool            `json:"initialized"`
}

func newRecordGetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get [role]",
		Short: "Print one or every record entry",
		Example: `  chainstage record get
  chainstage record get vault-proxy`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRecord(cmd.Context(), opts, false, func(record *engine.Record) error {
				var rows []recordRow
				if len(args) == 1 {
					role, err := engine.ParseRole(args[0])
					if err != nil {
						return &ExitError{Code: ExitUsage, Err: err}
					}
					e, ok := record.Get(role)
					if !ok {
						return fmt.Errorf("role %s is not recorded", role)
					}
					rows = append(rows, recordRow{Role: role, Address: e.Address, Initialized: e.Initialized})
				} else {
					for _, role := range record.Roles() {
						e, _ := record.Get(role)
						rows = append(rows, recordRow{Role: role, Address: e.Address, Initialized: e.Initialized})
					}
				}
				return printRecordRows(cmd.OutOrStdout(), opts.jsonOutput, rows)
			})
		},
	}
}

func printRecordRows(out io.Writer, asJSON bool, rows []recordRow) error {
	if asJSON {
		if rows == nil {
			rows = []recordRow{}
		}
		return printJSON(out, rows)
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(out, "record is empty")
		return err
	}
	for _, r := range rows {
		addr := "-"
		if r.Address != nil {
			addr = r.Address.Hex()
		}
		state := ""
		if r.Initialized {
			state = "initialized"
		}
		fmt.Fprintln(out, strings.TrimRight(fmt.Sprintf("%-24s %-42s %s", r.Role, addr, state), " "))
	}
	return nil
}

func newRecordSetCommand(opts *rootOptions) *cobra.Command {
	var initialized bool

	cmd := &cobra.Command{
		Use:   "set <role> [address]",
		Short: "Record an address or mark a role initialized",
		Example: `  # Register a proxy deployed by hand
  chainstage record set vault-proxy 0x5FbDB2315678afecb367f032d93F642f64180aa3

  # Record an initialization whose write-back failed
  chainstage record set vault-proxy --initialized`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := engine.ParseRole(args[0])
			if err != nil {
				return &ExitError{Code: ExitUsage, Err: err}
			}
			if len(args) == 1 && !initialized {
				return &ExitError{Code: ExitUsage, Err: fmt.Errorf("nothing to set: give an address or --initialized")}
			}

			update := &engine.Update{Role: role, Initialized: initialized}
			if len(args) == 2 {
				if !common.IsHexAddress(args[1]) {
					return &ExitError{Code: ExitUsage, Err: fmt.Errorf("invalid address: %s", args[1])}
				}
				addr := common.HexToAddress(args[1])
				update.Address = &addr
			}

			return withRecord(cmd.Context(), opts, true, func(record *engine.Record) error {
				record.Apply(update)
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Recorded %s\n", role)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&initialized, "initialized", false, "mark the role initialized")

	return cmd
}

func newRecordUnsetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "unset <role>",
		Short:   "Remove a role from the record so its step runs again",
		Example: `  chainstage record unset router-proxy`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := engine.ParseRole(args[0])
			if err != nil {
				return &ExitError{Code: ExitUsage, Err: err}
			}
			return withRecord(cmd.Context(), opts, true, func(record *engine.Record) error {
				if _, ok := record.Get(role); !ok {
					return fmt.Errorf("role %s is not recorded", role)
				}
				record.Unset(role)
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %s\n", role)
				return nil
			})
		},
	}
}

func newRecordExportCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write the record as YAML",
		Long: `Write the record in the file backend's YAML form, to a file or to
stdout. Pending transactions are not exported.`,
		Example: `  chainstage record export > deployment.yaml`,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRecord(cmd.Context(), opts, false, func(record *engine.Record) error {
				data, err := stores.EncodeRecord(record)
				if err != nil {
					return err
				}
				if len(args) == 0 {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				if err := os.WriteFile(args[0], data, 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported %d entries to %s\n", record.Len(), args[0])
				return nil
			})
		},
	}
}

func newRecordImportCommand(opts *rootOptions) *cobra.Command {
	var merge bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the record with a YAML record",
		Example: `  # Move a file record into the sqlite backend
  chainstage record import deployment.yaml -c sqlite.yaml

  # Add entries without dropping the existing ones
  chainstage record import extra.yaml --merge`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			imported, err := stores.DecodeRecord(data)
			if err != nil {
				return err
			}

			return withRecord(cmd.Context(), opts, true, func(record *engine.Record) error {
				if !merge {
					for _, role := range record.Roles() {
						record.Unset(role)
					}
				}
				for role, e := range imported.Entries() {
					record.Set(role, e)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Imported %d entries from %s\n", imported.Len(), args[0])
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&merge, "merge", false, "keep entries absent from the imported file")

	return cmd
}

// withRecord loads the configured record, calls fn and saves the record
// when write is set.
func withRecord(ctx context.Context, opts *rootOptions, write bool, fn func(*engine.Record) error) error {
	cfg, err := opts.loadConfig(ctx)
	if err != nil {
		return err
	}

	store, err := opts.openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	record, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load record: %w", err)
	}

	if err := fn(record); err != nil {
		return err
	}
	if !write {
		return nil
	}

	if err := store.Save(ctx, record); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	logger := opts.logger()
	logger.Debug().Str("path", cfg.RecordPath()).Int("entries", record.Len()).Msg("Record saved")
	return nil
}

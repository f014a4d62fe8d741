package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openfroyo/chainstage/pkg/config"
	"github.com/openfroyo/chainstage/pkg/engine"
	"github.com/openfroyo/chainstage/pkg/ledger"
)

type statusOutput struct {
	Network  string                `json:"network"`
	Complete bool                  `json:"complete"`
	Steps    []engine.StepStatus   `json:"steps"`
	Verified []engine.Verification `json:"verified,omitempty"`
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show plan progress against the record",
		Long: `Evaluate every step of the plan against the deployment record without
touching the ledger. Each step is reported as done, next or pending, and
the next step lists the dependencies it still lacks.

With --verify the recorded addresses are checked for code on the ledger.`,
		Example: `  # Show progress
  chainstage status

  # Check recorded addresses on the ledger
  chainstage status --verify --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(cmd.Context(), cmd.OutOrStdout(), opts, verify)
		},
	}

	cmd.Flags().BoolVar(&verify, "verify", false, "check recorded addresses for code on the ledger")

	return cmd
}

func showStatus(ctx context.Context, out io.Writer, opts *rootOptions, verify bool) error {
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

	result := statusOutput{
		Network:  cfg.Network,
		Complete: true,
		Steps:    engine.Evaluate(engine.DefaultPlan(), record, cfg.Externals()),
	}
	for _, s := range result.Steps {
		if s.State != engine.StepStateDone {
			result.Complete = false
			break
		}
	}

	if verify {
		result.Verified, err = verifyRecord(ctx, opts, cfg, record)
		if err != nil {
			return err
		}
	}

	if opts.jsonOutput {
		return printJSON(out, result)
	}

	fmt.Fprintf(out, "network %s\n\n", result.Network)
	for _, s := range result.Steps {
		line := fmt.Sprintf("%-8s %2d  %-28s %-20s %s", s.State, s.Step.Order, s.Step.Name, s.Step.Kind, s.Step.Role)
		if len(s.Missing) > 0 {
			line += "  (missing: " + strings.Join(s.Missing, ", ") + ")"
		}
		fmt.Fprintln(out, strings.TrimRight(line, " "))
	}

	if verify {
		fmt.Fprintln(out)
		for _, v := range result.Verified {
			mark := "✓"
			if !v.HasCode {
				mark = "✗ no code"
			}
			fmt.Fprintf(out, "%-24s %s %s\n", v.Role, v.Address.Hex(), mark)
		}
	}

	if result.Complete {
		fmt.Fprintln(out, "\nall steps complete")
	}
	return nil
}

// verifyRecord connects with the configured signer and checks every
// recorded address for code.
func verifyRecord(ctx context.Context, opts *rootOptions, cfg *config.Config, record *engine.Record) ([]engine.Verification, error) {
	profile, err := cfg.Profile()
	if err != nil {
		return nil, err
	}

	signer, err := cfg.LoadSigner()
	if err != nil {
		return nil, err
	}

	logger := opts.logger()
	client, err := ledger.Connect(ctx, profile, signer, cfg.LedgerOptions(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", profile.ID, err)
	}
	defer client.Close()

	orch, err := engine.New(client, cfg.ArtifactLoader(), engine.Options{
		Externals: cfg.Externals(),
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	return orch.Verify(ctx, record)
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/openfroyo/chainstage/pkg/config"
	"github.com/openfroyo/chainstage/pkg/policy"
)

type validateOutput struct {
	Valid    bool                     `json:"valid"`
	Config   string                   `json:"config"`
	Network  string                   `json:"network,omitempty"`
	Errors   []config.ValidationError `json:"errors,omitempty"`
	Policies []string                 `json:"policies,omitempty"`
}

func newValidateCommand(opts *rootOptions) *cobra.Command {
	var checkArtifactsFlag bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and policies",
		Long: `Validate the configuration file without touching the ledger.

This command checks:
  - syntax of the YAML, CUE or JSON file
  - schema conformance (CUE) and field constraints
  - that the network is supported
  - that every operator policy compiles (OPA/rego)
  - optionally, that every artifact the plan needs can be loaded`,
		Example: `  # Validate the default config
  chainstage validate

  # Validate another file and its artifacts
  chainstage validate -c mainnet.cue --artifacts`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(cmd.Context(), cmd.OutOrStdout(), opts, checkArtifactsFlag)
		},
	}

	cmd.Flags().BoolVar(&checkArtifactsFlag, "artifacts", false, "also load every artifact the plan references")

	return cmd
}

func validateConfig(ctx context.Context, out io.Writer, opts *rootOptions, withArtifacts bool) error {
	result := validateOutput{Config: opts.configPath}

	cfg, err := opts.loadConfig(ctx)
	if err != nil {
		var le *config.LoadError
		if !errors.As(err, &le) {
			return err
		}
		result.Errors = le.Errors
		if opts.jsonOutput {
			if perr := printJSON(out, result); perr != nil {
				return perr
			}
		} else {
			for _, ve := range le.Errors {
				fmt.Fprintf(out, "✗ %s\n", ve.String())
			}
		}
		return &ExitError{Code: ExitFailure, Err: fmt.Errorf("%s: %d validation errors", opts.configPath, len(le.Errors))}
	}
	result.Network = cfg.Network

	gate, err := policy.NewEngine(ctx, opts.logger(), cfg.PolicyOptions(false))
	if err != nil {
		return fmt.Errorf("policy check failed: %w", err)
	}
	for _, p := range gate.ListPolicies() {
		result.Policies = append(result.Policies, p.Name)
	}

	if withArtifacts {
		w := out
		if opts.jsonOutput {
			w = io.Discard
		}
		if err := checkArtifacts(ctx, w, false, cfg.ArtifactLoader()); err != nil {
			return err
		}
	}

	result.Valid = true
	if opts.jsonOutput {
		return printJSON(out, result)
	}
	fmt.Fprintf(out, "✓ %s is valid (network %s, record %s at %s)\n", opts.configPath, cfg.Network, cfg.Record.Backend, cfg.RecordPath())
	fmt.Fprintf(out, "✓ %d policies loaded\n", len(result.Policies))
	return nil
}

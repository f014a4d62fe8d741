package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/openfroyo/chainstage/pkg/config"
	"github.com/openfroyo/chainstage/pkg/engine"
	"github.com/openfroyo/chainstage/pkg/stores"
)

func newInitCommand(opts *rootOptions) *cobra.Command {
	var (
		network string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a starter configuration",
		Long: `Create a configuration file, an empty deployment record and the artifact
directory next to it.

The generated configuration holds zero placeholder addresses. Deployments
are refused until they are replaced with the real collaborator addresses.`,
		Example: `  # Start a Sepolia deployment
  chainstage init --network sepolia

  # Write the config somewhere else
  chainstage init -c deploy/mainnet.yaml --network mainnet`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := opts.configPath

			logger := opts.logger()
			logger.Info().
				Str("config", path).
				Str("network", network).
				Msg("Initializing workspace")

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			dir := filepath.Dir(path)
			if err := os.MkdirAll(filepath.Join(dir, "artifacts"), 0o755); err != nil {
				return fmt.Errorf("failed to create artifact directory: %w", err)
			}
			fmt.Fprintf(out, "✓ Created directory: %s\n", filepath.Join(dir, "artifacts"))

			if err := os.WriteFile(path, config.Skeleton(network), 0o644); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
			fmt.Fprintf(out, "✓ Created config file: %s\n", path)

			recordPath := filepath.Join(dir, config.Default().Record.Path)
			if _, err := os.Stat(recordPath); errors.Is(err, fs.ErrNotExist) {
				data, err := stores.EncodeRecord(engine.NewRecord())
				if err != nil {
					return err
				}
				if err := os.WriteFile(recordPath, data, 0o644); err != nil {
					return fmt.Errorf("failed to write record: %w", err)
				}
				fmt.Fprintf(out, "✓ Created record: %s\n", recordPath)
			} else {
				fmt.Fprintf(out, "  Kept existing record: %s\n", recordPath)
			}

			fmt.Fprintf(out, "\nNext: copy the compiled bundles into artifacts/, fill in the addresses\nand export %s before running chainstage run.\n", config.DefaultKeyEnv)
			return nil
		},
	}

	cmd.Flags().StringVar(&network, "network", "sepolia", "network the configuration targets")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing configuration")

	return cmd
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/chainstage/pkg/ledger"
)

func newNetworksCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "networks",
		Short: "List the supported networks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles := ledger.Profiles()
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), profiles)
			}

			out := cmd.OutOrStdout()
			for _, p := range profiles {
				endpoint := p.Endpoint
				if endpoint == "" {
					endpoint = "(set rpc_url)"
				}
				fmt.Fprintf(out, "%-10s chain %-9d base %s  %s\n", p.ID, p.ChainID, p.BaseCurrency.Hex(), endpoint)
			}
			return nil
		},
	}
}

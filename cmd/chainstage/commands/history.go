package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/chainstage/pkg/stores"
)

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past runs",
		Long: `List past invocations recorded by the sqlite record backend, most recent
first. Use "history show" for the event timeline of one run.`,
		Example: `  chainstage history --limit 5
  chainstage history show 6f1c1a52-...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := opts.loadConfig(ctx)
			if err != nil {
				return err
			}
			store, err := opts.openHistory(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), runs)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "no runs recorded")
				return nil
			}
			for _, r := range runs {
				fmt.Fprintf(out, "%s  %s  %-8s %-8s %s\n",
					r.StartedAt.Local().Format(time.DateTime), r.ID, r.Network, r.Outcome, runSubject(r))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs (0 for all)")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run and its events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := opts.loadConfig(ctx)
			if err != nil {
				return err
			}
			store, err := opts.openHistory(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			events, err := store.GetEvents(ctx, stores.EventFilter{RunID: &run.ID})
			if err != nil {
				return err
			}

			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), struct {
					Run    *stores.Run     `json:"run"`
					Events []*stores.Event `json:"events"`
				}{run, events})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s on %s: %s %s\n", run.ID, run.Network, run.Outcome, runSubject(run))
			if run.TxHash != nil {
				fmt.Fprintf(out, "  tx      %s\n", *run.TxHash)
			}
			if run.Address != nil {
				fmt.Fprintf(out, "  address %s\n", *run.Address)
			}
			if run.Error != nil {
				fmt.Fprintf(out, "  error   %s\n", *run.Error)
			}
			fmt.Fprintln(out)
			for _, ev := range events {
				fmt.Fprintf(out, "%s %-7s %-15s %s\n", ev.Timestamp.Local().Format(time.TimeOnly), ev.Level, ev.Type, ev.Message)
			}
			return nil
		},
	})

	return cmd
}

func runSubject(r *stores.Run) string {
	if r.Step == nil {
		return fmt.Sprintf("(%d skipped)", r.Skipped)
	}
	return *r.Step
}

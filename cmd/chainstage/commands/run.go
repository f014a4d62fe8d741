package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/chainstage/pkg/engine"
	"github.com/openfroyo/chainstage/pkg/ledger"
	"github.com/openfroyo/chainstage/pkg/policy"
	"github.com/openfroyo/chainstage/pkg/stores"
	"github.com/openfroyo/chainstage/pkg/telemetry"
)

type runFlags struct {
	allowMainnet bool
	noWriteBack  bool
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the next deployment step",
		Long: `Execute the first step of the plan that is not yet done, wait for its
confirmation and record the result.

Steps already reflected in the record are skipped. At most one transaction
is signed per invocation. If a previous invocation was interrupted after
submitting, its transaction is awaited instead of submitting again.`,
		Example: `  # Advance the deployment by one step
  chainstage run -c sepolia.yaml

  # Drive the whole plan
  until chainstage run; [ $? -eq 3 ]; do sleep 1; done

  # Mainnet requires an explicit opt-in
  chainstage run -c mainnet.yaml --allow-mainnet`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), cmd.OutOrStdout(), opts, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.allowMainnet, "allow-mainnet", false, "permit signing on mainnet")
	cmd.Flags().BoolVar(&flags.noWriteBack, "no-write-back", false, "do not persist the result (print it only)")

	return cmd
}

func runOnce(ctx context.Context, out io.Writer, opts *rootOptions, flags runFlags) (err error) {
	cfg, err := opts.loadConfig(ctx)
	if err != nil {
		return err
	}

	telCfg := cfg.TelemetryConfig(opts.version)
	if opts.logLevel != "" {
		telCfg.Logging.Level = opts.logLevel
	}
	tel, err := telemetry.NewTelemetry(telCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if serr := tel.Shutdown(shutdownCtx); serr != nil {
			logger := opts.logger()
			logger.Warn().Err(serr).Msg("Failed to flush telemetry")
		}
	}()

	logger := tel.Logger.NewComponentLogger("cli").WithNetwork(cfg.Network).Zerolog()

	ctx, span := tel.Tracer.StartRunSpan(ctx, "run", cfg.Network)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	profile, err := cfg.Profile()
	if err != nil {
		return engine.NewPermanentError("network not supported", err).WithCode(engine.ErrCodeUnsupportedNetwork)
	}

	signer, err := cfg.LoadSigner()
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

	gate, err := policy.NewEngine(ctx, tel.Logger.Zerolog(), cfg.PolicyOptions(flags.allowMainnet))
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	client, err := ledger.Connect(ctx, profile, signer, cfg.LedgerOptions(tel.Logger.Zerolog()))
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", profile.ID, err)
	}
	defer client.Close()

	history, _ := store.(*stores.SQLiteStore)
	if history != nil {
		tel.Events.Subscribe("history", history, nil)
	}

	orchOpts := engine.Options{
		Externals:          cfg.Externals(),
		Policy:             gate,
		Events:             tel.Events,
		Metrics:            tel.Metrics,
		Tracer:             tel.Tracer.Tracer(),
		VerifyDependencies: cfg.VerifyDependencies,
		Logger:             tel.Logger.Zerolog(),
	}
	if !flags.noWriteBack {
		orchOpts.Journal = store
	}

	orch, err := engine.New(client, cfg.ArtifactLoader(), orchOpts)
	if err != nil {
		return err
	}

	report, runErr := orch.Run(ctx, record)
	if report == nil {
		return runErr
	}
	span.SetAttributes(
		telemetry.AttrRunID.String(report.RunID),
		telemetry.AttrOutcome.String(string(report.Outcome)),
	)

	if report.Outcome == engine.OutcomeApplied && !flags.noWriteBack {
		if werr := store.ApplyUpdate(ctx, report.Update); werr != nil {
			logger.Error().
				Err(werr).
				Str("role", string(report.Update.Role)).
				Interface("update", report.Update).
				Msg("Step applied but the record could not be updated; record it by hand")
			printReport(out, opts.jsonOutput, report)
			return &ExitError{Code: ExitFailure, Err: fmt.Errorf("record write-back failed: %w", werr)}
		}
	}

	if history != nil {
		if herr := history.RecordRun(ctx, report); herr != nil {
			logger.Warn().Err(herr).Msg("Failed to record run history")
		}
	}

	if runErr != nil {
		var ee *engine.EngineError
		if errors.As(runErr, &ee) {
			tel.Metrics.RecordError(string(ee.Class), ee.Code)
		}
	}

	if perr := printReport(out, opts.jsonOutput, report); perr != nil {
		return perr
	}
	return outcomeError(report, runErr)
}

// outcomeError maps a report to the process exit status.
func outcomeError(report *engine.Report, runErr error) error {
	switch report.Outcome {
	case engine.OutcomeApplied:
		return nil
	case engine.OutcomeComplete:
		return &ExitError{Code: ExitComplete}
	default:
		if runErr == nil {
			runErr = errors.New("run failed")
		}
		return &ExitError{Code: ExitFailure, Err: runErr}
	}
}

func printReport(out io.Writer, asJSON bool, report *engine.Report) error {
	if asJSON {
		return printJSON(out, report)
	}

	switch report.Outcome {
	case engine.OutcomeComplete:
		_, err := fmt.Fprintf(out, "complete: all steps done (%d skipped)\n", report.Skipped)
		return err

	case engine.OutcomeApplied:
		s := report.Step
		fmt.Fprintf(out, "applied: step %d %s (%s, %s)\n", s.Order, s.Name, s.Kind, s.Role)
		if report.Update != nil && report.Update.Address != nil {
			fmt.Fprintf(out, "  address  %s\n", report.Update.Address.Hex())
		}
		if report.Receipt != nil {
			fmt.Fprintf(out, "  tx       %s\n", report.Receipt.TxHash.Hex())
			fmt.Fprintf(out, "  block    %d\n", report.Receipt.BlockNumber)
			fmt.Fprintf(out, "  gas used %d\n", report.Receipt.GasUsed)
		}
		_, err := fmt.Fprintf(out, "  skipped  %d, took %s\n", report.Skipped, report.Duration.Round(time.Millisecond))
		return err

	default:
		if s := report.Step; s != nil {
			fmt.Fprintf(out, "failed: step %d %s (%s, %s)\n", s.Order, s.Name, s.Kind, s.Role)
		} else {
			fmt.Fprintln(out, "failed")
		}
		if report.Error != nil {
			fmt.Fprintf(out, "  %s %s: %s\n", report.Error.Class, report.Error.Code, report.Error.Message)
			if report.Error.Err != nil {
				fmt.Fprintf(out, "  cause: %v\n", report.Error.Err)
			}
		}
		return nil
	}
}

var (
	_ engine.Ledger             = (*ledger.Client)(nil)
	_ engine.PolicyGate         = (*policy.Engine)(nil)
	_ engine.EventPublisher     = (*telemetry.EventBus)(nil)
	_ engine.MetricsRecorder    = (*telemetry.Metrics)(nil)
	_ telemetry.EventSubscriber = (*stores.SQLiteStore)(nil)
)

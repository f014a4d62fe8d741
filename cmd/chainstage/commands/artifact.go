package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/openfroyo/chainstage/pkg/artifact"
	"github.com/openfroyo/chainstage/pkg/engine"
)

func newArtifactCommand(opts *rootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "artifact",
		Short: "Inspect compiled contract bundles",
	}

	cmd.PersistentFlags().StringVar(&dir, "dir", "", "artifact directory (overrides the config)")

	cmd.AddCommand(&cobra.Command{
		Use:   "inspect <id>",
		Short: "Show the constructor and methods of an artifact",
		Example: `  chainstage artifact inspect Vault
  chainstage artifact inspect TransparentUpgradeableProxy --dir build/contracts`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := artifactLoader(cmd.Context(), opts, dir)
			if err != nil {
				return err
			}
			art, err := loader.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printArtifact(cmd.OutOrStdout(), opts.jsonOutput, art)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load every artifact the plan references",
		Long: `Load every artifact the plan references and report the ones that are
missing or malformed. Exits non-zero when any artifact fails to load.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := artifactLoader(cmd.Context(), opts, dir)
			if err != nil {
				return err
			}
			return checkArtifacts(cmd.Context(), cmd.OutOrStdout(), opts.jsonOutput, loader)
		},
	})

	return cmd
}

func artifactLoader(ctx context.Context, opts *rootOptions, dir string) (*artifact.Loader, error) {
	if dir != "" {
		return artifact.NewLoader(dir, nil), nil
	}
	cfg, err := opts.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	return cfg.ArtifactLoader(), nil
}

type artifactOutput struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Path        string   `json:"path"`
	Deployable  bool     `json:"deployable"`
	Constructor string   `json:"constructor"`
	Methods     []string `json:"methods"`
}

func printArtifact(out io.Writer, asJSON bool, art *artifact.Artifact) error {
	view := artifactOutput{
		ID:          art.ID,
		Name:        art.Name,
		Path:        art.Path,
		Deployable:  art.Deployable(),
		Constructor: art.ConstructorSignature,
		Methods:     art.Methods(),
	}
	if asJSON {
		return printJSON(out, view)
	}

	fmt.Fprintf(out, "%s (%s)\n", view.Name, view.Path)
	if view.Deployable {
		fmt.Fprintf(out, "  %s\n", view.Constructor)
	} else {
		fmt.Fprintln(out, "  interface only (no bytecode)")
	}
	for _, m := range view.Methods {
		fmt.Fprintf(out, "  %s\n", m)
	}
	return nil
}

type artifactCheck struct {
	ID    string `json:"id"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`
}

func checkArtifacts(ctx context.Context, out io.Writer, asJSON bool, loader *artifact.Loader) error {
	var (
		results []artifactCheck
		failed  int
		seen    = make(map[string]bool)
	)
	for _, step := range engine.DefaultPlan() {
		if seen[step.Artifact] {
			continue
		}
		seen[step.Artifact] = true

		res := artifactCheck{ID: step.Artifact}
		art, err := loader.Load(ctx, step.Artifact)
		if err != nil {
			res.Error = err.Error()
			failed++
		} else {
			res.Path = art.Path
		}
		results = append(results, res)
	}

	if asJSON {
		if err := printJSON(out, results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Error != "" {
				fmt.Fprintf(out, "✗ %-32s %s\n", r.ID, r.Error)
				continue
			}
			fmt.Fprintf(out, "✓ %-32s %s\n", r.ID, r.Path)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d artifacts failed to load from %s", failed, len(results), loader.Dir())
	}
	return nil
}

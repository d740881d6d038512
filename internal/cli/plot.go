// Package cli — plot.go implements the "quenchfit plot" command.
//
// plot runs the global fit and renders the three standard figures into
// an output directory: the semilog decay curves with fit overlays, the
// weighted residual traces, and the Stern-Volmer line.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kmarkley/quenchfit/decayplot"
	"github.com/kmarkley/quenchfit/fit"
	"github.com/kmarkley/quenchfit/internal/config"
	"github.com/kmarkley/quenchfit/sternvolmer"
)

// plotFlags holds the flag values for the plot command.
type plotFlags struct {
	outDir string
}

// NewPlotCommand creates the "plot" cobra command.
func NewPlotCommand() *cobra.Command {
	flags := &plotFlags{}

	cmd := &cobra.Command{
		Use:   "plot <experiment.yaml>",
		Short: "Render decay, residual and Stern-Volmer figures",
		Long: `Run the global fit and write diagnostic figures as PNG.

Produces decays.png, residuals.png and sternvolmer.png in the output
directory (created if missing).

Examples:
  quenchfit plot experiment.yaml
  quenchfit plot experiment.yaml --out figures/`,

		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlot(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.outDir, "out", "o", ".", "Output directory")

	return cmd
}

func runPlot(cmd *cobra.Command, manifest string, flags *plotFlags) error {
	log := logger()

	cfg, err := config.Load(manifest)
	if err != nil {
		return err
	}
	s, err := cfg.LoadSeries()
	if err != nil {
		return err
	}
	s.Prepare()

	res, err := fit.GlobalFit(s, cfg.InitVector(s), fit.Options{})
	if err != nil {
		return err
	}
	if !res.Converged {
		log.Warn("fit did not converge; plotting best parameters found")
	}
	sv, err := sternvolmer.FromFit(res)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(flags.outDir, 0o755); err != nil {
		return err
	}

	decaysPath := filepath.Join(flags.outDir, "decays.png")
	if err := decayplot.Decays(s, res, decaysPath); err != nil {
		return err
	}
	residPath := filepath.Join(flags.outDir, "residuals.png")
	if err := decayplot.Residuals(s, res, residPath); err != nil {
		return err
	}

	// Stern-Volmer points from the fitted lifetimes at each measured
	// concentration.
	qs := s.Quenchers()
	ratios := make([]float64, len(qs))
	for i, q := range qs {
		ratios[i] = sv.Tau0 / sv.Tau(q)
	}
	svPath := filepath.Join(flags.outDir, "sternvolmer.png")
	if err := decayplot.SternVolmer(qs, ratios, sv, svPath); err != nil {
		return err
	}

	for _, p := range []string{decaysPath, residPath, svPath} {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}

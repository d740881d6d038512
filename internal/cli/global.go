// Package cli — global.go implements the "quenchfit global" command.
//
// global loads a concentration series from a YAML manifest, runs the
// shared-parameter fit over all curves, and reports the fitted
// parameters together with the Stern-Volmer analysis.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kmarkley/quenchfit/fit"
	"github.com/kmarkley/quenchfit/internal/config"
	"github.com/kmarkley/quenchfit/sternvolmer"
)

// NewGlobalCommand creates the "global" cobra command.
func NewGlobalCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "global <experiment.yaml>",
		Short: "Globally fit a quenching concentration series",
		Long: `Fit every curve of a concentration series at once.

The unquenched lifetime tau0, the bimolecular quenching rate kq and the
baseline are shared across curves; each curve keeps its own amplitude.
The Stern-Volmer constant Ksv = kq*tau0 is derived from the result with
its propagated uncertainty.

Examples:
  quenchfit global experiment.yaml
  quenchfit global experiment.yaml --json`,

		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGlobal(cmd, args[0])
		},
	}
}

func runGlobal(cmd *cobra.Command, manifest string) error {
	log := logger()

	cfg, err := config.Load(manifest)
	if err != nil {
		return err
	}
	s, err := cfg.LoadSeries()
	if err != nil {
		return err
	}
	log.Debug("loaded series", "curves", s.Len(), "channels", s.Channels())

	s.Prepare()
	res, err := fit.GlobalFit(s, cfg.InitVector(s), fit.Options{})
	if err != nil {
		return err
	}
	sv, err := sternvolmer.FromFit(res)
	if err != nil {
		return err
	}

	if jsonOutput {
		out := map[string]any{
			"converged":     res.Converged,
			"dof":           res.DOF,
			"reduced_chisq": res.ReducedChiSq,
			"tau0":          sv.Tau0,
			"tau0_err":      sv.Tau0Err,
			"kq":            sv.Kq,
			"kq_err":        sv.KqErr,
			"ksv":           sv.Ksv,
			"ksv_err":       sv.KsvErr,
			"params":        map[string]float64{},
		}
		params := out["params"].(map[string]float64)
		for i, name := range res.ParamNames {
			params[name] = res.Params[i]
		}
		return printJSON(cmd, out)
	}

	if err := printResult(cmd, res); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return sv.Report(cmd.OutOrStdout())
}

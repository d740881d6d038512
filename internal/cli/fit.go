// Package cli — fit.go implements the "quenchfit fit" command.
//
// fit reads one TSV decay histogram, trims it to its intensity peak,
// applies Poisson weights, and fits a single exponential with baseline.
package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kmarkley/quenchfit/dataset"
	"github.com/kmarkley/quenchfit/fit"
	"github.com/kmarkley/quenchfit/model"
)

// fitFlags holds the flag values for the fit command.
type fitFlags struct {
	headerLines  int
	channelWidth float64

	// init is an optional comma-separated "a,tau,c" start vector.
	init string
}

// NewFitCommand creates the "fit" cobra command.
func NewFitCommand() *cobra.Command {
	flags := &fitFlags{}

	cmd := &cobra.Command{
		Use:   "fit <decay.tsv>",
		Short: "Fit a single decay curve",
		Long: `Fit one decay histogram to I(t) = a*exp(-t/tau) + c.

Rows before the intensity peak are discarded and each count is weighted
by its Poisson uncertainty sqrt(N).

Examples:
  quenchfit fit q000.tsv
  quenchfit fit --channel-width 0.05 q000.tsv
  quenchfit fit --init 5000,4.2,30 q000.tsv --json`,

		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFit(cmd, args[0], flags)
		},
	}

	cmd.Flags().IntVar(&flags.headerLines, "header-lines", 9,
		"Header lines to skip (-1 for none)")
	cmd.Flags().Float64Var(&flags.channelWidth, "channel-width", 0,
		"Nanoseconds per channel (0 keeps the time column as read)")
	cmd.Flags().StringVar(&flags.init, "init", "",
		"Starting values a,tau,c (default: estimated from the data)")

	return cmd
}

func runFit(cmd *cobra.Command, path string, flags *fitFlags) error {
	log := logger()

	d, err := dataset.ReadTSV(path, dataset.ReadOptions{
		HeaderLines:  flags.headerLines,
		ChannelWidth: flags.channelWidth,
	})
	if err != nil {
		return err
	}
	log.Debug("loaded decay", "file", path, "rows", d.Len())

	d.TrimToPeak()
	d.ApplyPoissonSigma()
	log.Debug("trimmed to peak", "rows", d.Len())

	m, err := model.SingleExp()
	if err != nil {
		return err
	}

	init := fit.DefaultSingleInit(d)
	if flags.init != "" {
		if init, err = parseInit(flags.init, m.NumParams()); err != nil {
			return err
		}
	}

	res, err := fit.Fit(m, d, init, fit.Options{})
	if err != nil {
		return err
	}
	return printResult(cmd, res)
}

// parseInit parses a comma-separated float list of exactly n values.
func parseInit(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("--init needs %d values, got %d", n, len(parts))
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("--init value %q: %w", p, err)
		}
		out[i] = v
	}
	return out, nil
}

// printResult writes a fit result as a parameter table or JSON.
func printResult(cmd *cobra.Command, res *fit.Result) error {
	if jsonOutput {
		out := map[string]any{
			"converged":     res.Converged,
			"dof":           res.DOF,
			"reduced_chisq": res.ReducedChiSq,
			"params":        map[string]float64{},
			"stderr":        map[string]float64{},
		}
		params := out["params"].(map[string]float64)
		stderr := out["stderr"].(map[string]float64)
		for i, name := range res.ParamNames {
			params[name] = res.Params[i]
			if res.Stderr != nil {
				stderr[name] = res.Stderr[i]
			}
		}
		return printJSON(cmd, out)
	}

	w := cmd.OutOrStdout()
	for i, name := range res.ParamNames {
		if res.Stderr != nil {
			fmt.Fprintf(w, "%-6s %12.5g ± %.3g\n", name, res.Params[i], res.Stderr[i])
		} else {
			fmt.Fprintf(w, "%-6s %12.5g\n", name, res.Params[i])
		}
	}
	fmt.Fprintf(w, "reduced chi-square %.4g (dof %d)\n", res.ReducedChiSq, res.DOF)
	if !res.Converged {
		fmt.Fprintln(w, "warning: fit did not converge")
	}
	return nil
}

// Package cli — export.go implements the "quenchfit export" command.
//
// export loads a concentration series, prepares it the way the fit would
// (peak trim plus Poisson weights), and writes the combined long-format
// CSV and an optional binary snapshot for later sessions.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kmarkley/quenchfit/internal/config"
)

// exportFlags holds the flag values for the export command.
type exportFlags struct {
	csvPath      string
	snapshotPath string
	raw          bool
}

// NewExportCommand creates the "export" cobra command.
func NewExportCommand() *cobra.Command {
	flags := &exportFlags{}

	cmd := &cobra.Command{
		Use:   "export <experiment.yaml>",
		Short: "Export a prepared series as CSV and snapshot",
		Long: `Load the series named by the manifest and write it out.

The CSV holds one row per channel across all curves, with label,
quencher concentration, time, counts and Poisson sigma columns. The
snapshot is a binary dump that "quenchfit" tooling can restore without
reparsing the TSV files.

Examples:
  quenchfit export experiment.yaml --csv series.csv
  quenchfit export experiment.yaml --csv series.csv --snapshot series.bin
  quenchfit export experiment.yaml --raw --csv raw.csv`,

		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.csvPath, "csv", "", "CSV output path")
	cmd.Flags().StringVar(&flags.snapshotPath, "snapshot", "", "Binary snapshot output path")
	cmd.Flags().BoolVar(&flags.raw, "raw", false,
		"Export as read, without peak trim and Poisson weights")

	return cmd
}

func runExport(cmd *cobra.Command, manifest string, flags *exportFlags) error {
	if flags.csvPath == "" && flags.snapshotPath == "" {
		return fmt.Errorf("nothing to do: pass --csv and/or --snapshot")
	}
	log := logger()

	cfg, err := config.Load(manifest)
	if err != nil {
		return err
	}
	s, err := cfg.LoadSeries()
	if err != nil {
		return err
	}
	if !flags.raw {
		s.Prepare()
	}
	log.Debug("exporting series", "curves", s.Len(), "channels", s.Channels())

	if flags.csvPath != "" {
		f, err := os.Create(flags.csvPath)
		if err != nil {
			return err
		}
		if err := s.WriteCSV(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		log.Debug("wrote csv", "path", flags.csvPath)
	}

	if flags.snapshotPath != "" {
		f, err := os.Create(flags.snapshotPath)
		if err != nil {
			return err
		}
		if err := s.Snapshot(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		log.Debug("wrote snapshot", "path", flags.snapshotPath)
	}
	return nil
}

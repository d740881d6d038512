// Package cli implements the cobra-based commands of the quenchfit tool.
//
// Each subcommand (fit, global, export, plot) lives in its own file. This
// file defines the root command, the global flags, and the shared output
// helpers.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Global flag variables, bound to persistent flags on the root command.
var (
	// jsonOutput switches successful command output to JSON.
	jsonOutput bool

	// verbose enables debug logging on stderr.
	verbose bool
)

// Version, Commit and Date are injected at build time via ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// NewRootCommand creates the root cobra command. The root carries only
// help text and the global flags; the work happens in the subcommands.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "quenchfit",
		Short: "Global analysis of fluorescence quenching decays",
		Long: `quenchfit fits time-correlated single photon counting decay curves.

A single curve can be fit to an exponential with baseline, or a whole
concentration series can be fit globally with shared lifetime, quenching
rate and baseline, yielding the Stern-Volmer constant.`,

		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(NewFitCommand())
	rootCmd.AddCommand(NewGlobalCommand())
	rootCmd.AddCommand(NewExportCommand())
	rootCmd.AddCommand(NewPlotCommand())

	return rootCmd
}

// Execute runs the root command and maps errors to exit codes.
func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

// logger returns a stderr slog handler honoring the --verbose flag.
func logger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// printError writes an error to stderr, as JSON when --json is set.
// Stdout stays reserved for successful command output.
func printError(err error) {
	if jsonOutput {
		data, _ := json.MarshalIndent(map[string]any{
			"error": map[string]any{"message": err.Error()},
		}, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

// printJSON writes v to the command's stdout as indented JSON.
func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

package cli

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeDecayTSV writes a headerless TSV with a short rising edge followed
// by a quenched exponential decay, and returns its path.
func writeDecayTSV(t *testing.T, dir, name string, q float64) string {
	t.Helper()
	var sb strings.Builder
	rate := 1/4.5 + 6.0*q
	for i := 0; i < 120; i++ {
		tt := float64(i) * 0.1
		var counts float64
		if i < 3 {
			// Instrument rise before the peak.
			counts = 1000 * float64(i+1)
		} else {
			counts = 5000*math.Exp(-(tt-0.3)*rate) + 25
		}
		fmt.Fprintf(&sb, "%.1f\t%.3f\n", tt, counts)
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

// run executes the root command with args and returns captured stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { jsonOutput, verbose = false, false })

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestFitCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeDecayTSV(t, dir, "pure.tsv", 0)

	out, err := run(t, "fit", "--header-lines=-1", path)
	require.NoError(t, err)

	assert.Contains(t, out, "tau")
	assert.Contains(t, out, "reduced chi-square")
	assert.NotContains(t, out, "did not converge")
}

func TestFitCommand_JSON(t *testing.T) {
	dir := t.TempDir()
	path := writeDecayTSV(t, dir, "pure.tsv", 0)

	out, err := run(t, "fit", "--json", "--header-lines=-1", path)
	require.NoError(t, err)

	assert.Contains(t, out, `"converged": true`)
	assert.Contains(t, out, `"tau"`)
}

func TestFitCommand_BadInitFlag(t *testing.T) {
	dir := t.TempDir()
	path := writeDecayTSV(t, dir, "pure.tsv", 0)

	_, err := run(t, "fit", "--header-lines=-1", "--init", "1,2", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--init needs 3 values")
}

func TestFitCommand_MissingFile(t *testing.T) {
	_, err := run(t, "fit", filepath.Join(t.TempDir(), "nope.tsv"))
	assert.Error(t, err)
}

func writeExperiment(t *testing.T, dir string) string {
	t.Helper()
	for i, q := range []float64{0, 0.02, 0.04, 0.06, 0.08} {
		writeDecayTSV(t, dir, fmt.Sprintf("q%d.tsv", i), q)
	}
	manifest := filepath.Join(dir, "experiment.yaml")
	body := `
header_lines: -1
curves:
  - { file: q0.tsv, quencher: 0 }
  - { file: q1.tsv, quencher: 0.02 }
  - { file: q2.tsv, quencher: 0.04 }
  - { file: q3.tsv, quencher: 0.06 }
  - { file: q4.tsv, quencher: 0.08 }
init:
  tau0: 4
  kq: 5
  baseline: 20
`
	require.NoError(t, os.WriteFile(manifest, []byte(body), 0o644))
	return manifest
}

func TestGlobalCommand(t *testing.T) {
	manifest := writeExperiment(t, t.TempDir())

	out, err := run(t, "global", manifest)
	require.NoError(t, err)

	assert.Contains(t, out, "tau0")
	assert.Contains(t, out, "Ksv")
	assert.NotContains(t, out, "did not converge")
}

func TestGlobalCommand_JSON(t *testing.T) {
	manifest := writeExperiment(t, t.TempDir())

	out, err := run(t, "global", "--json", manifest)
	require.NoError(t, err)

	assert.Contains(t, out, `"ksv"`)
	assert.Contains(t, out, `"converged": true`)
}

func TestExportCommand(t *testing.T) {
	dir := t.TempDir()
	manifest := writeExperiment(t, dir)

	csvPath := filepath.Join(dir, "series.csv")
	snapPath := filepath.Join(dir, "series.bin")
	_, err := run(t, "export", manifest, "--csv", csvPath, "--snapshot", snapPath)
	require.NoError(t, err)

	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "quencher")

	info, err := os.Stat(snapPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestExportCommand_NoOutputs(t *testing.T) {
	manifest := writeExperiment(t, t.TempDir())

	_, err := run(t, "export", manifest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to do")
}

func TestPlotCommand(t *testing.T) {
	dir := t.TempDir()
	manifest := writeExperiment(t, dir)

	figDir := filepath.Join(dir, "figures")
	out, err := run(t, "plot", manifest, "--out", figDir)
	require.NoError(t, err)

	for _, name := range []string{"decays.png", "residuals.png", "sternvolmer.png"} {
		assert.Contains(t, out, name)
		_, err := os.Stat(filepath.Join(figDir, name))
		assert.NoError(t, err, name)
	}
}

// Package dataset loads time-correlated single photon counting (TCSPC)
// decay histograms from flat text files and assembles them into the
// combined table the fitting and export layers consume.
//
// The raw instrument files are tab-separated with a fixed-size free-form
// header followed by two numeric columns: time (or channel number) and
// photon count. One file corresponds to one quencher concentration.
package dataset

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// DefaultHeaderLines is the number of header lines the instrument writes
// before the numeric block.
const DefaultHeaderLines = 9

// Decay is a single fluorescence decay histogram.
type Decay struct {
	// Label identifies the curve in reports and plots, usually the
	// source file name.
	Label string

	// Quencher is the quencher concentration for this curve, in the
	// units of the experiment manifest (typically mol/L).
	Quencher float64

	// Time, Counts and Sigma are parallel slices: arrival time, photon
	// count and count uncertainty per channel. Sigma is empty until
	// ApplyPoissonSigma is called.
	Time   []float64
	Counts []float64
	Sigma  []float64
}

// ReadOptions controls TSV parsing.
type ReadOptions struct {
	// HeaderLines is the number of lines to skip before the numeric
	// block. Zero means DefaultHeaderLines; use a negative value for a
	// file with no header at all.
	HeaderLines int

	// ChannelWidth, when positive, multiplies the first column: raw
	// files often store a channel index rather than a time, and time is
	// channel * width (in ns).
	ChannelWidth float64
}

func (o ReadOptions) headerLines() int {
	if o.HeaderLines == 0 {
		return DefaultHeaderLines
	}
	if o.HeaderLines < 0 {
		return 0
	}
	return o.HeaderLines
}

// ReadTSV reads one decay histogram from path. Blank lines inside the
// numeric block are skipped; malformed numeric lines are an error carrying
// file and line context.
func ReadTSV(path string, opts ReadOptions) (*Decay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	defer f.Close()

	d := &Decay{Label: path}
	skip := opts.headerLines()
	sc := bufio.NewScanner(f)
	lineno := 0
	for sc.Scan() {
		lineno++
		if lineno <= skip {
			continue
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("dataset: %s:%d: expected 2 columns, got %d", path, lineno, len(fields))
		}
		t, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("dataset: %s:%d: bad time value %q: %w", path, lineno, fields[0], err)
		}
		c, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("dataset: %s:%d: bad count value %q: %w", path, lineno, fields[1], err)
		}
		if opts.ChannelWidth > 0 {
			t *= opts.ChannelWidth
		}
		d.Time = append(d.Time, t)
		d.Counts = append(d.Counts, c)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("dataset: reading %s: %w", path, err)
	}
	if len(d.Time) == 0 {
		return nil, fmt.Errorf("dataset: %s: no data rows after %d header lines", path, skip)
	}
	return d, nil
}

// Len returns the number of channels.
func (d *Decay) Len() int { return len(d.Time) }

// PeakIndex returns the channel holding the maximum count.
func (d *Decay) PeakIndex() int {
	best := 0
	for i, c := range d.Counts {
		if c > d.Counts[best] {
			best = i
		}
	}
	return best
}

// TrimToPeak discards every channel before the intensity maximum. The
// rising edge of a TCSPC histogram is dominated by the instrument response
// and must not enter the fit. Calling it twice is a no-op: the peak of a
// trimmed decay is its first channel.
func (d *Decay) TrimToPeak() {
	p := d.PeakIndex()
	if p == 0 {
		return
	}
	d.Time = d.Time[p:]
	d.Counts = d.Counts[p:]
	if len(d.Sigma) > p {
		d.Sigma = d.Sigma[p:]
	} else {
		d.Sigma = nil
	}
}

// ApplyPoissonSigma sets the per-channel uncertainty to sqrt(count),
// flooring empty channels at 1 so weights stay finite.
func (d *Decay) ApplyPoissonSigma() {
	d.Sigma = make([]float64, len(d.Counts))
	for i, c := range d.Counts {
		if c < 1 {
			d.Sigma[i] = 1
			continue
		}
		d.Sigma[i] = math.Sqrt(c)
	}
}

// Validate checks the structural invariants the fitter relies on.
func (d *Decay) Validate() error {
	if len(d.Time) == 0 {
		return fmt.Errorf("dataset: %s: empty decay", d.Label)
	}
	if len(d.Counts) != len(d.Time) {
		return fmt.Errorf("dataset: %s: %d times but %d counts", d.Label, len(d.Time), len(d.Counts))
	}
	if len(d.Sigma) != 0 && len(d.Sigma) != len(d.Time) {
		return fmt.Errorf("dataset: %s: %d times but %d sigmas", d.Label, len(d.Time), len(d.Sigma))
	}
	for i := 1; i < len(d.Time); i++ {
		if d.Time[i] <= d.Time[i-1] {
			return fmt.Errorf("dataset: %s: time not strictly increasing at row %d", d.Label, i)
		}
	}
	if d.Quencher < 0 {
		return fmt.Errorf("dataset: %s: negative quencher concentration %g", d.Label, d.Quencher)
	}
	return nil
}

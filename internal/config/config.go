// Package config loads the YAML manifest describing a quenching
// experiment: which TSV files to read, their quencher concentrations,
// and optional starting values for the global fit.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kmarkley/quenchfit/dataset"
)

// Curve names one decay histogram of the series.
type Curve struct {
	// File is the TSV path, resolved relative to the manifest.
	File string `yaml:"file"`

	// Quencher is the quencher concentration of this measurement.
	Quencher float64 `yaml:"quencher"`

	// Label defaults to the file name without extension.
	Label string `yaml:"label,omitempty"`
}

// Init carries optional starting values for the shared fit parameters.
// Amplitudes are always seeded from the data.
type Init struct {
	Tau0     float64 `yaml:"tau0"`
	Kq       float64 `yaml:"kq"`
	Baseline float64 `yaml:"baseline"`
}

// Config is the experiment manifest.
type Config struct {
	// HeaderLines is the number of header lines to skip in each TSV.
	// Zero means the instrument default of nine; -1 means none.
	HeaderLines int `yaml:"header_lines,omitempty"`

	// ChannelWidth converts channel indices in the time column to
	// nanoseconds. Zero leaves the time column as read.
	ChannelWidth float64 `yaml:"channel_width,omitempty"`

	Curves []Curve `yaml:"curves"`

	Init *Init `yaml:"init,omitempty"`

	// dir is the manifest's directory, for resolving relative paths.
	dir string
}

// Load reads and validates a manifest. Unknown keys are rejected so a
// typo in a field name fails loudly instead of silently using defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var c Config
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	c.dir = filepath.Dir(path)

	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &c, nil
}

func (c *Config) validate() error {
	if len(c.Curves) < 2 {
		return errors.New("need at least two curves")
	}
	seen := make(map[float64]string, len(c.Curves))
	for i := range c.Curves {
		cv := &c.Curves[i]
		if cv.File == "" {
			return fmt.Errorf("curve %d has no file", i)
		}
		if cv.Quencher < 0 || math.IsNaN(cv.Quencher) {
			return fmt.Errorf("curve %d: bad quencher concentration %v", i, cv.Quencher)
		}
		if prev, dup := seen[cv.Quencher]; dup {
			return fmt.Errorf("curves %s and %s share quencher concentration %g",
				prev, cv.File, cv.Quencher)
		}
		seen[cv.Quencher] = cv.File
		if cv.Label == "" {
			base := filepath.Base(cv.File)
			cv.Label = strings.TrimSuffix(base, filepath.Ext(base))
		}
	}
	if c.HeaderLines < -1 {
		return fmt.Errorf("bad header_lines %d", c.HeaderLines)
	}
	if c.ChannelWidth < 0 {
		return fmt.Errorf("bad channel_width %g", c.ChannelWidth)
	}
	return nil
}

// readOptions maps the manifest fields onto dataset read options.
func (c *Config) readOptions() dataset.ReadOptions {
	return dataset.ReadOptions{
		HeaderLines:  c.HeaderLines,
		ChannelWidth: c.ChannelWidth,
	}
}

// LoadSeries reads every TSV named by the manifest and assembles the
// concentration series. Relative paths are resolved against the
// manifest's directory.
func (c *Config) LoadSeries() (*dataset.Series, error) {
	opts := c.readOptions()
	decays := make([]*dataset.Decay, 0, len(c.Curves))
	for _, cv := range c.Curves {
		path := cv.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.dir, path)
		}
		d, err := dataset.ReadTSV(path, opts)
		if err != nil {
			return nil, err
		}
		d.Label = cv.Label
		d.Quencher = cv.Quencher
		decays = append(decays, d)
	}
	return dataset.NewSeries(decays...)
}

// InitVector builds the global-fit start vector [tau0, kq, c, a_1..a_n]
// from the manifest's init block, seeding amplitudes from each curve's
// peak. It returns nil when the manifest has no init block, which tells
// the fit to estimate everything from the data.
func (c *Config) InitVector(s *dataset.Series) []float64 {
	if c.Init == nil {
		return nil
	}
	init := []float64{c.Init.Tau0, c.Init.Kq, c.Init.Baseline}
	for _, d := range s.Decays {
		peak := d.Counts[d.PeakIndex()] - c.Init.Baseline
		if peak < 1 {
			peak = 1
		}
		init = append(init, peak)
	}
	return init
}

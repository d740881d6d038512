package dataset

import (
	"encoding/gob"
	"fmt"
	"io"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Series is an ordered quencher-concentration series: the same fluorophore
// measured at several quencher concentrations, lowest first. The global
// fit consumes a Series as a unit.
type Series struct {
	Decays []*Decay
}

// NewSeries validates the decays, orders them by quencher concentration
// and returns the series. Duplicate concentrations are rejected: the
// global fit assigns one amplitude per concentration.
func NewSeries(decays ...*Decay) (*Series, error) {
	if len(decays) == 0 {
		return nil, fmt.Errorf("dataset: empty series")
	}
	seen := map[float64]string{}
	for _, d := range decays {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if prev, dup := seen[d.Quencher]; dup {
			return nil, fmt.Errorf("dataset: %s and %s share quencher concentration %g", prev, d.Label, d.Quencher)
		}
		seen[d.Quencher] = d.Label
	}
	out := make([]*Decay, len(decays))
	copy(out, decays)
	sort.Slice(out, func(i, j int) bool { return out[i].Quencher < out[j].Quencher })
	return &Series{Decays: out}, nil
}

// Len returns the number of curves.
func (s *Series) Len() int { return len(s.Decays) }

// Quenchers returns the concentrations in series order.
func (s *Series) Quenchers() []float64 {
	out := make([]float64, len(s.Decays))
	for i, d := range s.Decays {
		out[i] = d.Quencher
	}
	return out
}

// Channels returns the total channel count across all curves, which is
// also the length of the stacked residual vector.
func (s *Series) Channels() int {
	n := 0
	for _, d := range s.Decays {
		n += d.Len()
	}
	return n
}

// Prepare applies the standard preprocessing to every curve: trim to the
// intensity peak, then attach Poisson uncertainties.
func (s *Series) Prepare() {
	for _, d := range s.Decays {
		d.TrimToPeak()
		d.ApplyPoissonSigma()
	}
}

// Frame flattens the series into a long-format dataframe with one row per
// channel: label, quencher, time, counts, sigma. Long format sidesteps the
// ragged lengths left behind by per-curve peak trimming.
func (s *Series) Frame() dataframe.DataFrame {
	n := s.Channels()
	labels := make([]string, 0, n)
	quencher := make([]float64, 0, n)
	times := make([]float64, 0, n)
	counts := make([]float64, 0, n)
	sigmas := make([]float64, 0, n)
	for _, d := range s.Decays {
		for i := range d.Time {
			labels = append(labels, d.Label)
			quencher = append(quencher, d.Quencher)
			times = append(times, d.Time[i])
			counts = append(counts, d.Counts[i])
			if len(d.Sigma) == len(d.Time) {
				sigmas = append(sigmas, d.Sigma[i])
			} else {
				sigmas = append(sigmas, 0)
			}
		}
	}
	return dataframe.New(
		series.New(labels, series.String, "label"),
		series.New(quencher, series.Float, "quencher"),
		series.New(times, series.Float, "time"),
		series.New(counts, series.Float, "counts"),
		series.New(sigmas, series.Float, "sigma"),
	)
}

// WriteCSV writes the combined long-format table to w.
func (s *Series) WriteCSV(w io.Writer) error {
	df := s.Frame()
	if df.Error() != nil {
		return fmt.Errorf("dataset: building frame: %w", df.Error())
	}
	if err := df.WriteCSV(w); err != nil {
		return fmt.Errorf("dataset: writing csv: %w", err)
	}
	return nil
}

// snapshotVersion guards the gob layout. Bump on incompatible changes to
// Decay or Series.
const snapshotVersion = 1

type snapshot struct {
	Version int
	Decays  []*Decay
}

// Snapshot writes a binary dump of the series to w, the fast reload path
// for a prepared series between analysis sessions.
func (s *Series) Snapshot(w io.Writer) error {
	enc := gob.NewEncoder(w)
	if err := enc.Encode(snapshot{Version: snapshotVersion, Decays: s.Decays}); err != nil {
		return fmt.Errorf("dataset: encoding snapshot: %w", err)
	}
	return nil
}

// Restore reads a series previously written by Snapshot.
func Restore(r io.Reader) (*Series, error) {
	var snap snapshot
	if err := gob.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("dataset: decoding snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("dataset: snapshot version %d, want %d", snap.Version, snapshotVersion)
	}
	return NewSeries(snap.Decays...)
}

// Package verify checks the quality of a template through the deformation of
// its samples and the agreement of their segmentations.
package verify

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrNoValues          = errors.New("no values to summarize")
	ErrDimensionMismatch = errors.New("volumes do not share dimensions")
)

// Summary describes the distribution of log Jacobian values.
type Summary struct {
	N    int
	Mean float64
	SD   float64
	// Low and High bound the central 95% of the values.
	Low  float64
	High float64
}

// Summarize computes the population mean and standard deviation and the 2.5 and 97.5 percentiles.
func Summarize(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, ErrNoValues
	}

	mean, sd := stat.PopMeanStdDev(values, nil)
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	return Summary{
		N:    len(values),
		Mean: mean,
		SD:   sd,
		Low:  Percentile(sorted, 2.5),
		High: Percentile(sorted, 97.5),
	}, nil
}

// Percentile interpolates linearly between the closest ranks of sorted.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}

	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo < 0 {
		lo = 0
	}
	if hi > len(sorted)-1 {
		hi = len(sorted) - 1
	}

	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

// WriteTo writes the summary in the jacobian_values.txt layout.
func (s Summary) WriteTo(w io.Writer) (int64, error) {
	n, err := fmt.Fprintf(w, "Mean log jacobian: %.4f\nSD log jacobian: %.4f\n95%% CI: [%.4f, %.4f]\n", s.Mean, s.SD, s.Low, s.High)

	return int64(n), err
}

func writeSummary(path string, s Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", path)
	}
	if _, err := s.WriteTo(f); err != nil {
		f.Close()

		return errors.Wrapf(err, "unable to write %s", path)
	}

	return errors.Wrapf(f.Close(), "unable to close %s", path)
}

// Linspace returns n evenly spaced values from start to stop included.
func Linspace(start, stop float64, n int) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{start}
	}

	return floats.Span(make([]float64, n), start, stop)
}

// Digitize returns the index of the bin holding x, counting the edges lower than or equal to x, minus one.
// Values below the first edge get -1.
func Digitize(x float64, edges []float64) int {
	return sort.Search(len(edges), func(i int) bool { return edges[i] > x }) - 1
}

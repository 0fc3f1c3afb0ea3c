// Package stats summarizes numeric columns that may hold missing values.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the present values of a column.
type Summary struct {
	Count   int
	Missing int
	Mean    float64
	Std     float64 // sample standard deviation, NaN below two values
	Min     float64
	Median  float64
	Max     float64
}

// Summarize skips NaN values. Every statistic of a column with no present
// value is NaN.
func Summarize(x []float64) Summary {
	vals := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	s := Summary{Count: len(vals), Missing: len(x) - len(vals)}
	if len(vals) == 0 {
		nan := math.NaN()
		s.Mean, s.Std, s.Min, s.Median, s.Max = nan, nan, nan, nan, nan
		return s
	}
	sort.Float64s(vals)
	s.Mean, s.Std = stat.MeanStdDev(vals, nil)
	s.Min, s.Max = floats.Min(vals), floats.Max(vals)
	s.Median = Median(vals)
	return s
}

// Median of sorted values, averaging the two middle ones when the count is even.
func Median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	mid := n / 2
	if n%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

package dataprep

import (
	"math"

	"github.com/Taha-Alami/Chrun-prediction/pkg/frame"
)

// AtLeast keeps the rows whose column value is >= min. Missing values fail.
func AtLeast(f *frame.Frame, column string, min float64) (*frame.Frame, error) {
	vals, err := f.Float(column)
	if err != nil {
		return nil, err
	}
	return f.Filter(func(i int) bool { return vals[i] >= min }), nil
}

// AtMost keeps the rows whose column value is <= max. Missing values fail.
func AtMost(f *frame.Frame, column string, max float64) (*frame.Frame, error) {
	vals, err := f.Float(column)
	if err != nil {
		return nil, err
	}
	return f.Filter(func(i int) bool { return vals[i] <= max }), nil
}

// RevenueGrowth rewrites revenue_growth, the absolute change of six-month
// revenue, as growth relative to the previous six months:
//
//	revenue_6_months / (revenue_6_months - revenue_growth) - 1
//
// Results that are not finite (no previous revenue) become missing.
func RevenueGrowth(f *frame.Frame) (*frame.Frame, error) {
	r6, err := f.Float(ColRevenue6Months)
	if err != nil {
		return nil, err
	}
	delta, err := f.Float(ColRevenueGrowth)
	if err != nil {
		return nil, err
	}
	growth := make([]float64, len(r6))
	for i := range r6 {
		g := r6[i]/(r6[i]-delta[i]) - 1
		if math.IsInf(g, 0) {
			g = math.NaN()
		}
		growth[i] = g
	}
	out := f.Clone()
	return out, out.SetFloat(ColRevenueGrowth, growth)
}

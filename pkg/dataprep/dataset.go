package dataprep

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/Taha-Alami/Chrun-prediction/pkg/frame"
	"github.com/Taha-Alami/Chrun-prediction/pkg/pipeline"
)

// ErrBadLabel is returned when a label is not 0 or 1.
var ErrBadLabel = errors.New("dataprep: label must be 0 or 1")

// Options configure feature engineering.
type Options struct {
	Label             string
	Features          []string
	MinTenure         float64
	MaxInactiveMonths float64
	MinRevenue        float64
	Decimals          int32
	Logger            *zap.Logger
	Observer          pipeline.Observer
}

// DefaultOptions returns the thresholds the churn model is trained with.
func DefaultOptions() Options {
	return Options{
		Label:             ColChurn,
		Features:          append([]string(nil), NumericalFeatures...),
		MinTenure:         6,
		MaxInactiveMonths: 9,
		MinRevenue:        300,
		Decimals:          2,
	}
}

// Dataset is a feature matrix ready for the model.
type Dataset struct {
	X        [][]float64
	Y        []int // nil for prediction data
	Features []string
	// Keys holds the identifier columns of the rows kept, aligned with X.
	Keys *frame.Frame
	// Frame is the engineered table of the rows kept, aligned with X.
	Frame *frame.Frame
	// Rows are the positions in the input table of the rows kept.
	Rows []int
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.X) }

// Positives counts rows labelled 1.
func (d *Dataset) Positives() int {
	n := 0
	for _, y := range d.Y {
		n += y
	}
	return n
}

// Steps returns the feature engineering steps shared by training and
// prediction data.
func Steps(opts Options) []pipeline.Step {
	return []pipeline.Step{
		pipeline.StepFunc{StepName: "drop_identifiers", Fn: func(f *frame.Frame) (*frame.Frame, error) {
			return dropPresent(f, DroppedColumns...)
		}},
		pipeline.StepFunc{StepName: "cast_types", Fn: CastTypes},
		pipeline.StepFunc{StepName: "fill_tenure", Fn: func(f *frame.Frame) (*frame.Frame, error) {
			return FillMissing(f, ColTenure, 0)
		}},
		pipeline.StepFunc{StepName: "min_tenure", Fn: func(f *frame.Frame) (*frame.Frame, error) {
			return AtLeast(f, ColTenure, opts.MinTenure)
		}},
		pipeline.StepFunc{StepName: "max_inactive_months", Fn: func(f *frame.Frame) (*frame.Frame, error) {
			return AtMost(f, ColInactiveMonths, opts.MaxInactiveMonths)
		}},
		pipeline.StepFunc{StepName: "min_revenue", Fn: func(f *frame.Frame) (*frame.Frame, error) {
			return AtLeast(f, ColRevenue12Months, opts.MinRevenue)
		}},
		pipeline.StepFunc{StepName: "revenue_growth", Fn: RevenueGrowth},
	}
}

// LoadTraining engineers features and extracts the label. Every label of a
// kept row must be 0 or 1.
func LoadTraining(raw *frame.Frame, opts Options) (*Dataset, error) {
	engineered, keys, err := engineer(raw, Steps(opts), opts)
	if err != nil {
		return nil, err
	}
	labels, err := engineered.Float(opts.Label)
	if err != nil {
		return nil, fmt.Errorf("dataprep: label: %w", err)
	}
	y := make([]int, len(labels))
	for i, v := range labels {
		if v != 0 && v != 1 {
			return nil, fmt.Errorf("%w: row %d has %v", ErrBadLabel, engineered.Index()[i], v)
		}
		y[i] = int(v)
	}
	ds, err := matrix(engineered, keys, opts)
	if err != nil {
		return nil, err
	}
	ds.Y = y
	return ds, nil
}

// LoadPrediction cleans and engineers prediction data. There is no label.
func LoadPrediction(raw *frame.Frame, opts Options) (*Dataset, error) {
	steps := append([]pipeline.Step{
		pipeline.StepFunc{StepName: "clean_for_prediction", Fn: CleanForPrediction},
	}, Steps(opts)...)
	engineered, keys, err := engineer(raw, steps, opts)
	if err != nil {
		return nil, err
	}
	return matrix(engineered, keys, opts)
}

func engineer(raw *frame.Frame, steps []pipeline.Step, opts Options) (*frame.Frame, *frame.Frame, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	in := raw.Clone()
	in.ResetIndex()

	p := pipeline.NewPipeline(logger, steps...)
	if opts.Observer != nil {
		p.Observe(opts.Observer)
	}
	out, err := p.Run(in)
	if err != nil {
		return nil, nil, fmt.Errorf("dataprep: %w", err)
	}

	var ids []string
	for _, c := range []string{ColAccount, ColClientOriginCode, ColClientCode} {
		if in.Has(c) {
			ids = append(ids, c)
		}
	}
	keys, err := in.Select(ids...)
	if err != nil {
		return nil, nil, err
	}
	keys = keys.Rows(out.Index())
	keys.ResetIndex()
	return out, keys, nil
}

// dropPresent drops the named columns the frame has and ignores the rest.
func dropPresent(f *frame.Frame, names ...string) (*frame.Frame, error) {
	var present []string
	for _, name := range names {
		if f.Has(name) {
			present = append(present, name)
		}
	}
	return f.Drop(present...)
}

func matrix(engineered, keys *frame.Frame, opts Options) (*Dataset, error) {
	if err := pipeline.NumericSchema(opts.Features...).Validate(engineered); err != nil {
		return nil, fmt.Errorf("dataprep: features: %w", err)
	}
	features, err := engineered.Select(opts.Features...)
	if err != nil {
		return nil, fmt.Errorf("dataprep: features: %w", err)
	}
	features = features.Round(opts.Decimals)
	features.ResetIndex()
	x, err := features.Matrix(opts.Features...)
	if err != nil {
		return nil, err
	}
	for i, row := range x {
		for j, v := range row {
			if math.IsInf(v, 0) {
				return nil, fmt.Errorf("dataprep: row %d feature %s is infinite", i, opts.Features[j])
			}
		}
	}
	rest := engineered.Clone()
	rest.ResetIndex()
	for _, name := range opts.Features {
		vals, _ := features.Float(name)
		if err := rest.SetFloat(name, vals); err != nil {
			return nil, err
		}
	}
	return &Dataset{
		X:        x,
		Features: append([]string(nil), opts.Features...),
		Keys:     keys,
		Frame:    rest,
		Rows:     engineered.Index(),
	}, nil
}

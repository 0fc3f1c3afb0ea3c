package churn

import (
	"context"
	"fmt"

	"github.com/Taha-Alami/Chrun-prediction/pkg/dataprep"
	"github.com/Taha-Alami/Chrun-prediction/pkg/frame"
	"github.com/Taha-Alami/Chrun-prediction/pkg/model"
	"github.com/Taha-Alami/Chrun-prediction/pkg/tracking"
)

// Output columns of a scored table.
const (
	ColProbability = "churn_probability"
	ColPrediction  = "predictions"
)

// Scorer applies a logged model to raw observation tables.
type Scorer struct {
	model     *tracking.LoggedModel
	uri       string
	opts      dataprep.Options
	threshold float64
}

// LoadScorer loads the model at uri. The feature list of opts is replaced by
// the one the model was trained with.
func LoadScorer(ctx context.Context, t tracking.Tracker, uri string, opts dataprep.Options, threshold float64) (*Scorer, error) {
	lm, err := tracking.LoadModel(ctx, t, uri)
	if err != nil {
		return nil, fmt.Errorf("churn: load model %s: %w", uri, err)
	}
	if features := lm.Features(); len(features) > 0 {
		opts.Features = features
	}
	return &Scorer{model: lm, uri: uri, opts: opts, threshold: threshold}, nil
}

// LoadScorer loads the latest registered version of the configured model.
func (r *Runner) LoadScorer(ctx context.Context) (*Scorer, error) {
	return LoadScorer(ctx, r.tracker, r.ModelURI(), r.featureOptions(), r.cfg.Training.Threshold)
}

// URI returns the uri the model was loaded from.
func (s *Scorer) URI() string { return s.uri }

// Version returns the registered version of the model, 0 when it was loaded
// from a run.
func (s *Scorer) Version() int {
	if s.model.Version == nil {
		return 0
	}
	return s.model.Version.Version
}

// Features returns the model inputs in order.
func (s *Scorer) Features() []string { return s.opts.Features }

// Scores are the model outputs for the eligible rows of a table.
type Scores struct {
	Dataset  *dataprep.Dataset
	Proba    []float64
	Labels   []int
	InputLen int
}

// Ineligible counts input rows removed by the eligibility filters.
func (s *Scores) Ineligible() int { return s.InputLen - s.Dataset.Len() }

// Churners counts rows predicted to churn.
func (s *Scores) Churners() int {
	n := 0
	for _, l := range s.Labels {
		n += l
	}
	return n
}

// Score engineers raw the same way as at training time and predicts every
// row that passes the eligibility filters.
func (s *Scorer) Score(raw *frame.Frame) (*Scores, error) {
	ds, err := dataprep.LoadPrediction(raw, s.opts)
	if err != nil {
		return nil, err
	}
	proba, err := s.model.Model.PredictProba(ds.X)
	if err != nil {
		return nil, fmt.Errorf("churn: predict: %w", err)
	}
	return &Scores{
		Dataset:  ds,
		Proba:    proba,
		Labels:   model.BinaryPredFromProba(proba, s.threshold),
		InputLen: raw.Len(),
	}, nil
}

// Frame lays the scores out as identifiers, features, probability and label.
func (s *Scores) Frame() (*frame.Frame, error) {
	out := s.Dataset.Keys.Clone()
	for _, name := range s.Dataset.Features {
		vals, err := s.Dataset.Frame.Float(name)
		if err != nil {
			return nil, err
		}
		if err := out.SetFloat(name, vals); err != nil {
			return nil, err
		}
	}
	labels := make([]float64, len(s.Labels))
	for i, l := range s.Labels {
		labels[i] = float64(l)
	}
	if err := out.SetFloat(ColProbability, s.Proba); err != nil {
		return nil, err
	}
	if err := out.SetFloat(ColPrediction, labels); err != nil {
		return nil, err
	}
	return out, nil
}

package churn

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Taha-Alami/Chrun-prediction/pkg/events"
)

// PredictResult summarises a prediction batch.
type PredictResult struct {
	Rows         int
	Ineligible   int
	Churners     int
	ModelVersion int
	Output       string
}

// Predict scores the prediction table with the latest registered model and
// writes the predictions file.
func (r *Runner) Predict(ctx context.Context) (res *PredictResult, err error) {
	start := time.Now()
	defer func() { r.metrics.RecordStage("predict", err, time.Since(start)) }()

	raw, err := readTable(r.cfg.Paths.Predict)
	if err != nil {
		return nil, err
	}
	r.metrics.RecordRows("predict", raw.Len())

	scorer, err := r.LoadScorer(ctx)
	if err != nil {
		return nil, err
	}
	r.logger.Info("model loaded", zap.String("uri", scorer.URI()), zap.Int("version", scorer.Version()))
	r.metrics.SetModelVersion(scorer.Version())

	scores, err := scorer.Score(raw)
	if err != nil {
		return nil, err
	}
	out, err := scores.Frame()
	if err != nil {
		return nil, err
	}
	if err := writeTable(out, r.cfg.Paths.Predictions); err != nil {
		return nil, err
	}

	res = &PredictResult{
		Rows:         scores.Dataset.Len(),
		Ineligible:   scores.Ineligible(),
		Churners:     scores.Churners(),
		ModelVersion: scorer.Version(),
		Output:       r.cfg.Paths.Predictions,
	}
	r.metrics.RecordPredictions(res.Churners, res.Rows-res.Churners, res.Ineligible)
	r.logger.Info("predictions written",
		zap.String("path", res.Output),
		zap.Int("rows", res.Rows),
		zap.Int("ineligible", res.Ineligible),
		zap.Int("churners", res.Churners),
	)

	evt := events.New(events.TypePredictionsCompleted, r.cfg.Training.ModelName, events.PredictionsCompleted{
		ModelURI:     scorer.URI(),
		ModelVersion: res.ModelVersion,
		Rows:         res.Rows,
		Churners:     res.Churners,
		Output:       res.Output,
	})
	if err := r.publisher.Publish(ctx, evt); err != nil {
		r.logger.Warn("failed to publish event", zap.String("event_type", evt.Type), zap.Error(err))
	}
	return res, nil
}

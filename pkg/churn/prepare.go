package churn

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Taha-Alami/Chrun-prediction/pkg/frame"
	"github.com/Taha-Alami/Chrun-prediction/pkg/source"
)

// Prepare assembles the train, test and prediction tables from the source
// and writes them to the configured paths. A zero last uses the latest date
// in the source.
func (r *Runner) Prepare(ctx context.Context, last time.Time) (ds *source.Datasets, err error) {
	start := time.Now()
	defer func() { r.metrics.RecordStage("prepare", err, time.Since(start)) }()

	if r.source == nil {
		return nil, errors.New("churn: prepare: no observation source configured")
	}

	ds, err = source.NewPreparer(r.source, r.cfg.StartDate(), r.logger).Prepare(ctx, last)
	if err != nil {
		return nil, err
	}

	for _, t := range []struct {
		name, path string
		table      *frame.Frame
	}{
		{"train", r.cfg.Paths.Train, ds.Train},
		{"test", r.cfg.Paths.Test, ds.Test},
		{"predict", r.cfg.Paths.Predict, ds.Predict},
	} {
		if err := writeTable(t.table, t.path); err != nil {
			return nil, err
		}
		r.metrics.RecordRows(t.name, t.table.Len())
	}

	r.logger.Info("datasets written",
		zap.Time("last_date", ds.LastDate),
		zap.String("train", r.cfg.Paths.Train),
		zap.String("test", r.cfg.Paths.Test),
		zap.String("predict", r.cfg.Paths.Predict),
	)
	return ds, nil
}

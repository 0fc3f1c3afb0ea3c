package churn

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Taha-Alami/Chrun-prediction/pkg/dataprep"
	"github.com/Taha-Alami/Chrun-prediction/pkg/evaluate"
	"github.com/Taha-Alami/Chrun-prediction/pkg/events"
	"github.com/Taha-Alami/Chrun-prediction/pkg/model"
	"github.com/Taha-Alami/Chrun-prediction/pkg/sampling"
	"github.com/Taha-Alami/Chrun-prediction/pkg/tracking"
)

// ErrEmptyEvalSet is returned when neither the test table nor the validation
// hold-out leaves a row to evaluate on.
var ErrEmptyEvalSet = errors.New("churn: empty evaluation set")

// TrainResult summarises a training run.
type TrainResult struct {
	RunID         string
	Version       *tracking.ModelVersion
	LatestVersion int
	Report        *evaluate.Report
	TrainRows     int
	Resampled     int
	EvalRows      int
	Trees         int
	BestIteration int
}

// ModelOptions maps the training configuration to classifier options.
func (r *Runner) ModelOptions() []model.Option {
	t := r.cfg.Training
	return []model.Option{
		model.WithNEstimators(t.NEstimators),
		model.WithMaxDepth(t.MaxDepth),
		model.WithLearningRate(t.LearningRate),
		model.WithMinChildWeight(t.MinChildWeight),
		model.WithLambda(t.Lambda),
		model.WithGamma(t.Gamma),
		model.WithSubsample(t.Subsample),
		model.WithColsampleByTree(t.ColsampleByTree),
		model.WithSeed(t.Seed),
		model.WithEarlyStoppingRounds(t.EarlyStoppingRounds),
	}
}

// Train fits the classifier on the oversampled training table, evaluates it
// on the test table and registers it. The run is marked FAILED when any
// step errors.
func (r *Runner) Train(ctx context.Context) (res *TrainResult, err error) {
	start := time.Now()
	defer func() { r.metrics.RecordStage("train", err, time.Since(start)) }()

	run, err := r.tracker.StartRun(ctx, r.cfg.Training.Experiment, map[string]string{
		"stage": "train",
		"env":   r.cfg.Env,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		status := tracking.StatusFinished
		if err != nil {
			status = tracking.StatusFailed
		}
		if endErr := r.tracker.EndRun(context.WithoutCancel(ctx), run.ID, status); endErr != nil {
			r.logger.Error("failed to end run", zap.String("run_id", run.ID), zap.Error(endErr))
			if err == nil {
				err = endErr
			}
		}
	}()
	logger := r.logger.With(zap.String("run_id", run.ID))

	m := model.NewGradientBoostingClassifier(r.ModelOptions()...)
	params := m.Params().Map()
	params["oversample_seed"] = strconv.FormatInt(r.cfg.Training.OversampleSeed, 10)
	params["features"] = strings.Join(r.cfg.Features.Numerical, ",")
	params["min_tenure"] = strconv.FormatFloat(r.cfg.Features.MinTenure, 'g', -1, 64)
	params["max_inactive_months"] = strconv.FormatFloat(r.cfg.Features.MaxInactiveMonths, 'g', -1, 64)
	params["min_revenue"] = strconv.FormatFloat(r.cfg.Features.MinRevenue, 'g', -1, 64)
	params["threshold"] = strconv.FormatFloat(r.cfg.Training.Threshold, 'g', -1, 64)
	logger.Info("training started", zap.Any("params", params))
	if err := r.tracker.LogParams(ctx, run.ID, params); err != nil {
		return nil, err
	}

	opts := r.featureOptions()
	train, err := r.loadTraining(r.cfg.Paths.Train, opts)
	if err != nil {
		return nil, err
	}
	test, err := r.loadTraining(r.cfg.Paths.Test, opts)
	if err != nil {
		return nil, err
	}
	dataprep.LogSummaries(logger, "train", dataprep.Describe(train))

	fitX, fitY := train.X, train.Y
	evalX, evalY := test.X, test.Y
	if test.Len() == 0 {
		logger.Warn("test table is empty, holding out part of the training table",
			zap.Float64("validation_fraction", r.cfg.Training.ValidationFraction))
		fitX, evalX, fitY, evalY = sampling.TrainTestSplit(train.X, train.Y, r.cfg.Training.ValidationFraction, r.cfg.Training.Seed)
	}
	if len(evalY) == 0 {
		return nil, fmt.Errorf("%w: test table is empty and %d training rows leave no hold-out at validation_fraction %g",
			ErrEmptyEvalSet, train.Len(), r.cfg.Training.ValidationFraction)
	}

	sampler := sampling.RandomOverSampler{Seed: r.cfg.Training.OversampleSeed}
	Xr, yr, err := sampler.FitResample(fitX, fitY)
	if err != nil {
		return nil, fmt.Errorf("churn: oversample: %w", err)
	}
	logger.Info("training set resampled",
		zap.Int("rows", len(fitY)),
		zap.Int("resampled_rows", len(yr)),
		zap.Any("class_counts", sampling.ClassCounts(yr)),
	)

	var trainLoss, evalLoss []float64
	err = m.FitWithEval(Xr, yr, evalX, evalY, func(_ int, tl, el float64) {
		trainLoss = append(trainLoss, tl)
		evalLoss = append(evalLoss, el)
	})
	if err != nil {
		return nil, fmt.Errorf("churn: fit: %w", err)
	}
	for i := range evalLoss {
		values := map[string]float64{"train_logloss": trainLoss[i], "validation_logloss": evalLoss[i]}
		if err := r.tracker.LogMetrics(ctx, run.ID, values, i); err != nil {
			return nil, err
		}
	}

	proba, err := m.PredictProba(evalX)
	if err != nil {
		return nil, fmt.Errorf("churn: predict test: %w", err)
	}
	report, err := evaluate.Evaluate(evalY, proba, r.cfg.Training.Threshold)
	if err != nil {
		return nil, err
	}
	logger.Info("classification report\n" + report.Classification.String())
	logger.Info("confusion matrix", zap.Ints("tn_fp_fn_tp", report.Confusion.Ravel()))

	values := report.Metrics("test_")
	values["best_iteration"] = float64(m.BestIteration())
	values["n_trees"] = float64(m.NumTrees())
	if err := r.tracker.LogMetrics(ctx, run.ID, values, m.BestIteration()); err != nil {
		return nil, err
	}
	if err := r.logArtifacts(ctx, run.ID, report, train.Features, m.FeatureImportance()); err != nil {
		return nil, err
	}

	version, err := tracking.LogModel(ctx, r.tracker, run.ID, "model", r.cfg.Training.ModelName, m, train.Features)
	if err != nil {
		return nil, err
	}
	latest, err := tracking.LatestVersion(ctx, r.tracker, r.cfg.Training.ModelName)
	if err != nil {
		return nil, err
	}
	logger.Info("model registered",
		zap.String("model", version.Name),
		zap.Int("version", version.Version),
		zap.Int("latest_version", latest.Version),
	)

	r.metrics.RecordTraining(len(fitY), len(yr), len(evalY), m.NumTrees())
	r.metrics.SetEvaluation(values)
	r.metrics.SetModelVersion(latest.Version)

	evt := events.New(events.TypeModelRegistered, version.Name, events.ModelRegistered{
		Name:    version.Name,
		Version: version.Version,
		RunID:   run.ID,
		Metrics: report.Metrics(""),
	})
	if err := r.publisher.Publish(ctx, evt); err != nil {
		logger.Warn("failed to publish event", zap.String("event_type", evt.Type), zap.Error(err))
	}

	return &TrainResult{
		RunID:         run.ID,
		Version:       version,
		LatestVersion: latest.Version,
		Report:        report,
		TrainRows:     len(fitY),
		Resampled:     len(yr),
		EvalRows:      len(evalY),
		Trees:         m.NumTrees(),
		BestIteration: m.BestIteration(),
	}, nil
}

func (r *Runner) loadTraining(path string, opts dataprep.Options) (*dataprep.Dataset, error) {
	raw, err := readTable(path)
	if err != nil {
		return nil, err
	}
	ds, err := dataprep.LoadTraining(raw, opts)
	if err != nil {
		return nil, fmt.Errorf("churn: %s: %w", path, err)
	}
	r.logger.Info("dataset loaded",
		zap.String("path", path),
		zap.Int("raw_rows", raw.Len()),
		zap.Int("rows", ds.Len()),
		zap.Int("positives", ds.Positives()),
	)
	return ds, nil
}

func (r *Runner) logArtifacts(ctx context.Context, runID string, report *evaluate.Report, features []string, importance []float64) error {
	artifacts := map[string][]byte{
		"classification_report.txt": []byte(report.Classification.String()),
		"confusion_matrix.txt":      []byte(report.Confusion.String() + "\n"),
	}

	var b strings.Builder
	b.WriteString("feature,importance\n")
	for i, f := range features {
		fmt.Fprintf(&b, "%s,%g\n", f, importance[i])
	}
	artifacts["feature_importance.csv"] = []byte(b.String())

	png, err := evaluate.PlotImportance(features, importance)
	if err != nil {
		return err
	}
	artifacts["plots/feature_importance.png"] = png
	if report.Curve.FPR != nil && !math.IsNaN(report.AUC) {
		png, err := evaluate.PlotROC(report.Curve, report.AUC)
		if err != nil {
			return err
		}
		artifacts["plots/roc_curve.png"] = png
	}

	for path, data := range artifacts {
		if err := r.tracker.LogArtifact(ctx, runID, path, data); err != nil {
			return err
		}
	}
	return nil
}

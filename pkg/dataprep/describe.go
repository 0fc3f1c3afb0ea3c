package dataprep

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Taha-Alami/Chrun-prediction/pkg/stats"
)

// Summary describes one feature column.
type Summary struct {
	Name string
	stats.Summary
}

// MarshalLogObject lets a summary be logged with zap.Object.
func (s Summary) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("name", s.Name)
	enc.AddInt("count", s.Count)
	enc.AddInt("missing", s.Missing)
	enc.AddFloat64("mean", s.Mean)
	enc.AddFloat64("std", s.Std)
	enc.AddFloat64("min", s.Min)
	enc.AddFloat64("median", s.Median)
	enc.AddFloat64("max", s.Max)
	return nil
}

// Describe summarizes every feature of the dataset, ignoring missing values.
func Describe(ds *Dataset) []Summary {
	out := make([]Summary, len(ds.Features))
	col := make([]float64, len(ds.X))
	for j, name := range ds.Features {
		for i, row := range ds.X {
			col[i] = row[j]
		}
		out[j] = Summary{Name: name, Summary: stats.Summarize(col)}
	}
	return out
}

// LogSummaries writes one debug line per feature.
func LogSummaries(logger *zap.Logger, dataset string, summaries []Summary) {
	for _, s := range summaries {
		logger.Debug("feature summary", zap.String("dataset", dataset), zap.Object("feature", s))
	}
}

// Package churn runs the pipeline stages: dataset preparation, training with
// experiment tracking, batch prediction and the churn report.
package churn

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Taha-Alami/Chrun-prediction/pkg/config"
	"github.com/Taha-Alami/Chrun-prediction/pkg/dataprep"
	"github.com/Taha-Alami/Chrun-prediction/pkg/events"
	"github.com/Taha-Alami/Chrun-prediction/pkg/frame"
	"github.com/Taha-Alami/Chrun-prediction/pkg/metrics"
	"github.com/Taha-Alami/Chrun-prediction/pkg/source"
	"github.com/Taha-Alami/Chrun-prediction/pkg/tracking"
)

// Runner holds what the stages share.
type Runner struct {
	cfg       *config.Config
	tracker   tracking.Tracker
	logger    *zap.Logger
	source    source.Source
	directory source.Directory
	publisher events.Publisher
	metrics   *metrics.Metrics
}

// Option configures a Runner.
type Option func(*Runner)

// WithSource sets where Prepare reads observations from.
func WithSource(s source.Source) Option { return func(r *Runner) { r.source = s } }

// WithDirectory sets the interlocutor directory used by Report.
func WithDirectory(d source.Directory) Option { return func(r *Runner) { r.directory = d } }

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) Option { return func(r *Runner) { r.publisher = p } }

// WithMetrics sets the metrics the stages record into.
func WithMetrics(m *metrics.Metrics) Option { return func(r *Runner) { r.metrics = m } }

// NewRunner returns a Runner. Events are dropped and metrics kept on a
// private registry unless options say otherwise.
func NewRunner(cfg *config.Config, tracker tracking.Tracker, logger *zap.Logger, opts ...Option) *Runner {
	r := &Runner{cfg: cfg, tracker: tracker, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	if r.publisher == nil {
		r.publisher = events.NopPublisher{Logger: logger}
	}
	if r.metrics == nil {
		r.metrics = metrics.NewMetrics(false)
	}
	return r
}

// Metrics returns the metrics the stages record into.
func (r *Runner) Metrics() *metrics.Metrics { return r.metrics }

// FeatureOptions returns the feature engineering options from the configuration.
func FeatureOptions(cfg *config.Config, logger *zap.Logger, observer func(step string, in, out int)) dataprep.Options {
	return dataprep.Options{
		Label:             cfg.Training.Label,
		Features:          append([]string(nil), cfg.Features.Numerical...),
		MinTenure:         cfg.Features.MinTenure,
		MaxInactiveMonths: cfg.Features.MaxInactiveMonths,
		MinRevenue:        cfg.Features.MinRevenue,
		Decimals:          cfg.Features.Decimals,
		Logger:            logger,
		Observer:          observer,
	}
}

func (r *Runner) featureOptions() dataprep.Options {
	return FeatureOptions(r.cfg, r.logger, r.metrics.ObserveStep)
}

// ModelURI is the registry uri of the latest version of the configured model.
func (r *Runner) ModelURI() string {
	return tracking.ModelURI{Name: r.cfg.Training.ModelName}.String()
}

// identifierColumns are read as text so codes keep their leading zeros.
var identifierColumns = []string{dataprep.ColAccount, dataprep.ColClientOriginCode, dataprep.ColClientCode}

func readTable(path string) (*frame.Frame, error) {
	f, err := frame.ReadCSVFile(path, frame.WithStringColumns(identifierColumns...))
	if err != nil {
		return nil, fmt.Errorf("churn: read %s: %w", path, err)
	}
	return f, nil
}

func writeTable(f *frame.Frame, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("churn: create %s: %w", dir, err)
		}
	}
	if err := f.WriteCSVFile(path); err != nil {
		return fmt.Errorf("churn: write %s: %w", path, err)
	}
	return nil
}

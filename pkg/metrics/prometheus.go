// Package metrics exposes pipeline and scoring metrics to Prometheus.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "churn"

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// Pipeline metrics
	StageDuration *prometheus.HistogramVec
	RowsLoaded    *prometheus.CounterVec
	RowsFiltered  *prometheus.CounterVec

	// Training metrics
	TrainingRows *prometheus.GaugeVec
	Evaluation   *prometheus.GaugeVec
	ModelVersion prometheus.Gauge
	Iterations   prometheus.Gauge

	// Scoring metrics
	Predictions     *prometheus.CounterVec
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the metrics on a fresh registry. Process and Go runtime
// collectors are included when withRuntime is set.
func NewMetrics(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"stage", "status"},
		),

		RowsLoaded: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_loaded_total",
				Help:      "Rows read per dataset",
			},
			[]string{"dataset"},
		),

		RowsFiltered: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_filtered_total",
				Help:      "Rows removed per preprocessing step",
			},
			[]string{"step"},
		),

		TrainingRows: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "training_rows",
				Help:      "Rows used in the last training run",
			},
			[]string{"set"},
		),

		Evaluation: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "evaluation",
				Help:      "Test set metrics of the last trained model",
			},
			[]string{"metric"},
		),

		ModelVersion: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "model_version",
				Help:      "Registered version of the last trained or loaded model",
			},
		),

		Iterations: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "boosting_iterations",
				Help:      "Trees kept by the last training run",
			},
		),

		Predictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "predictions_total",
				Help:      "Scored customers by predicted label",
			},
			[]string{"label"},
		),

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests served",
			},
			[]string{"route", "code"},
		),

		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordStage records how long a stage took
func (m *Metrics) RecordStage(stage string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

// RecordRows counts rows read for a dataset
func (m *Metrics) RecordRows(dataset string, n int) {
	m.RowsLoaded.WithLabelValues(dataset).Add(float64(n))
}

// ObserveStep matches the preprocessing observer and counts removed rows.
func (m *Metrics) ObserveStep(step string, in, out int) {
	if in > out {
		m.RowsFiltered.WithLabelValues(step).Add(float64(in - out))
	}
}

// RecordTraining records the size of the training sets and the number of trees kept.
func (m *Metrics) RecordTraining(train, resampled, eval, trees int) {
	m.TrainingRows.WithLabelValues("train").Set(float64(train))
	m.TrainingRows.WithLabelValues("resampled").Set(float64(resampled))
	m.TrainingRows.WithLabelValues("eval").Set(float64(eval))
	m.Iterations.Set(float64(trees))
}

// SetEvaluation publishes test metrics
func (m *Metrics) SetEvaluation(values map[string]float64) {
	for k, v := range values {
		m.Evaluation.WithLabelValues(k).Set(v)
	}
}

// SetModelVersion updates the model version gauge
func (m *Metrics) SetModelVersion(v int) {
	m.ModelVersion.Set(float64(v))
}

// RecordPredictions counts scored customers
func (m *Metrics) RecordPredictions(churn, stay, ineligible int) {
	m.Predictions.WithLabelValues("churn").Add(float64(churn))
	m.Predictions.WithLabelValues("stay").Add(float64(stay))
	if ineligible > 0 {
		m.Predictions.WithLabelValues("ineligible").Add(float64(ineligible))
	}
}

// RecordRequest records an HTTP request
func (m *Metrics) RecordRequest(route string, code int, d time.Duration) {
	m.RequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Push sends the registry to a Pushgateway. Batch stages call it before
// exiting since nothing scrapes them.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("metrics: push to %s: %w", url, err)
	}
	return nil
}

package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := NewMetrics(false)

	m.ObserveStep("min_tenure", 10, 7)
	m.ObserveStep("cast_types", 7, 7)
	m.RecordRows("train", 10)
	m.RecordRows("train", 5)
	m.RecordTraining(7, 12, 3, 40)
	m.SetEvaluation(map[string]float64{"test_accuracy": 0.8})
	m.SetModelVersion(3)
	m.RecordPredictions(2, 5, 1)
	m.RecordStage("train", nil, time.Second)
	m.RecordStage("train", errors.New("x"), time.Second)

	assert.Equal(t, 1, testutil.CollectAndCount(m.RowsFiltered), "steps that keep every row are not counted")
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RowsFiltered.WithLabelValues("min_tenure")))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.RowsLoaded.WithLabelValues("train")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.TrainingRows.WithLabelValues("resampled")))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.Iterations))
	assert.Equal(t, 0.8, testutil.ToFloat64(m.Evaluation.WithLabelValues("test_accuracy")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ModelVersion))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Predictions.WithLabelValues("ineligible")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.StageDuration))
}

func TestHandler(t *testing.T) {
	m := NewMetrics(true)
	m.RecordRequest("/v1/predict", http.StatusOK, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `churn_http_requests_total{code="200",route="/v1/predict"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestPush(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMetrics(false)
	m.SetModelVersion(2)
	require.NoError(t, m.Push(context.Background(), srv.URL, "churn_pipeline"))
	assert.Equal(t, "/metrics/job/churn_pipeline", gotPath)
	assert.NotEmpty(t, gotBody)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer failing.Close()
	err := m.Push(context.Background(), failing.URL, "churn_pipeline")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "push"))
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Taha-Alami/Chrun-prediction/pkg/churn"
	"github.com/Taha-Alami/Chrun-prediction/pkg/config"
	"github.com/Taha-Alami/Chrun-prediction/pkg/dataprep"
	"github.com/Taha-Alami/Chrun-prediction/pkg/metrics"
	"github.com/Taha-Alami/Chrun-prediction/pkg/model"
	"github.com/Taha-Alami/Chrun-prediction/pkg/tracking"
)

// registerModel logs a model that predicts churn from inactive_months alone.
func registerModel(t *testing.T) tracking.Tracker {
	t.Helper()
	ctx := context.Background()
	var (
		X [][]float64
		y []int
	)
	for i := 0; i < 40; i++ {
		inactive := float64(i % 10)
		X = append(X, []float64{24, 5, 12, inactive, 5000, 1200, 600, 0.2, 3})
		label := 0
		if inactive >= 5 {
			label = 1
		}
		y = append(y, label)
	}
	m := model.NewGradientBoostingClassifier(model.WithNEstimators(20), model.WithMaxDepth(2))
	require.NoError(t, m.Fit(X, y))

	store, err := tracking.NewFileStore(t.TempDir())
	require.NoError(t, err)
	run, err := store.StartRun(ctx, "churn", nil)
	require.NoError(t, err)
	_, err = tracking.LogModel(ctx, store, run.ID, "model", "xgb_churn", m, dataprep.NumericalFeatures)
	require.NoError(t, err)
	require.NoError(t, store.EndRun(ctx, run.ID, tracking.StatusFinished))
	return store
}

func loaderFor(t tracking.Tracker) ScorerLoader {
	return func(ctx context.Context) (*churn.Scorer, error) {
		return churn.LoadScorer(ctx, t, "models:/xgb_churn/latest", dataprep.DefaultOptions(), 0.5)
	}
}

func newTestServer(t *testing.T, load ScorerLoader, maxRecords int) *Server {
	t.Helper()
	return New(config.ServerConfig{Port: 0, MaxRecords: maxRecords}, load, metrics.NewMetrics(false), zap.NewNop())
}

func record(account string, tenure, inactive float64) map[string]any {
	return map[string]any{
		"account":                account,
		"client_origin_code":     "O" + account,
		"client_code":            "00" + account,
		"main_product":           "P1",
		"business_sector":        "S1",
		"workforce":              "1 to 9",
		"frequency":              12,
		"tenure":                 tenure,
		"age_business":           5,
		"inactive_months":        inactive,
		"revenue_total":          5000,
		"revenue_12_months":      1200,
		"revenue_6_months":       600,
		"revenue_growth":         100,
		"transactions_evolution": 3,
	}
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestPredict(t *testing.T) {
	s := newTestServer(t, loaderFor(registerModel(t)), 10)
	_, err := s.Reload(context.Background())
	require.NoError(t, err)

	rec := do(t, s, http.MethodPost, "/v1/predict", PredictRequest{Records: []map[string]any{
		record("1", 24, 8),
		record("2", 24, 1),
		record("3", 2, 8),
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	var resp PredictResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "models:/xgb_churn/latest", resp.ModelURI)
	assert.Equal(t, 1, resp.ModelVersion)
	require.Len(t, resp.Predictions, 3)

	leaving := resp.Predictions[0]
	assert.Equal(t, "1", leaving.Account)
	assert.Equal(t, "001", leaving.ClientCode)
	assert.True(t, leaving.Eligible)
	require.NotNil(t, leaving.Probability)
	assert.Greater(t, *leaving.Probability, 0.5)
	assert.True(t, *leaving.Churn)

	staying := resp.Predictions[1]
	require.NotNil(t, staying.Probability)
	assert.Less(t, *staying.Probability, 0.5)
	assert.False(t, *staying.Churn)

	recent := resp.Predictions[2]
	assert.Equal(t, 2, recent.Index)
	assert.False(t, recent.Eligible, "tenure below the minimum is not scored")
	assert.Nil(t, recent.Probability)
	assert.Nil(t, recent.Churn)
}

func TestPredictErrors(t *testing.T) {
	s := newTestServer(t, loaderFor(registerModel(t)), 2)
	_, err := s.Reload(context.Background())
	require.NoError(t, err)

	missing := record("1", 24, 8)
	delete(missing, "inactive_months")

	tests := []struct {
		name string
		body any
		code int
		want ErrorCode
	}{
		{name: "empty", body: PredictRequest{}, code: http.StatusBadRequest, want: ErrorCodeInvalidRequest},
		{name: "too many records", body: PredictRequest{Records: []map[string]any{
			record("1", 24, 8), record("2", 24, 8), record("3", 24, 8),
		}}, code: http.StatusRequestEntityTooLarge, want: ErrorCodeTooLarge},
		{name: "missing column", body: PredictRequest{Records: []map[string]any{missing}},
			code: http.StatusUnprocessableEntity, want: ErrorCodeInvalidRecords},
		{name: "nested value", body: map[string]any{"records": []any{map[string]any{"tenure": []int{1}}}},
			code: http.StatusBadRequest, want: ErrorCodeInvalidRecords},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/v1/predict", tt.body)
			require.Equal(t, tt.code, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, "error", resp.Status)
			assert.Equal(t, tt.want, resp.ErrorCode)
			assert.NotEmpty(t, resp.RequestID)
		})
	}

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/predict", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPredictWithoutIdentifiers(t *testing.T) {
	s := newTestServer(t, loaderFor(registerModel(t)), 0)
	_, err := s.Reload(context.Background())
	require.NoError(t, err)

	anonymous := record("1", 24, 8)
	delete(anonymous, "account")
	delete(anonymous, "client_origin_code")

	rec := do(t, s, http.MethodPost, "/v1/predict", PredictRequest{Records: []map[string]any{anonymous}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp PredictResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Predictions, 1)
	assert.Empty(t, resp.Predictions[0].Account)
	assert.Equal(t, "001", resp.Predictions[0].ClientCode)
	assert.True(t, resp.Predictions[0].Eligible)
}

func TestPredictBodyLimit(t *testing.T) {
	tests := []struct {
		name    string
		limit   int64
		records int
		code    int
	}{
		{name: "under limit", limit: 1 << 20, records: 1, code: http.StatusOK},
		{name: "over limit", limit: 256, records: 5, code: http.StatusRequestEntityTooLarge},
		{name: "no limit", limit: 0, records: 5, code: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.ServerConfig{MaxBodyBytes: tt.limit}
			s := New(cfg, loaderFor(registerModel(t)), metrics.NewMetrics(false), zap.NewNop())
			_, err := s.Reload(context.Background())
			require.NoError(t, err)

			records := make([]map[string]any, tt.records)
			for i := range records {
				records[i] = record(strconv.Itoa(i+1), 24, 8)
			}
			rec := do(t, s, http.MethodPost, "/v1/predict", PredictRequest{Records: records})
			require.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.code != http.StatusOK {
				assert.Equal(t, ErrorCodeTooLarge, decodeError(t, rec).ErrorCode)
			}
		})
	}
}

func TestNoModel(t *testing.T) {
	failing := func(context.Context) (*churn.Scorer, error) { return nil, tracking.ErrNotFound }
	s := newTestServer(t, failing, 0)

	_, err := s.Reload(context.Background())
	assert.ErrorIs(t, err, tracking.ErrNotFound)

	rec := do(t, s, http.MethodPost, "/v1/predict", PredictRequest{Records: []map[string]any{record("1", 24, 8)}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, ErrorCodeNoModel, decodeError(t, rec).ErrorCode)

	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/readyz", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodPost, "/v1/model/reload", nil).Code)
}

func TestReloadAndModel(t *testing.T) {
	s := newTestServer(t, loaderFor(registerModel(t)), 0)

	rec := do(t, s, http.MethodPost, "/v1/model/reload", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/model", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ModelResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Version)
	assert.Equal(t, dataprep.NumericalFeatures, resp.Features)

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/readyz", nil).Code)
}

func TestRouting(t *testing.T) {
	s := newTestServer(t, loaderFor(registerModel(t)), 0)

	rec := do(t, s, http.MethodGet, "/v2/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrorCodeInvalidRequest, decodeError(t, rec).ErrorCode)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/v1/predict"},
		{http.MethodPost, "/v1/model"},
		{http.MethodGet, "/v1/model/reload"},
		{http.MethodPost, "/healthz"},
	} {
		rec = do(t, s, route.method, route.path, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, route.method+" "+route.path)
		assert.Equal(t, ErrorCodeInvalidRequest, decodeError(t, rec).ErrorCode)
	}

	do(t, s, http.MethodGet, "/healthz", nil)
	rec = do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `churn_http_requests_total{code="200",route="/healthz"} 1`)
}

func TestRequestIDPropagated(t *testing.T) {
	s := newTestServer(t, loaderFor(registerModel(t)), 0)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}

func TestRecovery(t *testing.T) {
	h := Chain(RequestID, Recovery(zap.NewNop()))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(errors.New("boom"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, ErrorCodeInternal, resp.ErrorCode)
	assert.NotEmpty(t, resp.RequestID)
}

func TestRecordsFrame(t *testing.T) {
	f, err := recordsFrame([]map[string]any{
		{"client_code": "007", "tenure": json.Number("12")},
		{"tenure": nil, "active": true},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"active", "client_code", "tenure"}, f.Names())

	codes, _ := f.Strings("client_code")
	assert.Equal(t, []string{"007", ""}, codes)
	tenure, _ := f.Float("tenure")
	assert.Equal(t, 12.0, tenure[0])
	assert.True(t, math.IsNaN(tenure[1]), "null is missing")
}

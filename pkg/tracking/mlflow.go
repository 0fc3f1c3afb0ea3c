package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	mlflowAPI          = "/api/2.0/mlflow/"
	mlflowArtifactsAPI = "/api/2.0/mlflow-artifacts/artifacts/"
	proxiedArtifacts   = "mlflow-artifacts:/"

	// log-batch request limits of the tracking server
	maxBatchParams  = 100
	maxBatchMetrics = 1000
)

// APIError is an error answer from the MLflow REST API.
type APIError struct {
	Status  int
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mlflow: %d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap maps missing resources to ErrNotFound.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusNotFound || e.Code == "RESOURCE_DOES_NOT_EXIST" {
		return ErrNotFound
	}
	return nil
}

// MLflowClient talks to an MLflow tracking server over its REST API.
// Artifacts go through the server's proxied artifact store.
type MLflowClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger

	mu            sync.Mutex
	experiments   map[string]string
	artifactRoots map[string]string
}

// NewMLflowClient creates a client for the server at baseURL.
func NewMLflowClient(baseURL string, timeout time.Duration, logger *zap.Logger) *MLflowClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MLflowClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		client:        &http.Client{Timeout: timeout},
		logger:        logger,
		experiments:   make(map[string]string),
		artifactRoots: make(map[string]string),
	}
}

var _ Tracker = (*MLflowClient)(nil)

type mlflowTag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type mlflowMetric struct {
	Key       string  `json:"key"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	Step      int     `json:"step"`
}

type mlflowRunInfo struct {
	RunID        string `json:"run_id"`
	ExperimentID string `json:"experiment_id"`
	Status       string `json:"status"`
	StartTime    int64  `json:"start_time"`
	EndTime      int64  `json:"end_time"`
	ArtifactURI  string `json:"artifact_uri"`
}

type mlflowModelVersion struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	RunID             string `json:"run_id"`
	Source            string `json:"source"`
	CreationTimestamp int64  `json:"creation_timestamp"`
}

func (c *MLflowClient) StartRun(ctx context.Context, experiment string, tags map[string]string) (*Run, error) {
	expID, err := c.experimentID(ctx, experiment)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	req := struct {
		ExperimentID string      `json:"experiment_id"`
		StartTime    int64       `json:"start_time"`
		Tags         []mlflowTag `json:"tags,omitempty"`
	}{ExperimentID: expID, StartTime: start.UnixMilli(), Tags: toTags(tags)}
	var resp struct {
		Run struct {
			Info mlflowRunInfo `json:"info"`
		} `json:"run"`
	}
	if err := c.call(ctx, http.MethodPost, "runs/create", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("tracking: start run: %w", err)
	}

	info := resp.Run.Info
	c.mu.Lock()
	c.artifactRoots[info.RunID] = info.ArtifactURI
	c.mu.Unlock()

	c.logger.Debug("mlflow run started", zap.String("run_id", info.RunID), zap.String("experiment_id", expID))
	return &Run{
		ID:         info.RunID,
		Experiment: experiment,
		Status:     StatusRunning,
		StartTime:  time.UnixMilli(info.StartTime).UTC(),
		Tags:       tags,
	}, nil
}

func (c *MLflowClient) LogParams(ctx context.Context, runID string, params map[string]string) error {
	tags := toTags(params)
	for len(tags) > 0 {
		n := min(len(tags), maxBatchParams)
		req := struct {
			RunID  string      `json:"run_id"`
			Params []mlflowTag `json:"params"`
		}{runID, tags[:n]}
		if err := c.call(ctx, http.MethodPost, "runs/log-batch", nil, req, nil); err != nil {
			return fmt.Errorf("tracking: log params: %w", err)
		}
		tags = tags[n:]
	}
	return nil
}

func (c *MLflowClient) LogMetrics(ctx context.Context, runID string, metrics map[string]float64, step int) error {
	ts := time.Now().UnixMilli()
	keys := sortedKeys(metrics)
	batch := make([]mlflowMetric, 0, len(keys))
	for _, k := range keys {
		batch = append(batch, mlflowMetric{Key: k, Value: metrics[k], Timestamp: ts, Step: step})
	}
	for len(batch) > 0 {
		n := min(len(batch), maxBatchMetrics)
		req := struct {
			RunID   string         `json:"run_id"`
			Metrics []mlflowMetric `json:"metrics"`
		}{runID, batch[:n]}
		if err := c.call(ctx, http.MethodPost, "runs/log-batch", nil, req, nil); err != nil {
			return fmt.Errorf("tracking: log metrics: %w", err)
		}
		batch = batch[n:]
	}
	return nil
}

func (c *MLflowClient) EndRun(ctx context.Context, runID string, status RunStatus) error {
	req := struct {
		RunID   string `json:"run_id"`
		Status  string `json:"status"`
		EndTime int64  `json:"end_time"`
	}{runID, string(status), time.Now().UnixMilli()}
	if err := c.call(ctx, http.MethodPost, "runs/update", nil, req, nil); err != nil {
		return fmt.Errorf("tracking: end run: %w", err)
	}
	return nil
}

func (c *MLflowClient) LogArtifact(ctx context.Context, runID, path string, data []byte) error {
	endpoint, err := c.artifactEndpoint(ctx, runID, path)
	if err != nil {
		return err
	}
	if _, err := c.do(ctx, http.MethodPut, endpoint, "application/octet-stream", bytes.NewReader(data)); err != nil {
		return fmt.Errorf("tracking: log artifact %s: %w", path, err)
	}
	return nil
}

func (c *MLflowClient) DownloadArtifact(ctx context.Context, runID, path string) ([]byte, error) {
	endpoint, err := c.artifactEndpoint(ctx, runID, path)
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, http.MethodGet, endpoint, "", nil)
	if err != nil {
		return nil, fmt.Errorf("tracking: download artifact %s: %w", path, err)
	}
	return body, nil
}

func (c *MLflowClient) RegisterModelVersion(ctx context.Context, name, runID, source string) (*ModelVersion, error) {
	err := c.call(ctx, http.MethodPost, "registered-models/create", nil, map[string]string{"name": name}, nil)
	var apiErr *APIError
	if err != nil && !(errors.As(err, &apiErr) && apiErr.Code == "RESOURCE_ALREADY_EXISTS") {
		return nil, fmt.Errorf("tracking: create registered model: %w", err)
	}

	req := map[string]string{"name": name, "source": source, "run_id": runID}
	var resp struct {
		ModelVersion mlflowModelVersion `json:"model_version"`
	}
	if err := c.call(ctx, http.MethodPost, "model-versions/create", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("tracking: create model version: %w", err)
	}
	return resp.ModelVersion.modelVersion()
}

func (c *MLflowClient) SearchModelVersions(ctx context.Context, name string) ([]ModelVersion, error) {
	var out []ModelVersion
	token := ""
	for {
		q := url.Values{"filter": {fmt.Sprintf("name='%s'", strings.ReplaceAll(name, "'", "\\'"))}}
		if token != "" {
			q.Set("page_token", token)
		}
		var resp struct {
			ModelVersions []mlflowModelVersion `json:"model_versions"`
			NextPageToken string               `json:"next_page_token"`
		}
		if err := c.call(ctx, http.MethodGet, "model-versions/search", q, nil, &resp); err != nil {
			return nil, fmt.Errorf("tracking: search model versions: %w", err)
		}
		for _, mv := range resp.ModelVersions {
			v, err := mv.modelVersion()
			if err != nil {
				return nil, err
			}
			out = append(out, *v)
		}
		if resp.NextPageToken == "" {
			break
		}
		token = resp.NextPageToken
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Version < out[b].Version })
	return out, nil
}

func (c *MLflowClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// ---------------------------
// Helpers
// ---------------------------

func (c *MLflowClient) experimentID(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	id, ok := c.experiments[name]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	var found struct {
		Experiment struct {
			ExperimentID string `json:"experiment_id"`
		} `json:"experiment"`
	}
	err := c.call(ctx, http.MethodGet, "experiments/get-by-name", url.Values{"experiment_name": {name}}, nil, &found)
	switch {
	case err == nil:
		id = found.Experiment.ExperimentID
	case errors.Is(err, ErrNotFound):
		var created struct {
			ExperimentID string `json:"experiment_id"`
		}
		if err := c.call(ctx, http.MethodPost, "experiments/create", nil, map[string]string{"name": name}, &created); err != nil {
			return "", fmt.Errorf("tracking: create experiment %s: %w", name, err)
		}
		id = created.ExperimentID
		c.logger.Info("mlflow experiment created", zap.String("experiment", name), zap.String("experiment_id", id))
	default:
		return "", fmt.Errorf("tracking: get experiment %s: %w", name, err)
	}

	c.mu.Lock()
	c.experiments[name] = id
	c.mu.Unlock()
	return id, nil
}

func (c *MLflowClient) artifactEndpoint(ctx context.Context, runID, path string) (string, error) {
	p, err := cleanArtifactPath(path)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	root, ok := c.artifactRoots[runID]
	c.mu.Unlock()
	if !ok {
		var resp struct {
			Run struct {
				Info mlflowRunInfo `json:"info"`
			} `json:"run"`
		}
		if err := c.call(ctx, http.MethodGet, "runs/get", url.Values{"run_id": {runID}}, nil, &resp); err != nil {
			return "", fmt.Errorf("tracking: get run %s: %w", runID, err)
		}
		root = resp.Run.Info.ArtifactURI
		c.mu.Lock()
		c.artifactRoots[runID] = root
		c.mu.Unlock()
	}

	rel, ok := strings.CutPrefix(root, proxiedArtifacts)
	if !ok {
		return "", fmt.Errorf("tracking: artifact root %q is not served by the tracking server", root)
	}
	return c.baseURL + mlflowArtifactsAPI + strings.Trim(rel, "/") + "/" + p, nil
}

// call sends a JSON request to an MLflow API method and decodes the answer into out.
func (c *MLflowClient) call(ctx context.Context, method, apiMethod string, query url.Values, in, out any) error {
	endpoint := c.baseURL + mlflowAPI + apiMethod
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	contentType := ""
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}

	data, err := c.do(ctx, method, endpoint, contentType, body)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", apiMethod, err)
	}
	return nil
}

func (c *MLflowClient) do(ctx context.Context, method, endpoint, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mlflow request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return nil, apiErr
	}
	return data, nil
}

func (mv mlflowModelVersion) modelVersion() (*ModelVersion, error) {
	v, err := strconv.Atoi(mv.Version)
	if err != nil {
		return nil, fmt.Errorf("tracking: model version %q: %w", mv.Version, err)
	}
	return &ModelVersion{
		Name:      mv.Name,
		Version:   v,
		RunID:     mv.RunID,
		Source:    mv.Source,
		CreatedAt: time.UnixMilli(mv.CreationTimestamp).UTC(),
	}, nil
}

func toTags(m map[string]string) []mlflowTag {
	tags := make([]mlflowTag, 0, len(m))
	for _, k := range sortedKeys(m) {
		tags = append(tags, mlflowTag{Key: k, Value: m[k]})
	}
	return tags
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

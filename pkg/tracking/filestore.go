package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MetricPoint is one logged value of a metric.
type MetricPoint struct {
	Value     float64   `json:"value"`
	Step      int       `json:"step"`
	Timestamp time.Time `json:"timestamp"`
}

// RunRecord is everything the file store keeps about a run.
type RunRecord struct {
	ID         string                   `json:"id"`
	Experiment string                   `json:"experiment"`
	Status     RunStatus                `json:"status"`
	StartTime  time.Time                `json:"start_time"`
	EndTime    time.Time                `json:"end_time,omitempty"`
	Tags       map[string]string        `json:"tags,omitempty"`
	Params     map[string]string        `json:"params,omitempty"`
	Metrics    map[string][]MetricPoint `json:"metrics,omitempty"`
}

type versionRecord struct {
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// FileStore keeps runs and the model registry in a local directory:
//
//	<root>/runs/<id>/run.json
//	<root>/runs/<id>/artifacts/<path>
//	<root>/models/<name>.json
type FileStore struct {
	mu   sync.Mutex
	root string
	now  func() time.Time
}

// NewFileStore creates root if needed and returns a store rooted there.
func NewFileStore(root string) (*FileStore, error) {
	for _, dir := range []string{filepath.Join(root, "runs"), filepath.Join(root, "models")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("tracking: create store: %w", err)
		}
	}
	return &FileStore{root: root, now: func() time.Time { return time.Now().UTC() }}, nil
}

var _ Tracker = (*FileStore)(nil)

func (s *FileStore) runDir(id string) string { return filepath.Join(s.root, "runs", id) }

func (s *FileStore) StartRun(_ context.Context, experiment string, tags map[string]string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &RunRecord{
		ID:         uuid.NewString(),
		Experiment: experiment,
		Status:     StatusRunning,
		StartTime:  s.now(),
		Tags:       tags,
	}
	if err := os.MkdirAll(filepath.Join(s.runDir(rec.ID), "artifacts"), 0o755); err != nil {
		return nil, fmt.Errorf("tracking: start run: %w", err)
	}
	if err := s.writeRun(rec); err != nil {
		return nil, err
	}
	return rec.run(), nil
}

func (s *FileStore) LogParams(_ context.Context, runID string, params map[string]string) error {
	return s.update(runID, func(rec *RunRecord) {
		if rec.Params == nil {
			rec.Params = make(map[string]string, len(params))
		}
		for k, v := range params {
			rec.Params[k] = v
		}
	})
}

func (s *FileStore) LogMetrics(_ context.Context, runID string, metrics map[string]float64, step int) error {
	ts := s.now()
	return s.update(runID, func(rec *RunRecord) {
		if rec.Metrics == nil {
			rec.Metrics = make(map[string][]MetricPoint, len(metrics))
		}
		for k, v := range metrics {
			rec.Metrics[k] = append(rec.Metrics[k], MetricPoint{Value: v, Step: step, Timestamp: ts})
		}
	})
}

func (s *FileStore) LogArtifact(_ context.Context, runID, path string, data []byte) error {
	p, err := cleanArtifactPath(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.readRun(runID); err != nil {
		return err
	}
	target := filepath.Join(s.runDir(runID), "artifacts", filepath.FromSlash(p))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("tracking: log artifact: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("tracking: log artifact: %w", err)
	}
	return nil
}

func (s *FileStore) DownloadArtifact(_ context.Context, runID, path string) ([]byte, error) {
	p, err := cleanArtifactPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.runDir(runID), "artifacts", filepath.FromSlash(p)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("tracking: artifact %s of run %s: %w", p, runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("tracking: download artifact: %w", err)
	}
	return data, nil
}

func (s *FileStore) EndRun(_ context.Context, runID string, status RunStatus) error {
	end := s.now()
	return s.update(runID, func(rec *RunRecord) {
		rec.Status = status
		rec.EndTime = end
	})
}

// GetRun returns the stored record of a run.
func (s *FileStore) GetRun(runID string) (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readRun(runID)
}

func (s *FileStore) RegisterModelVersion(_ context.Context, name, runID, source string) (*ModelVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.modelsFile(name)
	if err != nil {
		return nil, err
	}
	versions, err := s.readVersions(path)
	if err != nil {
		return nil, err
	}
	next := 1
	for _, v := range versions {
		next = max(next, v.Version+1)
	}
	rec := versionRecord{Version: next, RunID: runID, Source: source, CreatedAt: s.now()}
	versions = append(versions, rec)
	if err := writeJSON(path, versions); err != nil {
		return nil, err
	}
	return rec.modelVersion(name), nil
}

func (s *FileStore) SearchModelVersions(_ context.Context, name string) ([]ModelVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.modelsFile(name)
	if err != nil {
		return nil, err
	}
	versions, err := s.readVersions(path)
	if err != nil {
		return nil, err
	}
	out := make([]ModelVersion, len(versions))
	for i, v := range versions {
		out[i] = *v.modelVersion(name)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Version < out[b].Version })
	return out, nil
}

func (s *FileStore) Close() error { return nil }

// ---------------------------
// Helpers
// ---------------------------

// modelsFile returns the registry file of a model. The name must be a single
// path element.
func (s *FileStore) modelsFile(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.root, "models", name+".json"), nil
}

func (s *FileStore) readVersions(path string) ([]versionRecord, error) {
	var versions []versionRecord
	err := readJSON(path, &versions)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return versions, err
}

func (s *FileStore) update(runID string, fn func(*RunRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.readRun(runID)
	if err != nil {
		return err
	}
	if rec.Status != StatusRunning {
		return fmt.Errorf("tracking: run %s: %w", runID, ErrRunClosed)
	}
	fn(rec)
	return s.writeRun(rec)
}

func (s *FileStore) readRun(runID string) (*RunRecord, error) {
	var rec RunRecord
	err := readJSON(filepath.Join(s.runDir(runID), "run.json"), &rec)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("tracking: run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *FileStore) writeRun(rec *RunRecord) error {
	return writeJSON(filepath.Join(s.runDir(rec.ID), "run.json"), rec)
}

func (r *RunRecord) run() *Run {
	return &Run{
		ID:         r.ID,
		Experiment: r.Experiment,
		Status:     r.Status,
		StartTime:  r.StartTime,
		EndTime:    r.EndTime,
		Tags:       r.Tags,
	}
}

func (v versionRecord) modelVersion(name string) *ModelVersion {
	return &ModelVersion{Name: name, Version: v.Version, RunID: v.RunID, Source: v.Source, CreatedAt: v.CreatedAt}
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("tracking: decode %s: %w", path, err)
	}
	return nil
}

// writeJSON replaces path through a temporary file so readers never see a
// partial document.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("tracking: encode %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("tracking: write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("tracking: write %s: %w", path, err)
	}
	return nil
}

// Package tracking records training runs (parameters, metrics and artifacts)
// and keeps a registry of model versions. Runs can be stored in a local
// directory, in Postgres or on an MLflow tracking server.
package tracking

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a run, artifact or model version does not exist.
	ErrNotFound = errors.New("tracking: not found")
	// ErrRunClosed is returned when logging to a run that has already ended.
	ErrRunClosed = errors.New("tracking: run already ended")
	// ErrInvalidName is returned for a model name that cannot name a file.
	ErrInvalidName = errors.New("tracking: invalid model name")
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	StatusRunning  RunStatus = "RUNNING"
	StatusFinished RunStatus = "FINISHED"
	StatusFailed   RunStatus = "FAILED"
)

// Run identifies a tracked training run.
type Run struct {
	ID         string
	Experiment string
	Status     RunStatus
	StartTime  time.Time
	EndTime    time.Time
	Tags       map[string]string
}

// ModelVersion is one registered version of a named model.
type ModelVersion struct {
	Name      string
	Version   int
	RunID     string
	Source    string
	CreatedAt time.Time
}

// Tracker is an experiment tracking backend.
type Tracker interface {
	StartRun(ctx context.Context, experiment string, tags map[string]string) (*Run, error)
	LogParams(ctx context.Context, runID string, params map[string]string) error
	// LogMetrics records values at step. Steps order the values of a metric
	// logged repeatedly, such as the evaluation loss per boosting round.
	LogMetrics(ctx context.Context, runID string, metrics map[string]float64, step int) error
	LogArtifact(ctx context.Context, runID, path string, data []byte) error
	DownloadArtifact(ctx context.Context, runID, path string) ([]byte, error)
	EndRun(ctx context.Context, runID string, status RunStatus) error

	RegisterModelVersion(ctx context.Context, name, runID, source string) (*ModelVersion, error)
	SearchModelVersions(ctx context.Context, name string) ([]ModelVersion, error)

	Close() error
}

// LatestVersion returns the highest registered version of name.
func LatestVersion(ctx context.Context, t Tracker, name string) (*ModelVersion, error) {
	versions, err := t.SearchModelVersions(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, ErrNotFound
	}
	latest := versions[0]
	for _, v := range versions[1:] {
		if v.Version > latest.Version {
			latest = v
		}
	}
	return &latest, nil
}

// GetModelVersion returns version of name, or the latest when version is 0.
func GetModelVersion(ctx context.Context, t Tracker, name string, version int) (*ModelVersion, error) {
	if version == 0 {
		return LatestVersion(ctx, t, name)
	}
	versions, err := t.SearchModelVersions(ctx, name)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if v.Version == version {
			return &v, nil
		}
	}
	return nil, ErrNotFound
}

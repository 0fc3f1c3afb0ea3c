package tracking

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Taha-Alami/Chrun-prediction/pkg/model"
)

func fittedModel(t *testing.T) *model.GradientBoostingClassifier {
	t.Helper()
	X := [][]float64{{0, 1}, {1, 1}, {2, 0}, {3, 0}, {4, 1}, {5, 0}}
	y := []int{0, 0, 0, 1, 1, 1}
	m := model.NewGradientBoostingClassifier(model.WithNEstimators(5), model.WithMaxDepth(2), model.WithMinChildWeight(0))
	require.NoError(t, m.Fit(X, y))
	return m
}

func TestFileStoreRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	run, err := s.StartRun(ctx, "churn", map[string]string{"stage": "train"})
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)
	assert.NotEmpty(t, run.ID)

	require.NoError(t, s.LogParams(ctx, run.ID, map[string]string{"max_depth": "6"}))
	require.NoError(t, s.LogMetrics(ctx, run.ID, map[string]float64{"validation_logloss": 0.6}, 0))
	require.NoError(t, s.LogMetrics(ctx, run.ID, map[string]float64{"validation_logloss": 0.5}, 1))
	require.NoError(t, s.LogArtifact(ctx, run.ID, "reports/confusion_matrix.txt", []byte("[1 2 3 4]")))
	require.NoError(t, s.EndRun(ctx, run.ID, StatusFinished))

	rec, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, rec.Status)
	assert.False(t, rec.EndTime.IsZero())
	assert.Equal(t, "6", rec.Params["max_depth"])
	require.Len(t, rec.Metrics["validation_logloss"], 2)
	assert.Equal(t, 1, rec.Metrics["validation_logloss"][1].Step)
	assert.Equal(t, 0.5, rec.Metrics["validation_logloss"][1].Value)

	data, err := s.DownloadArtifact(ctx, run.ID, "reports/confusion_matrix.txt")
	require.NoError(t, err)
	assert.Equal(t, "[1 2 3 4]", string(data))

	err = s.LogParams(ctx, run.ID, map[string]string{"late": "1"})
	assert.True(t, errors.Is(err, ErrRunClosed))
}

func TestFileStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	err = s.LogParams(ctx, "missing", map[string]string{"a": "b"})
	assert.True(t, errors.Is(err, ErrNotFound))

	run, err := s.StartRun(ctx, "churn", nil)
	require.NoError(t, err)
	_, err = s.DownloadArtifact(ctx, run.ID, "nope.txt")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = LatestVersion(ctx, s, "xgb_churn")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFileStoreModelRegistry(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for want := 1; want <= 3; want++ {
		mv, err := s.RegisterModelVersion(ctx, "xgb_churn", "run", "runs:/run/model")
		require.NoError(t, err)
		assert.Equal(t, want, mv.Version)
	}
	_, err = s.RegisterModelVersion(ctx, "other", "run", "runs:/run/model")
	require.NoError(t, err)

	versions, err := s.SearchModelVersions(ctx, "xgb_churn")
	require.NoError(t, err)
	assert.Len(t, versions, 3)

	latest, err := LatestVersion(ctx, s, "xgb_churn")
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Version)

	second, err := GetModelVersion(ctx, s, "xgb_churn", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)

	_, err = GetModelVersion(ctx, s, "xgb_churn", 9)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFileStoreRejectsInvalidModelNames(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewFileStore(root)
	require.NoError(t, err)

	tests := []struct {
		name  string
		model string
	}{
		{"empty", ""},
		{"dot", "."},
		{"parent", ".."},
		{"relative path", "../escaped"},
		{"nested", "team/xgb_churn"},
		{"backslash", `team\xgb_churn`},
		{"absolute", "/etc/passwd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.RegisterModelVersion(ctx, tt.model, "run", "runs:/run/model")
			assert.ErrorIs(t, err, ErrInvalidName)

			_, err = s.SearchModelVersions(ctx, tt.model)
			assert.ErrorIs(t, err, ErrInvalidName)
		})
	}

	_, err = os.Stat(filepath.Join(root, "escaped.json"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestLogAndLoadModel(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	m := fittedModel(t)
	features := []string{"tenure", "frequency"}

	var last *ModelVersion
	for range 2 {
		run, err := s.StartRun(ctx, "churn", nil)
		require.NoError(t, err)
		last, err = LogModel(ctx, s, run.ID, "", "xgb_churn", m, features)
		require.NoError(t, err)
		require.NoError(t, s.EndRun(ctx, run.ID, StatusFinished))
	}
	assert.Equal(t, 2, last.Version)
	assert.Equal(t, "runs:/"+last.RunID+"/model", last.Source)

	loaded, err := LoadModel(ctx, s, "models:/xgb_churn/latest")
	require.NoError(t, err)
	require.NotNil(t, loaded.Version)
	assert.Equal(t, 2, loaded.Version.Version)
	assert.Equal(t, features, loaded.Features())
	assert.Equal(t, "binary:logistic", loaded.Descriptor.Flavors[FlavorName].Objective)

	X := [][]float64{{0, 1}, {5, 0}}
	want, err := m.PredictProba(X)
	require.NoError(t, err)
	got, err := loaded.Model.PredictProba(X)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	byRun, err := LoadModel(ctx, s, "runs:/"+last.RunID+"/model")
	require.NoError(t, err)
	assert.Nil(t, byRun.Version)

	_, err = LoadModel(ctx, s, "models:/unknown/latest")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = LoadModel(ctx, s, "s3://bucket/model")
	assert.Error(t, err)
}

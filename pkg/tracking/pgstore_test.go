package tracking

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("CHURN_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CHURN_TEST_DATABASE_URL not set")
	}
	s, err := OpenPostgresStore(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPostgresStoreRun(t *testing.T) {
	ctx := context.Background()
	s := openTestPostgres(t)

	run, err := s.StartRun(ctx, "churn-test", map[string]string{"stage": "train"})
	require.NoError(t, err)
	require.NoError(t, s.LogParams(ctx, run.ID, map[string]string{"max_depth": "6", "eta": "0.3"}))
	require.NoError(t, s.LogMetrics(ctx, run.ID, map[string]float64{"validation_logloss": 0.4}, 0))
	require.NoError(t, s.LogArtifact(ctx, run.ID, "model/MLmodel", []byte("flavors: {}")))
	require.NoError(t, s.EndRun(ctx, run.ID, StatusFinished))

	data, err := s.DownloadArtifact(ctx, run.ID, "model/MLmodel")
	require.NoError(t, err)
	assert.Equal(t, "flavors: {}", string(data))

	err = s.LogMetrics(ctx, run.ID, map[string]float64{"late": 1}, 1)
	assert.True(t, errors.Is(err, ErrRunClosed))

	_, err = s.DownloadArtifact(ctx, run.ID, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	err = s.EndRun(ctx, "00000000-0000-0000-0000-000000000000", StatusFinished)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPostgresStoreConcurrentRegistration(t *testing.T) {
	ctx := context.Background()
	s := openTestPostgres(t)

	run, err := s.StartRun(ctx, "churn-test", nil)
	require.NoError(t, err)
	name := "xgb_churn_" + run.ID

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.RegisterModelVersion(ctx, name, run.ID, "runs:/"+run.ID+"/model")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	versions, err := s.SearchModelVersions(ctx, name)
	require.NoError(t, err)
	require.Len(t, versions, 5)
	for i, v := range versions {
		assert.Equal(t, i+1, v.Version)
		assert.Equal(t, run.ID, v.RunID)
	}
}

func TestPostgresStoreModelRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestPostgres(t)

	run, err := s.StartRun(ctx, "churn-test", nil)
	require.NoError(t, err)
	name := "roundtrip_" + run.ID
	_, err = LogModel(ctx, s, run.ID, "model", name, fittedModel(t), []string{"a", "b"})
	require.NoError(t, err)

	loaded, err := LoadModel(ctx, s, "models:/"+name+"/latest")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Version.Version)
}

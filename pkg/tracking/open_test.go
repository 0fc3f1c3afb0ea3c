package tracking

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tr, err := Open(ctx, filepath.Join(dir, "plain"))
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, tr)

	tr, err = Open(ctx, "file://"+filepath.Join(dir, "scheme"))
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, tr)
	assert.DirExists(t, filepath.Join(dir, "scheme", "runs"))

	tr, err = Open(ctx, "http://localhost:5000")
	require.NoError(t, err)
	assert.IsType(t, &MLflowClient{}, tr)
	require.NoError(t, tr.Close())

	_, err = Open(ctx, "s3://bucket/runs")
	assert.Error(t, err)
	_, err = Open(ctx, "")
	assert.Error(t, err)
}

package tracking

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

type openConfig struct {
	logger  *zap.Logger
	timeout time.Duration
}

// OpenOption configures Open.
type OpenOption func(*openConfig)

// WithLogger sets the logger of remote trackers.
func WithLogger(l *zap.Logger) OpenOption { return func(c *openConfig) { c.logger = l } }

// WithTimeout sets the request timeout of the MLflow client.
func WithTimeout(d time.Duration) OpenOption { return func(c *openConfig) { c.timeout = d } }

// Open returns the tracker for uri: an MLflow server for http(s) URIs, a
// Postgres store for postgres URIs and a directory store for file URIs or
// plain paths.
func Open(ctx context.Context, uri string, opts ...OpenOption) (Tracker, error) {
	cfg := openConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	if uri == "" {
		return nil, fmt.Errorf("tracking: empty tracking uri")
	}
	if !strings.Contains(uri, "://") {
		return NewFileStore(uri)
	}

	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("tracking: parse uri: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		return NewMLflowClient(uri, cfg.timeout, cfg.logger), nil
	case "postgres", "postgresql":
		return OpenPostgresStore(ctx, uri)
	case "file":
		return NewFileStore(u.Path)
	default:
		return nil, fmt.Errorf("tracking: unsupported tracking uri scheme %q", u.Scheme)
	}
}

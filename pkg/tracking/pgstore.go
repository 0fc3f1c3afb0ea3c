package tracking

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Taha-Alami/Chrun-prediction/pkg/postgres"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore keeps runs, artifacts and the model registry in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
	own  bool
}

// OpenPostgresStore migrates the tracking schema and connects to dsn.
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if err := postgres.RunMigrations(dsn, migrationsFS, "migrations"); err != nil {
		return nil, fmt.Errorf("tracking: %w", err)
	}
	pool, err := postgres.NewPool(ctx, dsn, 0)
	if err != nil {
		return nil, fmt.Errorf("tracking: %w", err)
	}
	s := NewPostgresStore(pool)
	s.own = true
	return s, nil
}

// NewPostgresStore uses an existing pool whose schema is already migrated.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var _ Tracker = (*PostgresStore)(nil)

func (s *PostgresStore) StartRun(ctx context.Context, experiment string, tags map[string]string) (*Run, error) {
	if tags == nil {
		tags = map[string]string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("tracking: encode tags: %w", err)
	}

	run := &Run{
		ID:         uuid.NewString(),
		Experiment: experiment,
		Status:     StatusRunning,
		StartTime:  time.Now().UTC(),
		Tags:       tags,
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO tracking_runs (id, experiment, status, start_time, tags) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.Experiment, string(run.Status), run.StartTime, encoded,
	)
	if err != nil {
		return nil, fmt.Errorf("tracking: start run: %w", err)
	}
	return run, nil
}

func (s *PostgresStore) LogParams(ctx context.Context, runID string, params map[string]string) error {
	return postgres.WithTransaction(ctx, s.pool, func(tx pgx.Tx) error {
		if err := checkRunning(ctx, tx, runID); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, k := range sortedKeys(params) {
			batch.Queue(
				`INSERT INTO tracking_params (run_id, key, value) VALUES ($1, $2, $3)
				 ON CONFLICT (run_id, key) DO UPDATE SET value = EXCLUDED.value`,
				runID, k, params[k],
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("tracking: log params: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) LogMetrics(ctx context.Context, runID string, metrics map[string]float64, step int) error {
	now := time.Now().UTC()
	return postgres.WithTransaction(ctx, s.pool, func(tx pgx.Tx) error {
		if err := checkRunning(ctx, tx, runID); err != nil {
			return err
		}
		id, err := parseRunID(runID)
		if err != nil {
			return err
		}
		rows := make([][]any, 0, len(metrics))
		for _, k := range sortedKeys(metrics) {
			rows = append(rows, []any{id, k, metrics[k], step, now})
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"tracking_metrics"},
			[]string{"run_id", "key", "value", "step", "logged_at"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("tracking: log metrics: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) LogArtifact(ctx context.Context, runID, path string, data []byte) error {
	p, err := cleanArtifactPath(path)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO tracking_artifacts (run_id, path, data)
		 SELECT id, $2, $3 FROM tracking_runs WHERE id = $1
		 ON CONFLICT (run_id, path) DO UPDATE SET data = EXCLUDED.data`,
		runID, p, data,
	)
	if err != nil {
		return fmt.Errorf("tracking: log artifact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tracking: run %s: %w", runID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DownloadArtifact(ctx context.Context, runID, path string) ([]byte, error) {
	p, err := cleanArtifactPath(path)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = s.pool.QueryRow(ctx,
		`SELECT data FROM tracking_artifacts WHERE run_id = $1 AND path = $2`, runID, p,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("tracking: artifact %s of run %s: %w", p, runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("tracking: download artifact: %w", err)
	}
	return data, nil
}

func (s *PostgresStore) EndRun(ctx context.Context, runID string, status RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tracking_runs SET status = $2, end_time = $3 WHERE id = $1`,
		runID, string(status), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("tracking: end run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tracking: run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// RegisterModelVersion takes a transaction-scoped advisory lock on the model
// name so concurrent registrations get consecutive versions.
func (s *PostgresStore) RegisterModelVersion(ctx context.Context, name, runID, source string) (*ModelVersion, error) {
	mv := &ModelVersion{Name: name, RunID: runID, Source: source, CreatedAt: time.Now().UTC()}
	err := postgres.WithTransaction(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, name); err != nil {
			return fmt.Errorf("tracking: lock model %s: %w", name, err)
		}
		err := tx.QueryRow(ctx,
			`INSERT INTO model_versions (name, version, run_id, source, created_at)
			 SELECT $1, COALESCE(MAX(version), 0) + 1, $2, $3, $4 FROM model_versions WHERE name = $1
			 RETURNING version`,
			name, runID, source, mv.CreatedAt,
		).Scan(&mv.Version)
		if err != nil {
			return fmt.Errorf("tracking: register model version: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mv, nil
}

func (s *PostgresStore) SearchModelVersions(ctx context.Context, name string) ([]ModelVersion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, version, run_id::text, source, created_at FROM model_versions WHERE name = $1 ORDER BY version`,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("tracking: search model versions: %w", err)
	}
	defer rows.Close()

	var out []ModelVersion
	for rows.Next() {
		var mv ModelVersion
		if err := rows.Scan(&mv.Name, &mv.Version, &mv.RunID, &mv.Source, &mv.CreatedAt); err != nil {
			return nil, fmt.Errorf("tracking: scan model version: %w", err)
		}
		out = append(out, mv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tracking: search model versions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	if s.own {
		s.pool.Close()
	}
	return nil
}

func parseRunID(runID string) (uuid.UUID, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("tracking: run %s: %w", runID, ErrNotFound)
	}
	return id, nil
}

func checkRunning(ctx context.Context, q postgres.Querier, runID string) error {
	if _, err := parseRunID(runID); err != nil {
		return err
	}
	var status string
	err := q.QueryRow(ctx, `SELECT status FROM tracking_runs WHERE id = $1 FOR UPDATE`, runID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("tracking: run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("tracking: get run: %w", err)
	}
	if RunStatus(status) != StatusRunning {
		return fmt.Errorf("tracking: run %s: %w", runID, ErrRunClosed)
	}
	return nil
}

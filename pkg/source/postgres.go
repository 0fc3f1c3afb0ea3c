package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/Taha-Alami/Chrun-prediction/pkg/frame"
	"github.com/Taha-Alami/Chrun-prediction/pkg/period"
	"github.com/Taha-Alami/Chrun-prediction/pkg/postgres"
)

// PostgresSource serves observations from a table holding one row per
// customer period.
type PostgresSource struct {
	db    postgres.Querier
	table string
}

// NewPostgresSource returns a source reading table through db. The table
// name may be schema qualified.
func NewPostgresSource(db postgres.Querier, table string) *PostgresSource {
	return &PostgresSource{db: db, table: pgx.Identifier(strings.Split(table, ".")).Sanitize()}
}

// LastDate returns max(period_end).
func (s *PostgresSource) LastDate(ctx context.Context) (time.Time, error) {
	var last pgtype.Date
	sql := fmt.Sprintf("SELECT max(%s) FROM %s", ColPeriodEnd, s.table)
	if err := s.db.QueryRow(ctx, sql).Scan(&last); err != nil {
		return time.Time{}, fmt.Errorf("source: last date: %w", err)
	}
	if !last.Valid {
		return time.Time{}, fmt.Errorf("source: %s has no observations", s.table)
	}
	return last.Time, nil
}

// Records returns the rows matching q, typed the same way as a CSV extract.
func (s *PostgresSource) Records(ctx context.Context, q Query) (*frame.Frame, error) {
	if _, err := ParseKind(string(q.Kind)); err != nil {
		return nil, err
	}
	sql, args := s.buildQuery(q)
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("source: query %s: %w", q, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	header := make([]string, len(fields))
	for i, fd := range fields {
		header[i] = fd.Name
	}

	var records [][]string
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("source: scan %s: %w", q, err)
		}
		rec := make([]string, len(values))
		for i, v := range values {
			rec[i] = cell(v)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("source: iterate %s: %w", q, err)
	}
	return frame.FromRecords(header, records, frame.WithStringColumns(IdentifierColumns...))
}

func (s *PostgresSource) buildQuery(q Query) (string, []any) {
	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s = $1 AND %s BETWEEN $2 AND $3",
		s.table, ColKind, ColPeriodEnd)
	args := []any{string(q.Kind), period.Truncate(q.Start), period.Truncate(q.End)}
	if q.Scenario != nil {
		sql += fmt.Sprintf(" AND %s = $4", ColScenario)
		args = append(args, *q.Scenario)
	}
	return sql + " ORDER BY " + ColPeriodEnd, args
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return x.Format(period.DateLayout)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return ""
		}
		return strconv.FormatFloat(f.Float64, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

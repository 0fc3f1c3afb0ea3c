package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Taha-Alami/Chrun-prediction/pkg/frame"
	"github.com/Taha-Alami/Chrun-prediction/pkg/period"
)

// CSVSource serves observations from a single CSV extract. The file is read
// once, on first use.
type CSVSource struct {
	path string

	once  sync.Once
	data  *frame.Frame
	dates []time.Time
	err   error
}

// NewCSVSource returns a source backed by the CSV file at path.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

func (s *CSVSource) load() error {
	s.once.Do(func() {
		f, err := frame.ReadCSVFile(s.path, frame.WithStringColumns(IdentifierColumns...))
		if err != nil {
			s.err = err
			return
		}
		for _, col := range []string{ColKind, ColPeriodEnd} {
			if !f.Has(col) {
				s.err = fmt.Errorf("source: %s: %w: %s", s.path, frame.ErrColumnNotFound, col)
				return
			}
		}
		kinds, _ := f.Strings(ColKind)
		for i, k := range kinds {
			if _, err := ParseKind(k); err != nil {
				s.err = fmt.Errorf("source: %s row %d: %w", s.path, i+1, err)
				return
			}
		}
		raw, _ := f.Strings(ColPeriodEnd)
		dates := make([]time.Time, len(raw))
		for i, v := range raw {
			t, err := time.Parse(period.DateLayout, v)
			if err != nil {
				s.err = fmt.Errorf("source: %s row %d: period_end: %w", s.path, i+1, err)
				return
			}
			dates[i] = t
		}
		s.data, s.dates = f, dates
	})
	return s.err
}

// LastDate returns the latest period_end in the file.
func (s *CSVSource) LastDate(ctx context.Context) (time.Time, error) {
	if err := s.load(); err != nil {
		return time.Time{}, err
	}
	if len(s.dates) == 0 {
		return time.Time{}, fmt.Errorf("source: %s has no observations", s.path)
	}
	last := s.dates[0]
	for _, d := range s.dates[1:] {
		if d.After(last) {
			last = d
		}
	}
	return last, nil
}

// Records returns the rows matching q.
func (s *CSVSource) Records(ctx context.Context, q Query) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := ParseKind(string(q.Kind)); err != nil {
		return nil, err
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	kinds, _ := s.data.Strings(ColKind)
	var scenarios []float64
	if q.Scenario != nil {
		var err error
		if scenarios, err = s.data.Float(ColScenario); err != nil {
			return nil, fmt.Errorf("source: %s: %w", s.path, err)
		}
	}
	start, end := period.Truncate(q.Start), period.Truncate(q.End)

	out := s.data.Filter(func(i int) bool {
		if Kind(kinds[i]) != q.Kind {
			return false
		}
		if s.dates[i].Before(start) || s.dates[i].After(end) {
			return false
		}
		return q.Scenario == nil || scenarios[i] == float64(*q.Scenario)
	})
	out.ResetIndex()
	return out, nil
}

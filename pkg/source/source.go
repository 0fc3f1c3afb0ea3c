// Package source reads raw customer-period observations and assembles the
// training, test and prediction tables from them.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Taha-Alami/Chrun-prediction/pkg/frame"
)

// ErrUnknownKind is returned for an observation kind the pipeline does not know.
var ErrUnknownKind = errors.New("source: unknown kind")

// Kind selects which population an observation belongs to.
type Kind string

const (
	KindResiliation Kind = "resiliation"
	KindStop        Kind = "stop"
	KindClient      Kind = "client"
	KindActive      Kind = "active"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindResiliation, KindStop, KindClient, KindActive:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Column names every source provides.
const (
	ColAccount          = "account"
	ColClientOriginCode = "client_origin_code"
	ColClientCode       = "client_code"
	ColKind             = "kind"
	ColScenario         = "scenario"
	ColPeriodEnd        = "period_end"
)

// IdentifierColumns are read as strings even when they look numeric.
var IdentifierColumns = []string{ColAccount, ColClientOriginCode, ColClientCode, ColKind, ColPeriodEnd}

// Query selects the observations of one kind whose period_end falls in
// [Start, End]. A nil Scenario matches every scenario.
type Query struct {
	Kind     Kind
	Start    time.Time
	End      time.Time
	Scenario *int
}

func (q Query) String() string {
	s := fmt.Sprintf("%s [%s, %s]", q.Kind, q.Start.Format("2006-01-02"), q.End.Format("2006-01-02"))
	if q.Scenario != nil {
		s += fmt.Sprintf(" scenario %d", *q.Scenario)
	}
	return s
}

// Source provides raw observations.
type Source interface {
	// LastDate returns the most recent period_end available.
	LastDate(ctx context.Context) (time.Time, error)
	// Records returns the observations matching q. No match is an empty frame.
	Records(ctx context.Context, q Query) (*frame.Frame, error)
}

// Scenario returns a pointer to s for use in a Query.
func Scenario(s int) *int { return &s }

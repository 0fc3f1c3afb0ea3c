package source

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Taha-Alami/Chrun-prediction/pkg/frame"
	"github.com/Taha-Alami/Chrun-prediction/pkg/period"
)

// Resiliation windows are shifted forward so that a customer who cancels is
// observed six months before the cancellation takes effect.
const ResiliationShiftMonths = 6

// Scenarios are the resiliation scenarios combined into every table.
var Scenarios = []int{0, 1, 2}

// Datasets are the three tables produced by the preparation stage.
type Datasets struct {
	Train    *frame.Frame
	Test     *frame.Frame
	Predict  *frame.Frame
	LastDate time.Time
}

// Preparer assembles training, test and prediction tables from a Source.
type Preparer struct {
	src    Source
	start  time.Time
	logger *zap.Logger
}

// NewPreparer returns a preparer whose training history starts at start.
func NewPreparer(src Source, start time.Time, logger *zap.Logger) *Preparer {
	return &Preparer{src: src, start: period.Truncate(start), logger: logger}
}

// Prepare builds the tables. A zero last uses the latest date in the source;
// either way it is moved to the last day of its month.
func (p *Preparer) Prepare(ctx context.Context, last time.Time) (*Datasets, error) {
	if last.IsZero() {
		var err error
		if last, err = p.src.LastDate(ctx); err != nil {
			return nil, err
		}
	}
	last = period.LastDayOfMonth(period.Truncate(last))

	dateRes := period.ResiliationDate(last)
	dateStop := period.StopDate(last)
	dateClient := period.ClientDate(last)
	p.logger.Info("preparing datasets",
		zap.Time("last_date", last),
		zap.Time("resiliation_date", dateRes),
		zap.Time("stop_date", dateStop),
		zap.Time("client_date", dateClient),
	)

	train, err := p.window(ctx, p.start, dateRes, p.start, dateStop, p.start, dateClient)
	if err != nil {
		return nil, fmt.Errorf("source: training data: %w", err)
	}
	p.logger.Info("training data prepared", zap.Int("rows", train.Len()))

	testStart := dateRes.AddDate(0, 0, 1)
	test, err := p.window(ctx, testStart, last, testStart, last, testStart, last)
	if err != nil {
		return nil, fmt.Errorf("source: test data: %w", err)
	}
	p.logger.Info("test data prepared", zap.Int("rows", test.Len()))

	predict, err := p.fetch(ctx, Query{Kind: KindActive, Start: period.PredictionStart(last), End: last})
	if err != nil {
		return nil, fmt.Errorf("source: prediction data: %w", err)
	}
	p.logger.Info("prediction data prepared", zap.Int("rows", predict.Len()))

	return &Datasets{Train: train, Test: test, Predict: predict, LastDate: last}, nil
}

// window concatenates resiliations, stops and clients, each fetched
// concurrently over its own date range.
func (p *Preparer) window(ctx context.Context, resStart, resEnd, stopStart, stopEnd, clientStart, clientEnd time.Time) (*frame.Frame, error) {
	var res, stops, clients *frame.Frame
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		res, err = p.Resiliations(gctx, resStart, resEnd)
		return err
	})
	g.Go(func() error {
		var err error
		stops, err = p.fetch(gctx, Query{Kind: KindStop, Start: stopStart, End: stopEnd})
		return err
	})
	g.Go(func() error {
		var err error
		clients, err = p.fetch(gctx, Query{Kind: KindClient, Start: clientStart, End: clientEnd})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return frame.Concat(res, stops, clients), nil
}

// Resiliations combines every resiliation scenario over [start, end] shifted
// by ResiliationShiftMonths.
func (p *Preparer) Resiliations(ctx context.Context, start, end time.Time) (*frame.Frame, error) {
	parts := make([]*frame.Frame, 0, len(Scenarios))
	for _, s := range Scenarios {
		f, err := p.fetch(ctx, Query{
			Kind:     KindResiliation,
			Start:    period.AddMonths(start, ResiliationShiftMonths),
			End:      period.AddMonths(end, ResiliationShiftMonths),
			Scenario: Scenario(s),
		})
		if err != nil {
			return nil, err
		}
		parts = append(parts, f)
	}
	return frame.Concat(parts...), nil
}

func (p *Preparer) fetch(ctx context.Context, q Query) (*frame.Frame, error) {
	f, err := p.src.Records(ctx, q)
	if err != nil {
		return nil, err
	}
	if f.Len() == 0 {
		p.logger.Warn("no observations in window", zap.Stringer("query", q))
		return f, nil
	}
	p.logger.Debug("observations fetched", zap.Stringer("query", q), zap.Int("rows", f.Len()))
	return f, nil
}

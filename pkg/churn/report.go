package churn

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Taha-Alami/Chrun-prediction/pkg/dataprep"
	"github.com/Taha-Alami/Chrun-prediction/pkg/frame"
	"github.com/Taha-Alami/Chrun-prediction/pkg/source"
)

// Columns of the churn report, in output order.
const (
	ReportClientOriginCode = dataprep.ColClientOriginCode
	ReportRevenue6Months   = "Last 6 Months Revenue"
	ReportRevenueTotal     = "Total Revenue (Since 2017)"
	ReportConsumption      = "Consumption Change"
	ReportTransactions     = "Transaction Volume Change"
	ReportMonthsInvoiced   = "Months Invoiced (Last 12)"
	ReportCustomerAge      = "Customer Age (Years)"
	ReportChurnRisk        = "Churn Risk"
	ReportInterlocutor     = "Interlocutor_Reference"
)

const (
	consumptionIncreased = "Increased consumption"
	consumptionStable    = "Stable consumption"
	consumptionDecreased = "Decreased consumption"

	monthsInYear = 12
)

// Report builds the churn report from the predictions file and writes it.
func (r *Runner) Report(ctx context.Context) (out *frame.Frame, err error) {
	start := time.Now()
	defer func() { r.metrics.RecordStage("report", err, time.Since(start)) }()

	preds, err := readTable(r.cfg.Paths.Predictions)
	if err != nil {
		return nil, err
	}
	dir := r.directory
	if dir == nil {
		if dir, err = source.LoadCSVDirectory(r.cfg.Paths.Directory); err != nil {
			return nil, err
		}
	}
	out, err = BuildReport(ctx, preds, dir, r.cfg.Training.Threshold)
	if err != nil {
		return nil, err
	}
	if err := writeTable(out, r.cfg.Paths.Report); err != nil {
		return nil, err
	}
	r.logger.Info("churn report written", zap.String("path", r.cfg.Paths.Report), zap.Int("customers", out.Len()))
	return out, nil
}

// BuildReport keeps the customers whose churn probability reaches threshold,
// riskiest first, and describes them with readable columns.
func BuildReport(ctx context.Context, preds *frame.Frame, dir source.Directory, threshold float64) (*frame.Frame, error) {
	proba, err := preds.Float(ColProbability)
	if err != nil {
		return nil, fmt.Errorf("churn: report: %w", err)
	}
	rows := make([]int, 0, len(proba))
	for i, p := range proba {
		if p >= threshold {
			rows = append(rows, i)
		}
	}
	sort.SliceStable(rows, func(a, b int) bool { return proba[rows[a]] > proba[rows[b]] })
	sel := preds.Rows(rows)
	sel.ResetIndex()

	cols := map[string][]float64{}
	for _, name := range []string{
		ColProbability, dataprep.ColRevenue6Months, dataprep.ColRevenueTotal, dataprep.ColRevenueGrowth,
		dataprep.ColTransactions, dataprep.ColInactiveMonths, dataprep.ColTenure,
	} {
		if cols[name], err = sel.Float(name); err != nil {
			return nil, fmt.Errorf("churn: report: %w", err)
		}
	}
	origin, err := sel.Strings(dataprep.ColClientOriginCode)
	if err != nil {
		return nil, fmt.Errorf("churn: report: %w", err)
	}
	codes, err := sel.Strings(dataprep.ColClientCode)
	if err != nil {
		return nil, fmt.Errorf("churn: report: %w", err)
	}
	known, err := dir.Interlocutors(ctx, codes)
	if err != nil {
		return nil, fmt.Errorf("churn: report: interlocutors: %w", err)
	}

	n := sel.Len()
	consumption := make([]string, n)
	invoiced := make([]float64, n)
	age := make([]float64, n)
	interlocutors := make([]string, n)
	for i := range n {
		consumption[i] = consumptionChange(cols[dataprep.ColRevenueGrowth][i])
		invoiced[i] = monthsInYear - cols[dataprep.ColInactiveMonths][i]
		age[i] = frame.RoundHalfEven(cols[dataprep.ColTenure][i]/monthsInYear, 0)
		interlocutors[i] = known[codes[i]]
	}

	out := frame.New()
	for _, err := range []error{
		out.SetStrings(ReportClientOriginCode, origin),
		out.SetFloat(ReportRevenue6Months, cols[dataprep.ColRevenue6Months]),
		out.SetFloat(ReportRevenueTotal, cols[dataprep.ColRevenueTotal]),
		out.SetStrings(ReportConsumption, consumption),
		out.SetFloat(ReportTransactions, cols[dataprep.ColTransactions]),
		out.SetFloat(ReportMonthsInvoiced, invoiced),
		out.SetFloat(ReportCustomerAge, age),
		out.SetFloat(ReportChurnRisk, cols[ColProbability]),
		out.SetStrings(ReportInterlocutor, interlocutors),
	} {
		if err != nil {
			return nil, fmt.Errorf("churn: report: %w", err)
		}
	}
	return out, nil
}

// consumptionChange labels the revenue trend. A missing trend is not an
// increase nor stable, so it reads as a decrease.
func consumptionChange(growth float64) string {
	switch {
	case growth > 0:
		return consumptionIncreased
	case growth == 0:
		return consumptionStable
	default:
		return consumptionDecreased
	}
}

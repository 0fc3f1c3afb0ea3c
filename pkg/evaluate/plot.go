package evaluate

import (
	"bytes"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotROC renders the ROC curve as a PNG.
func PlotROC(c Curve, auc float64) ([]byte, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("ROC curve (AUC = %.3f)", auc)
	p.X.Label.Text = "False positive rate"
	p.Y.Label.Text = "True positive rate"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1

	pts := make(plotter.XYs, len(c.FPR))
	for i := range c.FPR {
		pts[i].X = c.FPR[i]
		pts[i].Y = c.TPR[i]
	}
	l, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("evaluate: roc line: %w", err)
	}
	l.Color = color.RGBA{R: 50, G: 50, B: 255, A: 255}
	l.LineStyle.Width = vg.Points(2)
	p.Add(l)

	chance, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 1}})
	if err != nil {
		return nil, fmt.Errorf("evaluate: chance line: %w", err)
	}
	chance.Color = color.RGBA{R: 160, G: 160, B: 160, A: 255}
	chance.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(chance)

	return render(p, 4*vg.Inch, 4*vg.Inch)
}

// PlotImportance renders feature importances as a bar chart PNG.
func PlotImportance(features []string, importance []float64) ([]byte, error) {
	if len(features) != len(importance) {
		return nil, fmt.Errorf("evaluate: %d features and %d importances", len(features), len(importance))
	}
	p := plot.New()
	p.Title.Text = "Feature importance (gain)"
	p.Y.Label.Text = "Share of total gain"

	bars, err := plotter.NewBarChart(plotter.Values(importance), vg.Points(18))
	if err != nil {
		return nil, fmt.Errorf("evaluate: bar chart: %w", err)
	}
	bars.Color = color.RGBA{R: 255, G: 120, A: 255}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(features...)
	p.X.Tick.Label.Rotation = 0.8
	p.X.Tick.Label.XAlign = -1

	return render(p, 8*vg.Inch, 5*vg.Inch)
}

func render(p *plot.Plot, w, h vg.Length) ([]byte, error) {
	wt, err := p.WriterTo(w, h, "png")
	if err != nil {
		return nil, fmt.Errorf("evaluate: render: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("evaluate: render: %w", err)
	}
	return buf.Bytes(), nil
}

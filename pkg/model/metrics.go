package model

import (
	"fmt"
	"strings"
)

func Accuracy(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	c := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			c++
		}
	}
	return float64(c) / float64(len(yTrue))
}

func BinaryPredFromProba(proba []float64, threshold float64) []int {
	out := make([]int, len(proba))
	for i, p := range proba {
		if p >= threshold {
			out[i] = 1
		} else {
			out[i] = 0
		}
	}
	return out
}

// PrecisionRecallF1 scores class 1 of a binary classification.
func PrecisionRecallF1(yTrue []int, yPred []int) (prec, rec, f1 float64) {
	cm := ConfusionMatrix(yTrue, yPred)
	return prf(cm.TP, cm.FP, cm.FN)
}

func prf(tp, fp, fn int) (prec, rec, f1 float64) {
	if tp+fp > 0 {
		prec = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		rec = float64(tp) / float64(tp+fn)
	}
	if prec+rec > 0 {
		f1 = 2 * prec * rec / (prec + rec)
	}
	return
}

// Confusion is a binary confusion matrix.
type Confusion struct {
	TN, FP, FN, TP int
}

// Ravel returns the counts in (tn, fp, fn, tp) order.
func (c Confusion) Ravel() []int { return []int{c.TN, c.FP, c.FN, c.TP} }

func (c Confusion) String() string {
	return fmt.Sprintf("[%d %d %d %d]", c.TN, c.FP, c.FN, c.TP)
}

// ConfusionMatrix counts predictions against labels.
func ConfusionMatrix(yTrue, yPred []int) Confusion {
	var c Confusion
	for i := range yTrue {
		switch {
		case yTrue[i] == 1 && yPred[i] == 1:
			c.TP++
		case yTrue[i] == 0 && yPred[i] == 1:
			c.FP++
		case yTrue[i] == 1 && yPred[i] == 0:
			c.FN++
		default:
			c.TN++
		}
	}
	return c
}

// ClassMetrics are the per-class scores of a classification report.
type ClassMetrics struct {
	Label     string
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Report is a binary classification report.
type Report struct {
	Classes     []ClassMetrics // class 0 then class 1
	Accuracy    float64
	MacroAvg    ClassMetrics
	WeightedAvg ClassMetrics
	Support     int
}

// ClassificationReport computes per-class precision, recall and F1 with
// macro and support-weighted averages.
func ClassificationReport(yTrue, yPred []int) Report {
	cm := ConfusionMatrix(yTrue, yPred)
	p1, r1, f1 := PrecisionRecallF1(yTrue, yPred)
	p0, r0, f0 := PrecisionRecallF1(flip(yTrue), flip(yPred))
	s0, s1 := cm.TN+cm.FP, cm.FN+cm.TP
	total := s0 + s1

	r := Report{
		Classes: []ClassMetrics{
			{Label: "0", Precision: p0, Recall: r0, F1: f0, Support: s0},
			{Label: "1", Precision: p1, Recall: r1, F1: f1, Support: s1},
		},
		Accuracy: Accuracy(yTrue, yPred),
		Support:  total,
	}
	r.MacroAvg = ClassMetrics{
		Label:     "macro avg",
		Precision: (p0 + p1) / 2,
		Recall:    (r0 + r1) / 2,
		F1:        (f0 + f1) / 2,
		Support:   total,
	}
	r.WeightedAvg = ClassMetrics{Label: "weighted avg", Support: total}
	if total > 0 {
		w0, w1 := float64(s0)/float64(total), float64(s1)/float64(total)
		r.WeightedAvg.Precision = w0*p0 + w1*p1
		r.WeightedAvg.Recall = w0*r0 + w1*r1
		r.WeightedAvg.F1 = w0*f0 + w1*f1
	}
	return r
}

// String renders the report as a text table.
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%12s %10s %10s %10s %10s\n\n", "", "precision", "recall", "f1-score", "support")
	for _, c := range r.Classes {
		fmt.Fprintf(&b, "%12s %10.2f %10.2f %10.2f %10d\n", c.Label, c.Precision, c.Recall, c.F1, c.Support)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%12s %10s %10s %10.2f %10d\n", "accuracy", "", "", r.Accuracy, r.Support)
	for _, c := range []ClassMetrics{r.MacroAvg, r.WeightedAvg} {
		fmt.Fprintf(&b, "%12s %10.2f %10.2f %10.2f %10d\n", c.Label, c.Precision, c.Recall, c.F1, c.Support)
	}
	return b.String()
}

// flip swaps labels 0 and 1 so class 0 can be scored as the positive class.
func flip(y []int) []int {
	out := make([]int, len(y))
	for i, v := range y {
		out[i] = 1 - v
	}
	return out
}

// Package evaluate scores a fitted classifier on labelled data and renders
// the evaluation artifacts logged with a training run.
package evaluate

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"github.com/Taha-Alami/Chrun-prediction/pkg/model"
)

// Report holds the evaluation of probabilities against labels.
type Report struct {
	Threshold      float64
	Classification model.Report
	Confusion      model.Confusion
	LogLoss        float64
	AUC            float64 // NaN when only one class is present
	Curve          Curve
}

// Curve is a receiver operating characteristic curve.
type Curve struct {
	TPR []float64
	FPR []float64
}

// Evaluate thresholds proba and compares it with yTrue.
func Evaluate(yTrue []int, proba []float64, threshold float64) (*Report, error) {
	if len(yTrue) == 0 {
		return nil, errors.New("evaluate: no rows")
	}
	if len(yTrue) != len(proba) {
		return nil, fmt.Errorf("evaluate: %d labels and %d probabilities", len(yTrue), len(proba))
	}
	pred := model.BinaryPredFromProba(proba, threshold)
	curve, auc := ROC(yTrue, proba)
	return &Report{
		Threshold:      threshold,
		Classification: model.ClassificationReport(yTrue, pred),
		Confusion:      model.ConfusionMatrix(yTrue, pred),
		LogLoss:        model.LogLoss(yTrue, proba),
		AUC:            auc,
		Curve:          curve,
	}, nil
}

// ROC computes the ROC curve and the area under it.
func ROC(yTrue []int, proba []float64) (Curve, float64) {
	y := make([]float64, len(proba))
	copy(y, proba)
	classes := make([]bool, len(yTrue))
	for i, v := range yTrue {
		classes[i] = v == 1
	}
	stat.SortWeightedLabeled(y, classes, nil)

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	curve := Curve{TPR: tpr, FPR: fpr}
	for i := range tpr {
		if math.IsNaN(tpr[i]) || math.IsNaN(fpr[i]) {
			return curve, math.NaN()
		}
	}
	return curve, integrate.Trapezoidal(fpr, tpr)
}

// Metrics flattens the report into named values. AUC is left out when it is
// undefined.
func (r *Report) Metrics(prefix string) map[string]float64 {
	c := r.Classification
	pos, neg := c.Classes[1], c.Classes[0]
	m := make(map[string]float64, 14)
	m[prefix+"accuracy"] = c.Accuracy
	m[prefix+"log_loss"] = r.LogLoss
	m[prefix+"precision"] = pos.Precision
	m[prefix+"recall"] = pos.Recall
	m[prefix+"f1"] = pos.F1
	m[prefix+"macro_f1"] = c.MacroAvg.F1
	m[prefix+"weighted_f1"] = c.WeightedAvg.F1
	m[prefix+"positive_support"] = float64(pos.Support)
	m[prefix+"negative_support"] = float64(neg.Support)
	m[prefix+"true_negatives"] = float64(r.Confusion.TN)
	m[prefix+"false_positives"] = float64(r.Confusion.FP)
	m[prefix+"false_negatives"] = float64(r.Confusion.FN)
	m[prefix+"true_positives"] = float64(r.Confusion.TP)
	if !math.IsNaN(r.AUC) {
		m[prefix+"roc_auc"] = r.AUC
	}
	return m
}

package model

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// separable returns rows 0..n-1 labelled 1 from n/2 upwards, with a
// constant second feature.
func separable(n int) ([][]float64, []int) {
	X := make([][]float64, n)
	y := make([]int, n)
	for i := range X {
		X[i] = []float64{float64(i), 7}
		if i >= n/2 {
			y[i] = 1
		}
	}
	return X, y
}

func TestGradientBoostingSeparable(t *testing.T) {
	X, y := separable(20)
	clf := NewGradientBoostingClassifier(WithNEstimators(20))
	require.NoError(t, clf.Fit(X, y))

	pred, err := clf.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, y, pred)

	proba, err := clf.PredictProba([][]float64{{0, 7}, {19, 7}})
	require.NoError(t, err)
	assert.Less(t, proba[0], 0.3)
	assert.Greater(t, proba[1], 0.7)
	assert.Equal(t, 20, clf.NumTrees())
	assert.Equal(t, 19, clf.BestIteration())
}

func TestGradientBoostingLearnsMissingDirection(t *testing.T) {
	var X [][]float64
	var y []int
	for i := 0; i < 10; i++ {
		X = append(X, []float64{float64(i)})
		y = append(y, 0)
		X = append(X, []float64{math.NaN()})
		y = append(y, 1)
	}
	clf := NewGradientBoostingClassifier(WithNEstimators(10))
	require.NoError(t, clf.Fit(X, y))

	pred, err := clf.Predict([][]float64{{math.NaN()}, {3}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, pred)
}

func TestGradientBoostingEarlyStopping(t *testing.T) {
	X, y := separable(20)
	flipped := make([]int, len(y))
	for i := range y {
		flipped[i] = 1 - y[i]
	}

	var rounds []int
	clf := NewGradientBoostingClassifier(WithNEstimators(50), WithEarlyStoppingRounds(3))
	err := clf.FitWithEval(X, y, X, flipped, func(iter int, trainLoss, evalLoss float64) {
		rounds = append(rounds, iter)
		assert.False(t, math.IsNaN(evalLoss))
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2, 3}, rounds)
	assert.Len(t, clf.EvalHistory(), 4)
	assert.Equal(t, 0, clf.BestIteration())
	assert.Equal(t, 1, clf.NumTrees())
}

func TestGradientBoostingEvalCallbackWithoutEvalSet(t *testing.T) {
	X, y := separable(10)
	var losses []float64
	clf := NewGradientBoostingClassifier(WithNEstimators(5))
	require.NoError(t, clf.FitWithEval(X, y, nil, nil, func(_ int, trainLoss, evalLoss float64) {
		losses = append(losses, trainLoss)
		assert.True(t, math.IsNaN(evalLoss))
	}))

	require.Len(t, losses, 5)
	for i := 1; i < len(losses); i++ {
		assert.LessOrEqual(t, losses[i], losses[i-1]+1e-12)
	}
	assert.Less(t, losses[0], math.Ln2)
}

func TestGradientBoostingDeterministicSampling(t *testing.T) {
	X, y := separable(40)
	opts := []Option{WithNEstimators(15), WithSubsample(0.7), WithColsampleByTree(0.5), WithSeed(3)}

	a := NewGradientBoostingClassifier(opts...)
	require.NoError(t, a.Fit(X, y))
	b := NewGradientBoostingClassifier(opts...)
	require.NoError(t, b.Fit(X, y))

	pa, err := a.PredictProba(X)
	require.NoError(t, err)
	pb, err := b.PredictProba(X)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestGradientBoostingErrors(t *testing.T) {
	clf := NewGradientBoostingClassifier()
	_, err := clf.PredictProba([][]float64{{1}})
	assert.True(t, errors.Is(err, ErrNotFitted))

	assert.Error(t, clf.Fit(nil, nil))
	assert.Error(t, clf.Fit([][]float64{{1}, {2}}, []int{0}))
	assert.Error(t, clf.Fit([][]float64{{1}, {2, 3}}, []int{0, 1}))
	assert.Error(t, clf.Fit([][]float64{{1}, {2}}, []int{0, 2}))
	assert.Error(t, NewGradientBoostingClassifier(WithNEstimators(0)).Fit([][]float64{{1}}, []int{0}))
	assert.Error(t, NewGradientBoostingClassifier(WithSubsample(1.5)).Fit([][]float64{{1}}, []int{0}))

	X, y := separable(10)
	require.NoError(t, clf.Fit(X, y))
	_, err = clf.PredictProba([][]float64{{1}})
	assert.Error(t, err, "wrong number of features")
}

func TestFeatureImportance(t *testing.T) {
	X, y := separable(20)
	clf := NewGradientBoostingClassifier(WithNEstimators(5))
	require.NoError(t, clf.Fit(X, y))

	imp := clf.FeatureImportance()
	require.Len(t, imp, 2)
	assert.InDelta(t, 1.0, imp[0], 1e-12)
	assert.Equal(t, 0.0, imp[1], "a constant feature never splits")
}

func TestMarshalRoundTrip(t *testing.T) {
	X, y := separable(20)
	clf := NewGradientBoostingClassifier(WithNEstimators(8), WithMaxDepth(3), WithSeed(9))
	require.NoError(t, clf.Fit(X, y))

	data, err := clf.MarshalBinary()
	require.NoError(t, err)

	var loaded GradientBoostingClassifier
	require.NoError(t, loaded.UnmarshalBinary(data))

	want, _ := clf.PredictProba(X)
	got, err := loaded.PredictProba(X)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, clf.Params(), loaded.Params())

	assert.Error(t, loaded.UnmarshalBinary([]byte("not gob")))
}

func TestTreePredictMissing(t *testing.T) {
	tree := Tree{Nodes: []Node{
		{Feature: 0, Threshold: 1.5, DefaultLeft: false, Left: 1, Right: 2},
		{Leaf: true, Weight: -1},
		{Leaf: true, Weight: 1},
	}}
	assert.Equal(t, -1.0, tree.Predict([]float64{1.5}))
	assert.Equal(t, 1.0, tree.Predict([]float64{2}))
	assert.Equal(t, 1.0, tree.Predict([]float64{math.NaN()}))
}

func TestParamsMap(t *testing.T) {
	m := DefaultParams().Map()
	assert.Equal(t, "100", m["n_estimators"])
	assert.Equal(t, "0.3", m["learning_rate"])
	assert.Equal(t, "binary:logistic", m["objective"])
}

func TestLogLoss(t *testing.T) {
	assert.InDelta(t, -math.Log(0.8), LogLoss([]int{1, 0}, []float64{0.8, 0.2}), 1e-12)
	assert.InDelta(t, math.Ln2, LogLoss([]int{1}, []float64{0.5}), 1e-12)
	assert.False(t, math.IsInf(LogLoss([]int{1}, []float64{0}), 0), "probabilities are clipped")
	assert.InDelta(t, 0.3, Sigmoid(Logit(0.3)), 1e-12)
}

func TestConfusionMatrix(t *testing.T) {
	yTrue := []int{0, 0, 0, 1, 1, 1, 1}
	yPred := []int{0, 1, 0, 1, 0, 1, 1}
	cm := ConfusionMatrix(yTrue, yPred)
	assert.Equal(t, Confusion{TN: 2, FP: 1, FN: 1, TP: 3}, cm)
	assert.Equal(t, []int{2, 1, 1, 3}, cm.Ravel())
	assert.Equal(t, "[2 1 1 3]", cm.String())

	prec, rec, f1 := PrecisionRecallF1(yTrue, yPred)
	assert.InDelta(t, 0.75, prec, 1e-12)
	assert.InDelta(t, 0.75, rec, 1e-12)
	assert.InDelta(t, 0.75, f1, 1e-12)
	assert.InDelta(t, 5.0/7.0, Accuracy(yTrue, yPred), 1e-12)
}

func TestClassificationReport(t *testing.T) {
	yTrue := []int{0, 0, 0, 1, 1, 1, 1}
	yPred := []int{0, 1, 0, 1, 0, 1, 1}
	r := ClassificationReport(yTrue, yPred)

	require.Len(t, r.Classes, 2)
	assert.InDelta(t, 2.0/3.0, r.Classes[0].Precision, 1e-12)
	assert.InDelta(t, 2.0/3.0, r.Classes[0].Recall, 1e-12)
	assert.Equal(t, 3, r.Classes[0].Support)
	assert.Equal(t, 4, r.Classes[1].Support)
	assert.InDelta(t, (2.0/3.0+0.75)/2, r.MacroAvg.F1, 1e-12)
	assert.InDelta(t, 3.0/7.0*2.0/3.0+4.0/7.0*0.75, r.WeightedAvg.Precision, 1e-12)

	text := r.String()
	assert.True(t, strings.Contains(text, "precision"))
	assert.True(t, strings.Contains(text, "macro avg"))
	assert.True(t, strings.Contains(text, "weighted avg"))
	assert.True(t, strings.Contains(text, "0.71"), "accuracy line")
}

func TestBinaryPredFromProba(t *testing.T) {
	assert.Equal(t, []int{0, 1, 1}, BinaryPredFromProba([]float64{0.49, 0.5, 0.9}, 0.5))
}

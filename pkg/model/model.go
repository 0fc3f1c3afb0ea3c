// Package model implements the churn classifier: gradient boosted regression
// trees on the logistic loss, with the metrics used to evaluate it.
package model

import "errors"

// ErrNotFitted is returned when predicting with a model that was never fitted.
var ErrNotFitted = errors.New("model: not fitted")

// Classifier is a binary classifier over float feature rows. Missing
// values are math.NaN().
type Classifier interface {
	Fit(X [][]float64, y []int) error
	Predict(X [][]float64) ([]int, error)
	PredictProba(X [][]float64) ([]float64, error) // returns p(y=1)
}

// EvalCallback is called after every boosting round with the training and
// evaluation log loss. evalLoss is NaN without an evaluation set.
type EvalCallback func(iteration int, trainLoss, evalLoss float64)

package model

import "math"

const probEps = 1e-15

func Sigmoid(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) }

// Logit is the inverse of Sigmoid.
func Logit(p float64) float64 { return math.Log(p / (1 - p)) }

// LogLoss is the mean binary cross-entropy of probabilities against 0/1 labels.
// Probabilities are clipped away from 0 and 1.
func LogLoss(yTrue []int, proba []float64) float64 {
	n := len(yTrue)
	if n == 0 {
		return 0
	}
	s := 0.0
	for i := range n {
		p := math.Min(math.Max(proba[i], probEps), 1-probEps)
		y := float64(yTrue[i])
		s += -(y*math.Log(p) + (1-y)*math.Log(1-p))
	}
	return s / float64(n)
}

// logisticGradients fills the first and second derivatives of the log loss
// with respect to the margin.
func logisticGradients(y []int, margin, grad, hess []float64) {
	for i := range y {
		p := Sigmoid(margin[i])
		grad[i] = p - float64(y[i])
		hess[i] = math.Max(p*(1-p), 1e-16)
	}
}

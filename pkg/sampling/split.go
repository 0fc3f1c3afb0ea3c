package sampling

import "math/rand"

// TrainTestSplit splits X, y into train and test sets by ratio after a
// seeded shuffle.
func TrainTestSplit(X [][]float64, y []int, testRatio float64, seed int64) (XTrain, XTest [][]float64, yTrain, yTest []int) {
	XShuf, yShuf := Shuffle(X, y, seed)
	nTest := int(float64(len(X)) * testRatio)
	return XShuf[nTest:], XShuf[:nTest:nTest], yShuf[nTest:], yShuf[:nTest:nTest]
}

// Shuffle shuffles X and y in unison.
func Shuffle(X [][]float64, y []int, seed int64) ([][]float64, []int) {
	n := len(X)
	indices := rand.New(rand.NewSource(seed)).Perm(n)
	XShuf := make([][]float64, n)
	yShuf := make([]int, n)
	for i, idx := range indices {
		XShuf[i] = X[idx]
		yShuf[i] = y[idx]
	}
	return XShuf, yShuf
}

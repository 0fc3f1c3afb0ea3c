package sampling

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func imbalanced() ([][]float64, []int) {
	X := [][]float64{{0}, {1}, {2}, {3}, {4}, {5}, {6}}
	y := []int{0, 0, 0, 0, 0, 1, 1}
	return X, y
}

func TestRandomOverSamplerBalances(t *testing.T) {
	X, y := imbalanced()
	outX, outY, err := RandomOverSampler{Seed: 0}.FitResample(X, y)
	require.NoError(t, err)

	assert.Len(t, outX, 10)
	assert.Equal(t, map[int]int{0: 5, 1: 5}, ClassCounts(outY))

	assert.Equal(t, X, outX[:7], "originals come first, in order")
	assert.Equal(t, y, outY[:7])
	for i := 7; i < 10; i++ {
		assert.Equal(t, 1, outY[i])
		assert.Contains(t, []float64{5, 6}, outX[i][0])
	}
}

func TestRandomOverSamplerDeterministic(t *testing.T) {
	_, y := imbalanced()
	a, err := RandomOverSampler{Seed: 42}.Indices(y)
	require.NoError(t, err)
	b, err := RandomOverSampler{Seed: 42}.Indices(y)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRandomOverSamplerCopiesRows(t *testing.T) {
	X, y := imbalanced()
	outX, _, err := RandomOverSampler{}.FitResample(X, y)
	require.NoError(t, err)

	outX[0][0] = 99
	assert.Equal(t, 0.0, X[0][0])
}

func TestRandomOverSamplerBalancedInput(t *testing.T) {
	drawn, err := RandomOverSampler{}.Indices([]int{0, 1, 1, 0})
	require.NoError(t, err)
	assert.Empty(t, drawn)
}

func TestRandomOverSamplerErrors(t *testing.T) {
	_, _, err := RandomOverSampler{}.FitResample(nil, nil)
	assert.True(t, errors.Is(err, ErrEmpty))

	_, _, err = RandomOverSampler{}.FitResample([][]float64{{1}}, []int{0, 1})
	assert.Error(t, err)
}

func TestTrainTestSplit(t *testing.T) {
	X := make([][]float64, 10)
	y := make([]int, 10)
	for i := range X {
		X[i] = []float64{float64(i)}
		y[i] = i % 2
	}
	XTrain, XTest, yTrain, yTest := TrainTestSplit(X, y, 0.3, 1)
	assert.Len(t, XTest, 3)
	assert.Len(t, XTrain, 7)
	assert.Len(t, yTest, 3)
	assert.Len(t, yTrain, 7)

	seen := map[float64]bool{}
	for _, row := range append(XTrain, XTest...) {
		seen[row[0]] = true
	}
	assert.Len(t, seen, 10)

	again, _, _, _ := TrainTestSplit(X, y, 0.3, 1)
	assert.Equal(t, XTrain, again)
}

func TestShuffleKeepsPairs(t *testing.T) {
	X := [][]float64{{0}, {1}, {2}, {3}}
	y := []int{0, 1, 2, 3}
	sx, sy := Shuffle(X, y, 7)
	for i := range sx {
		assert.Equal(t, float64(sy[i]), sx[i][0])
	}
}

// Package sampling rebalances and splits labelled datasets.
package sampling

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

// ErrEmpty is returned when there is nothing to sample from.
var ErrEmpty = errors.New("sampling: empty dataset")

// RandomOverSampler duplicates randomly chosen rows of every minority class,
// with replacement, until each class has as many rows as the majority class.
type RandomOverSampler struct {
	Seed int64
}

// FitResample returns the original rows followed by the drawn duplicates.
// The same seed and input always give the same output.
func (s RandomOverSampler) FitResample(X [][]float64, y []int) ([][]float64, []int, error) {
	drawn, err := s.Indices(y)
	if err != nil {
		return nil, nil, err
	}
	if len(X) != len(y) {
		return nil, nil, fmt.Errorf("sampling: %d rows and %d labels", len(X), len(y))
	}
	outX := make([][]float64, 0, len(X)+len(drawn))
	outY := make([]int, 0, len(y)+len(drawn))
	for i := range X {
		outX = append(outX, append([]float64(nil), X[i]...))
		outY = append(outY, y[i])
	}
	for _, i := range drawn {
		outX = append(outX, append([]float64(nil), X[i]...))
		outY = append(outY, y[i])
	}
	return outX, outY, nil
}

// Indices returns the positions drawn to balance y, grouped by class in
// ascending label order.
func (s RandomOverSampler) Indices(y []int) ([]int, error) {
	if len(y) == 0 {
		return nil, ErrEmpty
	}
	byClass := map[int][]int{}
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	classes := make([]int, 0, len(byClass))
	majority := 0
	for c, rows := range byClass {
		classes = append(classes, c)
		if len(rows) > majority {
			majority = len(rows)
		}
	}
	sort.Ints(classes)

	rng := rand.New(rand.NewSource(s.Seed))
	var drawn []int
	for _, c := range classes {
		rows := byClass[c]
		for k := len(rows); k < majority; k++ {
			drawn = append(drawn, rows[rng.Intn(len(rows))])
		}
	}
	return drawn, nil
}

// ClassCounts counts rows per label.
func ClassCounts(y []int) map[int]int {
	counts := map[int]int{}
	for _, label := range y {
		counts[label]++
	}
	return counts
}

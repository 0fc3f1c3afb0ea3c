package model

import (
	"math"
	"sort"
	"sync"
)

// ---------------------------
// Types
// ---------------------------

// Node is one node of a regression tree. Nodes reference their children by
// position in Tree.Nodes so that a tree encodes with gob as a flat slice.
type Node struct {
	Leaf        bool
	Feature     int
	Threshold   float64 // x <= Threshold => left
	DefaultLeft bool    // direction taken by missing values
	Left        int
	Right       int
	Weight      float64 // leaf output, already scaled by the learning rate
	Gain        float64 // loss reduction of the split
	Cover       float64 // sum of hessians of the training rows reaching the node
}

// Tree is a regression tree fitted to gradient statistics.
type Tree struct {
	Nodes []Node
}

// Predict returns the leaf weight reached by x.
func (t *Tree) Predict(x []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	n := &t.Nodes[0]
	for !n.Leaf {
		v := x[n.Feature]
		switch {
		case math.IsNaN(v):
			if n.DefaultLeft {
				n = &t.Nodes[n.Left]
			} else {
				n = &t.Nodes[n.Right]
			}
		case v <= n.Threshold:
			n = &t.Nodes[n.Left]
		default:
			n = &t.Nodes[n.Right]
		}
	}
	return n.Weight
}

// ---------------------------
// Builder
// ---------------------------

type treeParams struct {
	maxDepth       int
	minChildWeight float64
	lambda         float64
	gamma          float64
	eta            float64
}

type treeBuilder struct {
	X        [][]float64
	grad     []float64
	hess     []float64
	features []int
	params   treeParams
	nodes    []Node
}

// A struct to hold the results of a single feature's best split search.
type splitResult struct {
	gain        float64
	feature     int
	threshold   float64
	defaultLeft bool
}

// pair is a feature value and the row it came from.
type pair struct {
	v float64
	i int
}

func buildTree(X [][]float64, grad, hess []float64, rows, features []int, params treeParams) Tree {
	b := &treeBuilder{X: X, grad: grad, hess: hess, features: features, params: params}
	b.build(rows, 0)
	return Tree{Nodes: b.nodes}
}

func (b *treeBuilder) sums(rows []int) (g, h float64) {
	for _, i := range rows {
		g += b.grad[i]
		h += b.hess[i]
	}
	return g, h
}

func (b *treeBuilder) leafWeight(g, h float64) float64 {
	return -g / (h + b.params.lambda) * b.params.eta
}

// build appends the subtree for rows and returns the position of its root.
func (b *treeBuilder) build(rows []int, depth int) int {
	g, h := b.sums(rows)
	pos := len(b.nodes)
	b.nodes = append(b.nodes, Node{Leaf: true, Weight: b.leafWeight(g, h), Cover: h})

	if depth >= b.params.maxDepth || len(rows) < 2 || h < 2*b.params.minChildWeight {
		return pos
	}

	best := b.bestSplit(rows, g, h)
	if best.feature < 0 {
		return pos
	}

	left := make([]int, 0, len(rows))
	right := make([]int, 0, len(rows))
	for _, i := range rows {
		v := b.X[i][best.feature]
		if (math.IsNaN(v) && best.defaultLeft) || v <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[pos] = Node{
		Feature:     best.feature,
		Threshold:   best.threshold,
		DefaultLeft: best.defaultLeft,
		Left:        l,
		Right:       r,
		Gain:        best.gain,
		Cover:       h,
	}
	return pos
}

// bestSplit searches every feature in parallel and keeps the split with the
// highest positive gain. Ties go to the lower feature index.
func (b *treeBuilder) bestSplit(rows []int, g, h float64) splitResult {
	results := make([]splitResult, len(b.features))
	var wg sync.WaitGroup
	for k, f := range b.features {
		wg.Add(1)
		go func(k, f int) {
			defer wg.Done()
			results[k] = b.findBestSplitForFeature(rows, f, g, h)
		}(k, f)
	}
	wg.Wait()

	best := splitResult{feature: -1}
	for _, r := range results {
		if r.feature < 0 {
			continue
		}
		if best.feature < 0 || r.gain > best.gain || (r.gain == best.gain && r.feature < best.feature) {
			best = r
		}
	}
	return best
}

// findBestSplitForFeature scans the sorted values of feature f once, trying
// every boundary between distinct values with the missing rows sent left and
// then right, and finally the present values against the missing ones.
func (b *treeBuilder) findBestSplitForFeature(rows []int, f int, g, h float64) splitResult {
	result := splitResult{feature: -1}
	p := b.params

	valid := make([]pair, 0, len(rows))
	var gMissing, hMissing float64
	for _, i := range rows {
		v := b.X[i][f]
		if math.IsNaN(v) {
			gMissing += b.grad[i]
			hMissing += b.hess[i]
			continue
		}
		valid = append(valid, pair{v, i})
	}
	if len(valid) == 0 {
		return result
	}
	sort.Slice(valid, func(a, c int) bool { return valid[a].v < valid[c].v })

	parent := g * g / (h + p.lambda)
	score := func(gl, hl float64) (float64, bool) {
		gr, hr := g-gl, h-hl
		if hl < p.minChildWeight || hr < p.minChildWeight {
			return 0, false
		}
		return 0.5*(gl*gl/(hl+p.lambda)+gr*gr/(hr+p.lambda)-parent) - p.gamma, true
	}

	var gl, hl float64
	for s := 1; s < len(valid); s++ {
		gl += b.grad[valid[s-1].i]
		hl += b.hess[valid[s-1].i]
		// skip if same value
		if valid[s].v == valid[s-1].v {
			continue
		}
		thr := valid[s-1].v + (valid[s].v-valid[s-1].v)/2
		if thr >= valid[s].v {
			thr = valid[s-1].v
		}

		if gain, ok := score(gl+gMissing, hl+hMissing); ok && gain > 0 && (result.feature < 0 || gain > result.gain) {
			result = splitResult{gain: gain, feature: f, threshold: thr, defaultLeft: true}
		}
		if gain, ok := score(gl, hl); ok && gain > 0 && (result.feature < 0 || gain > result.gain) {
			result = splitResult{gain: gain, feature: f, threshold: thr, defaultLeft: false}
		}
	}

	// every present value left, missing rows alone on the right
	if hMissing > 0 {
		last := valid[len(valid)-1]
		gl += b.grad[last.i]
		hl += b.hess[last.i]
		if gain, ok := score(gl, hl); ok && gain > 0 && (result.feature < 0 || gain > result.gain) {
			result = splitResult{gain: gain, feature: f, threshold: last.v, defaultLeft: false}
		}
	}
	return result
}

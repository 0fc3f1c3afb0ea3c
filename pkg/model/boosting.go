package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
)

// Params are the boosting hyperparameters.
type Params struct {
	NEstimators         int     // boosting rounds
	MaxDepth            int     // maximum tree depth (root depth = 0)
	LearningRate        float64 // shrinkage applied to every leaf
	MinChildWeight      float64 // minimum hessian sum in a child
	Lambda              float64 // L2 regularization on leaf weights
	Gamma               float64 // minimum loss reduction to split
	Subsample           float64 // fraction of rows sampled per round
	ColsampleByTree     float64 // fraction of features sampled per tree
	BaseScore           float64 // initial probability
	Seed                int64
	EarlyStoppingRounds int // 0 => no early stopping
}

// Map returns the parameters as strings, keyed by their conventional names.
func (p Params) Map() map[string]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	return map[string]string{
		"objective":             "binary:logistic",
		"n_estimators":          strconv.Itoa(p.NEstimators),
		"max_depth":             strconv.Itoa(p.MaxDepth),
		"learning_rate":         f(p.LearningRate),
		"min_child_weight":      f(p.MinChildWeight),
		"reg_lambda":            f(p.Lambda),
		"gamma":                 f(p.Gamma),
		"subsample":             f(p.Subsample),
		"colsample_bytree":      f(p.ColsampleByTree),
		"base_score":            f(p.BaseScore),
		"random_state":          strconv.FormatInt(p.Seed, 10),
		"early_stopping_rounds": strconv.Itoa(p.EarlyStoppingRounds),
		"eval_metric":           "logloss",
	}
}

func (p Params) validate() error {
	switch {
	case p.NEstimators <= 0:
		return errors.New("model: n_estimators must be positive")
	case p.MaxDepth <= 0:
		return errors.New("model: max_depth must be positive")
	case p.LearningRate <= 0:
		return errors.New("model: learning_rate must be positive")
	case p.Lambda < 0 || p.Gamma < 0 || p.MinChildWeight < 0:
		return errors.New("model: lambda, gamma and min_child_weight must not be negative")
	case p.Subsample <= 0 || p.Subsample > 1:
		return errors.New("model: subsample must be in (0, 1]")
	case p.ColsampleByTree <= 0 || p.ColsampleByTree > 1:
		return errors.New("model: colsample_bytree must be in (0, 1]")
	case p.BaseScore <= 0 || p.BaseScore >= 1:
		return errors.New("model: base_score must be in (0, 1)")
	}
	return nil
}

// GradientBoostingClassifier is a binary classifier built from an additive
// sequence of regression trees on the logistic loss.
type GradientBoostingClassifier struct {
	params Params

	trees         []Tree
	nFeatures     int
	bestIteration int
	evalHistory   []float64
}

// Option functional config
type Option func(*Params)

func WithNEstimators(n int) Option         { return func(p *Params) { p.NEstimators = n } }
func WithMaxDepth(d int) Option            { return func(p *Params) { p.MaxDepth = d } }
func WithLearningRate(eta float64) Option  { return func(p *Params) { p.LearningRate = eta } }
func WithMinChildWeight(w float64) Option  { return func(p *Params) { p.MinChildWeight = w } }
func WithLambda(l float64) Option          { return func(p *Params) { p.Lambda = l } }
func WithGamma(g float64) Option           { return func(p *Params) { p.Gamma = g } }
func WithSubsample(r float64) Option       { return func(p *Params) { p.Subsample = r } }
func WithColsampleByTree(r float64) Option { return func(p *Params) { p.ColsampleByTree = r } }
func WithBaseScore(s float64) Option       { return func(p *Params) { p.BaseScore = s } }
func WithSeed(seed int64) Option           { return func(p *Params) { p.Seed = seed } }
func WithEarlyStoppingRounds(n int) Option {
	return func(p *Params) { p.EarlyStoppingRounds = n }
}

// DefaultParams returns the defaults of the usual gradient boosting libraries.
func DefaultParams() Params {
	return Params{
		NEstimators:     100,
		MaxDepth:        6,
		LearningRate:    0.3,
		MinChildWeight:  1,
		Lambda:          1,
		Gamma:           0,
		Subsample:       1,
		ColsampleByTree: 1,
		BaseScore:       0.5,
	}
}

// NewGradientBoostingClassifier returns an unfitted classifier.
func NewGradientBoostingClassifier(opts ...Option) *GradientBoostingClassifier {
	p := DefaultParams()
	for _, o := range opts {
		o(&p)
	}
	return &GradientBoostingClassifier{params: p}
}

// Params returns the hyperparameters.
func (m *GradientBoostingClassifier) Params() Params { return m.params }

// NumTrees returns the number of trees kept after fitting.
func (m *GradientBoostingClassifier) NumTrees() int { return len(m.trees) }

// BestIteration is the zero-based round with the lowest evaluation loss, or
// the last round without an evaluation set.
func (m *GradientBoostingClassifier) BestIteration() int { return m.bestIteration }

// EvalHistory returns the evaluation log loss of every round that ran.
func (m *GradientBoostingClassifier) EvalHistory() []float64 {
	return append([]float64(nil), m.evalHistory...)
}

// Fit trains on X and y without an evaluation set.
func (m *GradientBoostingClassifier) Fit(X [][]float64, y []int) error {
	return m.FitWithEval(X, y, nil, nil, nil)
}

// FitWithEval trains on X and y, scoring evalX and evalY after every round.
// With EarlyStoppingRounds set and an evaluation set, training stops once the
// evaluation loss has not improved for that many rounds, and only the trees up
// to the best round are kept.
func (m *GradientBoostingClassifier) FitWithEval(X [][]float64, y []int, evalX [][]float64, evalY []int, cb EvalCallback) error {
	if err := m.params.validate(); err != nil {
		return err
	}
	p, err := checkTrainingSet(X, y)
	if err != nil {
		return err
	}
	hasEval := len(evalX) > 0
	if hasEval {
		if len(evalY) != len(evalX) {
			return errors.New("model: evalX and evalY length mismatch")
		}
		if err := checkWidth(evalX, p); err != nil {
			return fmt.Errorf("model: eval set: %w", err)
		}
	}

	n := len(X)
	base := Logit(m.params.BaseScore)
	margin := filled(n, base)
	evalMargin := filled(len(evalX), base)
	grad := make([]float64, n)
	hess := make([]float64, n)
	proba := make([]float64, n)
	evalProba := make([]float64, len(evalX))

	rnd := rand.New(rand.NewSource(m.params.Seed))
	tp := treeParams{
		maxDepth:       m.params.MaxDepth,
		minChildWeight: m.params.MinChildWeight,
		lambda:         m.params.Lambda,
		gamma:          m.params.Gamma,
		eta:            m.params.LearningRate,
	}

	m.trees = m.trees[:0]
	m.nFeatures = p
	m.evalHistory = nil
	m.bestIteration = 0
	bestLoss := math.Inf(1)

	for iter := 0; iter < m.params.NEstimators; iter++ {
		logisticGradients(y, margin, grad, hess)
		rows := sampleRows(n, m.params.Subsample, rnd)
		features := sampleFeatures(p, m.params.ColsampleByTree, rnd)

		tree := buildTree(X, grad, hess, rows, features, tp)
		m.trees = append(m.trees, tree)

		for i := range X {
			margin[i] += tree.Predict(X[i])
			proba[i] = Sigmoid(margin[i])
		}
		trainLoss := LogLoss(y, proba)

		evalLoss := math.NaN()
		if hasEval {
			for i := range evalX {
				evalMargin[i] += tree.Predict(evalX[i])
				evalProba[i] = Sigmoid(evalMargin[i])
			}
			evalLoss = LogLoss(evalY, evalProba)
			m.evalHistory = append(m.evalHistory, evalLoss)
		}
		if cb != nil {
			cb(iter, trainLoss, evalLoss)
		}

		if !hasEval {
			m.bestIteration = iter
			continue
		}
		if evalLoss < bestLoss {
			bestLoss = evalLoss
			m.bestIteration = iter
		} else if m.params.EarlyStoppingRounds > 0 && iter-m.bestIteration >= m.params.EarlyStoppingRounds {
			break
		}
	}
	if hasEval && m.params.EarlyStoppingRounds > 0 {
		m.trees = m.trees[:m.bestIteration+1]
	}
	return nil
}

// PredictProba returns p(y=1) for every row.
func (m *GradientBoostingClassifier) PredictProba(X [][]float64) ([]float64, error) {
	if m.nFeatures == 0 {
		return nil, ErrNotFitted
	}
	if err := checkWidth(X, m.nFeatures); err != nil {
		return nil, err
	}
	base := Logit(m.params.BaseScore)
	out := make([]float64, len(X))
	for i, x := range X {
		s := base
		for t := range m.trees {
			s += m.trees[t].Predict(x)
		}
		out[i] = Sigmoid(s)
	}
	return out, nil
}

// Predict returns 0/1 labels at a 0.5 probability threshold.
func (m *GradientBoostingClassifier) Predict(X [][]float64) ([]int, error) {
	proba, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return BinaryPredFromProba(proba, 0.5), nil
}

// FeatureImportance returns the total split gain of every feature,
// normalized to sum to one. All zeros when no tree split.
func (m *GradientBoostingClassifier) FeatureImportance() []float64 {
	imp := make([]float64, m.nFeatures)
	total := 0.0
	for _, t := range m.trees {
		for _, n := range t.Nodes {
			if !n.Leaf {
				imp[n.Feature] += n.Gain
				total += n.Gain
			}
		}
	}
	if total > 0 {
		for i := range imp {
			imp[i] /= total
		}
	}
	return imp
}

// ---------------------------
// Helpers
// ---------------------------

func checkTrainingSet(X [][]float64, y []int) (int, error) {
	if len(X) == 0 {
		return 0, errors.New("model: empty X")
	}
	if len(y) != len(X) {
		return 0, errors.New("model: X and y length mismatch")
	}
	p := len(X[0])
	if p == 0 {
		return 0, errors.New("model: no features")
	}
	if err := checkWidth(X, p); err != nil {
		return 0, err
	}
	for i, label := range y {
		if label != 0 && label != 1 {
			return 0, fmt.Errorf("model: label %d at row %d is not 0 or 1", label, i)
		}
	}
	return p, nil
}

func checkWidth(X [][]float64, p int) error {
	for i := range X {
		if len(X[i]) != p {
			return fmt.Errorf("model: row %d has %d features, want %d", i, len(X[i]), p)
		}
	}
	return nil
}

func filled(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func sampleRows(n int, ratio float64, rnd *rand.Rand) []int {
	rows := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if ratio >= 1 || rnd.Float64() < ratio {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		rows = append(rows, rnd.Intn(n))
	}
	return rows
}

func sampleFeatures(p int, ratio float64, rnd *rand.Rand) []int {
	if ratio >= 1 {
		all := make([]int, p)
		for j := range all {
			all[j] = j
		}
		return all
	}
	k := max(1, int(ratio*float64(p)))
	picked := rnd.Perm(p)[:k]
	sort.Ints(picked)
	return picked
}

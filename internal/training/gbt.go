package training

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"loadcast/internal/dataset"
)

// GBTParams are the tunable gradient-boosting hyperparameters.
type GBTParams struct {
	Trees        int     `json:"trees"`
	Depth        int     `json:"depth"`
	MinLeaf      int     `json:"min_leaf"`
	LearningRate float64 `json:"learning_rate"`
	Subsample    float64 `json:"subsample"`
	FeatureFrac  float64 `json:"feature_frac"`
	L1           float64 `json:"l1"`
	L2           float64 `json:"l2"`
}

// treeNode is one node of a flattened regression tree. Leaf nodes carry the
// output value; internal nodes route on Feature < Threshold.
type treeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
	Leaf      bool    `json:"leaf"`
}

type regTree struct {
	Nodes []treeNode `json:"nodes"`
}

func (t *regTree) predict(row []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if row[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// GBTModel is a gradient-boosted ensemble of regression trees over the
// engineered feature columns. Hyperparameters are tuned by random search
// against the validation segment with early stopping, then the winner is
// refit on train+validation.
type GBTModel struct {
	FeatureNames []string  `json:"features"`
	Base         float64   `json:"base"`
	Params       GBTParams `json:"params"`
	Trees        []regTree `json:"trees"`

	trials int
	seed   int64
}

// NewGBTModel creates an unfitted model that will run `trials` rounds of
// random hyperparameter search with the given seed.
func NewGBTModel(trials int, seed int64) *GBTModel {
	if trials < 1 {
		trials = 1
	}
	return &GBTModel{trials: trials, seed: seed}
}

func (m *GBTModel) Family() Family     { return FamilyGBT }
func (m *GBTModel) Features() []string { return m.FeatureNames }

// Fit tunes and trains the ensemble.
func (m *GBTModel) Fit(train, val *dataset.Frame, target string) error {
	features := make([]string, 0, len(train.Cols))
	for _, col := range train.Cols {
		if col != target {
			features = append(features, col)
		}
	}
	if len(features) == 0 {
		return errors.New("no feature columns besides the target")
	}
	m.FeatureNames = features

	trainX, trainY, err := matrix(train, features, target)
	if err != nil {
		return err
	}

	var valX [][]float64
	var valY []float64
	if val != nil && val.Len() > 0 {
		valX, valY, err = matrix(val, features, target)
		if err != nil {
			return err
		}
	} else {
		// No validation segment: hold out the tail of train for tuning.
		cut := len(trainY) * 4 / 5
		if cut < 1 || cut == len(trainY) {
			return errors.New("not enough rows to tune")
		}
		valX, valY = trainX[cut:], trainY[cut:]
		trainX, trainY = trainX[:cut], trainY[:cut]
	}
	if len(trainY) < 4 {
		return fmt.Errorf("need at least 4 training rows, have %d", len(trainY))
	}

	rng := rand.New(rand.NewSource(m.seed))
	bestMAE := math.Inf(1)
	var bestParams GBTParams
	bestRounds := 0

	for trial := 0; trial < m.trials; trial++ {
		params := sampleParams(rng)
		_, _, rounds, mae := boost(trainX, trainY, valX, valY, params, rand.New(rand.NewSource(m.seed+int64(trial)+1)))
		if mae < bestMAE {
			bestMAE = mae
			bestParams = params
			bestRounds = rounds
		}
	}
	if math.IsInf(bestMAE, 1) {
		return errors.New("hyperparameter search found no finite candidate")
	}

	// Refit on train+validation with the winning configuration.
	fullX := append(append([][]float64{}, trainX...), valX...)
	fullY := append(append([]float64{}, trainY...), valY...)
	bestParams.Trees = bestRounds
	trees, base, _, _ := boost(fullX, fullY, nil, nil, bestParams, rand.New(rand.NewSource(m.seed)))

	m.Trees = trees
	m.Base = base
	m.Params = bestParams
	return nil
}

// Predict evaluates the ensemble on the frame's feature columns.
func (m *GBTModel) Predict(f *dataset.Frame) ([]float64, error) {
	cols := make(map[string][]float64, len(m.FeatureNames))
	for _, name := range m.FeatureNames {
		v, ok := f.Column(name)
		if !ok {
			return nil, fmt.Errorf("feature column %q missing", name)
		}
		cols[name] = v
	}
	return m.PredictRows(cols, f.Len())
}

// PredictRows evaluates the ensemble on columnar input. Every recorded
// feature must be present with n values; extra columns are ignored.
func (m *GBTModel) PredictRows(cols map[string][]float64, n int) ([]float64, error) {
	row := make([]float64, len(m.FeatureNames))
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		for j, name := range m.FeatureNames {
			v, ok := cols[name]
			if !ok {
				return nil, fmt.Errorf("feature column %q missing", name)
			}
			if len(v) != n {
				return nil, fmt.Errorf("feature column %q has %d values, want %d", name, len(v), n)
			}
			row[j] = v[i]
		}
		out[i] = m.predictRow(row)
	}
	return out, nil
}

func (m *GBTModel) predictRow(row []float64) float64 {
	sum := m.Base
	for i := range m.Trees {
		sum += m.Params.LearningRate * m.Trees[i].predict(row)
	}
	return sum
}

func sampleParams(rng *rand.Rand) GBTParams {
	return GBTParams{
		Trees:        50 + rng.Intn(251), // 50..300
		Depth:        3 + rng.Intn(5),    // 3..7
		MinLeaf:      2 + rng.Intn(9),    // 2..10
		LearningRate: 0.02 + rng.Float64()*0.25,
		Subsample:    0.6 + rng.Float64()*0.4,
		FeatureFrac:  0.6 + rng.Float64()*0.4,
		L1:           rng.Float64(),
		L2:           rng.Float64() * 2,
	}
}

// boost runs gradient boosting for squared loss. When a validation set is
// given it early-stops after 10 rounds without improvement and reports the
// best round count and validation MAE.
func boost(X [][]float64, y []float64, valX [][]float64, valY []float64, p GBTParams, rng *rand.Rand) ([]regTree, float64, int, float64) {
	base := mean(y)
	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = base
	}

	var valPred []float64
	if len(valY) > 0 {
		valPred = make([]float64, len(valY))
		for i := range valPred {
			valPred[i] = base
		}
	}

	trees := make([]regTree, 0, p.Trees)
	bestMAE := math.Inf(1)
	bestRounds := 0
	const patience = 10

	resid := make([]float64, len(y))
	for round := 0; round < p.Trees; round++ {
		for i := range y {
			resid[i] = y[i] - pred[i]
		}

		rows := sampleRows(len(y), p.Subsample, rng)
		tree := buildTree(X, resid, rows, p, rng)
		trees = append(trees, tree)

		for i := range y {
			pred[i] += p.LearningRate * tree.predict(X[i])
		}

		if valPred != nil {
			for i := range valY {
				valPred[i] += p.LearningRate * tree.predict(valX[i])
			}
			mae := MAE(valY, valPred)
			if mae < bestMAE {
				bestMAE = mae
				bestRounds = round + 1
			} else if round+1-bestRounds >= patience {
				break
			}
		}
	}

	if valPred == nil {
		return trees, base, len(trees), math.NaN()
	}
	return trees[:bestRounds], base, bestRounds, bestMAE
}

func buildTree(X [][]float64, target []float64, rows []int, p GBTParams, rng *rand.Rand) regTree {
	t := regTree{}
	t.grow(X, target, rows, 0, p, rng)
	return t
}

// grow appends the subtree for `rows` and returns its node index.
func (t *regTree) grow(X [][]float64, target []float64, rows []int, depth int, p GBTParams, rng *rand.Rand) int {
	idx := len(t.Nodes)
	t.Nodes = append(t.Nodes, treeNode{})

	if depth >= p.Depth || len(rows) < 2*p.MinLeaf {
		t.Nodes[idx] = treeNode{Leaf: true, Value: leafValue(target, rows, p)}
		return idx
	}

	feat, thresh, ok := bestSplit(X, target, rows, p, rng)
	if !ok {
		t.Nodes[idx] = treeNode{Leaf: true, Value: leafValue(target, rows, p)}
		return idx
	}

	var left, right []int
	for _, r := range rows {
		if X[r][feat] < thresh {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	l := t.grow(X, target, left, depth+1, p, rng)
	r := t.grow(X, target, right, depth+1, p, rng)
	t.Nodes[idx] = treeNode{Feature: feat, Threshold: thresh, Left: l, Right: r}
	return idx
}

// leafValue is the regularized mean residual: soft-thresholded by L1 and
// shrunk by L2.
func leafValue(target []float64, rows []int, p GBTParams) float64 {
	sum := 0.0
	for _, r := range rows {
		sum += target[r]
	}
	mag := math.Abs(sum) - p.L1
	if mag < 0 {
		mag = 0
	}
	v := mag / (float64(len(rows)) + p.L2)
	if sum < 0 {
		return -v
	}
	return v
}

// bestSplit greedily picks the (feature, threshold) with the largest SSE
// reduction over a random feature subset.
func bestSplit(X [][]float64, target []float64, rows []int, p GBTParams, rng *rand.Rand) (int, float64, bool) {
	nFeat := len(X[0])
	feats := sampleFeatures(nFeat, p.FeatureFrac, rng)

	bestGain := 0.0
	bestFeat, bestThresh := -1, 0.0

	order := make([]int, len(rows))
	for _, f := range feats {
		copy(order, rows)
		sort.Slice(order, func(a, b int) bool { return X[order[a]][f] < X[order[b]][f] })

		var sumL, sumR float64
		for _, r := range order {
			sumR += target[r]
		}
		total := sumR
		nL, nR := 0, len(order)

		for i := 0; i < len(order)-1; i++ {
			r := order[i]
			sumL += target[r]
			sumR -= target[r]
			nL++
			nR--
			if nL < p.MinLeaf || nR < p.MinLeaf {
				continue
			}
			if X[order[i]][f] == X[order[i+1]][f] {
				continue
			}
			gain := sumL*sumL/float64(nL) + sumR*sumR/float64(nR) - total*total/float64(len(order))
			if gain > bestGain {
				bestGain = gain
				bestFeat = f
				bestThresh = (X[order[i]][f] + X[order[i+1]][f]) / 2
			}
		}
	}

	if bestFeat < 0 {
		return 0, 0, false
	}
	return bestFeat, bestThresh, true
}

func sampleRows(n int, frac float64, rng *rand.Rand) []int {
	k := int(float64(n) * frac)
	if k < 1 {
		k = 1
	}
	if k >= n {
		rows := make([]int, n)
		for i := range rows {
			rows[i] = i
		}
		return rows
	}
	perm := rng.Perm(n)[:k]
	sort.Ints(perm)
	return perm
}

func sampleFeatures(n int, frac float64, rng *rand.Rand) []int {
	k := int(float64(n) * frac)
	if k < 1 {
		k = 1
	}
	if k >= n {
		feats := make([]int, n)
		for i := range feats {
			feats[i] = i
		}
		return feats
	}
	perm := rng.Perm(n)[:k]
	sort.Ints(perm)
	return perm
}

func matrix(f *dataset.Frame, features []string, target string) ([][]float64, []float64, error) {
	y, ok := f.Column(target)
	if !ok {
		return nil, nil, fmt.Errorf("target column %q missing", target)
	}
	cols := make([][]float64, len(features))
	for j, name := range features {
		v, ok := f.Column(name)
		if !ok {
			return nil, nil, fmt.Errorf("feature column %q missing", name)
		}
		cols[j] = v
	}

	X := make([][]float64, f.Len())
	for i := range X {
		row := make([]float64, len(features))
		for j := range features {
			row[j] = cols[j][i]
		}
		X[i] = row
	}
	out := append([]float64(nil), y...)
	return X, out, nil
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

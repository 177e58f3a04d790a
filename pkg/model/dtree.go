package model

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"time"

	"github.com/alitto/pond/v2"
)

// impurityEpsilon is the node variance under which a node is treated as pure.
const impurityEpsilon = 1e-12

// ---------------------------
// Types & options
// ---------------------------

// DecisionTreeRegressor is a CART-style regression tree minimizing squared error.
type DecisionTreeRegressor struct {
	// Hyperparameters / options
	MaxDepth            int     // maximum depth (root depth = 0). 0 => no limit
	MinSamplesSplit     int     // minimum samples to attempt a split
	MinSamplesLeaf      int     // minimum samples required in each leaf
	MinImpurityDecrease float64 // minimal weighted impurity decrease to accept a split
	RandomState         int64   // seed for the per-node feature permutation
	Workers             int     // split-search concurrency, 0 => GOMAXPROCS

	// internals
	nodes     []treeNode
	nFeatures int
}

// treeNode is one node of the flattened tree. Children are indices into nodes.
type treeNode struct {
	Leaf      bool
	Feature   int
	Threshold float64 // x <= Threshold => Left
	Left      int
	Right     int
	Value     float64 // mean target of the samples that reached the node
	N         int
	Impurity  float64 // mean squared deviation from Value
}

// Option functional config
type Option func(*DecisionTreeRegressor)

func WithMaxDepth(d int) Option { return func(t *DecisionTreeRegressor) { t.MaxDepth = d } }
func WithMinSamplesSplit(n int) Option {
	return func(t *DecisionTreeRegressor) { t.MinSamplesSplit = n }
}
func WithMinSamplesLeaf(n int) Option {
	return func(t *DecisionTreeRegressor) { t.MinSamplesLeaf = n }
}
func WithMinImpurityDecrease(v float64) Option {
	return func(t *DecisionTreeRegressor) { t.MinImpurityDecrease = v }
}
func WithRandomState(seed int64) Option {
	return func(t *DecisionTreeRegressor) { t.RandomState = seed }
}
func WithWorkers(n int) Option { return func(t *DecisionTreeRegressor) { t.Workers = n } }

// NewDecisionTreeRegressor returns a regressor with sensible defaults.
func NewDecisionTreeRegressor(opts ...Option) *DecisionTreeRegressor {
	d := &DecisionTreeRegressor{
		MaxDepth:            0, // 0 => no explicit max (stopping by other criteria)
		MinSamplesSplit:     2,
		MinSamplesLeaf:      1,
		MinImpurityDecrease: 0.0,
		RandomState:         time.Now().UnixNano(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// ---------------------------
// Public API: Fit / Predict / Save/Load
// ---------------------------

// Fit trains the tree on X (n x p) and real-valued targets y.
// Refitting discards the previous tree.
func (t *DecisionTreeRegressor) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return errors.New("dtree: empty X")
	}
	n := len(X)
	if len(y) != n {
		return errors.New("dtree: X and y length mismatch")
	}
	p := len(X[0])
	for i := range X {
		if len(X[i]) != p {
			return errors.New("dtree: inconsistent number of features in X rows")
		}
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("dtree: non-finite target at row %d", i)
		}
	}
	if t.MinSamplesLeaf < 1 {
		t.MinSamplesLeaf = 1
	}
	if t.MinSamplesSplit < 2 {
		t.MinSamplesSplit = 2
	}

	workers := t.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	pool := pond.NewResultPool[splitResult](workers)
	defer pool.StopAndWait()

	b := &treeBuilder{
		tree:  t,
		X:     X,
		y:     y,
		n:     n,
		p:     p,
		rnd:   rand.New(rand.NewSource(t.RandomState)),
		pool:  pool,
		nodes: make([]treeNode, 0, 64),
	}

	// indices of samples currently considered
	idx := make([]int, n)
	for i := range n {
		idx[i] = i
	}
	if _, err := b.build(idx, 0); err != nil {
		return err
	}
	t.nodes = b.nodes
	t.nFeatures = p
	return nil
}

// Predict returns one prediction per row of X, in input order.
func (t *DecisionTreeRegressor) Predict(X [][]float64) ([]float64, error) {
	if !t.IsFitted() {
		return nil, ErrNotFitted
	}
	out := make([]float64, len(X))
	for i := range X {
		if len(X[i]) != t.nFeatures {
			return nil, fmt.Errorf("dtree: row %d has %d features, tree was fitted on %d", i, len(X[i]), t.nFeatures)
		}
		out[i] = t.predictSingle(X[i])
	}
	return out, nil
}

// IsFitted reports whether Fit completed successfully.
func (t *DecisionTreeRegressor) IsFitted() bool { return len(t.nodes) > 0 }

// NFeatures is the row width the tree was fitted on.
func (t *DecisionTreeRegressor) NFeatures() int { return t.nFeatures }

// Depth returns the depth of the deepest leaf (a single leaf has depth 0).
func (t *DecisionTreeRegressor) Depth() int {
	if !t.IsFitted() {
		return 0
	}
	var walk func(i, d int) int
	walk = func(i, d int) int {
		nd := t.nodes[i]
		if nd.Leaf {
			return d
		}
		return max(walk(nd.Left, d+1), walk(nd.Right, d+1))
	}
	return walk(0, 0)
}

// Leaves returns the number of leaves.
func (t *DecisionTreeRegressor) Leaves() int {
	c := 0
	for _, nd := range t.nodes {
		if nd.Leaf {
			c++
		}
	}
	return c
}

// LeafSizes returns the training sample count of every leaf.
func (t *DecisionTreeRegressor) LeafSizes() []int {
	var out []int
	for _, nd := range t.nodes {
		if nd.Leaf {
			out = append(out, nd.N)
		}
	}
	return out
}

// MarshalBinary implements encoding.BinaryMarshaler using gob.
func (t *DecisionTreeRegressor) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	for _, v := range []any{
		t.MaxDepth,
		t.MinSamplesSplit,
		t.MinSamplesLeaf,
		t.MinImpurityDecrease,
		t.RandomState,
		t.nFeatures,
		t.nodes,
	} {
		if err := enc.Encode(v); err != nil {
			return nil, fmt.Errorf("dtree: encode: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler using gob.
func (t *DecisionTreeRegressor) UnmarshalBinary(data []byte) error {
	dec := gob.NewDecoder(bytes.NewReader(data))
	for _, v := range []any{
		&t.MaxDepth,
		&t.MinSamplesSplit,
		&t.MinSamplesLeaf,
		&t.MinImpurityDecrease,
		&t.RandomState,
		&t.nFeatures,
		&t.nodes,
	} {
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("dtree: decode: %w", err)
		}
	}
	for i, nd := range t.nodes {
		if nd.Leaf {
			continue
		}
		if nd.Left <= i || nd.Right <= i || nd.Left >= len(t.nodes) || nd.Right >= len(t.nodes) || nd.Feature < 0 || nd.Feature >= t.nFeatures {
			return fmt.Errorf("dtree: decode: corrupt node %d", i)
		}
	}
	return nil
}

// ---------------------------
// Internal builders & helpers
// ---------------------------

// splitResult holds the best split found on a single feature.
type splitResult struct {
	gain      float64 // parent SSE minus children SSE
	feature   int
	threshold float64
}

type treeBuilder struct {
	tree  *DecisionTreeRegressor
	X     [][]float64
	y     []float64
	n, p  int
	rnd   *rand.Rand
	pool  pond.ResultPool[splitResult]
	nodes []treeNode
}

func (b *treeBuilder) build(idx []int, depth int) (int, error) {
	t := b.tree
	mean, sse := meanSSE(b.y, idx)
	id := len(b.nodes)
	b.nodes = append(b.nodes, treeNode{
		Leaf:     true,
		Value:    mean,
		N:        len(idx),
		Impurity: sse / float64(len(idx)),
	})

	// make leaf if pure, too few samples or depth reached
	if sse/float64(len(idx)) <= impurityEpsilon ||
		len(idx) < t.MinSamplesSplit ||
		len(idx) < 2*t.MinSamplesLeaf ||
		(t.MaxDepth > 0 && depth >= t.MaxDepth) {
		return id, nil
	}

	// Features are drawn in a seeded random order; ties keep the earliest.
	order := b.rnd.Perm(b.p)
	group := b.pool.NewGroup()
	for _, f := range order {
		group.Submit(func() splitResult {
			return b.bestSplitForFeature(idx, f, sse)
		})
	}
	results, err := group.Wait()
	if err != nil {
		return 0, fmt.Errorf("dtree: split search: %w", err)
	}

	best := splitResult{gain: math.Inf(-1), feature: -1}
	for _, r := range results {
		if r.feature >= 0 && r.gain > best.gain {
			best = r
		}
	}
	if best.feature < 0 || best.gain/float64(b.n)+impurityEpsilon < t.MinImpurityDecrease {
		return id, nil
	}

	leftIdx := make([]int, 0, len(idx))
	rightIdx := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.X[i][best.feature] <= best.threshold {
			leftIdx = append(leftIdx, i)
		} else {
			rightIdx = append(rightIdx, i)
		}
	}
	left, err := b.build(leftIdx, depth+1)
	if err != nil {
		return 0, err
	}
	right, err := b.build(rightIdx, depth+1)
	if err != nil {
		return 0, err
	}
	nd := &b.nodes[id]
	nd.Leaf = false
	nd.Feature = best.feature
	nd.Threshold = best.threshold
	nd.Left = left
	nd.Right = right
	return id, nil
}

// bestSplitForFeature scans the sorted values of feature f and returns the
// threshold with the lowest children SSE. It only reads shared state.
func (b *treeBuilder) bestSplitForFeature(idx []int, f int, parentSSE float64) splitResult {
	result := splitResult{gain: math.Inf(-1), feature: -1}
	minLeaf := b.tree.MinSamplesLeaf

	sorted := make([]int, len(idx))
	copy(sorted, idx)
	sort.SliceStable(sorted, func(a, c int) bool { return b.X[sorted[a]][f] < b.X[sorted[c]][f] })

	total, totalSq := 0.0, 0.0
	for _, i := range sorted {
		total += b.y[i]
		totalSq += b.y[i] * b.y[i]
	}

	n := len(sorted)
	sumL, sqL := 0.0, 0.0
	for s := 1; s < n; s++ {
		yi := b.y[sorted[s-1]]
		sumL += yi
		sqL += yi * yi

		lo, hi := b.X[sorted[s-1]][f], b.X[sorted[s]][f]
		// skip if same value
		if hi <= lo {
			continue
		}
		nL, nR := s, n-s
		if nL < minLeaf || nR < minLeaf {
			continue
		}
		sumR := total - sumL
		sseL := sqL - sumL*sumL/float64(nL)
		sseR := (totalSq - sqL) - sumR*sumR/float64(nR)
		gain := parentSSE - sseL - sseR
		if gain > result.gain {
			thr := (lo + hi) / 2.0
			if thr == hi || math.IsInf(thr, 0) {
				thr = lo
			}
			result = splitResult{gain: gain, feature: f, threshold: thr}
		}
	}
	return result
}

func meanSSE(y []float64, idx []int) (mean, sse float64) {
	for _, i := range idx {
		mean += y[i]
	}
	mean /= float64(len(idx))
	for _, i := range idx {
		d := y[i] - mean
		sse += d * d
	}
	return mean, sse
}

// ---------------------------
// Prediction helper
// ---------------------------

func (t *DecisionTreeRegressor) predictSingle(x []float64) float64 {
	node := t.nodes[0]
	for !node.Leaf {
		val := x[node.Feature]
		if math.IsNaN(val) {
			// missing: follow the branch that saw more training samples
			if t.nodes[node.Left].N >= t.nodes[node.Right].N {
				node = t.nodes[node.Left]
			} else {
				node = t.nodes[node.Right]
			}
			continue
		}
		if val <= node.Threshold {
			node = t.nodes[node.Left]
		} else {
			node = t.nodes[node.Right]
		}
	}
	return node.Value
}

package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrDuplicateBinEdges is returned by QuantileBins when the data cannot be cut
// into the requested number of distinct quantile bins.
var ErrDuplicateBinEdges = errors.New("stats: duplicate quantile bin edges")

// Mean computes the average of a slice.
func Mean(x []float64) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range x {
		sum += v
	}
	return sum / float64(n)
}

// Variance computes the population variance of a slice.
func Variance(x []float64) float64 {
	n := float64(len(x))
	if n == 0 {
		return 0
	}
	m := Mean(x)
	s := 0.0
	for _, v := range x {
		d := v - m
		s += d * d
	}
	return s / n
}

// Std computes the standard deviation of a slice.
func Std(x []float64) float64 {
	return math.Sqrt(Variance(x))
}

// MinMax returns the minimum and maximum values in the slice.
func MinMax(x []float64) (float64, float64) {
	if len(x) == 0 {
		return 0, 0
	}
	min, max := x[0], x[0]
	for i := 1; i < len(x); i++ {
		if x[i] < min {
			min = x[i]
		} else if x[i] > max {
			max = x[i]
		}
	}
	return min, max
}

// Percentile returns the p-th percentile value of the slice (0 <= p <= 100),
// linearly interpolating between closest ranks.
func Percentile(x []float64, p float64) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}
	cp := make([]float64, n)
	copy(cp, x)
	sort.Float64s(cp)
	return percentileSorted(cp, p)
}

func percentileSorted(cp []float64, p float64) float64 {
	n := len(cp)
	if p <= 0 {
		return cp[0]
	}
	if p >= 100 {
		return cp[n-1]
	}
	rank := p / 100 * float64(n-1)
	lower := int(rank)
	upper := lower + 1
	weight := rank - float64(lower)
	if upper >= n {
		return cp[lower]
	}
	return cp[lower]*(1-weight) + cp[upper]*weight
}

// QuantileEdges returns the q+1 edges that cut x into q equal-frequency bins.
func QuantileEdges(x []float64, q int) ([]float64, error) {
	if q < 1 {
		return nil, fmt.Errorf("stats: need at least one bin, got %d", q)
	}
	if len(x) == 0 {
		return nil, errors.New("stats: empty input")
	}
	cp := make([]float64, len(x))
	copy(cp, x)
	sort.Float64s(cp)
	edges := make([]float64, q+1)
	for k := 0; k <= q; k++ {
		edges[k] = percentileSorted(cp, 100*float64(k)/float64(q))
	}
	for k := 1; k <= q; k++ {
		if edges[k] <= edges[k-1] {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateBinEdges, edges)
		}
	}
	return edges, nil
}

// QuantileBins assigns each value to one of q equal-frequency bins.
// Bins are right-closed, (e[k], e[k+1]], with the minimum placed in bin 0.
func QuantileBins(x []float64, q int) ([]int, error) {
	edges, err := QuantileEdges(x, q)
	if err != nil {
		return nil, err
	}
	bins := make([]int, len(x))
	for i, v := range x {
		// first edge >= v, among the upper edges
		k := sort.SearchFloat64s(edges[1:], v)
		if k >= q {
			k = q - 1
		}
		bins[i] = k
	}
	return bins, nil
}

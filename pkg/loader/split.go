package loader

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// testCount returns the number of held-out rows for a split of n rows.
func testCount(n int, testSize float64) (int, error) {
	if testSize <= 0 || testSize >= 1 {
		return 0, fmt.Errorf("loader: test size must be in (0, 1), got %v", testSize)
	}
	nTest := int(math.Ceil(testSize * float64(n)))
	if nTest < 1 || n-nTest < 1 {
		return 0, fmt.Errorf("loader: cannot split %d rows with test size %v", n, testSize)
	}
	return nTest, nil
}

// TrainTestSplit shuffles row indices 0..n-1 with the given seed and holds out
// ceil(testSize*n) of them. Both index sets are returned sorted.
func TrainTestSplit(n int, testSize float64, seed int64) (train, test []int, err error) {
	nTest, err := testCount(n, testSize)
	if err != nil {
		return nil, nil, err
	}
	indices := rand.New(rand.NewSource(seed)).Perm(n)
	test = append(test, indices[:nTest]...)
	train = append(train, indices[nTest:]...)
	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

// StratifiedSplit holds out ceil(testSize*n) rows such that every stratum is
// represented in train and test in proportion to its size. strata[i] is the
// stratum label of row i. Every stratum needs at least two rows.
func StratifiedSplit(strata []int, testSize float64, seed int64) (train, test []int, err error) {
	n := len(strata)
	nTest, err := testCount(n, testSize)
	if err != nil {
		return nil, nil, err
	}

	members := map[int][]int{}
	for i, s := range strata {
		members[s] = append(members[s], i)
	}
	labels := make([]int, 0, len(members))
	for s, idx := range members {
		if len(idx) < 2 {
			return nil, nil, fmt.Errorf("loader: stratum %d has %d member, need at least 2", s, len(idx))
		}
		labels = append(labels, s)
	}
	sort.Ints(labels)
	if len(labels) > nTest || len(labels) > n-nTest {
		return nil, nil, errors.New("loader: more strata than rows in one of the partitions")
	}

	alloc := allocate(labels, members, n, nTest)

	rnd := rand.New(rand.NewSource(seed))
	for k, s := range labels {
		idx := append([]int(nil), members[s]...)
		rnd.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		test = append(test, idx[:alloc[k]]...)
		train = append(train, idx[alloc[k]:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

// allocate distributes nTest rows over strata by largest remainder. Ties go to
// the larger stratum, then the lower label.
func allocate(labels []int, members map[int][]int, n, nTest int) []int {
	alloc := make([]int, len(labels))
	frac := make([]float64, len(labels))
	given := 0
	for k, s := range labels {
		exact := float64(nTest) * float64(len(members[s])) / float64(n)
		alloc[k] = int(math.Floor(exact))
		frac[k] = exact - float64(alloc[k])
		given += alloc[k]
	}
	order := make([]int, len(labels))
	for k := range order {
		order[k] = k
	}
	sort.SliceStable(order, func(a, b int) bool {
		ka, kb := order[a], order[b]
		if frac[ka] != frac[kb] {
			return frac[ka] > frac[kb]
		}
		return len(members[labels[ka]]) > len(members[labels[kb]])
	})
	for r := 0; given < nTest; r++ {
		k := order[r%len(order)]
		// keep at least one row of the stratum for training
		if alloc[k] < len(members[labels[k]])-1 {
			alloc[k]++
			given++
		}
	}
	return alloc
}

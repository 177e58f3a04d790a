package dataprep

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownCategory is matched by errors.Is for any *UnknownCategoryError.
var ErrUnknownCategory = errors.New("dataprep: unknown category")

// ErrNotFitted is returned by Transform before Fit.
var ErrNotFitted = errors.New("dataprep: encoder not fitted")

// UnknownPolicy selects what Transform does with a value not seen by Fit.
type UnknownPolicy int

const (
	// UnknownError fails the transform with *UnknownCategoryError.
	UnknownError UnknownPolicy = iota
	// UnknownReference encodes the value as the all-zero reference level.
	UnknownReference
)

func (p UnknownPolicy) String() string {
	switch p {
	case UnknownError:
		return "error"
	case UnknownReference:
		return "reference"
	}
	return fmt.Sprintf("UnknownPolicy(%d)", int(p))
}

// UnknownCategoryError reports a value absent from the fitted vocabulary.
type UnknownCategoryError struct {
	Column string
	Value  string
	Known  []string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("dataprep: unknown category %q for column %q (known: %v)", e.Value, e.Column, e.Known)
}

func (e *UnknownCategoryError) Is(target error) bool { return target == ErrUnknownCategory }

// OneHotEncoder learns the categories of each string column and expands them
// into indicator columns. With DropFirst the lexicographically first category
// of every column is the reference level and gets no indicator.
type OneHotEncoder struct {
	Columns    []string
	DropFirst  bool
	Unknown    UnknownPolicy
	Categories [][]string // sorted distinct values per column, set by Fit

	index []map[string]int // value -> indicator position within its column, -1 for reference
}

// NewOneHotEncoder returns an encoder for the named columns.
func NewOneHotEncoder(columns []string, dropFirst bool, unknown UnknownPolicy) *OneHotEncoder {
	return &OneHotEncoder{Columns: append([]string(nil), columns...), DropFirst: dropFirst, Unknown: unknown}
}

// Fit learns the vocabulary. rows[i][j] is the value of column j in row i.
// A column with a single category yields no indicator when DropFirst is set.
func (e *OneHotEncoder) Fit(rows [][]string) error {
	if len(rows) == 0 {
		return errors.New("dataprep: fit on empty data")
	}
	cats := make([][]string, len(e.Columns))
	for j := range e.Columns {
		seen := map[string]struct{}{}
		for i, row := range rows {
			if len(row) != len(e.Columns) {
				return fmt.Errorf("dataprep: row %d has %d values, want %d", i, len(row), len(e.Columns))
			}
			if _, ok := seen[row[j]]; !ok {
				seen[row[j]] = struct{}{}
				cats[j] = append(cats[j], row[j])
			}
		}
		sort.Strings(cats[j])
	}
	e.Categories = cats
	e.buildIndex()
	return nil
}

func (e *OneHotEncoder) buildIndex() {
	e.index = make([]map[string]int, len(e.Categories))
	for j, cs := range e.Categories {
		m := make(map[string]int, len(cs))
		for k, c := range cs {
			if e.DropFirst {
				m[c] = k - 1
			} else {
				m[c] = k
			}
		}
		e.index[j] = m
	}
}

// IsFitted reports whether the vocabulary is known.
func (e *OneHotEncoder) IsFitted() bool { return e.Categories != nil }

// ColumnWidth is the number of indicators emitted for column j.
func (e *OneHotEncoder) ColumnWidth(j int) int {
	w := len(e.Categories[j])
	if e.DropFirst && w > 0 {
		w--
	}
	return w
}

// Width is the total number of indicator columns.
func (e *OneHotEncoder) Width() int {
	w := 0
	for j := range e.Categories {
		w += e.ColumnWidth(j)
	}
	return w
}

// FeatureNames returns "<column>_<category>" for every indicator, in output order.
func (e *OneHotEncoder) FeatureNames() []string {
	var out []string
	for j, cs := range e.Categories {
		if e.DropFirst && len(cs) > 0 {
			cs = cs[1:]
		}
		for _, c := range cs {
			out = append(out, e.Columns[j]+"_"+c)
		}
	}
	return out
}

// Transform one-hot encodes rows with the fitted vocabulary.
func (e *OneHotEncoder) Transform(rows [][]string) ([][]float64, error) {
	if !e.IsFitted() {
		return nil, ErrNotFitted
	}
	if e.index == nil {
		e.buildIndex()
	}
	width := e.Width()
	out := make([][]float64, len(rows))
	for i, row := range rows {
		if len(row) != len(e.Columns) {
			return nil, fmt.Errorf("dataprep: row %d has %d values, want %d", i, len(row), len(e.Columns))
		}
		vec := make([]float64, width)
		offset := 0
		for j, v := range row {
			pos, ok := e.index[j][v]
			if !ok && e.Unknown == UnknownError {
				return nil, &UnknownCategoryError{Column: e.Columns[j], Value: v, Known: e.Categories[j]}
			}
			if ok && pos >= 0 {
				vec[offset+pos] = 1
			}
			offset += e.ColumnWidth(j)
		}
		out[i] = vec
	}
	return out, nil
}

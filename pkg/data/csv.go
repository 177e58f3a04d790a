package data

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// ErrDatasetNotFound is returned by LoadSamples when the file does not exist.
var ErrDatasetNotFound = errors.New("data: dataset file not found")

var requiredColumns = []string{ColAge, ColSex, ColBMI, ColChildren, ColSmoker, ColRegion, ColCharges}

// LoadSamples reads the insurance CSV at path.
func LoadSamples(path string) ([]Sample, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, path)
		}
		return nil, err
	}
	defer file.Close()

	samples, err := ReadSamples(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return samples, nil
}

// ReadSamples parses CSV with a header row. Columns may appear in any order;
// unknown columns are ignored.
func ReadSamples(r io.Reader) ([]Sample, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("data: empty CSV, header row required")
	}
	if err != nil {
		return nil, fmt.Errorf("data: read header: %w", err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := pos[c]; !ok {
			return nil, fmt.Errorf("data: missing required column %q", c)
		}
	}

	var out []Sample
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("data: line %d: %w", line, err)
		}
		s, err := parseSample(rec, pos)
		if err != nil {
			return nil, fmt.Errorf("data: line %d: %w", line, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func parseSample(rec []string, pos map[string]int) (Sample, error) {
	field := func(col string) string { return strings.TrimSpace(rec[pos[col]]) }

	var s Sample
	var err error
	if s.Age, err = parseCount(ColAge, field(ColAge)); err != nil {
		return s, err
	}
	if s.Children, err = parseCount(ColChildren, field(ColChildren)); err != nil {
		return s, err
	}
	if s.BMI, err = parsePositive(ColBMI, field(ColBMI)); err != nil {
		return s, err
	}
	if s.Charges, err = parsePositive(ColCharges, field(ColCharges)); err != nil {
		return s, err
	}
	s.Sex = field(ColSex)
	s.Smoker = field(ColSmoker)
	s.Region = field(ColRegion)
	for _, col := range []string{ColSex, ColSmoker, ColRegion} {
		if v, _ := s.Categorical(col); v == "" {
			return s, fmt.Errorf("column %q: empty value", col)
		}
	}
	return s, nil
}

func parseCount(col, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("column %q: %w", col, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("column %q: negative value %d", col, n)
	}
	return n, nil
}

func parsePositive(col, v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("column %q: %w", col, err)
	}
	if !(f > 0) {
		return 0, fmt.Errorf("column %q: value %v must be positive", col, f)
	}
	return f, nil
}

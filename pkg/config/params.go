package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TrainParams are the training hyperparameters.
type TrainParams struct {
	MaxDepth        int     `yaml:"max_depth"`
	MinSamplesLeaf  int     `yaml:"min_samples_leaf"`
	MinSamplesSplit int     `yaml:"min_samples_split"`
	RandomState     int64   `yaml:"random_state"`
	TestSize        float64 `yaml:"test_size"`
	QuantileBins    int     `yaml:"quantile_bins"`

	MinImpurityDecrease float64 `yaml:"min_impurity_decrease"`
}

// DefaultTrainParams returns the reference configuration.
func DefaultTrainParams() TrainParams {
	return TrainParams{
		MaxDepth:        5,
		MinSamplesLeaf:  10,
		MinSamplesSplit: 2,
		RandomState:     42,
		TestSize:        0.2,
		QuantileBins:    4,
	}
}

// LoadTrainParams reads YAML overrides from path on top of the defaults.
// An empty path returns the defaults.
func LoadTrainParams(path string) (TrainParams, error) {
	p := DefaultTrainParams()
	if path == "" {
		return p, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read params: %w", err)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("parse params %s: %w", path, err)
	}
	return p, p.Validate()
}

func (p TrainParams) Validate() error {
	if p.MaxDepth < 0 {
		return errors.New("max_depth must not be negative")
	}
	if p.MinSamplesLeaf < 1 {
		return errors.New("min_samples_leaf must be at least 1")
	}
	if p.MinSamplesSplit < 2 {
		return errors.New("min_samples_split must be at least 2")
	}
	if p.MinImpurityDecrease < 0 {
		return errors.New("min_impurity_decrease must not be negative")
	}
	if p.TestSize <= 0 || p.TestSize >= 1 {
		return fmt.Errorf("test_size must be in (0, 1), got %v", p.TestSize)
	}
	if p.QuantileBins < 1 {
		return errors.New("quantile_bins must be at least 1")
	}
	return nil
}

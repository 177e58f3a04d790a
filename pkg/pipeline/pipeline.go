package pipeline

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/DaviLago/MachineLearningRegressionModel/pkg/data"
	"github.com/DaviLago/MachineLearningRegressionModel/pkg/dataprep"
	"github.com/DaviLago/MachineLearningRegressionModel/pkg/model"
)

// ErrNotFitted is returned by Predict and Score before Fit.
var ErrNotFitted = errors.New("pipeline: not fitted")

// Pipeline chains the preprocessor and the regression tree. It owns both.
type Pipeline struct {
	Preprocessor *Preprocessor
	Regressor    *model.DecisionTreeRegressor
}

type config struct {
	schema  Schema
	unknown dataprep.UnknownPolicy
	tree    []model.Option
}

// Option configures a new Pipeline.
type Option func(*config)

// WithUnknownPolicy sets how unseen categories are encoded.
func WithUnknownPolicy(p dataprep.UnknownPolicy) Option { return func(c *config) { c.unknown = p } }

// WithRegressorOptions appends options for the decision tree.
func WithRegressorOptions(opts ...model.Option) Option {
	return func(c *config) { c.tree = append(c.tree, opts...) }
}

// New returns an unfitted pipeline. Without options the tree is limited to
// depth 5 with at least 10 samples per leaf and seed 42.
func New(opts ...Option) *Pipeline {
	c := config{
		schema:  InsuranceSchema,
		unknown: dataprep.UnknownError,
		tree: []model.Option{
			model.WithMaxDepth(5),
			model.WithMinSamplesLeaf(10),
			model.WithRandomState(42),
		},
	}
	for _, o := range opts {
		o(&c)
	}
	return &Pipeline{
		Preprocessor: NewPreprocessor(c.schema, c.unknown),
		Regressor:    model.NewDecisionTreeRegressor(c.tree...),
	}
}

// Fit learns the encoding from records and trains the tree on the encoded rows.
func (p *Pipeline) Fit(records []data.Record, targets []float64) error {
	if len(records) != len(targets) {
		return fmt.Errorf("pipeline: %d records but %d targets", len(records), len(targets))
	}
	if err := p.Preprocessor.Fit(records); err != nil {
		return fmt.Errorf("pipeline: fit preprocessor: %w", err)
	}
	X, err := p.Preprocessor.Transform(records)
	if err != nil {
		return fmt.Errorf("pipeline: transform: %w", err)
	}
	if err := p.Regressor.Fit(X, targets); err != nil {
		return fmt.Errorf("pipeline: fit regressor: %w", err)
	}
	return nil
}

// IsFitted reports whether Fit completed.
func (p *Pipeline) IsFitted() bool {
	return p.Preprocessor.Encoder.IsFitted() && p.Regressor.IsFitted()
}

// Predict returns one charge per record, in input order.
func (p *Pipeline) Predict(records []data.Record) ([]float64, error) {
	if !p.IsFitted() {
		return nil, ErrNotFitted
	}
	X, err := p.Preprocessor.Transform(records)
	if err != nil {
		return nil, err
	}
	return p.Regressor.Predict(X)
}

// Score returns the R² of the predictions for records against targets.
func (p *Pipeline) Score(records []data.Record, targets []float64) (float64, error) {
	if len(records) != len(targets) {
		return 0, fmt.Errorf("pipeline: %d records but %d targets", len(records), len(targets))
	}
	pred, err := p.Predict(records)
	if err != nil {
		return 0, err
	}
	return model.R2(targets, pred), nil
}

// FeatureNames names the columns the tree was trained on.
func (p *Pipeline) FeatureNames() []string { return p.Preprocessor.FeatureNames() }

// MarshalBinary implements encoding.BinaryMarshaler using gob.
func (p *Pipeline) MarshalBinary() ([]byte, error) {
	if !p.IsFitted() {
		return nil, ErrNotFitted
	}
	tree, err := p.Regressor.MarshalBinary()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	for _, v := range []any{p.Preprocessor.Schema, p.Preprocessor.Encoder, tree} {
		if err := enc.Encode(v); err != nil {
			return nil, fmt.Errorf("pipeline: encode: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler using gob.
// It replaces any state p held before.
func (p *Pipeline) UnmarshalBinary(b []byte) error {
	var (
		schema Schema
		enc    dataprep.OneHotEncoder
		tree   []byte
	)
	dec := gob.NewDecoder(bytes.NewReader(b))
	for _, v := range []any{&schema, &enc, &tree} {
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("pipeline: decode: %w", err)
		}
	}
	reg := &model.DecisionTreeRegressor{}
	if err := reg.UnmarshalBinary(tree); err != nil {
		return err
	}
	pre := &Preprocessor{Schema: schema, Encoder: &enc}
	if pre.Width() != reg.NFeatures() {
		return fmt.Errorf("pipeline: decode: encoder width %d does not match tree width %d", pre.Width(), reg.NFeatures())
	}
	p.Preprocessor = pre
	p.Regressor = reg
	return nil
}

package pipeline

import (
	"fmt"

	"github.com/DaviLago/MachineLearningRegressionModel/pkg/data"
	"github.com/DaviLago/MachineLearningRegressionModel/pkg/dataprep"
)

// Preprocessor maps records to fixed-width numeric feature vectors.
type Preprocessor struct {
	Schema  Schema
	Encoder *dataprep.OneHotEncoder
}

// NewPreprocessor returns an unfitted preprocessor for schema.
func NewPreprocessor(schema Schema, unknown dataprep.UnknownPolicy) *Preprocessor {
	return &Preprocessor{
		Schema:  schema,
		Encoder: dataprep.NewOneHotEncoder(schema.Categorical, true, unknown),
	}
}

func (p *Preprocessor) categoricalRows(records []data.Record) ([][]string, error) {
	rows := make([][]string, len(records))
	for i, r := range records {
		row := make([]string, len(p.Schema.Categorical))
		for j, col := range p.Schema.Categorical {
			v, ok := r.Categorical(col)
			if !ok {
				return nil, fmt.Errorf("pipeline: %q is not a categorical column", col)
			}
			row[j] = v
		}
		rows[i] = row
	}
	return rows, nil
}

// Fit learns the categorical vocabulary of records.
func (p *Preprocessor) Fit(records []data.Record) error {
	rows, err := p.categoricalRows(records)
	if err != nil {
		return err
	}
	return p.Encoder.Fit(rows)
}

// Transform encodes records with the fitted vocabulary.
func (p *Preprocessor) Transform(records []data.Record) ([][]float64, error) {
	rows, err := p.categoricalRows(records)
	if err != nil {
		return nil, err
	}
	encoded, err := p.Encoder.Transform(rows)
	if err != nil {
		return nil, err
	}
	for i, r := range records {
		for _, col := range p.Schema.Numeric {
			v, ok := r.Numeric(col)
			if !ok {
				return nil, fmt.Errorf("pipeline: %q is not a numeric column", col)
			}
			encoded[i] = append(encoded[i], v)
		}
	}
	return encoded, nil
}

// Width is the length of every encoded vector.
func (p *Preprocessor) Width() int { return p.Encoder.Width() + len(p.Schema.Numeric) }

// FeatureNames names the encoded columns in order.
func (p *Preprocessor) FeatureNames() []string {
	return append(p.Encoder.FeatureNames(), p.Schema.Numeric...)
}

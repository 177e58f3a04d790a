package pipeline

import "github.com/DaviLago/MachineLearningRegressionModel/pkg/data"

// Schema names the record columns the preprocessor reads. Encoded vectors hold
// the indicators of Categorical first, then Numeric passed through unchanged.
type Schema struct {
	Categorical []string
	Numeric     []string
}

// InsuranceSchema is the column layout of the insurance-cost model.
var InsuranceSchema = Schema{
	Categorical: []string{data.ColSmoker, data.ColRegion, data.ColSex},
	Numeric:     []string{data.ColAge, data.ColBMI, data.ColChildren},
}

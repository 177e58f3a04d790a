package data

// Column names of the insurance dataset.
const (
	ColAge      = "age"
	ColSex      = "sex"
	ColBMI      = "bmi"
	ColChildren = "children"
	ColSmoker   = "smoker"
	ColRegion   = "region"
	ColCharges  = "charges"
)

// FeatureColumns lists the input columns in file order.
var FeatureColumns = []string{ColAge, ColSex, ColBMI, ColChildren, ColSmoker, ColRegion}

// Record is one policy holder. It is comparable so exact duplicates can be
// detected with ==.
type Record struct {
	Age      int
	Sex      string
	BMI      float64
	Children int
	Smoker   string
	Region   string
}

// Sample is a Record with its observed yearly charges.
type Sample struct {
	Record
	Charges float64
}

// Categorical returns the string value of a categorical column.
func (r Record) Categorical(col string) (string, bool) {
	switch col {
	case ColSex:
		return r.Sex, true
	case ColSmoker:
		return r.Smoker, true
	case ColRegion:
		return r.Region, true
	}
	return "", false
}

// Numeric returns the value of a numeric column.
func (r Record) Numeric(col string) (float64, bool) {
	switch col {
	case ColAge:
		return float64(r.Age), true
	case ColBMI:
		return r.BMI, true
	case ColChildren:
		return float64(r.Children), true
	}
	return 0, false
}

// Records returns the feature part of samples.
func Records(samples []Sample) []Record {
	out := make([]Record, len(samples))
	for i, s := range samples {
		out[i] = s.Record
	}
	return out
}

// Targets returns the charges of samples.
func Targets(samples []Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Charges
	}
	return out
}

// Subset returns samples at the given indices, in index order.
func Subset(samples []Sample, idx []int) []Sample {
	out := make([]Sample, len(idx))
	for i, j := range idx {
		out[i] = samples[j]
	}
	return out
}

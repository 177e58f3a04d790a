package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/DaviLago/MachineLearningRegressionModel/pkg/artifact"
	"github.com/DaviLago/MachineLearningRegressionModel/pkg/config"
	"github.com/DaviLago/MachineLearningRegressionModel/pkg/data"
	"github.com/DaviLago/MachineLearningRegressionModel/pkg/dataprep"
	"github.com/DaviLago/MachineLearningRegressionModel/pkg/pipeline"
)

// DefaultRecord is the input the inference driver predicts for.
var DefaultRecord = data.Record{
	Age:      19,
	Sex:      "female",
	BMI:      27.9,
	Children: 0,
	Smoker:   "yes",
	Region:   "southwest",
}

// Predictor downloads the published pipeline and predicts one record.
type Predictor struct {
	Config config.Config
	Store  artifact.Store

	// Optional.
	Record *data.Record // defaults to DefaultRecord
	Log    *slog.Logger
	Out    io.Writer
}

// PredictReport is the outcome of a prediction run. PredictErr is set when
// the artifact loaded but prediction failed.
type PredictReport struct {
	Input        data.Record
	ArtifactPath string
	Metadata     artifact.Metadata
	Prediction   float64
	Rounded      string
	Charge       decimal.Decimal
	PredictErr   error
}

// Run retrieves the artifact and predicts. Only retrieval and decoding
// failures are returned.
func (p *Predictor) Run(ctx context.Context) (*PredictReport, error) {
	if p.Log == nil {
		p.Log = slog.Default()
	}
	if p.Out == nil {
		p.Out = io.Discard
	}
	rec := DefaultRecord
	if p.Record != nil {
		rec = *p.Record
	}
	if p.Store == nil {
		return nil, newError(KindTransfer, "download artifact", errors.New("no artifact store configured"))
	}

	local, err := p.Store.Download(ctx, artifact.DefaultName)
	if err != nil {
		fmt.Fprintf(p.Out, "Error loading model from Hugging Face Hub: %v\n", err)
		return nil, newError(KindTransfer, "download artifact", err)
	}
	pl := &pipeline.Pipeline{}
	meta, err := artifact.Load(local, pl)
	if err != nil {
		fmt.Fprintf(p.Out, "Error loading model from Hugging Face Hub: %v\n", err)
		kind := KindInvalidInput
		if errors.Is(err, artifact.ErrArtifactNotFound) {
			kind = KindMissingInput
		}
		return nil, newError(kind, "load artifact", err)
	}
	p.Log.Info("Loaded model", "path", local, "run_id", meta.RunID, "created_at", meta.CreatedAt, "test_r2", meta.TestR2)

	report := &PredictReport{Input: rec, ArtifactPath: local, Metadata: meta}
	fmt.Fprintln(p.Out, "Input features for prediction:")
	renderRecord(p.Out, rec)

	preds, err := pl.Predict([]data.Record{rec})
	if err != nil {
		kind := KindPrediction
		if errors.Is(err, dataprep.ErrUnknownCategory) {
			kind = KindEncoding
		}
		report.PredictErr = newError(kind, "predict", err)
		p.Log.Error("Prediction failed", "error", err)
		fmt.Fprintf(p.Out, "Error during prediction: %v\n", err)
		return report, nil
	}
	report.Prediction = preds[0]
	report.Rounded, report.Charge = formatCharge(preds[0])
	fmt.Fprintf(p.Out, "Predicted insurance charge: %s\n", report.Rounded)
	return report, nil
}

// formatCharge rounds the exact binary value of v to cents with ties to even.
// Non-finite values yield a zero amount.
func formatCharge(v float64) (string, decimal.Decimal) {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return s, decimal.Zero
	}
	return s, d
}

func renderRecord(w io.Writer, r data.Record) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(data.FeatureColumns)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.Append([]string{
		strconv.Itoa(r.Age),
		r.Sex,
		strconv.FormatFloat(r.BMI, 'f', -1, 64),
		strconv.Itoa(r.Children),
		r.Smoker,
		r.Region,
	})
	table.Render()
}

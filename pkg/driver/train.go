package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/DaviLago/MachineLearningRegressionModel/pkg/artifact"
	"github.com/DaviLago/MachineLearningRegressionModel/pkg/config"
	"github.com/DaviLago/MachineLearningRegressionModel/pkg/data"
	"github.com/DaviLago/MachineLearningRegressionModel/pkg/dataprep"
	"github.com/DaviLago/MachineLearningRegressionModel/pkg/loader"
	"github.com/DaviLago/MachineLearningRegressionModel/pkg/model"
	"github.com/DaviLago/MachineLearningRegressionModel/pkg/pipeline"
	"github.com/DaviLago/MachineLearningRegressionModel/pkg/stats"
)

// Trainer fits the pipeline on the dataset, saves it and publishes it.
type Trainer struct {
	Config config.Config
	Params config.TrainParams
	Store  artifact.Store

	// Optional.
	Log     *slog.Logger
	Out     io.Writer
	Metrics *Metrics
}

// TrainReport summarizes a training run.
type TrainReport struct {
	Rows       int
	Duplicates int
	Stratified bool
	TrainRows  int
	TestRows   int
	TestR2     float64
	ModelPath  string
	Metadata   artifact.Metadata
	Published  bool
	SkipReason string
	UploadErr  error
	Duration   time.Duration
}

func (t *Trainer) defaults() {
	if t.Log == nil {
		t.Log = slog.Default()
	}
	if t.Out == nil {
		t.Out = io.Discard
	}
}

// Train runs the whole training sequence. A missing dataset is fatal and
// leaves no artifact behind; publication problems are only reported.
func (t *Trainer) Train(ctx context.Context) (*TrainReport, error) {
	t.defaults()
	start := time.Now()

	samples, err := data.LoadSamples(t.Config.DatasetPath)
	if err != nil {
		if errors.Is(err, data.ErrDatasetNotFound) {
			fmt.Fprintf(t.Out, "Error: File '%s' not found.\n", t.Config.DatasetPath)
			return nil, newError(KindMissingInput, "load dataset", err)
		}
		return nil, newError(KindInvalidInput, "load dataset", err)
	}
	unique := dataprep.DropDuplicates(samples)
	report := &TrainReport{
		Rows:       len(unique),
		Duplicates: len(samples) - len(unique),
		ModelPath:  t.Config.ModelPath,
	}
	t.Log.Info("Loaded dataset", "path", t.Config.DatasetPath, "rows", len(samples), "duplicates", report.Duplicates)

	targets := data.Targets(unique)
	trainIdx, testIdx, stratified, err := t.split(targets)
	if err != nil {
		return nil, newError(KindTraining, "split dataset", err)
	}
	report.Stratified = stratified
	train, test := data.Subset(unique, trainIdx), data.Subset(unique, testIdx)
	report.TrainRows, report.TestRows = len(train), len(test)
	lo, hi := stats.MinMax(targets)
	t.Log.Debug("Split dataset", "train", len(train), "test", len(test), "stratified", stratified,
		"target_min", lo, "target_max", hi, "target_mean", stats.Mean(targets), "target_std", stats.Std(targets))

	p := pipeline.New(pipeline.WithRegressorOptions(
		model.WithMaxDepth(t.Params.MaxDepth),
		model.WithMinSamplesLeaf(t.Params.MinSamplesLeaf),
		model.WithMinSamplesSplit(t.Params.MinSamplesSplit),
		model.WithMinImpurityDecrease(t.Params.MinImpurityDecrease),
		model.WithRandomState(t.Params.RandomState),
	))
	if err := p.Fit(data.Records(train), data.Targets(train)); err != nil {
		return nil, newError(KindTraining, "fit pipeline", err)
	}
	r2, err := p.Score(data.Records(test), data.Targets(test))
	if err != nil {
		return nil, newError(KindTraining, "score pipeline", err)
	}
	report.TestR2 = r2
	fmt.Fprintf(t.Out, "R² score on test set: %.4f\n", r2)

	meta := artifact.NewMetadata()
	meta.FeatureNames = p.FeatureNames()
	meta.TrainRows, meta.TestRows, meta.TestR2 = len(train), len(test), r2
	if err := artifact.Save(t.Config.ModelPath, p, meta); err != nil {
		return nil, newError(KindTraining, "save artifact", err)
	}
	report.Metadata = meta
	t.Log.Info("Saved model", "path", t.Config.ModelPath, "run_id", meta.RunID,
		"depth", p.Regressor.Depth(), "leaves", p.Regressor.Leaves())

	t.publish(ctx, report)
	report.Duration = time.Since(start)
	t.record(report, p)
	return report, nil
}

// split stratifies on target quantile bins and falls back to a plain seeded
// split when the targets cannot be binned or a bin is too small.
func (t *Trainer) split(targets []float64) (train, test []int, stratified bool, err error) {
	bins, err := stats.QuantileBins(targets, t.Params.QuantileBins)
	if err == nil {
		train, test, err = loader.StratifiedSplit(bins, t.Params.TestSize, t.Params.RandomState)
		if err == nil {
			return train, test, true, nil
		}
	}
	t.Log.Warn("Falling back to unstratified split", "bins", t.Params.QuantileBins, "error", err)
	train, test, err = loader.TrainTestSplit(len(targets), t.Params.TestSize, t.Params.RandomState)
	return train, test, false, err
}

func (t *Trainer) publish(ctx context.Context, report *TrainReport) {
	target, destination := t.Config.UploadTarget()
	if !t.Config.HasPublishCredential() {
		report.SkipReason = fmt.Sprintf("%s not found. Skipping %s upload.", t.Config.CredentialName(), target)
		fmt.Fprintln(t.Out, report.SkipReason)
		return
	}
	if _, err := os.Stat(t.Config.ModelPath); err != nil {
		report.SkipReason = fmt.Sprintf("Model file '%s' not found. Skipping upload.", t.Config.ModelPath)
		fmt.Fprintln(t.Out, report.SkipReason)
		return
	}
	if t.Store == nil {
		report.SkipReason = "No artifact store configured. Skipping upload."
		fmt.Fprintln(t.Out, report.SkipReason)
		return
	}
	// The remote name is fixed so the inference driver always finds it.
	if err := t.Store.Upload(ctx, t.Config.ModelPath, artifact.DefaultName); err != nil {
		report.UploadErr = newError(KindTransfer, "upload artifact", err)
		report.SkipReason = fmt.Sprintf("Error uploading model to %s: %v", destination, err)
		t.Log.Error("Failed to upload model", "error", err)
		fmt.Fprintln(t.Out, report.SkipReason)
		return
	}
	report.Published = true
	fmt.Fprintf(t.Out, "Model uploaded to %s.\n", destination)
}

func (t *Trainer) record(report *TrainReport, p *pipeline.Pipeline) {
	if t.Metrics == nil {
		return
	}
	m := t.Metrics
	m.TestR2.Set(report.TestR2)
	m.Rows.WithLabelValues("train").Set(float64(report.TrainRows))
	m.Rows.WithLabelValues("test").Set(float64(report.TestRows))
	m.Rows.WithLabelValues("duplicates").Set(float64(report.Duplicates))
	m.TrainDuration.Set(report.Duration.Seconds())
	m.TreeLeaves.Set(float64(p.Regressor.Leaves()))
	m.TreeDepth.Set(float64(p.Regressor.Depth()))
	switch {
	case report.Published:
		m.PublishOutcomes.WithLabelValues("uploaded").Inc()
	case report.UploadErr != nil:
		m.PublishOutcomes.WithLabelValues("failed").Inc()
	default:
		m.PublishOutcomes.WithLabelValues("skipped").Inc()
	}
	if t.Config.PushgatewayURL == "" {
		return
	}
	if err := m.Push(t.Config.PushgatewayURL); err != nil {
		t.Log.Warn("Failed to push metrics", "url", t.Config.PushgatewayURL, "error", err)
	}
}

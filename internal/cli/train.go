package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DaviLago/MachineLearningRegressionModel/pkg/artifact"
	"github.com/DaviLago/MachineLearningRegressionModel/pkg/config"
	"github.com/DaviLago/MachineLearningRegressionModel/pkg/driver"
)

type TrainCmd struct {
	env env
}

func NewTrainCmd(e env) *TrainCmd {
	return &TrainCmd{env: e}
}

func (c *TrainCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit the pipeline on the dataset and publish the artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd, c.env)
			if err != nil {
				return err
			}
			dataset, err := cmd.Flags().GetString("dataset")
			if err != nil {
				return fmt.Errorf("failed to get dataset flag: %w", err)
			}
			modelPath, err := cmd.Flags().GetString("model")
			if err != nil {
				return fmt.Errorf("failed to get model flag: %w", err)
			}
			paramsPath, err := cmd.Flags().GetString("params")
			if err != nil {
				return fmt.Errorf("failed to get params flag: %w", err)
			}
			if dataset != "" {
				cfg.DatasetPath = dataset
			}
			if modelPath != "" {
				cfg.ModelPath = modelPath
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			params := config.DefaultTrainParams()
			if paramsPath != "" {
				params, err = config.LoadTrainParams(paramsPath)
				if err != nil {
					return err
				}
			}

			var store artifact.Store
			if cfg.HasPublishCredential() {
				store, err = driver.NewStore(cmd.Context(), cfg, log)
				if err != nil {
					return fmt.Errorf("failed to create artifact store: %w", err)
				}
			}

			trainer := &driver.Trainer{
				Config:  cfg,
				Params:  params,
				Store:   store,
				Log:     log,
				Out:     cmd.OutOrStdout(),
				Metrics: driver.NewMetrics(),
			}
			report, err := trainer.Train(cmd.Context())
			if err != nil {
				return err
			}
			log.Info("Training finished", "test_r2", report.TestR2, "published", report.Published, "duration", report.Duration)
			return nil
		},
	}

	cmd.Flags().String("dataset", "", "path to the insurance CSV (overrides DATASET_PATH)")
	cmd.Flags().String("model", "", "where to write the artifact (overrides MODEL_PATH)")
	cmd.Flags().String("params", "", "YAML file with training hyperparameters")

	return cmd
}

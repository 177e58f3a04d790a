package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DaviLago/MachineLearningRegressionModel/pkg/driver"
)

type PredictCmd struct {
	env env
}

func NewPredictCmd(e env) *PredictCmd {
	return &PredictCmd{env: e}
}

func (c *PredictCmd) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "predict",
		Short: "Download the published pipeline and predict the sample record",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd, c.env)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			store, err := driver.NewStore(cmd.Context(), cfg, log)
			if err != nil {
				return fmt.Errorf("failed to create artifact store: %w", err)
			}

			predictor := &driver.Predictor{
				Config: cfg,
				Store:  store,
				Log:    log,
				Out:    cmd.OutOrStdout(),
			}
			_, err = predictor.Run(cmd.Context())
			return err
		},
	}
}

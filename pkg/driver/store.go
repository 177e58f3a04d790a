package driver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DaviLago/MachineLearningRegressionModel/pkg/artifact"
	"github.com/DaviLago/MachineLearningRegressionModel/pkg/config"
)

// NewStore builds the artifact store selected by cfg.Backend. cfg must
// already be validated.
func NewStore(ctx context.Context, cfg config.Config, log *slog.Logger) (artifact.Store, error) {
	retry := artifact.RetryConfig{MaxTries: uint(cfg.MaxRetries)}
	switch cfg.Backend {
	case config.BackendS3:
		client, err := artifact.NewS3Client(ctx, artifact.S3ClientConfig{
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		return artifact.NewS3Store(artifact.S3Config{
			Client:   client,
			Bucket:   cfg.S3Bucket,
			RepoID:   cfg.RepoID,
			CacheDir: cfg.CacheDir,
			Timeout:  cfg.TransferTimeout,
			Retry:    retry,
			Log:      log,
		})
	case config.BackendHub, "":
		return artifact.NewHubStore(artifact.HubConfig{
			Endpoint: cfg.HubEndpoint,
			RepoID:   cfg.RepoID,
			Token:    cfg.Token,
			Revision: cfg.Revision,
			CacheDir: cfg.CacheDir,
			Timeout:  cfg.TransferTimeout,
			Retry:    retry,
			Log:      log,
		})
	}
	return nil, fmt.Errorf("unknown artifact backend %q", cfg.Backend)
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	BackendHub = "hub"
	BackendS3  = "s3"

	DefaultDatasetPath     = "dataset/insurance.csv"
	DefaultModelPath       = "hugging-face/decision_tree_pipeline.joblib"
	defaultTransferTimeout = 60 * time.Second
	defaultMaxRetries      = 4
)

// Config carries everything the drivers read from the environment.
type Config struct {
	RepoID      string // HF_REPO_ID
	Token       string // HF_TOKEN, upload credential for the hub backend
	Backend     string // ARTIFACT_BACKEND: hub or s3
	HubEndpoint string // HF_ENDPOINT
	Revision    string // HF_REVISION
	CacheDir    string // HF_CACHE_DIR

	S3Bucket          string // S3_BUCKET
	S3Region          string // S3_REGION
	S3Endpoint        string // S3_ENDPOINT
	S3AccessKeyID     string // S3_ACCESS_KEY_ID
	S3SecretAccessKey string // S3_SECRET_ACCESS_KEY

	DatasetPath     string        // DATASET_PATH
	ModelPath       string        // MODEL_PATH
	TransferTimeout time.Duration // TRANSFER_TIMEOUT
	MaxRetries      int           // TRANSFER_MAX_RETRIES
	PushgatewayURL  string        // PUSHGATEWAY_URL
}

// FromEnv builds a Config from getenv, usually os.Getenv. Malformed numeric
// values are reported; missing values are left for Validate to default.
func FromEnv(getenv func(string) string) (Config, error) {
	c := Config{
		RepoID:            getenv("HF_REPO_ID"),
		Token:             getenv("HF_TOKEN"),
		Backend:           getenv("ARTIFACT_BACKEND"),
		HubEndpoint:       getenv("HF_ENDPOINT"),
		Revision:          getenv("HF_REVISION"),
		CacheDir:          getenv("HF_CACHE_DIR"),
		S3Bucket:          getenv("S3_BUCKET"),
		S3Region:          getenv("S3_REGION"),
		S3Endpoint:        getenv("S3_ENDPOINT"),
		S3AccessKeyID:     getenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: getenv("S3_SECRET_ACCESS_KEY"),
		DatasetPath:       getenv("DATASET_PATH"),
		ModelPath:         getenv("MODEL_PATH"),
		PushgatewayURL:    getenv("PUSHGATEWAY_URL"),
	}
	if v := getenv("TRANSFER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return c, fmt.Errorf("invalid TRANSFER_TIMEOUT: %w", err)
		}
		c.TransferTimeout = d
	}
	if v := getenv("TRANSFER_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("invalid TRANSFER_MAX_RETRIES: %w", err)
		}
		c.MaxRetries = n
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.RepoID == "" {
		return errors.New("HF_REPO_ID is required")
	}
	switch c.Backend {
	case "":
		c.Backend = BackendHub
	case BackendHub:
	case BackendS3:
		if c.S3Bucket == "" {
			return errors.New("S3_BUCKET is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown ARTIFACT_BACKEND %q", c.Backend)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("TRANSFER_MAX_RETRIES must not be negative, got %d", c.MaxRetries)
	}

	// Optional configuration.
	if c.DatasetPath == "" {
		c.DatasetPath = DefaultDatasetPath
	}
	if c.ModelPath == "" {
		c.ModelPath = DefaultModelPath
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir()
	}
	if c.TransferTimeout <= 0 {
		c.TransferTimeout = defaultTransferTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	return nil
}

// HasPublishCredential reports whether an upload may be attempted.
func (c *Config) HasPublishCredential() bool {
	if c.Backend == BackendS3 {
		return c.S3AccessKeyID != "" && c.S3SecretAccessKey != ""
	}
	return c.Token != ""
}

// CredentialName names the setting that gates publication, for messages.
func (c *Config) CredentialName() string {
	if c.Backend == BackendS3 {
		return "S3_ACCESS_KEY_ID/S3_SECRET_ACCESS_KEY"
	}
	return "HF_TOKEN"
}

// UploadTarget names the remote in user-facing messages, in a short form and
// in the form used after "uploaded to".
func (c *Config) UploadTarget() (short, long string) {
	if c.Backend == BackendS3 {
		return "S3", "S3 bucket " + c.S3Bucket
	}
	return "Hugging Face", "Hugging Face Hub"
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "insurance-model")
	}
	return filepath.Join(os.TempDir(), "insurance-model")
}

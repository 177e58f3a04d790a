package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cenkalti/backoff/v5"
)

// DefaultS3Region is used when no region is configured.
const DefaultS3Region = "us-east-1"

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3ClientConfig holds what is needed to build an S3 client.
type S3ClientConfig struct {
	Region          string
	Endpoint        string // custom endpoint, e.g. MinIO; enables path-style addressing
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Client returns an S3 client using static credentials when both keys are
// set and anonymous access otherwise.
func NewS3Client(ctx context.Context, cfg S3ClientConfig) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = DefaultS3Region
	}
	var creds aws.CredentialsProvider = aws.AnonymousCredentials{}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("artifact: load AWS config: %w", err)
	}
	if cfg.Endpoint == "" {
		return s3.NewFromConfig(awsCfg), nil
	}
	endpointURL := cfg.Endpoint
	if !strings.HasPrefix(endpointURL, "http://") && !strings.HasPrefix(endpointURL, "https://") {
		endpointURL = "http://" + endpointURL
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = &endpointURL
		o.UsePathStyle = true // Required for MinIO
	}), nil
}

// S3Config configures an S3Store. Objects live at <RepoID>/<name> in Bucket.
type S3Config struct {
	Client   S3API
	Bucket   string
	RepoID   string
	CacheDir string

	// Optional configuration.
	Timeout time.Duration
	Retry   RetryConfig
	Log     *slog.Logger
}

func (c *S3Config) Validate() error {
	if c.Client == nil {
		return errors.New("s3 client is required")
	}
	if c.Bucket == "" {
		return errors.New("bucket is required")
	}
	if c.RepoID == "" {
		return errors.New("repo id is required")
	}
	if c.CacheDir == "" {
		return errors.New("cache dir is required")
	}

	// Optional configuration.
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	c.Retry.setDefaults()
	if c.Log == nil {
		c.Log = slog.Default()
	}
	return nil
}

// S3Store keeps artifacts in an S3 bucket.
type S3Store struct {
	cfg S3Config
}

var _ Store = (*S3Store)(nil)

// NewS3Store validates cfg and returns a store.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("artifact: s3 config: %w", err)
	}
	return &S3Store{cfg: cfg}, nil
}

func (s *S3Store) key(name string) string { return path.Join(s.cfg.RepoID, name) }

// Upload puts the file at localPath under <repo>/<remoteName>.
func (s *S3Store) Upload(ctx context.Context, localPath, remoteName string) error {
	content, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("artifact: read %s: %w", localPath, err)
	}
	key := s.key(remoteName)
	_, err = withRetry(ctx, s.cfg.Log, s.cfg.Retry, "put "+key, func() (*s3.PutObjectOutput, error) {
		ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
		return s.cfg.Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.cfg.Bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(content),
			ContentLength: aws.Int64(int64(len(content))),
			ContentType:   aws.String("application/octet-stream"),
		})
	})
	if err != nil {
		return err
	}
	s.cfg.Log.Debug("Uploaded artifact", "bucket", s.cfg.Bucket, "key", key, "bytes", len(content))
	return nil
}

// Download fetches <repo>/<remoteName> into the cache dir.
func (s *S3Store) Download(ctx context.Context, remoteName string) (string, error) {
	key := s.key(remoteName)
	body, err := withRetry(ctx, s.cfg.Log, s.cfg.Retry, "get "+key, func() ([]byte, error) {
		ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
		out, err := s.cfg.Client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.cfg.Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			var nsk *types.NoSuchKey
			if errors.As(err, &nsk) {
				return nil, backoff.Permanent(fmt.Errorf("%w: s3://%s/%s", ErrRemoteNotFound, s.cfg.Bucket, key))
			}
			return nil, err
		}
		defer out.Body.Close()
		return io.ReadAll(out.Body)
	})
	if err != nil {
		return "", err
	}
	dest := filepath.Join(s.cfg.CacheDir, filepath.FromSlash(s.cfg.RepoID), filepath.FromSlash(remoteName))
	if err := writeFileAtomic(dest, body); err != nil {
		return "", fmt.Errorf("artifact: write %s: %w", dest, err)
	}
	return dest, nil
}

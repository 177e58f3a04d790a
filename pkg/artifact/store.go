package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var (
	// ErrTransfer wraps every remote upload or download failure.
	ErrTransfer = errors.New("artifact: transfer failed")
	// ErrRemoteNotFound is returned when the remote object does not exist.
	ErrRemoteNotFound = errors.New("artifact: remote object not found")
)

// Store moves artifacts between local disk and a remote repository.
type Store interface {
	// Upload publishes the file at localPath under remoteName.
	Upload(ctx context.Context, localPath, remoteName string) error
	// Download fetches remoteName and returns the local path it was written to.
	Download(ctx context.Context, remoteName string) (string, error)
}

const (
	defaultTimeout         = 60 * time.Second
	defaultMaxTries        = 4
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 10 * time.Second
)

// RetryConfig bounds the exponential backoff around a single remote call.
type RetryConfig struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (c *RetryConfig) setDefaults() {
	if c.MaxTries == 0 {
		c.MaxTries = defaultMaxTries
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = defaultInitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = defaultMaxInterval
	}
}

// withRetry runs fn until it succeeds, returns a permanent error or the
// attempts run out. Errors come back wrapped in ErrTransfer.
func withRetry[T any](ctx context.Context, log *slog.Logger, cfg RetryConfig, op string, fn func() (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialInterval
	bo.MaxInterval = cfg.MaxInterval

	attempt := 0
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		if attempt > 1 {
			log.Warn("Retrying artifact transfer", "op", op, "attempt", attempt)
		}
		return fn()
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(cfg.MaxTries))
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %s: %w", ErrTransfer, op, err)
	}
	return res, nil
}

// writeFileAtomic writes data to path through a temporary sibling file.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".part-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Package retry runs store operations again after transient failures.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/rpattn/quotanorm/internal/domain"
)

// Config is the retry policy: one initial attempt plus up to MaxRetries
// retries, Delay apart.
type Config struct {
	MaxRetries int
	Delay      time.Duration
}

func DefaultConfig() Config {
	return Config{MaxRetries: 5, Delay: time.Second}
}

// Policy applies a Config to operations.
type Policy struct {
	cfg    Config
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Policy {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Policy{cfg: cfg, logger: logger}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the context ends
// or the attempts are used up. The last error is returned. Malformed data
// and dictionary errors are always permanent: reading again cannot fix them.
func Do[T any](ctx context.Context, p *Policy, name string, op func(context.Context) (T, error)) (T, error) {
	if p == nil {
		p = New(DefaultConfig(), nil)
	}
	attempt := 0
	operation := func() (T, error) {
		attempt++
		result, err := op(ctx)
		if err != nil && isDataError(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}
	notify := func(err error, wait time.Duration) {
		p.logger.Warn("operation failed, retrying",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(p.cfg.Delay)),
		backoff.WithMaxTries(uint(p.cfg.MaxRetries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err != nil {
		var zero T
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			p.logger.Error("operation failed", zap.String("operation", name), zap.Int("attempts", attempt), zap.Error(err))
		}
		return zero, err
	}
	return result, nil
}

func isDataError(err error) bool {
	return errors.Is(err, domain.ErrDataFormat) ||
		errors.Is(err, domain.ErrDictionaryIntegrity) ||
		errors.Is(err, domain.ErrUnresolvedLabel)
}

// Run is Do for operations without a result.
func Run(ctx context.Context, p *Policy, name string, op func(context.Context) error) error {
	_, err := Do(ctx, p, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

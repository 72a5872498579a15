package line

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// RetryConfig controls push retries.
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

// DefaultRetryConfig retries a push up to three times within a few seconds.
var DefaultRetryConfig = RetryConfig{
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
	MaxRetries:      3,
}

// RetryMessenger retries failed pushes with exponential backoff.
// Replies are passed through once since reply tokens expire on first use.
type RetryMessenger struct {
	next   Messenger
	config RetryConfig
}

// NewRetryMessenger wraps next. Zero fields of config fall back to DefaultRetryConfig.
func NewRetryMessenger(next Messenger, config RetryConfig) *RetryMessenger {
	if config.InitialInterval <= 0 {
		config.InitialInterval = DefaultRetryConfig.InitialInterval
	}
	if config.MaxInterval <= 0 {
		config.MaxInterval = DefaultRetryConfig.MaxInterval
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = DefaultRetryConfig.MaxRetries
	}
	return &RetryMessenger{next: next, config: config}
}

func (m *RetryMessenger) Reply(ctx context.Context, replyToken, text string) error {
	return m.next.Reply(ctx, replyToken, text)
}

func (m *RetryMessenger) Push(ctx context.Context, to, text string) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = m.config.InitialInterval
	exp.Multiplier = 2
	exp.MaxInterval = m.config.MaxInterval
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, m.config.MaxRetries), ctx)

	// Every attempt carries the same retry key so LINE drops duplicates.
	ctx = WithRetryKey(ctx, uuid.NewString())
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := m.next.Push(ctx, to, text)
		if err == nil {
			return nil
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Temporary() {
			return backoff.Permanent(err)
		}
		slog.Warn("push failed, retrying",
			slog.String("to", to),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
		return err
	}, policy)
	if err != nil {
		return errors.Wrapf(err, "push to %s failed after %d attempts", to, attempt)
	}
	return nil
}

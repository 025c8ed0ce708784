package openai

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go/v3"
)

const (
	// MaxRetries はレート制限エラー時の最大リトライ回数
	MaxRetries = 3

	// BaseBackoff は指数バックオフの初回待機時間
	BaseBackoff = 2 * time.Second

	// MaxBackoff は指数バックオフの最大待機時間
	MaxBackoff = 32 * time.Second
)

// ErrMaxRetriesExceeded はレート制限が解消しないまま再試行を使い切った場合のエラー
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// retryRateLimited は 429 応答のときだけ fn を指数バックオフで再試行する
// それ以外のエラーは即座に返す
func retryRateLimited[T any](ctx context.Context, base time.Duration, logger *slog.Logger, op string, fn func() (T, error)) (T, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = base
	exp.MaxInterval = MaxBackoff
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0

	attempt := func() (T, error) {
		v, err := fn()
		if err != nil && !isRateLimitError(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("openai rate limited, retrying", "op", op, "backoff", wait, "error", err)
	}

	v, err := backoff.RetryNotifyWithData[T](attempt, backoff.WithContext(backoff.WithMaxRetries(exp, MaxRetries), ctx), notify)
	if err != nil && isRateLimitError(err) {
		var zero T
		return zero, errors.Join(ErrMaxRetriesExceeded, err)
	}
	return v, err
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

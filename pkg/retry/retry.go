package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultMaxRetries は最大リトライ回数です。初回試行と合わせて最大 DefaultMaxRetries+1 回試行します。
	DefaultMaxRetries = 3

	// DefaultInterval は線形バックオフの基準間隔です。
	// n回目の失敗後の待機時間は (n+1) * Interval になります (1秒, 2秒, 3秒, ...)。
	DefaultInterval = 1 * time.Second
)

// Operation はリトライ可能な処理を表す関数です。成功時は nil を返します。
type Operation func() error

// ShouldRetryFunc はエラーを受け取り、そのエラーがリトライ可能かどうかを判定する関数です。
type ShouldRetryFunc func(error) bool

// Config はリトライ動作を設定するための構造体です。
type Config struct {
	MaxRetries uint64
	Interval   time.Duration
}

// DefaultConfig は推奨されるデフォルト設定を返します。
func DefaultConfig() Config {
	return Config{
		MaxRetries: DefaultMaxRetries,
		Interval:   DefaultInterval,
	}
}

// linearBackOff は backoff.BackOff の線形実装です。
// 待機時間が試行回数に比例して伸びる契約 (1倍, 2倍, 3倍, ...) のため、
// 指数バックオフ (backoff.NewExponentialBackOff) は使用しません。
type linearBackOff struct {
	interval time.Duration
	attempt  uint64
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.interval
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}

// newBackOffPolicy は、線形ポリシーに最大リトライ回数とコンテキストを適用します。
func newBackOffPolicy(ctx context.Context, cfg Config) backoff.BackOffContext {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	bo := backoff.WithMaxRetries(&linearBackOff{interval: interval}, cfg.MaxRetries)
	return backoff.WithContext(bo, ctx)
}

// Do は線形バックオフとカスタムエラー判定を使用して操作をリトライします。
// 試行総数は MaxRetries + 1 回 (初回 + 最大 MaxRetries 回のリトライ) です。
func Do(ctx context.Context, cfg Config, operationName string, op Operation, shouldRetryFn ShouldRetryFunc) error {
	var lastErr error
	var permanent bool

	retryableOp := func() error {
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		// コンテキストの取り消し/タイムアウトはリトライしても無駄なので即時終了
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			permanent = true
			return backoff.Permanent(err)
		}

		if shouldRetryFn(err) {
			return err
		}
		permanent = true
		return backoff.Permanent(err)
	}

	err := backoff.Retry(retryableOp, newBackOffPolicy(ctx, cfg))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("%sに失敗しました: コンテキストタイムアウト/キャンセル: %w", operationName, err)
		}

		// 非リトライ対象 (致命的エラー) は元のエラーをそのまま返す
		// NOTE: backoff.Retry は PermanentError を展開して返すため、フラグで区別する
		if permanent {
			return lastErr
		}

		return fmt.Errorf("%sに失敗しました: 最大リトライ回数 (%d回) に到達: %w", operationName, cfg.MaxRetries, lastErr)
	}
	return nil
}

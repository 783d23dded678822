// Package pipeline は、設定からレコード出力までの処理全体を組み立てるメインの処理パイプラインです。
package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/shouni/go-title-grabber/internal/config"
	"github.com/shouni/go-title-grabber/pkg/cache"
	"github.com/shouni/go-title-grabber/pkg/grabber"
	"github.com/shouni/go-title-grabber/pkg/httpclient"
	"github.com/shouni/go-title-grabber/pkg/input"
	"github.com/shouni/go-title-grabber/pkg/permalink"
	"github.com/shouni/go-title-grabber/pkg/records"
	"github.com/shouni/go-title-grabber/pkg/retry"
)

// Run は入力ファイル群を処理し、結果を出力ファイルへ書き込みます。
// URL単位の失敗はワーカー内で吸収されるため、ここへ伝播するエラーは
// ファイルシステム系の致命的な失敗のみです。
func Run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	// 入力ファイルは事前に検査し、開けないものがあれば即座に中断する
	for _, path := range cfg.InputPaths {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("入力ファイルにアクセスできません: %w", err)
		}
	}

	// キャッシュの読み込みは出力ファイルの作成より先。
	// os.Create は既存の内容を切り詰めるため、順序を入れ替えると前回の結果を失う。
	prior := cache.Load(cfg.OutputPath, logger)

	out, err := os.Create(cfg.OutputPath)
	if err != nil {
		return fmt.Errorf("出力ファイルを作成できませんでした: %w", err)
	}
	defer out.Close()

	writer := records.NewWriter(out)
	if err := writer.WriteHeader(); err != nil {
		return err
	}

	client := httpclient.New(httpclient.Config{
		ConnectTimeout: cfg.ConnectTimeout,
		ReadTimeout:    cfg.ReadTimeout,
		MaxRedirects:   cfg.MaxRedirects,
		Retry: retry.Config{
			MaxRetries: uint64(cfg.MaxRetries),
			Interval:   retry.DefaultInterval,
		},
	}, logger)
	resolver := permalink.NewResolver(client, logger)
	g := grabber.New(client, resolver, prior, cfg.MaxThreads, logger)

	// 入力の走査は別ゴルーチンで行い、候補をストリームとしてディスパッチャーへ渡す
	candidates := make(chan string, cfg.MaxThreads)
	scanErrCh := make(chan error, 1)
	go func() {
		defer close(candidates)
		scanner := input.NewScanner(logger)
		for _, path := range cfg.InputPaths {
			if err := scanner.ScanFile(path, func(url string) {
				candidates <- url
			}); err != nil {
				scanErrCh <- err
				return
			}
		}
		scanErrCh <- nil
	}()

	stats, err := g.Run(ctx, candidates, writer)
	if err != nil {
		return err
	}
	if err := <-scanErrCh; err != nil {
		return err
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	logger.Info().
		Int("submitted", stats.Submitted).
		Int("cache_hits", stats.CacheHits).
		Int("fetched", stats.Fetched).
		Int("failed", stats.Failed).
		Str("output", cfg.OutputPath).
		Msg("処理が完了しました")
	return nil
}

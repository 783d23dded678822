// Package grabber は、候補URLの並列取得とレコード生成のディスパッチを担います。
package grabber

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"github.com/shouni/go-title-grabber/pkg/cache"
	"github.com/shouni/go-title-grabber/pkg/extract"
	"github.com/shouni/go-title-grabber/pkg/httpclient"
	"github.com/shouni/go-title-grabber/pkg/records"
)

// PageFetcher はページ取得機能を抽象化するインターフェースです。
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (*httpclient.Page, error)
}

// EndURLResolver は最終URL (埋め込みパーマリンクの解決を含む) の決定を抽象化します。
type EndURLResolver interface {
	EndURL(ctx context.Context, page *httpclient.Page) string
}

// RecordWriter はレコードの書き出し先を抽象化するインターフェースです。
type RecordWriter interface {
	Write(rec records.URLRecord) error
}

// Stats は1回の実行で処理した件数の内訳です。
type Stats struct {
	Submitted int // 重複排除後に投入した候補数
	CacheHits int // キャッシュから再利用した件数
	Fetched   int // 実際にHTTP取得を行った件数
	Failed    int // レコードを生成できなかった件数
}

// Grabber は候補URLのストリームを消費し、レコードを書き出すディスパッチャーです。
type Grabber struct {
	fetcher    PageFetcher
	resolver   EndURLResolver
	cache      cache.Cache
	maxWorkers int
	logger     zerolog.Logger
}

// New は Grabber を初期化します。maxWorkers が0以下の場合はCPU数を使用します。
func New(fetcher PageFetcher, resolver EndURLResolver, c cache.Cache, maxWorkers int, logger zerolog.Logger) *Grabber {
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU()
	}
	return &Grabber{
		fetcher:    fetcher,
		resolver:   resolver,
		cache:      c,
		maxWorkers: maxWorkers,
		logger:     logger,
	}
}

// writerResult は書き込みゴルーチンの完走結果です。
type writerResult struct {
	drained int
	written int
	err     error
}

// Run は candidates を消費し尽くすまでディスパッチし、生成されたレコードを
// writer へ書き込みます。候補は初出のURLのみ投入し、キャッシュヒットは
// 再取得せずそのまま書き出します。取得に失敗したURLは件数にのみ計上され、
// 行を生成しません (nil レコード)。
func (g *Grabber) Run(ctx context.Context, candidates <-chan string, writer RecordWriter) (Stats, error) {
	// nil は「結果はあるが行なし」を表す。書き込みは単一ゴルーチンに集約する。
	results := make(chan *records.URLRecord, g.maxWorkers)
	writerDone := make(chan writerResult, 1)
	go func() {
		var res writerResult
		for rec := range results {
			res.drained++
			if rec == nil {
				continue
			}
			if res.err != nil {
				continue
			}
			if err := writer.Write(*rec); err != nil {
				res.err = fmt.Errorf("レコードの書き込みに失敗しました: %w", err)
				continue
			}
			res.written++
		}
		writerDone <- res
	}()

	// バッファ付きチャネルをセマフォとして使用し、同時実行数を制限する
	semaphore := make(chan struct{}, g.maxWorkers)
	var wg sync.WaitGroup

	seen := make(map[string]struct{})
	stats := Stats{}

	for url := range candidates {
		if _, dup := seen[url]; dup {
			g.logger.Debug().Str("url", url).Msg("重複する候補URLをスキップします")
			continue
		}
		seen[url] = struct{}{}
		stats.Submitted++

		if rec, ok := g.cache.Lookup(url); ok {
			g.logger.Debug().Str("url", url).Msg("キャッシュから再利用します")
			stats.CacheHits++
			results <- &rec
			continue
		}
		stats.Fetched++

		// スロットの確保。maxWorkers件実行中の場合はここでブロックして待機。
		semaphore <- struct{}{}
		wg.Add(1)

		go func(u string) {
			defer wg.Done()
			defer func() { <-semaphore }()
			results <- g.processURL(ctx, u)
		}(url)
	}

	wg.Wait()
	close(results)

	res := <-writerDone
	// written は実際に書き込めた行のみを数える
	stats.Failed = stats.Submitted - res.written
	if res.err != nil {
		return stats, res.err
	}
	// 投入した件数と同数の結果が回収できていなければ結果の取りこぼしがある
	if res.drained != stats.Submitted {
		return stats, fmt.Errorf("結果件数が一致しません: 投入 %d件, 回収 %d件", stats.Submitted, res.drained)
	}
	return stats, nil
}

// processURL は1件のURLを取得してレコードを生成します。
// 失敗は自身のレコードにのみ影響し、他のワーカーには波及しません。
func (g *Grabber) processURL(ctx context.Context, url string) *records.URLRecord {
	page, err := g.fetcher.FetchPage(ctx, url)
	if err != nil {
		g.logger.Error().Err(err).Str("url", url).Msg("ページの取得に失敗しました")
		return nil
	}

	rec := records.URLRecord{
		URL:          url,
		EndURL:       g.resolver.EndURL(ctx, page),
		PageTitle:    extract.PageTitle(page.Document),
		ArticleTitle: extract.ArticleTitle(page.Document),
	}

	g.logger.Info().
		Str("url", url).
		Str("end_url", rec.EndURL).
		Str("page_title", rec.PageTitle).
		Msg("レコードを生成しました")
	return &rec
}

package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/shouni/go-title-grabber/pkg/retry"
)

const (
	// DefaultConnectTimeout / DefaultReadTimeout はHTTPクライアントのデフォルトタイムアウトです。
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 15 * time.Second

	// DefaultMaxRedirects は追跡するリダイレクトの最大ホップ数です。
	DefaultMaxRedirects = 5

	// MaxBodySize はレスポンスボディの最大読み込みサイズです (10MB)。
	// ワーカーごとのメモリ使用量を抑えるための上限です。
	MaxBodySize = int64(10 * 1024 * 1024)

	// UserAgent はサイトからのブロックを避けるためのUser-Agentです。
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36"
)

// Page は1回のフェッチの成果物です。解析済みドキュメントと、
// リダイレクト解決後の最終URLを保持します。
type Page struct {
	Document   *goquery.Document
	EndURL     string
	StatusCode int
}

// NonRetryableHTTPError はHTTP 4xx系のステータスコードエラーを示すカスタムエラー型です。
// このエラーはリトライされず、該当URLは結果に残りません (キャッシュもされません)。
type NonRetryableHTTPError struct {
	StatusCode int
}

func (e *NonRetryableHTTPError) Error() string {
	return fmt.Sprintf("HTTPクライアントエラー (非リトライ対象): ステータスコード %d", e.StatusCode)
}

// IsNonRetryableError は与えられたエラーが非リトライ対象のHTTPエラーであるかを判断します。
func IsNonRetryableError(err error) bool {
	var nonRetryable *NonRetryableHTTPError
	return errors.As(err, &nonRetryable)
}

// ErrRedirectLimit はリダイレクトの上限超過を示すエラーです (非リトライ対象)。
var ErrRedirectLimit = errors.New("リダイレクトの上限を超えました")

// errUnparsableHTML はHTML解析失敗を示すエラーです (非リトライ対象)。
var errUnparsableHTML = errors.New("HTML解析に失敗しました")

// Doer は、標準の *http.Client.Do() と互換性のあるHTTPクライアントのインターフェースを定義します。
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config はClientの動作を設定します。ゼロ値のフィールドにはデフォルト値が適用されます。
type Config struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxRedirects   int
	Retry          retry.Config
}

// Client はHTTPリクエストと線形バックオフによるリトライロジックを管理します。
// 内部の http.Client は並行利用に対して安全なため、全ワーカーで共有されます。
type Client struct {
	httpClient  Doer
	retryConfig retry.Config
	logger      zerolog.Logger
}

// ClientOption はClientの設定を行うための関数型です。
type ClientOption func(*Client)

// WithHTTPClient はカスタムのDoerを設定します (主にテスト用)。
func WithHTTPClient(doer Doer) ClientOption {
	return func(c *Client) {
		c.httpClient = doer
	}
}

// New は新しいClientを生成します。
// 接続タイムアウトはダイヤラーに、読み取りタイムアウトはクライアント全体に適用されます。
func New(cfg Config, logger zerolog.Logger, options ...ClientOption) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = DefaultMaxRedirects
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
	}

	maxRedirects := cfg.MaxRedirects
	c := &Client{
		httpClient: &http.Client{
			Timeout:   cfg.ReadTimeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return ErrRedirectLimit
				}
				return nil
			},
		},
		retryConfig: cfg.Retry,
		logger:      logger,
	}

	for _, opt := range options {
		opt(c)
	}
	return c
}

// FetchPage は指定されたURLからHTMLを取得し、解析済みの Page を返します。
// 失敗の分類: 接続/トランスポートエラーと5xxはリトライ対象、4xxとHTML解析失敗は即時終了。
func (c *Client) FetchPage(ctx context.Context, url string) (*Page, error) {
	var page *Page
	attempt := 0

	op := func() error {
		attempt++
		var fetchErr error
		page, fetchErr = c.doFetch(ctx, url)
		if fetchErr != nil && attempt > 1 {
			c.logger.Warn().Str("url", url).Int("attempt", attempt).Err(fetchErr).Msg("GET リトライ失敗")
		}
		return fetchErr
	}

	err := retry.Do(ctx, c.retryConfig, fmt.Sprintf("GET %s", url), op, isRetryableError)
	if err != nil {
		c.logger.Warn().Str("url", url).Err(err).Msg("GET 失敗")
		return nil, err
	}

	c.logger.Info().Str("url", url).Str("end_url", page.EndURL).Int("status", page.StatusCode).Msg("GET 成功")
	return page, nil
}

// doFetch は実際の一度のHTTP GETリクエストとHTML解析を実行します。
func (c *Client) doFetch(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		// URLとして成立しない場合はリトライしても無駄
		return nil, &NonRetryableHTTPError{StatusCode: 0}
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, ErrRedirectLimit) {
			return nil, fmt.Errorf("%w (URL: %s)", ErrRedirectLimit, url)
		}
		return nil, fmt.Errorf("HTTPリクエストに失敗しました (ネットワーク/接続エラー): %w", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errUnparsableHTML, err)
	}

	return &Page{
		Document:   doc,
		EndURL:     resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
	}, nil
}

// classifyStatus はステータスコードをリトライ対象/非対象のエラーに分類します。
func classifyStatus(statusCode int) error {
	switch {
	case statusCode >= 200 && statusCode <= 299:
		return nil
	case statusCode >= 500 && statusCode <= 599:
		// 5xx 系: リトライ対象のサーバーエラー
		return fmt.Errorf("HTTPステータスコードエラー (5xx リトライ対象): %d", statusCode)
	default:
		// 4xx 系 (およびリダイレクト処理後に残った3xx): 非リトライ対象
		return &NonRetryableHTTPError{StatusCode: statusCode}
	}
}

// isRetryableError はエラーがHTTPリトライ対象かどうかを判定します。
// retry.ShouldRetryFunc 型のシグネチャを満たします。
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if IsNonRetryableError(err) {
		return false
	}
	if errors.Is(err, ErrRedirectLimit) || errors.Is(err, errUnparsableHTML) {
		return false
	}
	// 5xxエラーやネットワークエラー/タイムアウトはすべてリトライ対象
	return true
}

// Package permalink は、ソーシャルパーマリンクホストのページに埋め込まれた
// リンクを正準形 (status-id 形式のURL) に解決します。
//
// リンク短縮サービスのランディングページ等は、実体として1つ以上の埋め込み
// ポストを指す薄いラッパーであることが多く、この解決により end_url は
// ラッパーではなくコンテンツの実参照先を指すようになります。
package permalink

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/shouni/go-title-grabber/pkg/httpclient"
)

const (
	// Host はパーマリンクホストです。www. / mobile. プレフィックスは正規化して扱います。
	Host       = "twitter.com"
	baseOrigin = "https://" + Host

	// Separator は複数のパーマリンクを end_url に結合する際の区切り文字です。
	// 出力フィールドの区切りと同じカンマを使用します (CSV側で引用符が付くため行は壊れません)。
	Separator = ","

	// containerSelector は主要パーマリンクコンテナの形状です。
	// この形状を持たないページは解決の対象外です。
	containerSelector = "div.permalink-container div.permalink-tweet"

	// 2系統のコンテンツセレクター: 本文ブロックと引用ブロック
	primaryTextLinkSelector = "p.tweet-text a"
	quotedTextLinkSelector  = "div.QuoteTweet-text a"
)

// statusPathRe は正準 status-id 形式 (パス末尾が /status/<数字>) を判定します。
var statusPathRe = regexp.MustCompile(`/status(?:es)?/\d+$`)

// Fetcher は二次フェッチに必要な機能を定義します (DIP)。
// 一次フェッチと同じリトライポリシーを共有するため、同一のクライアント実装を注入します。
type Fetcher interface {
	FetchPage(ctx context.Context, url string) (*httpclient.Page, error)
}

// Resolver はパーマリンク解決を実行します。
type Resolver struct {
	fetcher Fetcher
	logger  zerolog.Logger
}

// NewResolver は新しい Resolver を生成します。
func NewResolver(fetcher Fetcher, logger zerolog.Logger) *Resolver {
	return &Resolver{fetcher: fetcher, logger: logger}
}

// isPermalinkHost はホスト名がパーマリンクホストに属するかを判定します。
func isPermalinkHost(host string) bool {
	host = strings.ToLower(host)
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "mobile.")
	return host == Host
}

// isCanonicalStatusPath はパスが正準 status-id 形式かを判定します。
func isCanonicalStatusPath(path string) bool {
	return statusPathRe.MatchString(path)
}

// IsPermalinkPage は、リダイレクト解決済みのページがパーマリンクホストに属し、
// かつ主要パーマリンクコンテナの形状を持つかを判定します。
func IsPermalinkPage(page *httpclient.Page) bool {
	u, err := url.Parse(page.EndURL)
	if err != nil {
		return false
	}
	if !isPermalinkHost(u.Hostname()) {
		return false
	}
	return page.Document.Find(containerSelector).Length() > 0
}

// EndURL はページの最終的な end_url を決定します。
// パーマリンクページであれば埋め込みリンクの解決を試み、
// そうでなければ (あるいは解決結果が空であれば) ページ自身の最終URLを返します。
func (r *Resolver) EndURL(ctx context.Context, page *httpclient.Page) string {
	if !IsPermalinkPage(page) {
		return page.EndURL
	}
	resolved := r.resolve(ctx, page)
	if resolved == "" {
		// 生き残った埋め込みリンクなし ⇒ 訪問先ページ自体が正準の参照先
		return page.EndURL
	}
	return resolved
}

// resolve はコンテナ内の外向きリンクを収集・解決・フィルターし、
// ソート・重複排除のうえ Separator で結合した文字列を返します。
func (r *Resolver) resolve(ctx context.Context, page *httpclient.Page) string {
	container := page.Document.Find(containerSelector).First()

	// 1-2. 2系統のセレクターからリンク先を収集し、生文字列で重複排除
	candidates := collectLinkTargets(container)

	// 3-4. 完全URLは二次フェッチで解決、相対パスはベースオリジンに対して解決
	var resolved []string
	for _, cand := range candidates {
		if target, ok := r.resolveCandidate(ctx, cand); ok {
			resolved = append(resolved, target)
		}
	}

	// 5. 最終フィルター: ホームページ/プロフィールへのリンクを除去
	var survivors []string
	for _, target := range resolved {
		if keepFinal(target) {
			survivors = append(survivors, target)
		}
	}

	// 6. ソート + 重複排除 + 結合
	sort.Strings(survivors)
	return strings.Join(dedupe(survivors), Separator)
}

// collectLinkTargets は本文ブロックと引用ブロックの href を収集します。
// 空のリンク先は捨て、生文字列で重複排除します。
func collectLinkTargets(container *goquery.Selection) []string {
	seen := make(map[string]struct{})
	var targets []string

	collect := func(i int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}
		targets = append(targets, href)
	}

	container.Find(primaryTextLinkSelector).Each(collect)
	container.Find(quotedTextLinkSelector).Each(collect)
	return targets
}

// resolveCandidate は候補1件を解決します。戻り値の bool は候補を残すかどうかです。
func (r *Resolver) resolveCandidate(ctx context.Context, cand string) (string, bool) {
	if isAbsoluteURL(cand) {
		// 二次フェッチ (一次フェッチと同じリトライポリシー) で最終URLに置き換える。
		// 解決はワーカー内で同期的に実行されるため、1URLの処理には
		// 複数回のHTTP往復が含まれ得る。
		page, err := r.fetcher.FetchPage(ctx, cand)
		if err != nil {
			r.logger.Warn().Str("url", cand).Err(err).Msg("埋め込みリンクの解決に失敗。候補を破棄します")
			return "", false
		}

		u, err := url.Parse(page.EndURL)
		if err != nil {
			return "", false
		}
		// パーマリンクホストに解決されたのに status ページでない場合は、
		// プロフィールや短縮サービスの残骸とみなし、候補を破棄する
		if isPermalinkHost(u.Hostname()) && !isCanonicalStatusPath(u.Path) {
			return "", false
		}
		return page.EndURL, true
	}

	// 相対パスはパーマリンクホストのベースオリジンに対して解決
	base, _ := url.Parse(baseOrigin)
	ref, err := url.Parse(cand)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}

// keepFinal は最終フィルターです。パーマリンクホストのURLでパスセグメントが
// 2つ以上あるものは、正準 status-id 形式でない限り除去します
// (ステップ1〜4を生き残ったプロフィール/ホームページリンク対策)。
func keepFinal(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	if !isPermalinkHost(u.Hostname()) {
		return true
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) > 1 && segments[0] != "" {
		return isCanonicalStatusPath(u.Path)
	}
	return true
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// dedupe はソート済みスライスから隣接する重複を取り除きます。
func dedupe(sorted []string) []string {
	var out []string
	for i, s := range sorted {
		if i > 0 && s == sorted[i-1] {
			continue
		}
		out = append(out, s)
	}
	return out
}

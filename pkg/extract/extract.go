// Package extract は、解析済みHTMLドキュメントからページタイトルと記事見出しを抽出します。
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	titleSelector = "title"

	// articleHeadingSelector は記事系コンテナ内の第一レベル見出しを探すセレクターです。
	// 見つからない場合は文書全体の最初の h1 にフォールバックします。
	articleHeadingSelector = "article h1, main h1, [role='main'] h1"
	headingSelector        = "h1"
)

// NormalizeWhitespace は前後の空白を取り除き、連続する空白 (改行・タブを含む) を
// 1つのスペースに畳み込みます。正規化済み文字列に対しては恒等変換です。
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// PageTitle はドキュメント先頭の title 要素のテキストを正規化して返します。
// title 要素が無い場合は空文字列を返します (欠損はエラーではありません)。
func PageTitle(doc *goquery.Document) string {
	return NormalizeWhitespace(doc.Find(titleSelector).First().Text())
}

// ArticleTitle は記事見出しを返します。article 系コンテナ内の最初の h1 を優先し、
// 無ければ文書全体の最初の h1 を使用します。どちらも無ければ空文字列です。
func ArticleTitle(doc *goquery.Document) string {
	heading := doc.Find(articleHeadingSelector).First()
	if heading.Length() == 0 {
		heading = doc.Find(headingSelector).First()
	}
	if heading.Length() == 0 {
		return ""
	}
	return NormalizeWhitespace(joinTextNodes(heading))
}

// joinTextNodes は要素配下のテキストノードを1つのスペースで連結します。
// goquery の Text() はノード間の区切りを入れずに連結するため、
// <h1>Foo<span>Bar</span></h1> のような構造でも単語が癒着しないよう
// html.Node を直接走査します。
func joinTextNodes(sel *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}

package records

import (
	"encoding/csv"
	"fmt"
	"io"
)

// 出力CSVのカラム定義。キャッシュローダーと出力ライターの両方がこの順序に依存します。
const (
	FieldURL = iota
	FieldEndURL
	FieldPageTitle
	FieldArticleTitle
	FieldCount
)

// URLRecord は、1つの入力URLに対する処理結果を保持します。
// タイトル系フィールドは任意であり、欠損は空文字列として直列化されます。
type URLRecord struct {
	URL          string // 入力行からマッチしたURL (入力そのまま)
	EndURL       string // リダイレクト解決後の最終URL (パーマリンク解決により複合値になる場合あり)
	PageTitle    string // title 要素のテキスト
	ArticleTitle string // 記事見出し (h1) のテキスト
}

// HasTitle は、キャッシュ可能なレコード (少なくとも一方のタイトルが非空) かどうかを返します。
// タイトルが一つも取れなかったレコードはキャッシュされず、次回実行時に再取得されます。
func (r URLRecord) HasTitle() bool {
	return r.PageTitle != "" || r.ArticleTitle != ""
}

// Header は出力CSVのヘッダー行を返します。
func Header() []string {
	return []string{"url", "end_url", "page_title", "article_title"}
}

// Fields はCSVの1行分のフィールドを返します。
func (r URLRecord) Fields() []string {
	return []string{r.URL, r.EndURL, r.PageTitle, r.ArticleTitle}
}

// FromFields はCSVの1行からレコードを復元します。フィールド数が不足する行はエラーです。
func FromFields(fields []string) (URLRecord, error) {
	if len(fields) != FieldCount {
		return URLRecord{}, fmt.Errorf("フィールド数が不正です (期待: %d, 実際: %d)", FieldCount, len(fields))
	}
	return URLRecord{
		URL:          fields[FieldURL],
		EndURL:       fields[FieldEndURL],
		PageTitle:    fields[FieldPageTitle],
		ArticleTitle: fields[FieldArticleTitle],
	}, nil
}

// Writer は URLRecord をCSV行として直列化します。並行安全ではないため、
// 呼び出し側 (ディスパッチャーの書き込みゴルーチン) が単一の書き手であることを保証します。
type Writer struct {
	cw *csv.Writer
}

// NewWriter は新しい Writer を生成します。
func NewWriter(w io.Writer) *Writer {
	return &Writer{cw: csv.NewWriter(w)}
}

// WriteHeader はヘッダー行を書き込みます。
func (w *Writer) WriteHeader() error {
	if err := w.cw.Write(Header()); err != nil {
		return fmt.Errorf("ヘッダー行の書き込みに失敗しました: %w", err)
	}
	return nil
}

// Write はレコードを1行書き込みます。
func (w *Writer) Write(rec URLRecord) error {
	if err := w.cw.Write(rec.Fields()); err != nil {
		return fmt.Errorf("レコードの書き込みに失敗しました (URL: %s): %w", rec.URL, err)
	}
	return nil
}

// Flush はバッファ済みの行を書き出し、遅延エラーを返します。
func (w *Writer) Flush() error {
	w.cw.Flush()
	if err := w.cw.Error(); err != nil {
		return fmt.Errorf("CSVのフラッシュに失敗しました: %w", err)
	}
	return nil
}

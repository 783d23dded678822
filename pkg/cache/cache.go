// Package cache は、前回実行時の出力CSVを再開用の台帳として読み込みます。
package cache

import (
	"encoding/csv"
	"errors"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/shouni/go-title-grabber/pkg/records"
)

// Cache は 入力URL → 解決済みレコード の読み取り専用マップです。
// 並行処理の開始前に一度だけ構築され、以降は変更されないため、
// ワーカー間で同期なしに共有できます。
type Cache map[string]records.URLRecord

// Lookup はURLに対応するキャッシュ済みレコードを返します。
func (c Cache) Lookup(url string) (records.URLRecord, bool) {
	rec, ok := c[url]
	return rec, ok
}

// Load は既存の出力CSVをキャッシュとして読み込みます。
// ファイルが存在しない・読めない場合は空のキャッシュを返します (ソフトフェイル)。
// 解析できない行は読み込みを中断せずスキップされます。
// タイトルが一つも無い行はキャッシュされません。次回実行時の再取得を保証するためです。
func Load(path string, logger zerolog.Logger) Cache {
	c := make(Cache)

	f, err := os.Open(path)
	if err != nil {
		// 初回実行ではファイルが無いのが正常系
		logger.Debug().Str("path", path).Err(err).Msg("キャッシュファイルなし。空のキャッシュで開始します")
		return c
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Warn().Str("path", path).Err(err).Msg("キャッシュ行をスキップします")
			continue
		}

		rec, err := records.FromFields(row)
		if err != nil {
			logger.Warn().Str("path", path).Err(err).Msg("キャッシュ行をスキップします")
			continue
		}
		if rec.URL == "url" {
			continue // ヘッダー行
		}
		if !rec.HasTitle() {
			continue
		}
		c[rec.URL] = rec
	}

	logger.Info().Str("path", path).Int("entries", len(c)).Msg("キャッシュを読み込みました")
	return c
}

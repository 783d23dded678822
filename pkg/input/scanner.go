// Package input は、入力ファイルから候補URLの順序付きストリームを生成します。
package input

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
)

// urlRe は行内のURL形状の部分文字列にマッチします。
// 1行につき最初のマッチ1件のみを候補とする仕様は意図的な挙動であり、
// 「行内のすべてのURL」への一般化はしません (テストで固定)。
var urlRe = regexp.MustCompile(`https?://\S+`)

// feedExtensions は、gofeed で解析する入力ファイルの拡張子です。
var feedExtensions = map[string]struct{}{
	".xml":  {},
	".rss":  {},
	".atom": {},
}

// Scanner は入力ファイルを走査し、候補URLをファイル/行の順序どおりに emit へ渡します。
type Scanner struct {
	logger zerolog.Logger
}

// NewScanner は新しい Scanner を生成します。
func NewScanner(logger zerolog.Logger) *Scanner {
	return &Scanner{logger: logger}
}

// ScanFile は1ファイル分の候補URLを抽出します。
// フィード拡張子 (.xml/.rss/.atom) のファイルはRSS/Atomとして解析し、
// 各アイテムのリンクを候補とします。それ以外は1行につき最初のURLマッチ1件です。
// ファイルが開けない場合のエラーは致命的であり、呼び出し元へ伝播します。
func (s *Scanner) ScanFile(path string, emit func(url string)) error {
	if _, ok := feedExtensions[strings.ToLower(filepath.Ext(path))]; ok {
		if err := s.scanFeed(path, emit); err == nil {
			return nil
		}
		// フィードとして解析できないXML風ファイルは行走査にフォールバック
		s.logger.Warn().Str("path", path).Msg("フィード解析に失敗。行走査にフォールバックします")
	}
	return s.scanLines(path, emit)
}

// scanLines は行単位の走査です。URLを含まない行は何も生成しません。
func (s *Scanner) scanLines(path string, emit func(url string)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("入力ファイルを開けませんでした: %w", err)
	}
	defer f.Close()

	s.logger.Info().Str("path", path).Msg("入力ファイルを走査します")

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if m := urlRe.FindString(scanner.Text()); m != "" {
			emit(m)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("入力ファイルの読み取りに失敗しました (%s): %w", path, err)
	}
	return nil
}

// scanFeed はRSS/Atomフィードを解析し、アイテムのリンクをフィード順に生成します。
func (s *Scanner) scanFeed(path string, emit func(url string)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("入力ファイルを開けませんでした: %w", err)
	}
	defer f.Close()

	feed, err := gofeed.NewParser().Parse(f)
	if err != nil {
		return fmt.Errorf("フィードの解析に失敗しました (%s): %w", path, err)
	}

	s.logger.Info().Str("path", path).Int("items", len(feed.Items)).Msg("フィードを走査します")

	for _, item := range feed.Items {
		if item.Link != "" {
			emit(item.Link)
		}
	}
	return nil
}

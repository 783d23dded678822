package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	clibase "github.com/shouni/go-cli-base"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/shouni/go-title-grabber/internal/config"
	"github.com/shouni/go-title-grabber/internal/pipeline"
)

// logFileName は通常実行時のログ出力先です。
const logFileName = "title_grabber.log"

var grabCmd = &cobra.Command{
	Use:   "grab FILE...",
	Short: "入力ファイル中のURLからページタイトルと記事見出しを収集します",
	Long: `入力ファイルの各行から最初のURLを抽出し、並列で取得したページの
タイトルと記事見出しをCSVへ書き出します。出力ファイルはキャッシュを兼ねており、
タイトル取得済みのURLは再実行時に再取得されません。`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd.Flags(), args)
		if err != nil {
			return fmt.Errorf("設定の読み込みに失敗しました: %w", err)
		}

		// clibase 共通の --verbose も --debug と同様に扱う
		logger := newLogger(cfg.Debug || clibase.Flags.Verbose)
		return pipeline.Run(cmd.Context(), cfg, logger)
	},
}

// newLogger はロガーを構築します。デバッグ時は標準エラーへ人間可読な形式で、
// 通常時はローテーション付きのログファイルへJSON形式で出力します。
func newLogger(debug bool) zerolog.Logger {
	var w io.Writer
	level := zerolog.InfoLevel

	if debug {
		w = zerolog.ConsoleWriter{Out: os.Stderr}
		level = zerolog.DebugLevel
	} else {
		w = &lumberjack.Logger{
			Filename:   logFileName,
			MaxSize:    10, // MB
			MaxBackups: 3,
		}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

package cmd

import (
	"runtime"

	clibase "github.com/shouni/go-cli-base"
	"github.com/spf13/cobra"

	"github.com/shouni/go-title-grabber/internal/config"
)

const appName = "title-grabber"

// addAppPersistentFlags は、アプリケーション固有の永続フラグをルートコマンドに追加します。
// フラグ未指定時は環境変数 (CONNECT_TIMEOUT など)、さらに既定値の順で解決されます。
func addAppPersistentFlags(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()
	flags.Int("connect-timeout", config.DefaultConnectTimeoutSec, "接続確立のタイムアウト（秒）")
	flags.Int("read-timeout", config.DefaultReadTimeoutSec, "レスポンス読み取りのタイムアウト（秒）")
	flags.Int("max-redirects", config.DefaultMaxRedirects, "追跡するリダイレクトの最大回数")
	flags.Int("max-retries", config.DefaultMaxRetries, "リトライ可能なエラーに対する最大リトライ回数")
	flags.Int("max-threads", runtime.NumCPU(), "並列取得の最大ワーカー数")
	flags.StringP("output", "o", config.DefaultOutputPath, "出力CSVファイルのパス（キャッシュとしても利用）")
	flags.Bool("debug", false, "デバッグ出力を有効化（ログを標準エラーへ出力）")
}

// initAppPreRunE は、clibase共通処理の後に実行されるアプリケーション固有のPersistentPreRunEです。
// 設定の解決はサブコマンド側で行うため、ここでの追加処理はありません。
func initAppPreRunE(cmd *cobra.Command, args []string) error {
	return nil
}

// Execute は、アプリケーションのルートコマンドを実行します。
func Execute() {
	clibase.Execute(
		appName,
		addAppPersistentFlags,
		initAppPreRunE,
		grabCmd,
	)
}

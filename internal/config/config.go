// Package config は、フラグ・環境変数・既定値を統合した実行時設定を提供します。
// 優先順位はフラグ > 環境変数 (CONNECT_TIMEOUT など) > 既定値です。
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// 既定値。タイムアウトは秒単位で指定します。
const (
	DefaultConnectTimeoutSec = 10
	DefaultReadTimeoutSec    = 15
	DefaultMaxRedirects      = 5
	DefaultMaxRetries        = 3
	DefaultOutputPath        = "out.csv"
)

// Config は1回の実行に必要な設定の集合です。
type Config struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxRedirects   int
	MaxRetries     int
	MaxThreads     int
	OutputPath     string
	Debug          bool
	InputPaths     []string
}

// bindings は viper キーと対応するフラグ名の対応表です。
var bindings = map[string]string{
	"connect_timeout": "connect-timeout",
	"read_timeout":    "read-timeout",
	"max_redirects":   "max-redirects",
	"max_retries":     "max-retries",
	"max_threads":     "max-threads",
	"output":          "output",
	"debug":           "debug",
}

// Load はフラグと環境変数を解決して Config を構築します。
// args は位置引数 (入力ファイルパス) です。
func Load(flags *pflag.FlagSet, args []string) (*Config, error) {
	v := viper.New()

	v.SetDefault("connect_timeout", DefaultConnectTimeoutSec)
	v.SetDefault("read_timeout", DefaultReadTimeoutSec)
	v.SetDefault("max_redirects", DefaultMaxRedirects)
	v.SetDefault("max_retries", DefaultMaxRetries)
	v.SetDefault("max_threads", runtime.NumCPU())
	v.SetDefault("output", DefaultOutputPath)
	v.SetDefault("debug", false)

	// キー名をそのまま大文字化した環境変数 (CONNECT_TIMEOUT 等) を参照する
	v.AutomaticEnv()

	for key, flagName := range bindings {
		f := flags.Lookup(flagName)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("フラグ %q のバインドに失敗しました: %w", flagName, err)
		}
	}

	cfg := &Config{
		ConnectTimeout: time.Duration(v.GetInt("connect_timeout")) * time.Second,
		ReadTimeout:    time.Duration(v.GetInt("read_timeout")) * time.Second,
		MaxRedirects:   v.GetInt("max_redirects"),
		MaxRetries:     v.GetInt("max_retries"),
		MaxThreads:     v.GetInt("max_threads"),
		OutputPath:     v.GetString("output"),
		Debug:          v.GetBool("debug"),
		InputPaths:     args,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は設定値の健全性を検査します。
func (c *Config) Validate() error {
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout は正の値が必要です: %v", c.ConnectTimeout)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout は正の値が必要です: %v", c.ReadTimeout)
	}
	if c.MaxRedirects < 0 {
		return fmt.Errorf("max_redirects は0以上が必要です: %d", c.MaxRedirects)
	}
	// 負の値は uint64 変換時に巨大な回数へ化けるため、ここで拒否する
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries は0以上が必要です: %d", c.MaxRetries)
	}
	if c.MaxThreads <= 0 {
		return fmt.Errorf("max_threads は正の値が必要です: %d", c.MaxThreads)
	}
	if c.OutputPath == "" {
		return fmt.Errorf("出力ファイルパスが空です")
	}
	if len(c.InputPaths) == 0 {
		return fmt.Errorf("入力ファイルが指定されていません")
	}
	return nil
}

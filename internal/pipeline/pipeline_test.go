package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-title-grabber/internal/config"
	"github.com/shouni/go-title-grabber/pkg/retry"
)

func testConfig(inputPath, outputPath string) *config.Config {
	return &config.Config{
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    5 * time.Second,
		MaxRedirects:   5,
		MaxRetries:     retry.DefaultMaxRetries,
		MaxThreads:     2,
		OutputPath:     outputPath,
		InputPaths:     []string{inputPath},
	}
}

func TestRunEndToEnd(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `<html><head><title> Foo  Bar </title></head><body><p>no headings</p></body></html>`)
	}))
	defer server.Close()

	dir := t.TempDir()
	inputPath := filepath.Join(dir, "urls.txt")
	url := server.URL + "/page1"
	require.NoError(t, os.WriteFile(inputPath, []byte("see "+url+" thanks\n"), 0o644))
	outputPath := filepath.Join(dir, "out.csv")

	err := Run(context.Background(), testConfig(inputPath, outputPath), zerolog.Nop())
	require.NoError(t, err)

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "url,end_url,page_title,article_title", lines[0])
	assert.Equal(t, url+","+url+",Foo Bar,", lines[1])
	assert.Equal(t, int64(1), hits.Load())
}

func TestRunReusesCache(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `<html><head><title>Fresh Title</title></head></html>`)
	}))
	defer server.Close()

	dir := t.TempDir()
	inputPath := filepath.Join(dir, "urls.txt")
	url := server.URL + "/cached"
	require.NoError(t, os.WriteFile(inputPath, []byte(url+"\n"), 0o644))

	outputPath := filepath.Join(dir, "out.csv")
	prior := "url,end_url,page_title,article_title\n" +
		url + "," + url + ",Cached Title,\n"
	require.NoError(t, os.WriteFile(outputPath, []byte(prior), 0o644))

	err := Run(context.Background(), testConfig(inputPath, outputPath), zerolog.Nop())
	require.NoError(t, err)

	// キャッシュヒットのためHTTPリクエストは発生せず、行は前回と同一
	assert.Equal(t, int64(0), hits.Load())
	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Equal(t, prior, string(data))
}

func TestRunWritesCachedRowsInScanOrder(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `<html><head><title>Fresh</title></head></html>`)
	}))
	defer server.Close()

	dir := t.TempDir()
	u1 := server.URL + "/c1"
	u2 := server.URL + "/c2"
	u3 := server.URL + "/c3"

	// 前回の出力はc1,c2,c3の順だが、今回の入力はc2,c3,c1の順
	outputPath := filepath.Join(dir, "out.csv")
	prior := "url,end_url,page_title,article_title\n" +
		u1 + "," + u1 + ",Title One,\n" +
		u2 + "," + u2 + ",Title Two,\n" +
		u3 + "," + u3 + ",Title Three,\n"
	require.NoError(t, os.WriteFile(outputPath, []byte(prior), 0o644))

	inputPath := filepath.Join(dir, "urls.txt")
	require.NoError(t, os.WriteFile(inputPath, []byte(u2+"\n"+u3+"\n"+u1+"\n"), 0o644))

	err := Run(context.Background(), testConfig(inputPath, outputPath), zerolog.Nop())
	require.NoError(t, err)

	// 全件キャッシュヒットであり、行は入力の走査順に並ぶ
	assert.Equal(t, int64(0), hits.Load())
	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[1], u2+","))
	assert.True(t, strings.HasPrefix(lines[2], u3+","))
	assert.True(t, strings.HasPrefix(lines[3], u1+","))
}

func TestRunRetriesTitlelessRows(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `<html><head><title>Now Has Title</title></head></html>`)
	}))
	defer server.Close()

	dir := t.TempDir()
	inputPath := filepath.Join(dir, "urls.txt")
	url := server.URL + "/titleless"
	require.NoError(t, os.WriteFile(inputPath, []byte(url+"\n"), 0o644))

	// タイトルが空の行はキャッシュ対象外なので、再実行で取得し直される
	outputPath := filepath.Join(dir, "out.csv")
	prior := "url,end_url,page_title,article_title\n" +
		url + "," + url + ",,\n"
	require.NoError(t, os.WriteFile(outputPath, []byte(prior), 0o644))

	err := Run(context.Background(), testConfig(inputPath, outputPath), zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, int64(1), hits.Load())
	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Now Has Title")
}

func TestRunMissingInputIsFatal(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(filepath.Join(dir, "missing.txt"), filepath.Join(dir, "out.csv"))

	err := Run(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)

	// 致命的エラーでは出力ファイルを作成しない
	_, statErr := os.Stat(cfg.OutputPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunFailedURLDoesNotAbortSiblings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/bad") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `<html><head><title>Good Page</title></head></html>`)
	}))
	defer server.Close()

	dir := t.TempDir()
	inputPath := filepath.Join(dir, "urls.txt")
	content := server.URL + "/bad\n" + server.URL + "/good\n"
	require.NoError(t, os.WriteFile(inputPath, []byte(content), 0o644))
	outputPath := filepath.Join(dir, "out.csv")

	err := Run(context.Background(), testConfig(inputPath, outputPath), zerolog.Nop())
	require.NoError(t, err)

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")

	// 失敗したURLの行は出力されず、成功したURLのみが残る
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "/good")
	assert.Contains(t, lines[1], "Good Page")
}

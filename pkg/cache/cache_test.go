package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFile(t *testing.T) {
	// ファイルが存在しない場合は空のキャッシュ (エラーにしない)
	c := Load(filepath.Join(t.TempDir(), "does-not-exist.csv"), zerolog.Nop())
	assert.Empty(t, c)
}

func TestLoad(t *testing.T) {
	csv := "url,end_url,page_title,article_title\n" +
		"https://example.com/a,https://example.com/a,Title A,Heading A\n" +
		"https://example.com/b,https://example.com/b,,\n" + // タイトルなし → キャッシュ対象外
		"malformed-row\n" + // フィールド数不足 → スキップ
		"https://example.com/c,https://example.com/c,Title C,\n"

	c := Load(writeTempCSV(t, csv), zerolog.Nop())

	require.Len(t, c, 2)

	rec, ok := c.Lookup("https://example.com/a")
	require.True(t, ok)
	assert.Equal(t, "Title A", rec.PageTitle)
	assert.Equal(t, "Heading A", rec.ArticleTitle)

	_, ok = c.Lookup("https://example.com/b")
	assert.False(t, ok, "タイトルの無い行はキャッシュされないこと")

	rec, ok = c.Lookup("https://example.com/c")
	require.True(t, ok)
	assert.Empty(t, rec.ArticleTitle)
}

func TestLoadQuotedCompositeEndURL(t *testing.T) {
	csv := "url,end_url,page_title,article_title\n" +
		`https://t.co/x,"https://twitter.com/a/status/1,https://twitter.com/b/status/2",t,` + "\n"

	c := Load(writeTempCSV(t, csv), zerolog.Nop())

	rec, ok := c.Lookup("https://t.co/x")
	require.True(t, ok)
	assert.Equal(t, "https://twitter.com/a/status/1,https://twitter.com/b/status/2", rec.EndURL)
}

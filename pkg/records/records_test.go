package records

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasTitle(t *testing.T) {
	tests := []struct {
		name     string
		rec      URLRecord
		expected bool
	}{
		{"both_titles", URLRecord{PageTitle: "Foo", ArticleTitle: "Bar"}, true},
		{"page_title_only", URLRecord{PageTitle: "Foo"}, true},
		{"article_title_only", URLRecord{ArticleTitle: "Bar"}, true},
		{"no_titles", URLRecord{URL: "https://example.com", EndURL: "https://example.com"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.rec.HasTitle())
		})
	}
}

func TestFromFields(t *testing.T) {
	t.Run("valid_row", func(t *testing.T) {
		rec, err := FromFields([]string{"u", "e", "p", "a"})
		require.NoError(t, err)
		assert.Equal(t, URLRecord{URL: "u", EndURL: "e", PageTitle: "p", ArticleTitle: "a"}, rec)
	})

	t.Run("too_few_fields", func(t *testing.T) {
		_, err := FromFields([]string{"u", "e"})
		assert.Error(t, err)
	})
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteHeader())
	require.NoError(t, w.Write(URLRecord{
		URL:       "https://example.com/page1",
		EndURL:    "https://example.com/page1",
		PageTitle: "Foo Bar",
	}))
	require.NoError(t, w.Flush())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "url,end_url,page_title,article_title", lines[0])
	assert.Equal(t, "https://example.com/page1,https://example.com/page1,Foo Bar,", lines[1])
}

// 複合 end_url (カンマ区切り) が引用符付きで直列化され、CSVとして復元可能であることを確認します。
func TestWriterCompositeEndURL(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	composite := "https://twitter.com/a/status/1,https://twitter.com/b/status/2"
	require.NoError(t, w.Write(URLRecord{URL: "https://t.co/x", EndURL: composite, PageTitle: "t"}))
	require.NoError(t, w.Flush())

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rec, err := FromFields(rows[0])
	require.NoError(t, err)
	assert.Equal(t, composite, rec.EndURL)
}

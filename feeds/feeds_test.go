package feeds

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/retriever/models"
)

func TestCategory(t *testing.T) {
	tests := []struct{ in, want string }{
		{"https://medium.com/feed/@someone", "@someone"},
		{"https://medium.com/feed/towards-data-science/", "towards-data-science"},
		{"https://medium.com/feed/tag/prompt-engineering", "tag_prompt-engineering"},
		{"https://example.com/rss.xml", UnknownCategory},
		{"://bad", UnknownCategory},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Category(tt.in), tt.in)
	}
}

const itemsYAML = `
feeds:
  - https://medium.com/feed/tag/golang
items:
  - url: https://medium.com/p/go-tips-1a2b
    title: Go Tips
    feed: https://medium.com/feed/tag/golang
  - url: https://medium.com/@x/plain-post
  - url: https://medium.com/@x/custom
    category: picks
  - url: "  "
`

func TestLoadAndResolve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.yaml")
	require.NoError(t, os.WriteFile(path, []byte(itemsYAML), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"https://medium.com/feed/tag/golang": "tag_golang"}, f.Categories())

	items := f.Resolve("")
	require.Len(t, items, 3)
	assert.Equal(t, models.BatchItem{
		URL: "https://medium.com/p/go-tips-1a2b", Title: "Go Tips",
		Category: "tag_golang", Feed: "https://medium.com/feed/tag/golang",
	}, items[0])
	assert.Equal(t, "plain_post", items[1].Title)
	assert.Equal(t, SingleURLCategory, items[1].Category)
	assert.Equal(t, "picks", items[2].Category)

	assert.Equal(t, "cli", f.Resolve("cli")[1].Category)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, models.ErrCodeInvalidInput, models.CodeOf(err))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("items: [url: {"), 0o644))
	_, err = Load(path)
	assert.Equal(t, models.ErrCodeInvalidInput, models.CodeOf(err))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("items:\n  - url: https://b.example/2\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("feeds: [https://medium.com/feed/@a]\nitems:\n  - url: https://a.example/1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	f, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, f.Items, 2)
	assert.Equal(t, "https://a.example/1", f.Items[0].URL)
	assert.Equal(t, []string{"https://medium.com/feed/@a"}, f.Feeds)
}

func TestSingleItems(t *testing.T) {
	items := SingleItems([]string{"https://medium.com/@x/my-post", "https://medium.com/"}, "")
	require.Len(t, items, 2)
	assert.Equal(t, "my_post", items[0].Title)
	assert.Equal(t, SingleURLCategory, items[0].Category)
	assert.Equal(t, "untitled_article", items[1].Title)
}

// Package feeds reads retrieval inputs from YAML item files and derives
// output categories from feed URLs. Discovering entries inside a feed is
// left to whoever writes the item files.
package feeds

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/use-agent/retriever/models"
	"github.com/use-agent/retriever/store"
)

// SingleURLCategory is the category of URLs given without feed metadata.
const SingleURLCategory = "single_url_fetch"

// UnknownCategory is used for feed URLs without a /feed/ segment.
const UnknownCategory = "unknown"

// File is the on-disk input format:
//
//	feeds:
//	  - https://medium.com/feed/tag/golang
//	items:
//	  - url: https://medium.com/p/abc
//	    title: Go Tips
//	    feed: https://medium.com/feed/tag/golang
type File struct {
	Feeds []string           `yaml:"feeds"`
	Items []models.BatchItem `yaml:"items"`
}

// Load reads one items file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, models.NewRetrievalError(models.ErrCodeInvalidInput, "read items file", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, models.NewRetrievalError(models.ErrCodeInvalidInput, fmt.Sprintf("parse %s", path), err)
	}
	return &f, nil
}

// LoadDir merges every *.yaml file in dir, in name order.
func LoadDir(dir string) (*File, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, models.NewRetrievalError(models.ErrCodeInvalidInput, "list items files", err)
	}
	sort.Strings(paths)

	merged := &File{}
	for _, p := range paths {
		f, err := Load(p)
		if err != nil {
			return nil, err
		}
		merged.Feeds = append(merged.Feeds, f.Feeds...)
		merged.Items = append(merged.Items, f.Items...)
	}
	return merged, nil
}

// Resolve returns the items with empty titles and categories filled in.
// An item's category comes from its feed when it has one; otherwise
// fallbackCategory applies, then SingleURLCategory. Items without a URL
// are dropped.
func (f *File) Resolve(fallbackCategory string) []models.BatchItem {
	out := make([]models.BatchItem, 0, len(f.Items))
	for _, it := range f.Items {
		it.URL = strings.TrimSpace(it.URL)
		if it.URL == "" {
			continue
		}
		if it.Category == "" {
			switch {
			case it.Feed != "":
				it.Category = Category(it.Feed)
			case fallbackCategory != "":
				it.Category = fallbackCategory
			default:
				it.Category = SingleURLCategory
			}
		}
		if it.Title == "" {
			it.Title = store.TitleFromURL(it.URL)
		}
		out = append(out, it)
	}
	return out
}

// Categories maps every listed feed to its output category.
func (f *File) Categories() map[string]string {
	m := make(map[string]string, len(f.Feeds))
	for _, feed := range f.Feeds {
		m[feed] = Category(feed)
	}
	return m
}

// Category derives the output directory name from a feed URL:
//
//	https://medium.com/feed/@someone        → @someone
//	https://medium.com/feed/publication     → publication
//	https://medium.com/feed/tag/golang      → tag_golang
func Category(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return UnknownCategory
	}
	i := strings.LastIndex(u.Path, "/feed/")
	if i < 0 {
		return UnknownCategory
	}
	suffix := u.Path[i+len("/feed/"):]
	if strings.HasPrefix(suffix, "tag/") {
		return strings.ReplaceAll(suffix, "/", "_")
	}
	return strings.Trim(suffix, "/")
}

// SingleItems turns bare URLs into items. category may be empty.
func SingleItems(urls []string, category string) []models.BatchItem {
	f := &File{Items: make([]models.BatchItem, 0, len(urls))}
	for _, u := range urls {
		f.Items = append(f.Items, models.BatchItem{URL: u})
	}
	return f.Resolve(category)
}

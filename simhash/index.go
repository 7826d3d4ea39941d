package simhash

import "sync"

// DefaultBlockPages are representative texts of pages that load fine but
// carry no article: bot challenges, consent walls and soft 404s.
var DefaultBlockPages = map[string]string{
	"cloudflare_challenge": "Just a moment... Checking if the site connection is secure. " +
		"Enable JavaScript and cookies to continue. needs to review the security of your connection before proceeding. " +
		"Verifying you are human. This may take a few seconds. Performance & security by Cloudflare",
	"access_denied": "Access Denied You don't have permission to access this page on this server. " +
		"Reference error number Request blocked",
	"google_404": "404. That’s an error. The requested URL was not found on this server. That’s all we know.",
	"medium_signin": "Sign up to discover human stories that deepen your understanding of the world. " +
		"Free Distraction-free reading. No ads. Organize your knowledge with lists and highlights. " +
		"Tell your story. Find your audience. Sign up for free Try for $5/month",
}

type entry struct {
	name string
	fp   uint64
}

// Index matches texts against a set of known pages by SimHash distance.
// It is safe for concurrent use.
type Index struct {
	mu          sync.RWMutex
	entries     []entry
	maxDistance int
}

// NewIndex creates an empty index. Texts within maxDistance bits of an
// entry match it.
func NewIndex(maxDistance int) *Index {
	return &Index{maxDistance: maxDistance}
}

// NewBlockPageIndex creates an index preloaded with DefaultBlockPages.
func NewBlockPageIndex(maxDistance int) *Index {
	ix := NewIndex(maxDistance)
	for name, text := range DefaultBlockPages {
		ix.Add(name, text)
	}
	return ix
}

// Add registers text under name. Empty texts are ignored.
func (ix *Index) Add(name, text string) {
	fp := Fingerprint(text)
	if fp == 0 {
		return
	}
	ix.mu.Lock()
	ix.entries = append(ix.entries, entry{name: name, fp: fp})
	ix.mu.Unlock()
}

// Match returns the name of the closest entry within the distance bound.
func (ix *Index) Match(text string) (string, bool) {
	fp := Fingerprint(text)
	if fp == 0 {
		return "", false
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	best, bestDist := "", ix.maxDistance+1
	for _, e := range ix.entries {
		if d := Distance(fp, e.fp); d < bestDist {
			best, bestDist = e.name, d
		}
	}
	return best, best != ""
}

// Len returns the number of entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

package store

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DateLayout names the per-day output directories.
const DateLayout = "2006-01-02"

const maxNameLen = 100

var (
	unsafeNameRe   = regexp.MustCompile(`[\\/*?:"<>|]`)
	videoDropRe    = regexp.MustCompile(`["'()\[\]{}“”‘’（）【】《》「」]`)
	videoHyphenRe  = regexp.MustCompile(`[\s|:,.!?，。！？、_]+`)
	videoUnsafeRe  = regexp.MustCompile(`[^\p{L}\p{N}\-]`)
	hyphenRunRe    = regexp.MustCompile(`-+`)
	slugUnsafeRe   = regexp.MustCompile(`[^\p{L}\p{N}_\-]`)
	underscoreRe   = regexp.MustCompile(`_+`)
	numericIDRe    = regexp.MustCompile(`/(?:video|note|article|item|i)/(\d{6,})`)
	videoSuffixes  = []string{" - 抖音", " - 今日头条", " - 西瓜视频"}
	defaultVidName = "video_download"
)

// SanitizeFilename makes an article title or category safe as a path
// segment: it drops \/*?:"<>|, trims, replaces spaces with underscores
// and keeps at most 100 characters.
func SanitizeFilename(name string) string {
	name = unsafeNameRe.ReplaceAllString(name, "")
	name = strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
	return truncateRunes(name, maxNameLen)
}

// SanitizeSlug is the stricter sanitizer used for eval reports: spaces and
// dashes become underscores, anything but letters, digits, "_" and "-" is
// replaced, runs of "_" collapse and the result is trimmed to 100 characters.
func SanitizeSlug(name string) string {
	name = strings.NewReplacer(" ", "_", "—", "_", "–", "_").Replace(name)
	name = slugUnsafeRe.ReplaceAllString(name, "_")
	name = underscoreRe.ReplaceAllString(name, "_")
	return truncateRunes(strings.Trim(name, "_"), maxNameLen)
}

// SanitizeVideoTitle produces hyphen-style names for videos: quotes and
// brackets are dropped, whitespace and punctuation become hyphens, and the
// platform suffix is removed. Empty results become "video_download".
func SanitizeVideoTitle(title string) string {
	for _, s := range videoSuffixes {
		title = strings.ReplaceAll(title, s, "")
	}
	title = videoDropRe.ReplaceAllString(title, "")
	title = videoHyphenRe.ReplaceAllString(title, "-")
	title = videoUnsafeRe.ReplaceAllString(title, "")
	title = hyphenRunRe.ReplaceAllString(title, "-")
	title = truncateRunes(strings.Trim(title, "-"), maxNameLen)
	if title == "" {
		return defaultVidName
	}
	return title
}

// VideoID derives a stable id from a video page URL so the output key is
// known before the page is sniffed: "<site>-<id>" when the URL carries the
// platform's numeric id, otherwise a hash of the normalized URL. The site
// prefix keeps equal ids from different platforms apart.
func VideoID(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Sprintf("%016x", xxhash.Sum64String(rawURL))
	}
	site := siteLabel(u.Hostname())
	if m := numericIDRe.FindStringSubmatch(u.Path); m != nil {
		return site + "-" + m[1]
	}
	if id := u.Query().Get("modal_id"); id != "" {
		return site + "-" + SanitizeFilename(id)
	}
	normalized := strings.ToLower(u.Host) + strings.TrimSuffix(u.Path, "/") + "?" + u.RawQuery
	return fmt.Sprintf("%016x", xxhash.Sum64String(normalized))
}

// siteLabel returns the label left of the top-level domain
// ("www.douyin.com" → "douyin"), or "video" when there is none.
func siteLabel(host string) string {
	labels := strings.Split(strings.ToLower(strings.TrimSuffix(host, ".")), ".")
	if len(labels) < 2 {
		return "video"
	}
	label := SanitizeFilename(labels[len(labels)-2])
	if label == "" {
		return "video"
	}
	return label
}

// TitleFromURL derives a title from the last path segment ("my-post" →
// "my_post") for URLs fetched without feed metadata.
func TitleFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "untitled_article"
	}
	seg := path.Base(strings.TrimSuffix(u.Path, "/"))
	if seg == "" || seg == "." || seg == "/" {
		return "untitled_article"
	}
	return strings.ReplaceAll(seg, "-", "_")
}

// DateDir formats the ingestion date directory.
func DateDir(t time.Time) string {
	return t.Format(DateLayout)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

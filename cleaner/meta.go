package cleaner

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageMeta carries the page-level metadata used to name outputs when
// readability finds no title.
type PageMeta struct {
	Title       string
	Description string
	SiteName    string
	Type        string
}

// ExtractMeta reads Open Graph tags and falls back to <title>.
func ExtractMeta(rawHTML string) PageMeta {
	var meta PageMeta

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return meta
	}

	doc.Find("meta[property]").Each(func(_ int, s *goquery.Selection) {
		prop, _ := s.Attr("property")
		content := strings.TrimSpace(s.AttrOr("content", ""))
		if content == "" {
			return
		}
		switch prop {
		case "og:title":
			meta.Title = content
		case "og:description":
			meta.Description = content
		case "og:site_name":
			meta.SiteName = content
		case "og:type":
			meta.Type = content
		}
	})

	if meta.Title == "" {
		meta.Title = strings.TrimSpace(doc.Find("head title").First().Text())
	}
	return meta
}

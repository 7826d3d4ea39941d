package cleaner

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// NoiseSelectors are removed from rendered pages before conversion. They
// match the elements the in-page DOM walk skips plus common share and
// follow widgets.
var NoiseSelectors = []string{
	"script", "style", "iframe", "noscript",
	"header", "footer", "nav",
	".ad", ".advertisement", `[role="complementary"]`,
	`[aria-label="Share"]`, `[data-testid="headerSocialShareButton"]`,
	".social-share", ".share-buttons", ".follow-button",
}

// StripNoise removes NoiseSelectors and any extra selectors from html.
// Unparseable input is returned unchanged.
func StripNoise(html string, extra ...string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	for _, selector := range NoiseSelectors {
		doc.Find(selector).Remove()
	}
	for _, selector := range extra {
		doc.Find(selector).Remove()
	}

	result, err := doc.Html()
	if err != nil {
		return html
	}
	return result
}

// TextOf returns the trimmed visible text of an HTML fragment.
func TextOf(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	return strings.TrimSpace(doc.Text())
}

package cleaner

import (
	"math"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Blocks scoring at or below pruneThreshold are treated as page chrome.
const pruneThreshold = 0.0

const (
	wTextDensity = 3.0
	wLinkDensity = -2.0
	wTag         = 1.5
	wClassID     = 1.0
	wTextLength  = 0.5
)

var contentHints = []string{
	"content", "article", "post", "entry", "body", "main", "text", "story",
}

var chromeHints = []string{
	"sidebar", "ad", "widget", "nav", "menu", "comment", "footer",
	"header", "banner", "popup", "modal", "cookie", "social", "share",
	"related", "recommend", "promo", "follow", "subscribe", "paywall",
	"newsletter", "meter",
}

// PruneContent keeps the direct children of <body> whose block score is
// above the threshold. The score combines text density, link density,
// semantic tag, class/id hints and text length. When nothing qualifies the
// whole body is returned.
func PruneContent(rawHTML string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML, err
	}

	body := doc.Find("body")
	if body.Length() == 0 {
		return rawHTML, nil
	}

	var kept []string
	body.Children().Each(func(_ int, el *goquery.Selection) {
		if scoreBlock(el) <= pruneThreshold {
			return
		}
		if h, err := goquery.OuterHtml(el); err == nil {
			kept = append(kept, h)
		}
	})

	if len(kept) == 0 {
		h, err := body.Html()
		if err != nil {
			return rawHTML, nil
		}
		return h, nil
	}
	return strings.Join(kept, "\n"), nil
}

func scoreBlock(el *goquery.Selection) float64 {
	outer, err := goquery.OuterHtml(el)
	if err != nil {
		return 0
	}

	text := strings.TrimSpace(el.Text())
	textLen := len(text)

	density := 0.0
	if len(outer) > 0 {
		density = float64(textLen) / float64(len(outer))
	}

	linkLen := 0
	el.Find("a").Each(func(_ int, a *goquery.Selection) {
		linkLen += len(strings.TrimSpace(a.Text()))
	})
	linkDensity := 0.0
	if textLen > 0 {
		linkDensity = float64(linkLen) / float64(textLen)
	}

	return density*wTextDensity +
		linkDensity*wLinkDensity +
		tagScore(el)*wTag +
		classIDScore(el)*wClassID +
		math.Log10(float64(textLen)+1)*wTextLength
}

func tagScore(el *goquery.Selection) float64 {
	switch goquery.NodeName(el) {
	case "article", "main", "section":
		return 5.0
	case "nav", "footer", "aside", "header":
		return -5.0
	default:
		return 0.0
	}
}

// classIDScore counts at most one hint in each direction.
func classIDScore(el *goquery.Selection) float64 {
	attrs := strings.ToLower(el.AttrOr("class", "") + " " + el.AttrOr("id", ""))

	score := 0.0
	for _, h := range contentHints {
		if strings.Contains(attrs, h) {
			score += 3.0
			break
		}
	}
	for _, h := range chromeHints {
		if strings.Contains(attrs, h) {
			score -= 3.0
			break
		}
	}
	return score
}

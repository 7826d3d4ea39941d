package cleaner

import (
	"strings"

	"golang.org/x/net/html"
)

// ExtractTitle returns the text of the first <title> element, or "" when
// the page has none. It stops tokenizing at the title.
func ExtractTitle(rawHTML string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if string(name) != "title" {
				continue
			}
			if tokenizer.Next() == html.TextToken {
				return strings.TrimSpace(string(tokenizer.Text()))
			}
			return ""
		}
	}
}

package cleaner

import (
	"bytes"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// SelectRoot narrows rawHTML to the outer HTML of the elements matching
// selector. ok is false when nothing matched, in which case rawHTML is
// returned unchanged.
func SelectRoot(rawHTML string, selector string) (string, bool, error) {
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return rawHTML, false, err
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML, false, err
	}

	matches := cascadia.QueryAll(doc, sel)
	if len(matches) == 0 {
		return rawHTML, false, nil
	}

	var buf bytes.Buffer
	for _, node := range matches {
		if err := html.Render(&buf, node); err != nil {
			return rawHTML, false, err
		}
	}
	return buf.String(), true, nil
}

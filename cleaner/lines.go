package cleaner

import (
	"regexp"
	"strings"
)

// globalNoise is removed wherever it appears, not only as a whole line.
var globalNoise = []string{
	"Press enter or click to view image in full size",
	"按Enter或点击以查看图片全尺寸",
}

// exactNoiseLines are dropped when a trimmed line equals them.
var exactNoiseLines = map[string]struct{}{
	"Listen":            {},
	"Share":             {},
	"More":              {},
	"Open in app":       {},
	"Member-only story": {},
}

var (
	counterLineRe = regexp.MustCompile(`^\d+(\.\d+)?[KkMm]?$`)
	blankRunRe    = regexp.MustCompile(`\n{3,}`)
)

// IsNoiseLine reports whether a single markdown line is page chrome
// (share prompts, reading time, follower counts, avatar links).
// Blank lines are never noise.
func IsNoiseLine(line string) bool {
	s := strings.TrimSpace(line)
	if s == "" {
		return false
	}
	if _, ok := exactNoiseLines[s]; ok {
		return true
	}
	if strings.Contains(s, "Following") && strings.Contains(s, "read") {
		return true
	}
	if strings.Contains(s, "min read") {
		return true
	}
	// Author avatar: [![Name](img)](/@handle)
	if strings.HasPrefix(s, "[![") && strings.Contains(s, "](/@") {
		return true
	}
	return counterLineRe.MatchString(s)
}

// CleanLines strips global noise phrases and noise lines from markdown and
// collapses the blank runs left behind.
func CleanLines(markdown string) string {
	for _, phrase := range globalNoise {
		markdown = strings.ReplaceAll(markdown, phrase, "")
	}

	lines := strings.Split(markdown, "\n")
	kept := lines[:0]
	inFence := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}
		if !inFence && IsNoiseLine(line) {
			continue
		}
		kept = append(kept, line)
	}

	out := blankRunRe.ReplaceAllString(strings.Join(kept, "\n"), "\n\n")
	return strings.TrimSpace(out)
}

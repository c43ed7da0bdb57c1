package extract

import (
	"regexp"
	"strings"
)

// minLineLength drops navigation crumbs: lines shorter than this after
// trimming are treated as noise unless they end a sentence.
const minLineLength = 10

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	mdImageRe    = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdLinkRe     = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	bareURLRe    = regexp.MustCompile(`https?://\S+|www\.\S+`)
	whitespaceRe = regexp.MustCompile(`[ \t]+`)
	blankRunRe   = regexp.MustCompile(`\n{3,}`)
)

// boilerplatePhrases are dropped wherever a line consists of (or starts
// with) one of them. Matching is case-insensitive.
var boilerplatePhrases = []string{
	"advertisement",
	"sponsored content",
	"subscribe to our newsletter",
	"sign up for our newsletter",
	"share this article",
	"follow us on",
	"read more:",
	"related articles",
	"comments",
	"skip to main content",
	"accept cookies",
	"cookie policy",
	"all rights reserved",
}

// Clean normalizes raw strategy output into plain article text: markdown
// links and images are unwrapped, raw URLs stripped, whitespace
// collapsed, and short or boilerplate lines removed.
func Clean(text string) string {
	if text == "" {
		return ""
	}

	text = mdImageRe.ReplaceAllString(text, "")
	text = mdLinkRe.ReplaceAllString(text, "$1")
	text = htmlTagRe.ReplaceAllString(text, " ")
	text = bareURLRe.ReplaceAllString(text, "")

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(whitespaceRe.ReplaceAllString(line, " "))
		if line == "" {
			kept = append(kept, "")
			continue
		}
		if isBoilerplate(line) {
			continue
		}
		if len([]rune(line)) < minLineLength && !endsSentence(line) {
			continue
		}
		kept = append(kept, line)
	}

	out := strings.Join(kept, "\n")
	out = blankRunRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

func isBoilerplate(line string) bool {
	lower := strings.ToLower(line)
	for _, phrase := range boilerplatePhrases {
		if lower == phrase || strings.HasPrefix(lower, phrase) {
			return true
		}
	}
	return false
}

func endsSentence(line string) bool {
	return strings.HasSuffix(line, ".") || strings.HasSuffix(line, "!") ||
		strings.HasSuffix(line, "?") || strings.HasSuffix(line, "。")
}

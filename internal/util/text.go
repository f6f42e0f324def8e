package util

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

const maxSlugLength = 60

var (
	nonSlugRegex    = regexp.MustCompile(`[^a-z0-9]+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// Slugify converts a title into a URL-safe identifier: lowercased,
// non-alphanumeric runs collapsed to single hyphens, trimmed, length-capped.
func Slugify(s string) string {
	slug := strings.ToLower(s)
	slug = nonSlugRegex.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
		slug = strings.TrimRight(slug, "-")
	}
	return slug
}

// StripHTML removes all markup from s, keeping only text content.
// Invalid markup degrades to whatever text the tokenizer can recover.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	tokenizer := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.TextToken {
			b.Write(tokenizer.Text())
			b.WriteByte(' ')
		}
	}
	return strings.TrimSpace(b.String())
}

// CollapseWhitespace replaces runs of whitespace with single spaces.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

// Truncate caps s at max runes, appending an ellipsis when cut.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}

package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// NewsAPI cuts content and appends a marker such as "… [+2315 chars]".
var truncationExpr = regexp.MustCompile(`\s*(…|\.\.\.)?\s*\[\+\d+ chars\]\s*$`)

var spaceExpr = regexp.MustCompile(`\s+`)

// CleanText strips markup from a provider snippet and collapses whitespace.
// Plain text goes through unchanged apart from whitespace.
func CleanText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	text := raw
	if strings.ContainsAny(raw, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
		if err == nil {
			doc.Find("script, style, noscript").Remove()
			text = doc.Text()
		}
	}

	return strings.TrimSpace(spaceExpr.ReplaceAllString(text, " "))
}

// StripTruncation removes the trailing "[+N chars]" marker.
func StripTruncation(text string) string {
	return strings.TrimSpace(truncationExpr.ReplaceAllString(text, ""))
}

// Body picks the richest cleaned text for analysis: description, extended with
// content when content is not just a repeat of it.
func Body(description, content string) string {
	desc := CleanText(description)
	full := StripTruncation(CleanText(content))

	switch {
	case desc == "":
		return full
	case full == "" || strings.Contains(desc, full):
		return desc
	case strings.HasPrefix(full, desc):
		return full
	default:
		return desc + "\n\n" + full
	}
}

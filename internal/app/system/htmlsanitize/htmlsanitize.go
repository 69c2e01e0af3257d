// Package htmlsanitize cleans user-supplied free text before it is stored.
//
// The API stores plain text only: pitches, review feedback, cohort
// descriptions and announcements. Markup is stripped rather than escaped so
// clients never have to decide whether a field is safe to render.
package htmlsanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// PlainText removes every HTML element from s, dropping the contents of
// script and style blocks, and trims surrounding whitespace. Entities are
// decoded so "A &amp; B" and "A & B" store the same.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

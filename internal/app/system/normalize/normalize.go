// internal/app/system/normalize/normalize.go
package normalize

import "strings"

// Email lowercases and trims an email address. Emails are stored and
// compared in this form everywhere (users, cohort allow-lists).
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims and collapses inner whitespace.
func Name(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Emails normalizes a list and drops blanks and duplicates, keeping order.
func Emails(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, e := range in {
		e = Email(e)
		if e == "" {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

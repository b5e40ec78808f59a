// Package source adapts the provider clients to the collector: every fetch
// goes through the source's executor, responses are normalized to canonical
// records, and failures degrade to "no data" after being logged.
package source

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Placeholder values providers use for "unknown".
var placeholders = map[string]bool{
	"":     true,
	"N/A":  true,
	"n/a":  true,
	"null": true,
	"None": true,
}

// text trims and NFC-normalizes s. Placeholders become nil.
func text(s string) any {
	s = strings.TrimSpace(s)
	if placeholders[s] {
		return nil
	}
	return norm.NFC.String(s)
}

// digits strips currency symbols, thousands separators and spaces.
func digits(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '$', ',', ' ', '€', '£':
			return -1
		}
		return r
	}, s)
}

// parseInt parses an integer field such as "1,234" or "$533,345,358".
// Placeholders and parse failures become nil.
func parseInt(s string) any {
	s = strings.TrimSpace(s)
	if placeholders[s] {
		return nil
	}
	n, err := strconv.ParseInt(digits(s), 10, 64)
	if err != nil {
		return nil
	}
	return n
}

// parseFloat parses a decimal field such as "9.0".
func parseFloat(s string) any {
	s = strings.TrimSpace(s)
	if placeholders[s] {
		return nil
	}
	f, err := strconv.ParseFloat(digits(s), 64)
	if err != nil {
		return nil
	}
	return f
}

// parseLeadingInt parses the leading integer of values like "142 min",
// "85%" or "76/100".
func parseLeadingInt(s string) any {
	s = strings.TrimSpace(s)
	if placeholders[s] {
		return nil
	}
	end := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if end == 0 {
		return nil
	}
	if end > 0 {
		s = s[:end]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return n
}

var dateLayouts = []string{"2006-01-02", "02 Jan 2006", "2 Jan 2006"}

// parseDate parses a provider date as UTC midnight.
func parseDate(s string) any {
	s = strings.TrimSpace(s)
	if placeholders[s] {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return nil
}

// joinNames collapses a multi-valued field to one comma-joined text value,
// keeping provider order. An empty list is nil.
func joinNames[T any](items []T, name func(T) string) any {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		if n := strings.TrimSpace(name(it)); n != "" {
			parts = append(parts, norm.NFC.String(n))
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return strings.Join(parts, ",")
}

// positive returns n as int64, or nil when n is zero or negative. Providers
// report unknown money amounts as 0.
func positive(n int64) any {
	if n <= 0 {
		return nil
	}
	return n
}

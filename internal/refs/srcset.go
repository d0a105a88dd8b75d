package refs

import (
	"strings"
	"unicode"
)

// SrcsetEntry is one image candidate of a srcset attribute.
type SrcsetEntry struct {
	// URL is the raw, unresolved candidate URL.
	URL string

	// Descriptor is the width or density descriptor ("800w", "2x"), kept
	// verbatim. It is empty when the candidate has none.
	Descriptor string
}

// ParseSrcset splits a srcset value into its candidates.
//
// A candidate URL runs until whitespace, so URLs containing commas survive;
// a comma glued to the end of a URL ends the candidate. The descriptor runs
// until the next comma outside parentheses.
func ParseSrcset(s string) []SrcsetEntry {
	var entries []SrcsetEntry
	i := 0
	n := len(s)

	for i < n {
		// Skip separators between candidates.
		for i < n && (s[i] == ',' || isSpace(s[i])) {
			i++
		}
		if i >= n {
			break
		}

		start := i
		for i < n && !isSpace(s[i]) {
			i++
		}
		rawURL := s[start:i]

		if strings.HasSuffix(rawURL, ",") {
			rawURL = strings.TrimRight(rawURL, ",")
			if rawURL != "" {
				entries = append(entries, SrcsetEntry{URL: rawURL})
			}
			continue
		}

		depth := 0
		descStart := i
		for i < n {
			c := s[i]
			if c == '(' {
				depth++
			} else if c == ')' && depth > 0 {
				depth--
			} else if c == ',' && depth == 0 {
				break
			}
			i++
		}
		descriptor := strings.TrimSpace(s[descStart:i])
		if i < n {
			i++ // comma
		}

		if rawURL != "" {
			entries = append(entries, SrcsetEntry{URL: rawURL, Descriptor: descriptor})
		}
	}

	return entries
}

// FormatSrcset joins candidates back into a srcset value.
func FormatSrcset(entries []SrcsetEntry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Descriptor == "" {
			parts = append(parts, e.URL)
			continue
		}
		parts = append(parts, e.URL+" "+e.Descriptor)
	}
	return strings.Join(parts, ", ")
}

// SrcsetURLs returns the candidate URLs of a srcset value, skipping data: URLs.
func SrcsetURLs(s string) []string {
	var out []string
	for _, e := range ParseSrcset(s) {
		if isEmbedded(e.URL) {
			continue
		}
		out = append(out, e.URL)
	}
	return out
}

func isSpace(c byte) bool {
	return unicode.IsSpace(rune(c))
}

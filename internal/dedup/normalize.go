package dedup

import (
	"regexp"
	"strings"
)

var (
	doiPrefixRe  = regexp.MustCompile(`^(?:doi:|https?://(?:dx\.)?doi\.org/)`)
	punctRe      = regexp.MustCompile(`[^\w\s]`)
	honorificRe  = regexp.MustCompile(`\b(?:dr|prof|professor|phd|md|msc|bsc)\b\.?`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Stop words stripped from titles before comparison.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {},
	"with": {}, "by": {},
}

// NormalizeDOI canonicalizes a DOI for comparison: lower case, resolver
// prefix stripped, all whitespace removed.
func NormalizeDOI(doi string) string {
	d := strings.ToLower(strings.TrimSpace(doi))
	d = doiPrefixRe.ReplaceAllString(d, "")
	return whitespaceRe.ReplaceAllString(d, "")
}

// NormalizeTitle canonicalizes a title for comparison: lower case,
// punctuation replaced by spaces, whitespace collapsed, stop words removed.
func NormalizeTitle(title string) string {
	t := strings.ToLower(title)
	t = punctRe.ReplaceAllString(t, " ")
	words := strings.Fields(t)
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if _, stop := stopWords[w]; !stop {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// normalizeAuthor reduces an author name to a "first-initial last-name" key.
// Handles both "Last, First" and "First Middle Last" orderings and strips
// common honorifics.
func normalizeAuthor(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = honorificRe.ReplaceAllString(n, "")

	var initial, last string
	if comma := strings.Index(n, ","); comma >= 0 {
		last = strings.TrimSpace(n[:comma])
		initial = firstRune(strings.TrimSpace(n[comma+1:]))
	} else {
		parts := strings.Fields(n)
		if len(parts) > 0 {
			initial = firstRune(parts[0])
			last = parts[len(parts)-1]
		}
	}
	return strings.TrimSpace(initial + " " + last)
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}

// authorKeySet builds the set of normalized author keys for a record.
func authorKeySet(authors []string) map[string]struct{} {
	keys := make(map[string]struct{}, len(authors))
	for _, a := range authors {
		if k := normalizeAuthor(a); k != "" {
			keys[k] = struct{}{}
		}
	}
	return keys
}

package relevance

import (
	"sort"
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {}, "you": {},
	"all": {}, "can": {}, "has": {}, "her": {}, "was": {}, "one": {}, "our": {},
	"out": {}, "his": {}, "how": {}, "its": {}, "may": {}, "new": {}, "now": {},
	"see": {}, "two": {}, "who": {}, "did": {}, "get": {}, "let": {}, "put": {},
	"say": {}, "she": {}, "too": {}, "use": {}, "that": {}, "with": {}, "have": {},
	"this": {}, "will": {}, "your": {}, "from": {}, "they": {}, "been": {},
	"were": {}, "what": {}, "when": {}, "where": {}, "which": {}, "while": {},
	"there": {}, "their": {}, "would": {}, "could": {}, "should": {}, "into": {},
	"about": {}, "some": {}, "them": {}, "then": {}, "than": {}, "these": {},
	"those": {}, "does": {}, "also": {}, "just": {}, "like": {}, "make": {},
	"want": {}, "need": {}, "please": {}, "file": {}, "files": {}, "code": {},
}

// Normalize lowercases q, splits it on whitespace, hyphens, and underscores,
// strips surrounding punctuation, drops stop words and tokens of two
// characters or fewer, and returns the sorted distinct terms. Joining the
// result with spaces and normalizing again yields the same terms.
func Normalize(q string) []string {
	fields := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == '_'
	})

	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len([]rune(f)) <= 2 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	sort.Strings(terms)
	return terms
}

// Key is the canonical cache and learning key for a set of terms.
func Key(terms []string) string {
	return strings.Join(terms, " ")
}

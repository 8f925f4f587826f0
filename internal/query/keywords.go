package query

import (
	"strings"
	"unicode"
)

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true,
	"do": true, "does": true, "did": true,
	"will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "shall": true, "can": true,
	"to": true, "of": true, "in": true, "on": true, "at": true,
	"by": true, "for": true, "with": true, "from": true, "as": true,
	"about": true, "into": true, "through": true, "during": true,
	"before": true, "after": true, "between": true, "over": true, "under": true,
	"what": true, "how": true, "when": true, "where": true, "why": true,
	"who": true, "whom": true, "which": true,
	"this": true, "that": true, "these": true, "those": true,
	"i": true, "you": true, "he": true, "she": true, "it": true, "we": true, "they": true,
	"and": true, "or": true, "but": true, "if": true, "not": true, "no": true,
	"there": true, "their": true, "its": true, "any": true, "all": true,
	"main": true, "types": true, "kind": true, "kinds": true,
	"tell": true, "me": true, "list": true, "describe": true, "explain": true,
	"s": true, "t": true,
}

// Keywords splits a question into lowercase search terms, dropping stop
// words and one-letter fragments. Order of first appearance is kept and
// duplicates are removed. Hyphenated words stay whole.
func Keywords(question string) []string {
	words := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})

	seen := make(map[string]bool, len(words))
	var out []string
	for _, w := range words {
		w = strings.Trim(w, "-")
		if len(w) < 2 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

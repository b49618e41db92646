// Copyright 2024-2026 Aiku AI

package textfilter

import "strings"

// Keywords is the whitelist filter policy: a message is admitted only if
// its text contains at least one configured keyword. It never rewrites.
//
// An empty keyword set admits everything. A non-empty set rejects
// messages with no text.
type Keywords struct {
	words []string
}

var _ Policy = (*Keywords)(nil)

// NewKeywords normalizes the given words to lowercase and discards
// empty entries.
func NewKeywords(words []string) *Keywords {
	k := &Keywords{}
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			k.words = append(k.words, w)
		}
	}
	return k
}

// Decide performs a case-insensitive substring match against the
// keyword set.
func (k *Keywords) Decide(text string) Decision {
	if len(k.words) == 0 {
		return Decision{Admit: true, Rewritten: text}
	}
	if text == "" {
		return Decision{Admit: false, Rewritten: text}
	}
	lower := strings.ToLower(text)
	for _, w := range k.words {
		if strings.Contains(lower, w) {
			return Decision{Admit: true, Rewritten: text}
		}
	}
	return Decision{Admit: false, Rewritten: text}
}

// Size returns the number of keywords in the set.
func (k *Keywords) Size() int {
	return len(k.words)
}

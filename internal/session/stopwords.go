package session

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// defaultStopSimilarity is the Jaro-Winkler score a transcript token must
// reach against a configured stop word to count as a match. Transcripts come
// from the backend's streaming recogniser, so exact spelling cannot be
// assumed ("stop" may arrive as "stopp" or "stop.").
const defaultStopSimilarity = 0.88

// StopWordFilter matches partial-transcript deltas against the configured
// stop words using fuzzy string similarity. A match cancels the in-flight
// exchange.
//
// The filter is read-only after construction and safe for concurrent use.
type StopWordFilter struct {
	words      []string
	similarity float64
}

// NewStopWordFilter builds a filter for words. Empty and duplicate entries
// are dropped; matching is case-insensitive.
func NewStopWordFilter(words []string) *StopWordFilter {
	seen := make(map[string]struct{}, len(words))
	cleaned := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		cleaned = append(cleaned, w)
	}
	return &StopWordFilter{
		words:      cleaned,
		similarity: defaultStopSimilarity,
	}
}

// Empty reports whether no stop words are configured.
func (f *StopWordFilter) Empty() bool {
	return len(f.words) == 0
}

// Match reports whether any token of text fuzzily matches a stop word, and
// which word matched.
func (f *StopWordFilter) Match(text string) (string, bool) {
	if len(f.words) == 0 {
		return "", false
	}
	tokens := strings.Fields(strings.ToLower(text))
	for _, tok := range tokens {
		tok = strings.Trim(tok, ".,!?;:")
		if tok == "" {
			continue
		}
		for _, w := range f.words {
			if tok == w {
				return w, true
			}
			if matchr.JaroWinkler(tok, w, true) >= f.similarity {
				return w, true
			}
		}
	}
	return "", false
}

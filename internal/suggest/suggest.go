// Package suggest ranks known voice-type editor IDs by similarity to an
// identifier that failed to resolve, so that typos in a mapping can be
// reported as "did you mean" hints.
//
// Editor IDs are tokenised on underscores, digits and camel-case boundaries
// ("VOT_MaleCommoner01" → vot, male, commoner). Ranking proceeds in two
// stages:
//
//  1. Phonetic filtering: Double Metaphone codes of the input tokens are
//     compared to those of each known ID. Any shared code makes the ID a
//     phonetic candidate, accepted at the phonetic threshold.
//
//  2. Jaro-Winkler fallback: IDs without phonetic overlap are accepted only
//     above the (higher) fuzzy threshold.
//
// Phonetic candidates always rank ahead of fuzzy ones.
package suggest

import (
	"cmp"
	"slices"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
	defaultLimit             = 3
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically-matched ID. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for an ID without
// phonetic overlap. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// WithLimit caps the number of suggestions returned. Default: 3.
func WithLimit(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.limit = n
		}
	}
}

// Matcher ranks candidate identifiers. It is read-only after construction
// and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	limit             int
}

// New returns a [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
		limit:             defaultLimit,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Suggestion is one ranked candidate.
type Suggestion struct {
	ID       string
	Score    float64
	Phonetic bool
}

// Suggest returns up to the configured limit of IDs from known that resemble
// id, best first. Exact case-insensitive matches are excluded since they would
// have resolved. Returns nil when nothing passes the thresholds.
func (m *Matcher) Suggest(id string, known []string) []Suggestion {
	idLower := strings.ToLower(strings.TrimSpace(id))
	if idLower == "" || len(known) == 0 {
		return nil
	}
	idTokens := Tokenize(id)
	idCodes := codesForTokens(idTokens)

	var out []Suggestion
	seen := make(map[string]struct{}, len(known))
	for _, k := range known {
		kLower := strings.ToLower(strings.TrimSpace(k))
		if kLower == "" || kLower == idLower {
			continue
		}
		if _, dup := seen[kLower]; dup {
			continue
		}
		seen[kLower] = struct{}{}

		kTokens := Tokenize(k)
		score := bestJWScore(idTokens, kTokens, idLower, kLower)
		if codesOverlap(idCodes, codesForTokens(kTokens)) {
			if score >= m.phoneticThreshold {
				out = append(out, Suggestion{ID: k, Score: score, Phonetic: true})
			}
		} else if score >= m.fuzzyThreshold {
			out = append(out, Suggestion{ID: k, Score: score})
		}
	}

	slices.SortStableFunc(out, func(a, b Suggestion) int {
		if a.Phonetic != b.Phonetic {
			if a.Phonetic {
				return -1
			}
			return 1
		}
		return cmp.Compare(b.Score, a.Score)
	})
	if len(out) > m.limit {
		out = out[:m.limit]
	}
	return out
}

// IDs is a convenience wrapper returning only the suggested identifiers.
func (m *Matcher) IDs(id string, known []string) []string {
	sugg := m.Suggest(id, known)
	if len(sugg) == 0 {
		return nil
	}
	ids := make([]string, len(sugg))
	for i, s := range sugg {
		ids[i] = s.ID
	}
	return ids
}

// Tokenize splits an editor ID into lower-case word tokens.
func Tokenize(id string) []string {
	var tokens []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	runes := []rune(id)
	for i, r := range runes {
		switch {
		case !unicode.IsLetter(r):
			flush()
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return tokens
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore is the higher Jaro-Winkler similarity of the full strings and
// the token-joined strings. Single tokens are not compared pairwise; shared
// prefixes such as "vot" would otherwise match everything.
func bestJWScore(inputTokens, knownTokens []string, inputFull, knownFull string) float64 {
	score := matchr.JaroWinkler(inputFull, knownFull, false)

	if len(inputTokens) > 0 && len(knownTokens) > 0 {
		if s := matchr.JaroWinkler(strings.Join(inputTokens, ""), strings.Join(knownTokens, ""), false); s > score {
			score = s
		}
	}
	return score
}

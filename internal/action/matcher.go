package action

import "strings"

// Matcher resolves a raw action tag to a registered action. It is a
// strategy: the fuzzy policy can be swapped for exact-only matching
// without touching the dispatcher.
type Matcher interface {
	Match(tag string, actions []*Action) *Action
}

// normalize makes matching case- and separator-insensitive.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func names(a *Action) []string {
	return append([]string{a.Name}, a.AlternateTriggers...)
}

// ExactMatcher accepts only an exact normalized name or trigger match.
type ExactMatcher struct{}

func (ExactMatcher) Match(tag string, actions []*Action) *Action {
	norm := normalize(tag)
	if norm == "" {
		return nil
	}
	for _, a := range actions {
		for _, name := range names(a) {
			if normalize(name) == norm {
				return a
			}
		}
	}
	return nil
}

// FuzzyMatcher tries an exact match first, then falls back to substring
// containment in both directions, so partial or paraphrased tags from
// generation still resolve. First match in registration order wins, which
// keeps ambiguity deterministic.
type FuzzyMatcher struct{}

func (FuzzyMatcher) Match(tag string, actions []*Action) *Action {
	if a := (ExactMatcher{}).Match(tag, actions); a != nil {
		return a
	}
	norm := normalize(tag)
	if norm == "" {
		return nil
	}
	for _, a := range actions {
		for _, name := range names(a) {
			n := normalize(name)
			if n == "" {
				continue
			}
			if strings.Contains(norm, n) || strings.Contains(n, norm) {
				return a
			}
		}
	}
	return nil
}

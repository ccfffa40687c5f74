package retrieval

import (
	"math/rand"
	"sync"
)

// Session tracks which fragments a conversation has already been shown, so
// sampling can rotate through the knowledge base instead of repeating the
// same passages for every semantically similar query.
type Session struct {
	mu   sync.Mutex
	seen map[string]bool
	rng  *rand.Rand
}

// NewSession creates a Session. A nil rng falls back to the global source.
func NewSession(rng *rand.Rand) *Session {
	return &Session{seen: make(map[string]bool), rng: rng}
}

func (s *Session) intn(n int) int {
	if s.rng != nil {
		return s.rng.Intn(n)
	}
	return rand.Intn(n)
}

// sample picks up to n fragments, preferring ones this session has not seen.
// Once every candidate has been seen the seen-set resets and rotation starts
// over. Picked fragments are marked seen.
func (s *Session) sample(frags []Fragment, n int) []Fragment {
	if n <= 0 || len(frags) <= n {
		s.markAll(frags)
		return frags
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var unseen, rest []Fragment
	for _, f := range frags {
		if s.seen[f.Record.ID] {
			rest = append(rest, f)
		} else {
			unseen = append(unseen, f)
		}
	}

	if len(unseen) == 0 {
		// Everything has been shown; start the rotation over.
		s.seen = make(map[string]bool)
		unseen = frags
		rest = nil
	}

	picked := pickRandom(unseen, n, s.intn)
	if len(picked) < n {
		picked = append(picked, pickRandom(rest, n-len(picked), s.intn)...)
	}
	for _, f := range picked {
		s.seen[f.Record.ID] = true
	}
	return picked
}

func (s *Session) markAll(frags []Fragment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range frags {
		s.seen[f.Record.ID] = true
	}
}

// pickRandom draws up to n elements without replacement.
func pickRandom(frags []Fragment, n int, intn func(int) int) []Fragment {
	if len(frags) <= n {
		return frags
	}
	pool := make([]Fragment, len(frags))
	copy(pool, frags)
	out := make([]Fragment, 0, n)
	for len(out) < n {
		i := intn(len(pool))
		out = append(out, pool[i])
		pool = append(pool[:i], pool[i+1:]...)
	}
	return out
}

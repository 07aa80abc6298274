package retrieval

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/kavora-ai/replygen/pkg/learning"
	"github.com/kavora-ai/replygen/pkg/store"
)

// ASASelector draws exactly one reactivation example uniformly at random,
// never repeating the previous pick for the same persona back-to-back. The
// last-pick memory is a per-persona map threaded through the component
// boundary, not a module global; it keeps one entry per persona seen and
// never evicts entries.
type ASASelector struct {
	// GreetingBadRatio filters examples opening with a greeting whose bad
	// share crosses the threshold (generalized from the single hardcoded
	// "huhu" filter of the source system; "huhu" behaves identically).
	GreetingBadRatio float64

	mu       sync.Mutex
	lastPick map[string]string // persona id -> md5-prefix of last selection
	rng      *rand.Rand
}

// NewASASelector builds the selector with its own RNG; tests inject a seeded
// source via SetSeed.
func NewASASelector(greetingBadRatio float64) *ASASelector {
	return &ASASelector{
		GreetingBadRatio: greetingBadRatio,
		lastPick:         make(map[string]string),
		rng:              rand.New(rand.NewSource(rand.Int63())),
	}
}

// SetSeed replaces the RNG source, for deterministic tests.
func (s *ASASelector) SetSeed(seed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng = rand.New(rand.NewSource(seed))
}

// Select draws one ASA example. The pool is first filtered by the greeting
// rule; an empty filtered pool falls back to the unfiltered one.
func (s *ASASelector) Select(personaID string, pool []store.Example, stats *learning.Stats) (store.Example, error) {
	if len(pool) == 0 {
		return store.Example{}, fmt.Errorf("asa example pool is empty")
	}

	filtered := s.filterGreetings(pool, stats)
	if len(filtered) == 0 {
		filtered = pool
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	last := s.lastPick[personaID]
	for attempt := 0; ; attempt++ {
		pick := filtered[s.rng.Intn(len(filtered))]
		signature := Signature(pick.Response())
		if signature != last || len(filtered) == 1 {
			s.lastPick[personaID] = signature
			return pick, nil
		}
		if attempt > 50 {
			// degenerate pool: all remaining picks equal the last one
			s.lastPick[personaID] = signature
			return pick, nil
		}
	}
}

// filterGreetings drops examples whose response opens with a greeting token
// the learning stats dislike.
func (s *ASASelector) filterGreetings(pool []store.Example, stats *learning.Stats) []store.Example {
	threshold := s.GreetingBadRatio
	if threshold <= 0 {
		threshold = 0.5
	}

	var out []store.Example
	for _, example := range pool {
		words := strings.Fields(strings.ToLower(example.Response()))
		if len(words) == 0 {
			continue
		}
		greeting := strings.Trim(words[0], ",.!? ")
		score := stats.GreetingScore(greeting)
		if score.Good+score.Bad > 0 && score.Bad > score.Good &&
			float64(score.Bad)/float64(score.Good+score.Bad) >= threshold {
			continue
		}
		out = append(out, example)
	}
	return out
}

// Signature is the first 16 hex characters of the MD5 of the text; two
// consecutive ASA replies must never share it.
func Signature(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}

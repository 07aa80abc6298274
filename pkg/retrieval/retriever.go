package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kavora-ai/replygen/pkg/agents"
	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/learning"
	"github.com/kavora-ai/replygen/pkg/store"
)

// Search parameters of the two retrieval shapes.
const (
	meetingFilteredTopK   = 25
	meetingUnfilteredTopK = 15
	defaultTopK           = 40
	defaultMinSimilarity  = 0.25
	selectionSize         = 15

	// fallback-mode thresholds
	fallbackSemanticThreshold = 0.60
	fallbackIntelThreshold    = 0.50
	fallbackMinBlockChars     = 500
)

// Weights blends the three hybrid-score components.
type Weights struct {
	Semantic float64
	Feedback float64
	Context  float64
}

// Params steers one retrieval run.
type Params struct {
	Topic           string
	KeyPoints       []string
	CustomerMessage string
	Situations      []string
	IsFirstMessage  bool

	// RichThreshold / PoorThreshold drive the adaptive weighting; they are
	// configuration, not constants (spec open question kept as-is).
	RichThreshold float64
	PoorThreshold float64
}

// Scored is a candidate with its component scores.
type Scored struct {
	Example          store.Example
	Semantic         float64
	Feedback         float64
	FeedbackWeighted bool
	Context          float64
	Hybrid           float64
}

// Result of a retrieval run.
type Result struct {
	Examples []Scored
	Weights  Weights

	// FallbackMode marks insufficient training-data similarity; prompt
	// composition then asks for a simple natural reply.
	FallbackMode bool
}

// Retriever runs search and hybrid re-ranking.
type Retriever struct {
	Search   capability.VectorSearch
	Stats    *learning.Stats
	Feedback *store.FeedbackData
}

// Retrieve searches and re-ranks candidates for the request.
func (r *Retriever) Retrieve(ctx context.Context, params Params) (Result, error) {
	query := BuildQuery(params.Topic, params.KeyPoints, params.CustomerMessage, params.Situations)

	candidates, err := r.search(ctx, query, params.Situations)
	if err != nil {
		return Result{}, err
	}

	scored := r.rank(candidates, params)

	if len(scored) > selectionSize {
		scored = scored[:selectionSize]
	}

	result := Result{Examples: scored, Weights: r.adaptiveWeights(candidates, params)}
	result.FallbackMode = r.fallbackMode(scored, params)
	return result, nil
}

func (r *Retriever) search(ctx context.Context, query string, situations []string) ([]capability.ScoredExample, error) {
	if hasSituation(situations, agents.SituationMeeting) {
		// Meeting queries issue two parallel searches, concatenated
		// meeting-first.
		var filtered, unfiltered []capability.ScoredExample
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			filtered, err = r.Search.Search(gctx, query, capability.SearchOptions{
				TopK:      meetingFilteredTopK,
				Situation: agents.SituationMeeting,
			})
			return err
		})
		g.Go(func() error {
			var err error
			unfiltered, err = r.Search.Search(gctx, query, capability.SearchOptions{
				TopK: meetingUnfilteredTopK,
			})
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("meeting retrieval failed: %w", err)
		}
		return dedupe(append(filtered, unfiltered...)), nil
	}

	hits, err := r.Search.Search(ctx, query, capability.SearchOptions{
		TopK:          defaultTopK,
		MinSimilarity: defaultMinSimilarity,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	return hits, nil
}

// rank computes the three components per candidate and sorts by the hybrid
// score.
func (r *Retriever) rank(candidates []capability.ScoredExample, params Params) []Scored {
	weights := r.adaptiveWeights(candidates, params)
	situation := primarySituation(params.Situations)

	scored := make([]Scored, 0, len(candidates))
	for _, candidate := range candidates {
		s := Scored{
			Example:  candidate.Example,
			Semantic: clamp01(candidate.Similarity),
		}
		s.Feedback, s.FeedbackWeighted = r.feedbackScore(candidate.Example, situation)
		s.Context = r.contextScore(candidate.Example, params, situation)
		s.Hybrid = weights.Semantic*s.Semantic + weights.Feedback*s.Feedback + weights.Context*s.Context
		scored = append(scored, s)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Hybrid > scored[j].Hybrid
	})
	return scored
}

// feedbackScore maps example performance into [0,1]: the raw signal is
// success_rate*2-1 (kept from the source system), normalized back and
// discounted when only the general bucket or the legacy log matches.
func (r *Retriever) feedbackScore(example store.Example, situation string) (float64, bool) {
	perf, weight, ok := r.Stats.PerfLookup(example.ID, situation)
	if ok {
		raw := perf.SuccessRate*2 - 1
		normalized := (raw + 1) / 2
		return clamp01(normalized * weight), true
	}

	// Legacy per-example feedback log, last resort at a 0.5 discount.
	if r.Feedback != nil && example.ID != "" {
		good, bad := 0, 0
		for _, fb := range r.Feedback.Feedbacks {
			if fb.ExampleID != example.ID {
				continue
			}
			if fb.Label == store.FeedbackGood {
				good++
			} else {
				bad++
			}
		}
		if good+bad > 0 {
			rate := float64(good) / float64(good+bad)
			return clamp01(rate * 0.5), true
		}
	}

	return 0.5, false
}

// contextScore starts at the 0.5 baseline and adds situation, topic and
// message-pattern evidence.
func (r *Retriever) contextScore(example store.Example, params Params, situation string) float64 {
	score := 0.5

	if situation != "" && example.Situation == situation {
		score += 0.3
		if perf, _, ok := r.Stats.PerfLookup(example.ID, situation); ok {
			score += perf.SuccessRate * 0.2
		}
	}

	if params.Topic != "" && strings.Contains(strings.ToLower(example.CustomerMessage), strings.ToLower(params.Topic)) {
		score += 0.15
	}

	score += r.messagePatternBonus(example, params.CustomerMessage)

	return clamp01(score)
}

// messagePatternBonus grants up to 0.1 for feedback on customer messages
// lexically similar to the current one.
func (r *Retriever) messagePatternBonus(example store.Example, customerMessage string) float64 {
	if r.Feedback == nil || customerMessage == "" {
		return 0
	}
	currentWords := wordSet(customerMessage)
	if len(currentWords) == 0 {
		return 0
	}

	best := 0.0
	for _, fb := range r.Feedback.Feedbacks {
		if fb.Label != store.FeedbackGood || fb.CustomerMessage == "" {
			continue
		}
		overlap := overlapRatio(currentWords, wordSet(fb.CustomerMessage))
		if overlap < 0.5 {
			continue
		}
		if !strings.EqualFold(fb.Response, example.Response()) &&
			!strings.Contains(strings.ToLower(fb.Response), strings.ToLower(firstWords(example.Response(), 5))) {
			continue
		}
		if bonus := overlap * 0.1; bonus > best {
			best = bonus
		}
	}
	return best
}

// adaptiveWeights picks the blend by the share of candidates with good
// feedback signal.
func (r *Retriever) adaptiveWeights(candidates []capability.ScoredExample, params Params) Weights {
	withFeedback, good := 0, 0
	situation := primarySituation(params.Situations)
	for _, candidate := range candidates {
		perf, _, ok := r.Stats.PerfLookup(candidate.Example.ID, situation)
		if !ok {
			continue
		}
		withFeedback++
		if perf.SuccessRate > 0.5 {
			good++
		}
	}

	rich := params.RichThreshold
	if rich == 0 {
		rich = 0.6
	}
	poor := params.PoorThreshold
	if poor == 0 {
		poor = 0.3
	}

	if withFeedback == 0 {
		return Weights{Semantic: 0.5, Feedback: 0.3, Context: 0.2}
	}
	goodRatio := float64(good) / float64(withFeedback)
	switch {
	case goodRatio > rich:
		return Weights{Semantic: 0.3, Feedback: 0.5, Context: 0.2}
	case goodRatio < poor:
		return Weights{Semantic: 0.5, Feedback: 0.3, Context: 0.2}
	default:
		return Weights{Semantic: 0.4, Feedback: 0.4, Context: 0.2}
	}
}

// fallbackMode decides whether the prompt should drop the imitative framing.
func (r *Retriever) fallbackMode(scored []Scored, params Params) bool {
	if params.IsFirstMessage {
		return false
	}
	bestSemantic := 0.0
	blockSize := 0
	for _, s := range scored {
		if s.Semantic > bestSemantic {
			bestSemantic = s.Semantic
		}
		blockSize += len(s.Example.CustomerMessage) + len(s.Example.Response())
	}
	if bestSemantic >= fallbackSemanticThreshold {
		return false
	}
	if blockSize >= fallbackMinBlockChars {
		return false
	}
	slog.Info("Retrieval entering fallback mode",
		"best_semantic", bestSemantic, "block_size", blockSize)
	return true
}

// IntelBlocksFallback reports whether the example-intelligence similarity is
// high enough to veto fallback mode.
func IntelBlocksFallback(bestIntelSimilarity float64) bool {
	return bestIntelSimilarity >= fallbackIntelThreshold
}

func primarySituation(situations []string) string {
	if len(situations) == 0 {
		return learning.GeneralSituation
	}
	return situations[0]
}

func dedupe(hits []capability.ScoredExample) []capability.ScoredExample {
	seen := map[string]bool{}
	out := hits[:0]
	for _, hit := range hits {
		key := hit.Example.ID
		if key == "" {
			key = hit.Example.CustomerMessage
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, hit)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func wordSet(text string) map[string]bool {
	set := map[string]bool{}
	for _, w := range learning.Tokenize(text) {
		if len(w) >= 3 {
			set[w] = true
		}
	}
	return set
}

func overlapRatio(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	matches := 0
	for w := range a {
		if b[w] {
			matches++
		}
	}
	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}
	return float64(matches) / float64(smaller)
}

func firstWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

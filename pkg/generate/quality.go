package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/learning"
	"github.com/kavora-ai/replygen/pkg/llms"
	"github.com/kavora-ai/replygen/pkg/store"
	"github.com/kavora-ai/replygen/pkg/utils"
)

// semanticThreshold is the minimum semantic sub-score (of 25) a candidate
// must reach.
const semanticThreshold = 12.5

// QualityDetails breaks the quality score into its sub-scores, each 0-25.
type QualityDetails struct {
	TrainingDataUsage   float64 `json:"training_data_usage"`
	ContextUsage        float64 `json:"context_usage"`
	RulesCompliance     float64 `json:"rules_compliance"`
	LearningSystemUsage float64 `json:"learning_system_usage"`
	SemanticValidation  float64 `json:"semantic_validation"`
	MLScore             float64 `json:"ml_score,omitempty"`
	MLConfidence        float64 `json:"ml_confidence,omitempty"`
}

// Total sums the sub-scores, capped into [0,100].
func (d QualityDetails) Total() float64 {
	total := d.TrainingDataUsage + d.ContextUsage + d.RulesCompliance + d.LearningSystemUsage + d.SemanticValidation
	if total > 100 {
		total = 100
	}
	return total
}

// MLQualityScorer is the optional learned quality model.
type MLQualityScorer interface {
	Score(ctx context.Context, candidate, customerMessage, history string) (score, confidence float64, err error)
}

// QualityScorer computes the heuristic quality metrics.
type QualityScorer struct {
	LLM      capability.LLM
	Model    string
	Embedder capability.Embedder
	Stats    *learning.Stats
	Rules    *store.Rules
	ML       MLQualityScorer
	MLWeight float64
}

// Score computes the quality details for one candidate. The semantic
// sub-score comes from a short LLM check.
func (q *QualityScorer) Score(ctx context.Context, candidate string, params Params, cache *ScoringCache) QualityDetails {
	details := QualityDetails{
		TrainingDataUsage:   q.trainingUsage(ctx, candidate, cache),
		ContextUsage:        q.contextUsage(candidate, params),
		RulesCompliance:     q.rulesCompliance(candidate),
		LearningSystemUsage: q.learningUsage(candidate, params.Situations),
	}
	details.SemanticValidation = q.semanticCheck(ctx, candidate, params, false)
	return details
}

// trainingUsage measures similarity against the cached example vectors.
func (q *QualityScorer) trainingUsage(ctx context.Context, candidate string, cache *ScoringCache) float64 {
	if cache == nil || len(cache.ExampleVectors) == 0 || q.Embedder == nil {
		return 12.5
	}
	vector, err := q.Embedder.Embed(ctx, candidate)
	if err != nil {
		return 12.5
	}
	best := 0.0
	for _, ref := range cache.ExampleVectors {
		if sim := utils.CosineSimilarity(vector, ref); sim > best {
			best = sim
		}
	}
	return best * 25
}

// contextUsage measures lexical anchoring in the current turn.
func (q *QualityScorer) contextUsage(candidate string, params Params) float64 {
	if params.CustomerMessage == "" {
		return 12.5
	}
	candidateWords := map[string]bool{}
	for _, w := range learning.Tokenize(candidate) {
		if len(w) >= 4 {
			candidateWords[w] = true
		}
	}
	messageWords := 0
	matched := 0
	for _, w := range learning.Tokenize(params.CustomerMessage) {
		if len(w) < 4 {
			continue
		}
		messageWords++
		if candidateWords[w] {
			matched++
		}
	}
	if messageWords == 0 {
		return 12.5
	}
	ratio := float64(matched) / float64(messageWords)
	// full lexical overlap would be paraphrasing; the sweet spot is partial
	if ratio > 0.6 {
		ratio = 0.6
	}
	return 25 * ratio / 0.6
}

// rulesCompliance checks the hard lexical rules.
func (q *QualityScorer) rulesCompliance(candidate string) float64 {
	score := 25.0
	lower := strings.ToLower(candidate)
	if q.Rules != nil {
		for _, word := range q.Rules.ForbiddenWords {
			if word != "" && strings.Contains(lower, strings.ToLower(word)) {
				score -= 10
			}
		}
	}
	if strings.Contains(candidate, "!") {
		score -= 5
	}
	if strings.Contains(candidate, "ß") {
		score -= 3
	}
	if !strings.Contains(candidate, "?") {
		score -= 5
	}
	if score < 0 {
		score = 0
	}
	return score
}

// learningUsage rewards good words and penalizes avoid words.
func (q *QualityScorer) learningUsage(candidate string, situations []string) float64 {
	if q.Stats.Empty() {
		return 12.5
	}
	situation := learning.GeneralSituation
	if len(situations) > 0 {
		situation = situations[0]
	}
	lower := strings.ToLower(candidate)
	score := 12.5
	for _, word := range q.Stats.TopWords(situation, 5) {
		if strings.Contains(lower, word) {
			score += 2.5
		}
	}
	for _, word := range q.Stats.AvoidWords(situation, 5) {
		if strings.Contains(lower, word) {
			score -= 4
		}
	}
	if score < 0 {
		score = 0
	}
	if score > 25 {
		score = 25
	}
	return score
}

// semanticCheck asks the LLM whether the candidate fits the conversation.
// The full variant adds the five-question battery used for the winning
// candidate only.
func (q *QualityScorer) semanticCheck(ctx context.Context, candidate string, params Params, full bool) float64 {
	system := `Du prüfst, ob eine Chat-Antwort zur Unterhaltung passt.
Bewerte 0-25. Antworte als JSON: {"score": 0-25, "reason": "..."}`
	if full {
		system = `Du prüfst eine Chat-Antwort gegen die Unterhaltung anhand von fünf Fragen:
1. Ist die Antwort relevant für die letzte Kundennachricht?
2. Ist sie der Situation angemessen?
3. Ist sie logisch konsistent mit dem Verlauf?
4. Stimmen die Pronomen-Bezüge?
5. Enthält sie eine Frage, wenn der Kunde eine gestellt hat?
Bewerte insgesamt 0-25. Antworte als JSON: {"score": 0-25, "reason": "..."}`
	}

	user := fmt.Sprintf("Verlauf:\n%s\n\nKundennachricht: %q\n\nAntwort-Kandidat: %q",
		params.History, params.CustomerMessage, candidate)

	raw, err := q.LLM.CompleteJSON(ctx, capability.CompletionRequest{
		Model:       q.Model,
		System:      system,
		User:        user,
		Temperature: 0,
		MaxTokens:   150,
		JSONMode:    true,
	})
	if err != nil {
		return semanticThreshold // neutral: a scorer outage must not veto all candidates
	}
	var parsed struct {
		Score float64 `json:"score"`
	}
	if err := llms.Decode(raw, &parsed); err != nil {
		return semanticThreshold
	}
	if parsed.Score < 0 {
		return 0
	}
	if parsed.Score > 25 {
		return 25
	}
	return parsed.Score
}

// blend combines the heuristic total with the ML score when the ML model is
// confident enough.
func (q *QualityScorer) blend(ctx context.Context, details *QualityDetails, candidate string, params Params) float64 {
	old := details.Total()
	if q.ML == nil {
		return old
	}
	score, confidence, err := q.ML.Score(ctx, candidate, params.CustomerMessage, params.History)
	if err != nil || confidence < 0.5 {
		return old
	}
	details.MLScore = score
	details.MLConfidence = confidence
	weight := q.MLWeight
	if weight <= 0 || weight > 1 {
		weight = 0.5
	}
	return (1-weight)*old + weight*score
}

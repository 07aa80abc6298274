package generate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/learning"
	"github.com/kavora-ai/replygen/pkg/postprocess"
	"github.com/kavora-ai/replygen/pkg/retrieval"
	"github.com/kavora-ai/replygen/pkg/style"
	"github.com/kavora-ai/replygen/pkg/utils"
)

// candidateTemperatures of the parallel fan-out.
var candidateTemperatures = []float64{0.3, 0.5, 0.7}

// minCandidateLength drops degenerate generations before scoring.
const minCandidateLength = 100

// Params is one generation run.
type Params struct {
	System          string
	User            string
	Model           string
	CustomerMessage string
	History         string
	Situations      []string
	Sexual          bool
	FallbackMode    bool
	Examples        []retrieval.Scored
	StyleReference  style.Features
	MaxTokens       int
}

// Candidate is one scored generation.
type Candidate struct {
	Text          string
	Temperature   float64
	StyleScore    float64
	LearningScore float64
	Quality       QualityDetails
	QualityScore  float64
	Combined      float64
}

// Result is the selected reply.
type Result struct {
	Message        string
	QualityScore   int
	QualityDetails QualityDetails
	Candidates     int
	Retried        bool
}

// Generator runs the multi-candidate fan-out with scoring, degrading to a
// single generation when learning data is absent or fallback mode is active.
type Generator struct {
	LLM      capability.LLM
	Scorer   *QualityScorer
	Embedder capability.Embedder
	Stats    *learning.Stats

	PostOptions postprocess.Options
}

// Generate produces the best candidate.
func (g *Generator) Generate(ctx context.Context, params Params) (Result, error) {
	if g.Stats.Empty() || params.FallbackMode {
		return g.generateSingle(ctx, params)
	}
	return g.generateMulti(ctx, params)
}

// generateSingle is the degradation path: one generation at 0.7 with a
// simple quality score.
func (g *Generator) generateSingle(ctx context.Context, params Params) (Result, error) {
	text, err := g.complete(ctx, params, 0.7, "")
	if err != nil {
		return Result{}, err
	}
	processed := postprocess.Process(text, g.postOptions(params))
	if !processed.Success {
		return Result{}, fmt.Errorf("generation produced no usable reply")
	}

	details := QualityDetails{
		RulesCompliance:    g.Scorer.rulesCompliance(processed.Text),
		ContextUsage:       g.Scorer.contextUsage(processed.Text, params),
		SemanticValidation: semanticThreshold,
	}
	return Result{
		Message:        processed.Text,
		QualityScore:   int(details.Total()),
		QualityDetails: details,
		Candidates:     1,
	}, nil
}

// generateMulti fans out three temperatures, scores the survivors in
// parallel and picks the best combined score. The scoring cache is built
// once, after the generation fan-out and before the scoring fan-out.
func (g *Generator) generateMulti(ctx context.Context, params Params) (Result, error) {
	candidates, err := g.fanOut(ctx, params, "")
	if err != nil {
		return Result{}, err
	}
	if len(candidates) == 0 {
		return g.generateSingle(ctx, params)
	}

	cache := BuildScoringCache(ctx, g.Embedder, params.Examples, g.Stats, params.Situations)
	g.scoreAll(ctx, candidates, params, cache)

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Combined > candidates[j].Combined
	})
	best := candidates[0]
	retried := false

	// Hard semantic filter with one targeted retry.
	if !g.anyPassesSemantic(candidates) {
		slog.Info("No candidate passed semantic validation, retrying with context hint")
		retry, err := g.retryWithHint(ctx, params, cache,
			"\n\nWICHTIG: Deine vorherige Antwort hat den Kontext missverstanden. Analysiere die GESAMTE Unterhaltung und beziehe dich präzise auf die letzte Kundennachricht.")
		if err == nil && retry != nil && retry.Quality.SemanticValidation >= semanticThreshold {
			best = retry
			retried = true
		}
	}

	// Final full semantic validation for the winner only. This retry fires
	// on its own verdict, independent of the earlier filter retry.
	finalSemantic := g.Scorer.semanticCheck(ctx, best.Text, params, true)
	best.Quality.SemanticValidation = finalSemantic
	if finalSemantic < semanticThreshold {
		slog.Info("Winner failed final semantic validation, retrying with rewrite hint")
		retry, err := g.retryWithHint(ctx, params, cache,
			"\n\nWICHTIG: Formuliere die Antwort neu und erhalte dabei den Gesprächskontext exakt. Gehe Punkt für Punkt auf die letzte Kundennachricht ein.")
		if err == nil && retry != nil && retry.Quality.SemanticValidation >= semanticThreshold {
			best = retry
			retried = true
		}
	}

	return Result{
		Message:        best.Text,
		QualityScore:   int(best.QualityScore),
		QualityDetails: best.Quality,
		Candidates:     len(candidates),
		Retried:        retried,
	}, nil
}

func (g *Generator) fanOut(ctx context.Context, params Params, suffix string) ([]*Candidate, error) {
	results := make([]*Candidate, len(candidateTemperatures))
	eg, gctx := errgroup.WithContext(ctx)
	for i, temperature := range candidateTemperatures {
		eg.Go(func() error {
			text, err := g.complete(gctx, params, temperature, suffix)
			if err != nil {
				slog.Warn("Candidate generation failed", "temperature", temperature, "error", err)
				return nil // one failed candidate must not sink the others
			}
			processed := postprocess.Process(text, g.postOptions(params))
			if !processed.Success || len([]rune(processed.Text)) < minCandidateLength {
				return nil
			}
			results[i] = &Candidate{Text: processed.Text, Temperature: temperature}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var candidates []*Candidate
	for _, c := range results {
		if c != nil {
			candidates = append(candidates, c)
		}
	}
	return candidates, nil
}

// scoreAll computes the three scores per candidate concurrently, sharing the
// pre-built cache.
func (g *Generator) scoreAll(ctx context.Context, candidates []*Candidate, params Params, cache *ScoringCache) {
	eg, gctx := errgroup.WithContext(ctx)
	for _, candidate := range candidates {
		eg.Go(func() error {
			candidate.StyleScore = g.styleScore(candidate.Text, params, cache)
			candidate.LearningScore = g.learningScore(gctx, candidate.Text, cache)
			candidate.Quality = g.Scorer.Score(gctx, candidate.Text, params, cache)
			candidate.QualityScore = g.Scorer.blend(gctx, &candidate.Quality, candidate.Text, params)
			candidate.Combined = 0.4*candidate.StyleScore + 0.4*candidate.LearningScore + 0.2*candidate.QualityScore
			return nil
		})
	}
	_ = eg.Wait()
}

// styleScore compares against the moderator style when available, otherwise
// against the training examples' style.
func (g *Generator) styleScore(text string, params Params, cache *ScoringCache) float64 {
	reference := params.StyleReference
	if reference.MeanSentenceLength == 0 && cache != nil {
		reference = cache.ExampleStyle
	}
	if reference.MeanSentenceLength == 0 {
		return 50
	}
	return style.Compare(reference, style.Extract([]string{text}))
}

// learningScore measures similarity to the cached good patterns, weighted by
// pattern confidence, in [0,100].
func (g *Generator) learningScore(ctx context.Context, text string, cache *ScoringCache) float64 {
	if cache == nil || len(cache.PatternVectors) == 0 || g.Embedder == nil {
		return 50
	}
	vector, err := g.Embedder.Embed(ctx, text)
	if err != nil {
		return 50
	}
	best := 0.0
	for i, ref := range cache.PatternVectors {
		sim := utils.CosineSimilarity(vector, ref)
		confidence := 1.0
		if i < len(cache.PatternConfidences) {
			confidence = cache.PatternConfidences[i]
		}
		if weighted := sim * confidence; weighted > best {
			best = weighted
		}
	}
	return best * 100
}

func (g *Generator) anyPassesSemantic(candidates []*Candidate) bool {
	for _, c := range candidates {
		if c.Quality.SemanticValidation >= semanticThreshold {
			return true
		}
	}
	return false
}

func (g *Generator) retryWithHint(ctx context.Context, params Params, cache *ScoringCache, hint string) (*Candidate, error) {
	text, err := g.complete(ctx, params, 0.5, hint)
	if err != nil {
		return nil, err
	}
	processed := postprocess.Process(text, g.postOptions(params))
	if !processed.Success {
		return nil, fmt.Errorf("retry produced no usable reply")
	}
	candidate := &Candidate{Text: processed.Text, Temperature: 0.5}
	candidate.StyleScore = g.styleScore(candidate.Text, params, cache)
	candidate.LearningScore = g.learningScore(ctx, candidate.Text, cache)
	candidate.Quality = g.Scorer.Score(ctx, candidate.Text, params, cache)
	candidate.QualityScore = g.Scorer.blend(ctx, &candidate.Quality, candidate.Text, params)
	candidate.Combined = 0.4*candidate.StyleScore + 0.4*candidate.LearningScore + 0.2*candidate.QualityScore
	return candidate, nil
}

func (g *Generator) complete(ctx context.Context, params Params, temperature float64, suffix string) (string, error) {
	maxTokens := params.MaxTokens
	if maxTokens == 0 {
		maxTokens = 400
	}
	text, err := g.LLM.Complete(ctx, capability.CompletionRequest{
		Model:       params.Model,
		System:      params.System,
		User:        params.User + suffix,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (g *Generator) postOptions(params Params) postprocess.Options {
	opts := g.PostOptions
	if opts.TargetQuestions == 0 {
		opts.TargetQuestions = g.Stats.TargetQuestions(params.Situations)
	}
	if opts.TargetSentences == 0 {
		opts.TargetSentences = g.Stats.TargetSentences(params.Situations)
	}
	if opts.TargetMaxLength == 0 {
		_, opts.TargetMaxLength = g.Stats.TargetLength(params.Situations)
	}
	opts.Sexual = params.Sexual
	return opts
}

// Package generate produces the reply candidates: a three-temperature
// parallel fan-out scored on style conformity, learning alignment and quality
// metrics, with a single-generation degradation path.
package generate

import (
	"context"
	"log/slog"

	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/learning"
	"github.com/kavora-ai/replygen/pkg/retrieval"
	"github.com/kavora-ai/replygen/pkg/style"
)

// ScoringCache holds the embeddings and style features shared by all
// candidate scorers. It is computed exactly once per request, before the
// scorer fan-out; recomputing it per candidate would triple the embedding
// calls.
type ScoringCache struct {
	ExampleVectors [][]float32
	ExampleTexts   []string

	PatternVectors     [][]float32
	PatternConfidences []float64

	ExampleStyle style.Features
}

// BuildScoringCache embeds the top-5 selected examples and the top-5 good
// response patterns, and extracts the reference style of the examples.
func BuildScoringCache(ctx context.Context, embedder capability.Embedder, examples []retrieval.Scored, stats *learning.Stats, situations []string) *ScoringCache {
	cache := &ScoringCache{}

	var exampleTexts []string
	for i, scored := range examples {
		if i >= 5 {
			break
		}
		exampleTexts = append(exampleTexts, scored.Example.Response())
	}
	cache.ExampleTexts = exampleTexts
	cache.ExampleStyle = style.Extract(exampleTexts)

	if embedder != nil && len(exampleTexts) > 0 {
		vectors, err := embedder.EmbedBatch(ctx, exampleTexts)
		if err != nil {
			slog.Warn("Failed to embed scoring examples", "error", err)
		} else {
			cache.ExampleVectors = vectors
		}
	}

	situation := learning.GeneralSituation
	if len(situations) > 0 {
		situation = situations[0]
	}
	patterns := stats.SuccessPatterns(situation, 5)
	if len(patterns) == 0 && situation != learning.GeneralSituation {
		patterns = stats.SuccessPatterns(learning.GeneralSituation, 5)
	}
	if embedder != nil && len(patterns) > 0 {
		texts := make([]string, len(patterns))
		for i, p := range patterns {
			texts[i] = p.GoodResponse
			cache.PatternConfidences = append(cache.PatternConfidences, p.SuccessRate())
		}
		vectors, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			slog.Warn("Failed to embed learning patterns", "error", err)
			cache.PatternConfidences = nil
		} else {
			cache.PatternVectors = vectors
		}
	}

	return cache
}

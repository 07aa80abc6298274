package agents

import (
	"context"

	"github.com/kavora-ai/replygen/pkg/blackboard"
	"github.com/kavora-ai/replygen/pkg/learning"
	"github.com/kavora-ai/replygen/pkg/store"
)

// DeepLearningResult carries the cached deep patterns, possibly empty.
type DeepLearningResult struct {
	Patterns []string
	Success  bool
}

// DeepLearningAgent reads the cached deep patterns. Stale or missing caches
// trigger a fire-and-forget background extraction; the request never waits.
type DeepLearningAgent struct {
	Extractor *learning.DeepExtractor
}

// Fallback is the empty context.
func (d *DeepLearningAgent) Fallback() DeepLearningResult {
	return DeepLearningResult{Success: false}
}

// Run reads the cache and schedules extraction when stale.
func (d *DeepLearningAgent) Run(ctx context.Context, feedback *store.FeedbackData, board *blackboard.Board) (DeepLearningResult, error) {
	result := DeepLearningResult{Success: true}
	if d.Extractor == nil {
		return result, nil
	}

	patterns := d.Extractor.EnsureFresh(feedback)
	if patterns != nil {
		result.Patterns = patterns.Patterns
	}

	if board != nil && len(result.Patterns) > 0 {
		board.Write(string(NameDeepLearning), result.Patterns, nil, result)
	}
	return result, nil
}

package agents

import (
	"context"
	"fmt"

	"github.com/kavora-ai/replygen/pkg/blackboard"
	"github.com/kavora-ai/replygen/pkg/learning"
)

// SituationLearning is the extracted learning signal for one situation.
type SituationLearning struct {
	Situation    string
	GoodWords    []string
	AvoidWords   []string
	GoodPatterns []learning.ResponsePattern
}

// LearningResult groups per-situation learning extracts.
type LearningResult struct {
	BySituation []SituationLearning
	Success     bool
}

// LearningIntegrator pulls the top words and patterns out of the learning
// statistics for each detected situation and publishes them.
type LearningIntegrator struct{}

// Fallback is the empty extract.
func (l *LearningIntegrator) Fallback() LearningResult {
	return LearningResult{Success: false}
}

// Run extracts up to 5 good words, 5 avoid words and 3 patterns per
// situation.
func (l *LearningIntegrator) Run(ctx context.Context, situations []string, stats *learning.Stats, board *blackboard.Board) (LearningResult, error) {
	result := LearningResult{Success: true}
	if stats.Empty() {
		return result, nil
	}

	targets := situations
	if len(targets) == 0 {
		targets = []string{learning.GeneralSituation}
	}

	for _, situation := range targets {
		entry := SituationLearning{
			Situation:    situation,
			GoodWords:    stats.TopWords(situation, 5),
			AvoidWords:   stats.AvoidWords(situation, 5),
			GoodPatterns: stats.SuccessPatterns(situation, 3),
		}
		if len(entry.GoodWords) == 0 && len(entry.AvoidWords) == 0 && len(entry.GoodPatterns) == 0 {
			continue
		}
		result.BySituation = append(result.BySituation, entry)

		if board != nil {
			for _, w := range entry.GoodWords {
				board.AddContextualPattern(situation, w, blackboard.KindWord)
				board.AddFeedback(situation, w, blackboard.FeedbackGood)
			}
			for _, w := range entry.AvoidWords {
				board.AddFeedback(situation, w, blackboard.FeedbackAvoid)
			}
			for _, p := range entry.GoodPatterns {
				board.AddContextualPattern(situation, p.GoodResponse, blackboard.KindPattern)
			}
		}
	}

	if board != nil && len(result.BySituation) > 0 {
		var recommendations []string
		for _, entry := range result.BySituation {
			if len(entry.GoodWords) > 0 {
				recommendations = append(recommendations,
					fmt.Sprintf("%s: bevorzuge %v", entry.Situation, entry.GoodWords))
			}
			if len(entry.AvoidWords) > 0 {
				recommendations = append(recommendations,
					fmt.Sprintf("%s: vermeide %v", entry.Situation, entry.AvoidWords))
			}
		}
		board.Write(string(NameLearning),
			[]string{fmt.Sprintf("Lernstatistik für %d Situationen ausgewertet", len(result.BySituation))},
			recommendations, result)
	}

	return result, nil
}

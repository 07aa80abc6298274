package agents

import (
	"context"

	"github.com/kavora-ai/replygen/pkg/blackboard"
)

// MetaResult is the cross-validated situation view every downstream component
// consumes instead of the raw detector output.
type MetaResult struct {
	Situations              []string
	ShouldBlockSexual       bool
	DroppedSexualReason     string
	Success                 bool
}

// MetaValidator cross-checks the context analyst, the situation detector and
// the first-message detector, and applies the hard policy overrides.
type MetaValidator struct{}

// Fallback keeps the detector's view unchanged.
func (v *MetaValidator) Fallback(situations []string) MetaResult {
	return MetaResult{Situations: situations, Success: false}
}

// Run applies the overrides in order; the first matching rule names the
// reason.
func (v *MetaValidator) Run(ctx context.Context, message string, contextResult ContextResult, situationResult SituationResult, firstMessage FirstMessageResult, board *blackboard.Board) (MetaResult, error) {
	result := MetaResult{
		Situations: append([]string(nil), situationResult.Situations...),
		Success:    true,
	}

	dropSexual := func(reason string) {
		filtered := result.Situations[:0]
		for _, s := range result.Situations {
			if s != SituationSexual {
				filtered = append(filtered, s)
			}
		}
		result.Situations = filtered
		if result.DroppedSexualReason == "" {
			result.DroppedSexualReason = reason
		}
	}

	// 1. First contact from us suppresses sexual content unconditionally.
	if firstMessage.IsFirstMessage {
		dropSexual("first message from us")
		result.ShouldBlockSexual = true
	}

	// 2. Harmless collocations clear a sexual classification.
	if _, ok := containsAny(message, harmlessCollocations); ok {
		dropSexual("harmless collocation")
	}

	// 3. Conservative tie-break: context says non-sexual, detector says
	// sexual -> drop.
	if contextResult.Topic != TopicSexual && contextResult.Flow != FlowSexual && containsSituation(result.Situations, SituationSexual) {
		dropSexual("context analyst disagrees")
	}

	if board != nil {
		insights := []string{"Situationen bestätigt"}
		if result.DroppedSexualReason != "" {
			insights = append(insights, "Sexuelle Themen entfernt: "+result.DroppedSexualReason)
		}
		board.Write(string(NameMetaValidator), insights, nil, result)
		if result.ShouldBlockSexual {
			board.AddPriority("Keine sexuellen Inhalte in dieser Antwort.", blackboard.PriorityHigh, string(NameMetaValidator))
		}
	}

	return result, nil
}

func containsSituation(situations []string, target string) bool {
	for _, s := range situations {
		if s == target {
			return true
		}
	}
	return false
}

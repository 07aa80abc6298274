package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/kavora-ai/replygen/pkg/blackboard"
	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/llms"
)

// SynthesisResult is the compact preface distilled from the whole board.
type SynthesisResult struct {
	Synthesized        string   `json:"synthesized_knowledge"`
	KeyInsights        []string `json:"key_insights"`
	ActionableGuidance []string `json:"actionable_guidance"`
	PriorityInsights   []string `json:"priority_insights"`
	Success            bool     `json:"-"`
}

// KnowledgeSynthesizer runs after every other agent and consolidates the
// blackboard into one compact preface for the generation prompt.
type KnowledgeSynthesizer struct {
	LLM   capability.LLM
	Model string
}

// Fallback is the empty synthesis.
func (s *KnowledgeSynthesizer) Fallback() SynthesisResult {
	return SynthesisResult{Success: false}
}

// Run consolidates the board.
func (s *KnowledgeSynthesizer) Run(ctx context.Context, board *blackboard.Board) (SynthesisResult, error) {
	var sb strings.Builder
	for agent, insight := range board.ReadAll() {
		if len(insight.Insights) == 0 && len(insight.Recommendations) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "[%s]\n", agent)
		for _, i := range insight.Insights {
			if i != "" {
				fmt.Fprintf(&sb, "- %s\n", i)
			}
		}
		for _, r := range insight.Recommendations {
			if r != "" {
				fmt.Fprintf(&sb, "-> %s\n", r)
			}
		}
	}
	for _, g := range board.Priority(nil) {
		fmt.Fprintf(&sb, "[%s] %s\n", g.Priority, g.Guidance)
	}
	if sb.Len() == 0 {
		return SynthesisResult{Success: true}, nil
	}

	system := `Du fasst Analyse-Erkenntnisse für eine Chat-Antwort zusammen.
Verdichte auf das Wesentliche; keine Wiederholungen.
Antworte als JSON:
{"synthesized_knowledge": "kompakte Zusammenfassung",
 "key_insights": ["..."], "actionable_guidance": ["..."], "priority_insights": ["..."]}`

	raw, err := s.LLM.CompleteJSON(ctx, capability.CompletionRequest{
		Model:       s.Model,
		System:      system,
		User:        sb.String(),
		Temperature: 0.2,
		MaxTokens:   600,
		JSONMode:    true,
	})
	if err != nil {
		return s.Fallback(), err
	}

	var result SynthesisResult
	if err := llms.Decode(raw, &result); err != nil {
		return s.Fallback(), err
	}
	result.Success = true

	board.SetSynthesized(result.Synthesized)
	board.Write(string(NameSynthesizer), result.KeyInsights, result.ActionableGuidance, result)
	return result, nil
}

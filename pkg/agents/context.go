package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/kavora-ai/replygen/pkg/blackboard"
	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/llms"
)

// Topic labels emitted by the context analyst.
const (
	TopicPhilosophical = "philosophical"
	TopicSexual        = "sexual"
	TopicGeneral       = "general"
	TopicOccupation    = "occupation"
	TopicHobby         = "hobby"
)

// Flow labels emitted by the context analyst.
const (
	FlowNeutral       = "neutral"
	FlowPositive      = "positive"
	FlowNegative      = "negative"
	FlowPhilosophical = "philosophical"
	FlowSexual        = "sexual"
)

// RoleplayInfo captures a detected roleplay framing.
type RoleplayInfo struct {
	Active           bool   `json:"active"`
	CustomerRole     string `json:"customer_role"`
	ExpectedFakeRole string `json:"expected_fake_role"`
}

// ContextResult is the context analyst's classification.
type ContextResult struct {
	Topic     string       `json:"topic"`
	Flow      string       `json:"flow"`
	KeyPoints []string     `json:"key_points"`
	Roleplay  RoleplayInfo `json:"roleplay"`
	Success   bool         `json:"-"`
}

// ContextAnalyst classifies topic, conversational flow, key points and
// roleplay. Every later agent consumes its result.
type ContextAnalyst struct {
	LLM   capability.LLM
	Model string
}

// Fallback is the neutral classification.
func (a *ContextAnalyst) Fallback() ContextResult {
	return ContextResult{Topic: TopicGeneral, Flow: FlowNeutral, Success: false}
}

// Run classifies the current message in its history.
func (a *ContextAnalyst) Run(ctx context.Context, message string, conv Conversation, board *blackboard.Board) (ContextResult, error) {
	system := `Du analysierst Chat-Nachrichten einer Dating-Plattform.
Klassifiziere die aktuelle Kundennachricht im Kontext des Verlaufs.
Antworte als JSON:
{"topic": "philosophical|sexual|general|occupation|hobby",
 "flow": "neutral|positive|negative|philosophical|sexual",
 "key_points": ["max zwei zentrale Punkte"],
 "roleplay": {"active": bool, "customer_role": "...", "expected_fake_role": "..."}}`

	user := fmt.Sprintf("Verlauf:\n%s\n\nAktuelle Nachricht: %q", conv.Rendered, message)

	raw, err := a.LLM.CompleteJSON(ctx, capability.CompletionRequest{
		Model:       a.Model,
		System:      system,
		User:        user,
		Temperature: 0.1,
		MaxTokens:   400,
		JSONMode:    true,
	})
	if err != nil {
		return a.Fallback(), err
	}

	var result ContextResult
	if err := llms.Decode(raw, &result); err != nil {
		return a.Fallback(), err
	}
	result.Success = true

	if len(result.KeyPoints) > 2 {
		result.KeyPoints = result.KeyPoints[:2]
	}
	result.Topic = normalizeTopic(result.Topic)
	result.Flow = normalizeFlow(result.Flow)

	// A sexual label requires explicit evidence in the combined text;
	// otherwise demote to the neutral classification.
	combined := message + "\n" + conv.RecentText(5)
	if (result.Topic == TopicSexual || result.Flow == FlowSexual) && !ContainsExplicitSexual(combined) {
		if result.Topic == TopicSexual {
			result.Topic = TopicGeneral
		}
		if result.Flow == FlowSexual {
			result.Flow = FlowNeutral
		}
	}

	if board != nil {
		insights := []string{fmt.Sprintf("Thema: %s, Verlauf: %s", result.Topic, result.Flow)}
		insights = append(insights, result.KeyPoints...)
		board.Write(string(NameContext), insights, nil, result)
	}

	return result, nil
}

func normalizeTopic(topic string) string {
	switch strings.ToLower(strings.TrimSpace(topic)) {
	case TopicPhilosophical, TopicSexual, TopicOccupation, TopicHobby:
		return strings.ToLower(strings.TrimSpace(topic))
	default:
		return TopicGeneral
	}
}

func normalizeFlow(flow string) string {
	switch strings.ToLower(strings.TrimSpace(flow)) {
	case FlowPositive, FlowNegative, FlowPhilosophical, FlowSexual:
		return strings.ToLower(strings.TrimSpace(flow))
	default:
		return FlowNeutral
	}
}

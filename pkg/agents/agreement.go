package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/kavora-ai/replygen/pkg/blackboard"
	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/llms"
	"github.com/kavora-ai/replygen/pkg/store"
)

// ConsensusEntry maps a statement to its agreed polarity.
type ConsensusEntry struct {
	Statement string `json:"statement"`
	Polarity  string `json:"polarity"` // "agreed" | "declined"
}

// AgreementResult is the consensus map of the recent conversation.
type AgreementResult struct {
	Consensus []ConsensusEntry `json:"consensus"`
	Success   bool             `json:"-"`
}

// AgreementDetector extracts consensual statements from the last turns. The
// result only yields blackboard guidance; enforcement happens in the
// validation loop.
type AgreementDetector struct {
	LLM   capability.LLM
	Model string
}

// Fallback is the empty consensus map.
func (a *AgreementDetector) Fallback() AgreementResult {
	return AgreementResult{Success: false}
}

// Run extracts the consensus map from the last 5 turns per side.
func (a *AgreementDetector) Run(ctx context.Context, conv Conversation, board *blackboard.Board) (AgreementResult, error) {
	moderator := lastN(conv.ModeratorMessages, 5)
	customer := lastN(conv.CustomerMessages, 5)
	if len(moderator) == 0 && len(customer) == 0 {
		return AgreementResult{Success: true}, nil
	}

	system := `Du extrahierst Übereinkünfte aus einem Dating-Chat.
Finde Aussagen, denen beide Seiten zugestimmt oder die sie abgelehnt haben.
Antworte als JSON: {"consensus": [{"statement": "...", "polarity": "agreed|declined"}]}`

	var sb strings.Builder
	for _, m := range moderator {
		fmt.Fprintf(&sb, "Du: %s\n", m)
	}
	for _, m := range customer {
		fmt.Fprintf(&sb, "Kunde: %s\n", m)
	}

	raw, err := a.LLM.CompleteJSON(ctx, capability.CompletionRequest{
		Model:       a.Model,
		System:      system,
		User:        sb.String(),
		Temperature: 0.1,
		MaxTokens:   400,
		JSONMode:    true,
	})
	if err != nil {
		return a.Fallback(), err
	}

	var result AgreementResult
	if err := llms.Decode(raw, &result); err != nil {
		return a.Fallback(), err
	}
	result.Success = true

	if board != nil && len(result.Consensus) > 0 {
		var insights []string
		for _, c := range result.Consensus {
			insights = append(insights, fmt.Sprintf("%s (%s)", c.Statement, c.Polarity))
			board.AddPriority(
				fmt.Sprintf("Widerspreche nicht der Übereinkunft: %s (%s)", c.Statement, c.Polarity),
				blackboard.PriorityMedium, string(NameAgreement))
		}
		board.Write(string(NameAgreement), insights, nil, result)
	}
	return result, nil
}

func lastN(messages []store.Message, n int) []string {
	if len(messages) > n {
		messages = messages[len(messages)-n:]
	}
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Text)
	}
	return out
}

package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kavora-ai/replygen/pkg/blackboard"
	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/llms"
)

// outdatedTurnWindow and outdatedAge bound the active context: topics older
// than ~5 turns or 24h are outdated.
const (
	outdatedTurnWindow = 5
	outdatedAge        = 24 * time.Hour
)

// ActiveContext describes the live part of the conversation.
type ActiveContext struct {
	CurrentTopic     string `json:"current_topic"`
	Reference        string `json:"reference"`
	IsReplyToLastMod bool   `json:"is_reply_to_last_moderator"`
}

// FlowResult partitions the history into active and outdated context.
type FlowResult struct {
	Active         ActiveContext `json:"active_context"`
	OutdatedTopics []string      `json:"outdated_topics"`
	Guidance       string        `json:"guidance"`
	Success        bool          `json:"-"`
}

// FlowAnalyzer partitions the conversation into the topic being talked about
// now and topics the reply must no longer bring up.
type FlowAnalyzer struct {
	LLM   capability.LLM
	Model string
}

// Fallback keeps everything active.
func (a *FlowAnalyzer) Fallback() FlowResult {
	return FlowResult{Success: false}
}

// Run analyzes the conversation flow and publishes avoid-entries for every
// outdated topic.
func (a *FlowAnalyzer) Run(ctx context.Context, message string, conv Conversation, board *blackboard.Board) (FlowResult, error) {
	// Cheap pre-partition: turns beyond the window or older than 24h are
	// candidates for the outdated set; the LLM names their topics.
	recent, stale := partitionByAge(conv)

	system := `Du analysierst den Gesprächsfluss eines Dating-Chats.
Bestimme das aktuelle Thema und welche alten Themen NICHT mehr aufgegriffen werden dürfen.
Antworte als JSON:
{"active_context": {"current_topic": "...", "reference": "...", "is_reply_to_last_moderator": bool},
 "outdated_topics": ["..."],
 "guidance": "ein Satz, welche Themen zu ignorieren sind"}`

	user := fmt.Sprintf("Aktuelle Turns:\n%s\n\nÄltere Turns:\n%s\n\nAktuelle Nachricht: %q",
		recent, stale, message)

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

	var result FlowResult
	if err := llms.Decode(raw, &result); err != nil {
		return a.Fallback(), err
	}
	result.Success = true

	if board != nil {
		for _, topic := range result.OutdatedTopics {
			board.AddFeedback("allgemein", topic, blackboard.FeedbackAvoid)
		}
		insights := []string{fmt.Sprintf("Aktuelles Thema: %s", result.Active.CurrentTopic)}
		if result.Guidance != "" {
			insights = append(insights, result.Guidance)
		}
		board.Write(string(NameFlow), insights, nil, result)
	}

	return result, nil
}

func partitionByAge(conv Conversation) (recent, stale string) {
	var recentParts, staleParts []string

	total := len(conv.CustomerMessages)
	for i, m := range conv.CustomerMessages {
		line := "Kunde: " + m.Text
		if total-i > outdatedTurnWindow || OlderThan(m, outdatedAge) {
			staleParts = append(staleParts, line)
		} else {
			recentParts = append(recentParts, line)
		}
	}
	total = len(conv.ModeratorMessages)
	for i, m := range conv.ModeratorMessages {
		line := "Du: " + m.Text
		if total-i > outdatedTurnWindow || OlderThan(m, outdatedAge) {
			staleParts = append(staleParts, line)
		} else {
			recentParts = append(recentParts, line)
		}
	}

	return strings.Join(recentParts, "\n"), strings.Join(staleParts, "\n")
}

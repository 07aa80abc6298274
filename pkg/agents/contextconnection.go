package agents

import (
	"context"
	"fmt"

	"github.com/kavora-ai/replygen/pkg/blackboard"
	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/llms"
)

// ProblematicRequest is a customer demand that needs redirection.
type ProblematicRequest struct {
	Kind       string `json:"kind"` // "whatsapp" | "meeting" | "time"
	Deflection string `json:"deflection"`
}

// ContextConnectionResult tracks open threads across the conversation.
type ContextConnectionResult struct {
	OpenAnnouncements   []string             `json:"open_announcements"`
	OpenQuestions       []string             `json:"open_questions"`
	AnsweredQuestions   []string             `json:"answered_questions"`
	ClosedTopics        []string             `json:"closed_topics"`
	NewInformation      []string             `json:"new_information"`
	ProblematicRequests []ProblematicRequest `json:"problematic_requests"`
	Success             bool                 `json:"-"`
}

// ContextConnectionAnalyzer detects unfulfilled announcements, unanswered
// questions, questions that must not be re-asked, resigned topics, new facts
// and problematic requests needing a specific deflection.
type ContextConnectionAnalyzer struct {
	LLM   capability.LLM
	Model string
}

// Fallback is the empty connection state.
func (a *ContextConnectionAnalyzer) Fallback() ContextConnectionResult {
	return ContextConnectionResult{Success: false}
}

// Run analyzes the turn.
func (a *ContextConnectionAnalyzer) Run(ctx context.Context, message string, conv Conversation, board *blackboard.Board) (ContextConnectionResult, error) {
	system := `Du analysierst die Verbindungen zwischen den Turns eines Dating-Chats.
Finde:
- open_announcements: Ankündigungen ("erzähle ich dir später"), die noch offen sind
- open_questions: Fragen des Kunden, die noch unbeantwortet sind
- answered_questions: Fragen, die schon beantwortet wurden (dürfen NICHT erneut gestellt werden)
- closed_topics: Themen, die der Kunde resigniert beendet hat ("schade")
- new_information: neue Fakten (Arbeit, Uhrzeiten, Abwesenheiten)
- problematic_requests: Forderungen (whatsapp|meeting|time) mit passender Ablenkungsfrage
Antworte als JSON mit genau diesen Feldern.`

	user := fmt.Sprintf("Verlauf:\n%s\n\nAktuelle Nachricht: %q", conv.Rendered, message)

	raw, err := a.LLM.CompleteJSON(ctx, capability.CompletionRequest{
		Model:       a.Model,
		System:      system,
		User:        user,
		Temperature: 0.1,
		MaxTokens:   600,
		JSONMode:    true,
	})
	if err != nil {
		return a.Fallback(), err
	}

	var result ContextConnectionResult
	if err := llms.Decode(raw, &result); err != nil {
		return a.Fallback(), err
	}
	result.Success = true

	if board != nil {
		for _, q := range result.OpenQuestions {
			board.AddPriority("Beantworte die offene Frage: "+q, blackboard.PriorityHigh, string(NameContextConnection))
		}
		for _, q := range result.AnsweredQuestions {
			board.AddPriority("Stelle diese Frage NICHT erneut: "+q, blackboard.PriorityHigh, string(NameContextConnection))
		}
		for _, r := range result.ProblematicRequests {
			board.AddPriority(
				fmt.Sprintf("Forderung (%s) ablenken, z.B.: %s", r.Kind, r.Deflection),
				blackboard.PriorityHigh, string(NameContextConnection))
		}
		board.Write(string(NameContextConnection),
			append(result.OpenQuestions, result.NewInformation...), nil, result)
	}
	return result, nil
}

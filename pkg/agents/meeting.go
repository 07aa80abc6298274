package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/kavora-ai/replygen/pkg/blackboard"
	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/llms"
)

// MeetingResult carries the allowed/blocked phrase pair for meeting replies.
type MeetingResult struct {
	Fired          bool     `json:"-"`
	AllowedPhrases []string `json:"allowed_phrases"`
	BlockedPhrases []string `json:"blocked_phrases"`
	Guidance       string   `json:"guidance"`
	Success        bool     `json:"-"`
}

// defaultAllowedMeetingPhrases keep the door open without committing.
var defaultAllowedMeetingPhrases = []string{
	"schauen wir mal wann es bei mir klappt",
	"mal sehen, gerade ist bei mir viel los",
	"lass uns erstmal weiter schreiben",
	"ich will dich erst besser kennenlernen",
}

// MeetingResponse fires only for meeting requests. It derives allowed and
// blocked phrasings from meeting-specific plus general retrieval.
type MeetingResponse struct {
	LLM    capability.LLM
	Model  string
	Search capability.VectorSearch
}

// Fallback keeps the default phrase pair.
func (m *MeetingResponse) Fallback() MeetingResult {
	return MeetingResult{
		AllowedPhrases: defaultAllowedMeetingPhrases,
		BlockedPhrases: meetingAgreementPhrases,
		Success:        false,
	}
}

// Run derives the phrase pair from retrieval.
func (m *MeetingResponse) Run(ctx context.Context, message string, isMeetingRequest bool, board *blackboard.Board) (MeetingResult, error) {
	if !isMeetingRequest {
		return MeetingResult{Success: true}, nil
	}

	var examplesText strings.Builder
	if m.Search != nil {
		meetingHits, err := m.Search.Search(ctx, message, capability.SearchOptions{
			TopK:      25,
			Situation: SituationMeeting,
		})
		if err == nil {
			generalHits, _ := m.Search.Search(ctx, message, capability.SearchOptions{TopK: 15})
			for _, hit := range append(meetingHits, generalHits...) {
				fmt.Fprintf(&examplesText, "Kunde: %s -> Antwort: %s\n",
					hit.Example.CustomerMessage, hit.Example.Response())
			}
		}
	}

	system := `Du leitest aus Beispielantworten ab, wie ein Treffen-Wunsch abgelenkt wird.
Erlaubt sind offene Formulierungen ohne Zusage ("schauen wir mal wann es bei mir klappt").
Verboten sind alle Zusagen und konkreten Vorschläge ("wann können wir uns treffen").
Antworte als JSON:
{"allowed_phrases": ["..."], "blocked_phrases": ["..."], "guidance": "ein Satz"}`

	raw, err := m.LLM.CompleteJSON(ctx, capability.CompletionRequest{
		Model:       m.Model,
		System:      system,
		User:        fmt.Sprintf("Kundennachricht: %q\n\nBeispiele:\n%s", message, examplesText.String()),
		Temperature: 0.2,
		MaxTokens:   400,
		JSONMode:    true,
	})
	if err != nil {
		return m.Fallback(), err
	}

	var result MeetingResult
	if err := llms.Decode(raw, &result); err != nil {
		return m.Fallback(), err
	}
	result.Fired = true
	result.Success = true
	if len(result.AllowedPhrases) == 0 {
		result.AllowedPhrases = defaultAllowedMeetingPhrases
	}
	result.BlockedPhrases = append(result.BlockedPhrases, meetingAgreementPhrases...)

	if board != nil {
		board.AddPriority(
			"Treffen-Anfrage: freundlich ablenken, keine Zusage, kein Gegenvorschlag.",
			blackboard.PriorityHigh, string(NameMeetingResponse))
		board.Write(string(NameMeetingResponse),
			[]string{result.Guidance}, result.AllowedPhrases, result)
	}

	return result, nil
}

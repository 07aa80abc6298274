package agents

import (
	"context"

	"github.com/kavora-ai/replygen/pkg/blackboard"
)

// MoodResult is the detected customer mood.
type MoodResult struct {
	Mood     string
	Guidance string
	Success  bool
}

// MoodAgent derives the customer's mood from cheap lexical signals; the
// context analyst already covers the heavyweight classification.
type MoodAgent struct{}

// Fallback is the neutral mood.
func (m *MoodAgent) Fallback() MoodResult {
	return MoodResult{Mood: "neutral", Success: false}
}

// Run classifies the mood.
func (m *MoodAgent) Run(ctx context.Context, message string, contextResult ContextResult, board *blackboard.Board) (MoodResult, error) {
	result := MoodResult{Mood: "neutral", Success: true}

	switch {
	case contextResult.Flow == FlowNegative:
		result.Mood = "frustriert"
		result.Guidance = "Der Kunde wirkt frustriert: zeige Verständnis, bleibe positiv, kein Druck."
	case contextResult.Flow == FlowSexual:
		result.Mood = "erregt"
		result.Guidance = "Der Kunde ist in sexueller Stimmung: gehe darauf ein, bleibe im Rahmen der Regeln."
	case ContainsPositiveAffect(message):
		result.Mood = "positiv"
		result.Guidance = "Der Kunde ist positiv gestimmt: erwidere die Stimmung (Reziprozität)."
	}

	if board != nil && result.Guidance != "" {
		board.Write(string(NameMood), []string{result.Guidance}, nil, result)
	}
	return result, nil
}

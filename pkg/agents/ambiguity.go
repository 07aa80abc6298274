package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/kavora-ai/replygen/pkg/blackboard"
	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/llms"
)

// AmbiguityResult resolves vague references in the current message.
type AmbiguityResult struct {
	Fired              bool     `json:"-"`
	ResolvedMeaning    string   `json:"resolved_meaning"`
	ProfileConnections []string `json:"profile_connections"`
	SexualContext      bool     `json:"sexual_context"`
	Recommendations    []string `json:"recommendations"`
	Success            bool     `json:"-"`
}

// AmbiguityResolver fires only when the message carries a known ambiguous
// phrase or references the persona profile.
type AmbiguityResolver struct {
	LLM   capability.LLM
	Model string
}

// Fallback is the not-fired result.
func (a *AmbiguityResolver) Fallback() AmbiguityResult {
	return AmbiguityResult{Success: false}
}

// Run resolves the ambiguity when the trigger condition holds.
func (a *AmbiguityResolver) Run(ctx context.Context, message string, conv Conversation, profile ProfileInfo, board *blackboard.Board) (AmbiguityResult, error) {
	if !a.shouldFire(message, profile) {
		return AmbiguityResult{Success: true}, nil
	}

	system := `Du löst mehrdeutige Formulierungen in Chat-Nachrichten auf.
Antworte als JSON:
{"resolved_meaning": "was der Kunde wirklich meint",
 "profile_connections": ["Bezüge zum Fake-Profil"],
 "sexual_context": bool,
 "recommendations": ["wie die Antwort damit umgehen soll"]}`

	user := fmt.Sprintf("Profil: Name %s, Stadt %s\nVerlauf:\n%s\n\nNachricht: %q",
		profile.Name, profile.City, conv.Rendered, message)

	raw, err := a.LLM.CompleteJSON(ctx, capability.CompletionRequest{
		Model:       a.Model,
		System:      system,
		User:        user,
		Temperature: 0.2,
		MaxTokens:   400,
		JSONMode:    true,
	})
	if err != nil {
		return a.Fallback(), err
	}

	var result AmbiguityResult
	if err := llms.Decode(raw, &result); err != nil {
		return a.Fallback(), err
	}
	result.Fired = true
	result.Success = true

	if board != nil {
		board.Write(string(NameAmbiguity),
			[]string{result.ResolvedMeaning}, result.Recommendations, result)
	}
	return result, nil
}

func (a *AmbiguityResolver) shouldFire(message string, profile ProfileInfo) bool {
	if message == "" {
		return false
	}
	if _, ok := containsAny(message, ambiguousPhrases); ok {
		return true
	}
	lower := strings.ToLower(message)
	if profile.Name != "" && strings.Contains(lower, strings.ToLower(profile.Name)) {
		return true
	}
	return strings.Contains(lower, "dein profil") || strings.Contains(lower, "auf deinem bild")
}

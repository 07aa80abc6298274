package agents

import (
	"context"
	"strings"

	"github.com/kavora-ai/replygen/pkg/blackboard"
)

// ProactiveResult suggests a topic impulse when the conversation stalls.
type ProactiveResult struct {
	Fired      bool
	Suggestion string
	Success    bool
}

// ProactiveAgent fires on very short or stalling customer messages and
// offers a topic impulse so the reply carries the conversation.
type ProactiveAgent struct{}

// Fallback is the not-fired result.
func (p *ProactiveAgent) Fallback() ProactiveResult {
	return ProactiveResult{Success: false}
}

var stallReplies = []string{"ok", "okay", "ja", "nein", "gut", "schön", "aha", "hm", "hmm", "haha", "lol"}

// Run checks for a stalling turn.
func (p *ProactiveAgent) Run(ctx context.Context, message string, conv Conversation, board *blackboard.Board) (ProactiveResult, error) {
	trimmed := strings.ToLower(strings.TrimSpace(message))
	stalling := false
	if trimmed != "" && len([]rune(trimmed)) <= 8 {
		for _, stall := range stallReplies {
			if trimmed == stall || trimmed == stall+"." {
				stalling = true
				break
			}
		}
	}
	if !stalling {
		return ProactiveResult{Success: true}, nil
	}

	result := ProactiveResult{
		Fired: true,
		Suggestion: "Der Kunde antwortet einsilbig. Bring selbst ein neues, leichtes Thema ein " +
			"(Feierabend, Wochenende, Essen, Pläne) und stelle dazu genau eine Frage.",
		Success: true,
	}
	if board != nil {
		board.AddPriority(result.Suggestion, blackboard.PriorityMedium, string(NameProactive))
		board.Write(string(NameProactive), []string{result.Suggestion}, nil, result)
	}
	return result, nil
}

package agents

import (
	"context"
	"fmt"

	"github.com/kavora-ai/replygen/pkg/blackboard"
	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/style"
)

// StyleResult carries the extracted moderator writing style.
type StyleResult struct {
	Features    style.Features
	SampleCount int
	Success     bool
}

// StyleAnalyst extracts writing-style features from up to the last 20
// relevant moderator messages, skipping info notices.
type StyleAnalyst struct {
	Classifiers capability.Classifiers
}

// Fallback is the empty style.
func (a *StyleAnalyst) Fallback() StyleResult {
	return StyleResult{Success: false}
}

// Run extracts the style features.
func (a *StyleAnalyst) Run(ctx context.Context, conv Conversation, board *blackboard.Board) (StyleResult, error) {
	var relevant []string
	messages := conv.ModeratorMessages
	if len(messages) > 20 {
		messages = messages[len(messages)-20:]
	}
	for _, m := range messages {
		if m.Text == "" {
			continue
		}
		if a.Classifiers != nil && a.Classifiers.IsInfoMessage(m.Text) {
			continue
		}
		relevant = append(relevant, m.Text)
	}

	result := StyleResult{
		Features:    style.Extract(relevant),
		SampleCount: len(relevant),
		Success:     true,
	}

	if board != nil && len(relevant) > 0 {
		board.Write(string(NameStyle), []string{
			fmt.Sprintf("Stil aus %d Nachrichten: %s, %s, ~%.1f Wörter/Satz",
				len(relevant),
				result.Features.DominantFormality,
				result.Features.DominantDirectness,
				result.Features.MeanSentenceLength),
		}, nil, result)
	}

	return result, nil
}

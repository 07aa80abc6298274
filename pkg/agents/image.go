package agents

import (
	"context"

	"github.com/kavora-ai/replygen/pkg/blackboard"
	"github.com/kavora-ai/replygen/pkg/capability"
)

// ImageResult describes a customer-sent image for the prompt.
type ImageResult struct {
	Fired          bool
	ImageType      string
	Description    string
	ReactionNeeded bool
	Success        bool
}

// ImageAgent delegates to the image-analysis capability when the request
// carries an image URL.
type ImageAgent struct {
	Analyzer capability.ImageAnalyzer
}

// Fallback is the no-image result.
func (a *ImageAgent) Fallback() ImageResult {
	return ImageResult{Success: false}
}

// Run analyzes the image when present.
func (a *ImageAgent) Run(ctx context.Context, imageURL string, conv Conversation, board *blackboard.Board) (ImageResult, error) {
	if imageURL == "" || a.Analyzer == nil {
		return ImageResult{Success: true}, nil
	}

	analysis, err := a.Analyzer.Analyze(ctx, imageURL, conv.Rendered)
	if err != nil {
		return a.Fallback(), err
	}

	result := ImageResult{
		Fired:          true,
		ImageType:      analysis.ImageType,
		Description:    analysis.Description,
		ReactionNeeded: analysis.ReactionNeeded,
		Success:        true,
	}

	if board != nil {
		insight := "Kunde hat ein Bild geschickt: " + result.Description
		board.Write(string(NameImage), []string{insight}, nil, result)
		if result.ReactionNeeded {
			board.AddPriority("Reagiere erkennbar auf das geschickte Bild ("+result.ImageType+").",
				blackboard.PriorityHigh, string(NameImage))
		}
	}
	return result, nil
}

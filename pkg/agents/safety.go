package agents

import (
	"context"

	"github.com/kavora-ai/replygen/pkg/capability"
)

// SafetyResult is the safety gate verdict.
type SafetyResult struct {
	Blocked      bool
	Reason       string
	ErrorMessage string
	Success      bool
}

// SafetyGate delegates to the moderation capability. A block short-circuits
// the pipeline before any other agent runs.
type SafetyGate struct {
	Moderation capability.Moderation
}

// Fallback lets the request through; a moderation outage must not take the
// whole service down.
func (g *SafetyGate) Fallback() SafetyResult {
	return SafetyResult{Success: false}
}

// Run checks the inbound message.
func (g *SafetyGate) Run(ctx context.Context, message string) (SafetyResult, error) {
	if message == "" {
		return SafetyResult{Success: true}, nil
	}
	result, err := g.Moderation.Check(ctx, message)
	if err != nil {
		return g.Fallback(), err
	}
	return SafetyResult{
		Blocked:      result.IsBlocked,
		Reason:       result.Reason,
		ErrorMessage: result.ErrorMessage,
		Success:      true,
	}, nil
}

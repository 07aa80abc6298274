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

// RulePriority states which bundle wins on conflict.
type RulePriority string

const (
	// PriorityExamples means training examples override the rule bundle.
	PriorityExamples RulePriority = "examples"

	// PriorityRules means the rule bundle overrides the examples.
	PriorityRules RulePriority = "rules"
)

// RuleInterpreterResult reconciles examples with rules.
type RuleInterpreterResult struct {
	Priority RulePriority `json:"priority"`
	Guidance string       `json:"guidance"`
	Success  bool         `json:"-"`
}

// RuleInterpreter detects conflicts between the selected examples and the
// rule bundle, e.g. a top example using a forbidden word. The documented
// resolution is examples-first.
type RuleInterpreter struct {
	LLM   capability.LLM
	Model string
}

// Fallback silently resolves to examples-first.
func (r *RuleInterpreter) Fallback() RuleInterpreterResult {
	return RuleInterpreterResult{Priority: PriorityExamples, Success: false}
}

// Run reconciles the bundles.
func (r *RuleInterpreter) Run(ctx context.Context, rules *store.Rules, examples []capability.ScoredExample, board *blackboard.Board) (RuleInterpreterResult, error) {
	conflicts := findConflicts(rules, examples)
	if len(conflicts) == 0 {
		return RuleInterpreterResult{Priority: PriorityExamples, Success: true}, nil
	}

	system := `Trainingsbeispiele und Regelwerk widersprechen sich.
Die Richtlinie lautet: gute Beispiele haben Vorrang vor Wortlisten.
Formuliere einen kurzen Hinweis, wie mit dem Konflikt umzugehen ist.
Antworte als JSON: {"priority": "examples|rules", "guidance": "ein Satz"}`

	raw, err := r.LLM.CompleteJSON(ctx, capability.CompletionRequest{
		Model:       r.Model,
		System:      system,
		User:        fmt.Sprintf("Konflikte: %s", strings.Join(conflicts, "; ")),
		Temperature: 0.1,
		MaxTokens:   200,
		JSONMode:    true,
	})
	if err != nil {
		return r.Fallback(), err
	}

	var result RuleInterpreterResult
	if err := llms.Decode(raw, &result); err != nil {
		return r.Fallback(), err
	}
	if result.Priority != PriorityRules {
		result.Priority = PriorityExamples
	}
	result.Success = true

	if board != nil {
		board.Write(string(NameRuleInterpreter), []string{result.Guidance}, nil, result)
	}
	return result, nil
}

func findConflicts(rules *store.Rules, examples []capability.ScoredExample) []string {
	if rules == nil {
		return nil
	}
	var conflicts []string
	limit := len(examples)
	if limit > 10 {
		limit = 10
	}
	for i := 0; i < limit; i++ {
		response := strings.ToLower(examples[i].Example.Response())
		for _, word := range rules.ForbiddenWords {
			if word != "" && strings.Contains(response, strings.ToLower(word)) {
				conflicts = append(conflicts,
					fmt.Sprintf("Beispiel %q enthält verbotenes Wort %q", examples[i].Example.ID, word))
			}
		}
	}
	return conflicts
}

package validate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/postprocess"
)

// hardEnforcementRetries caps the enforcement rewrite attempts.
const hardEnforcementRetries = 2

// Loop runs the two cascaded validation gates with bounded rewrites.
type Loop struct {
	LLM   capability.LLM
	Model string

	// MaxTotalRewrites is the global ceiling across all violation classes
	// for one request.
	MaxTotalRewrites int

	PostOptions postprocess.Options
}

// Outcome is the validation verdict.
type Outcome struct {
	Message  string
	Rewrites int
	Warnings []string

	// Failed marks an exhausted budget with non-acceptable violations; the
	// pipeline returns the empty sentinel then.
	Failed     bool
	FailReason string
}

// Run validates and rewrites the reply.
func (l *Loop) Run(ctx context.Context, reply string, vctx *Context) Outcome {
	outcome := Outcome{Message: reply}
	budget := l.MaxTotalRewrites
	if budget <= 0 {
		budget = 5
	}

	// Gate 1: hard enforcement.
	l.runHardEnforcement(ctx, &outcome, vctx, &budget)

	// Gate 2: critical rules with per-class budgets.
	l.runCriticalRules(ctx, &outcome, vctx, &budget)

	return outcome
}

func (l *Loop) runHardEnforcement(ctx context.Context, outcome *Outcome, vctx *Context, budget *int) {
	issues := CheckHardEnforcement(outcome.Message, vctx)
	for attempt := 0; len(issues) > 0 && attempt < hardEnforcementRetries && *budget > 0; attempt++ {
		instruction := "Überarbeite die Antwort. Behebe GENAU diese Punkte und ändere sonst nichts:\n- " +
			strings.Join(issues, "\n- ")
		rewritten, err := l.rewrite(ctx, outcome.Message, vctx, instruction)
		if err != nil {
			slog.Warn("Hard-enforcement rewrite failed", "error", err)
			break
		}
		outcome.Rewrites++
		*budget--
		outcome.Message = rewritten
		issues = CheckHardEnforcement(outcome.Message, vctx)
	}
	if len(issues) > 0 {
		// accept the latest with a warning; enforcement never aborts
		for _, issue := range issues {
			outcome.Warnings = append(outcome.Warnings, "Durchsetzung unvollständig: "+issue)
		}
	}
}

func (l *Loop) runCriticalRules(ctx context.Context, outcome *Outcome, vctx *Context, budget *int) {
	used := map[ViolationClass]int{}

	for {
		violations := CheckCritical(ctx, outcome.Message, vctx)
		violations = l.logAndDropUnretryable(violations, outcome)
		if len(violations) == 0 {
			return
		}

		var retryable *Violation
		for i := range violations {
			class := violations[i].Class
			if used[class] < retryBudgets[class] && *budget > 0 {
				retryable = &violations[i]
				break
			}
		}

		if retryable == nil {
			l.finishExhausted(outcome, violations)
			return
		}

		rewritten, err := l.rewrite(ctx, outcome.Message, vctx, retryable.Rewrite)
		if err != nil {
			slog.Warn("Critical-rule rewrite failed", "class", retryable.Class, "error", err)
			l.finishExhausted(outcome, violations)
			return
		}
		used[retryable.Class]++
		*budget--
		outcome.Rewrites++
		outcome.Message = rewritten
	}
}

// logAndDropUnretryable removes log-only classes (contradictions) from the
// working set.
func (l *Loop) logAndDropUnretryable(violations []Violation, outcome *Outcome) []Violation {
	kept := violations[:0]
	for _, violation := range violations {
		if retryBudgets[violation.Class] == 0 {
			slog.Warn("Rule violation (log only)", "class", violation.Class, "detail", violation.Detail)
			outcome.Warnings = append(outcome.Warnings,
				fmt.Sprintf("%s: %s", violation.Class, violation.Detail))
			continue
		}
		kept = append(kept, violation)
	}
	return kept
}

// finishExhausted decides the terminal state: meta-commentary alone is
// accepted with a warning, anything else fails the request.
func (l *Loop) finishExhausted(outcome *Outcome, violations []Violation) {
	onlyMeta := true
	var details []string
	for _, violation := range violations {
		details = append(details, fmt.Sprintf("%s (%s)", violation.Class, violation.Detail))
		if violation.Class != ViolationMetaCommentary {
			onlyMeta = false
		}
	}

	if onlyMeta {
		outcome.Warnings = append(outcome.Warnings,
			"Meta-Kommentar nicht vollständig entfernt: "+strings.Join(details, "; "))
		return
	}

	outcome.Failed = true
	outcome.FailReason = "Kritische Regelverstöße: " + strings.Join(details, "; ")
}

func (l *Loop) rewrite(ctx context.Context, reply string, vctx *Context, instruction string) (string, error) {
	text, err := l.LLM.Complete(ctx, capability.CompletionRequest{
		Model: l.Model,
		System: "Du überarbeitest Chat-Nachrichten einer Dating-Plattform. " +
			"Erhalte Ton, Länge und Inhalt; ändere nur, was die Anweisung verlangt. " +
			"Antworte NUR mit der überarbeiteten Nachricht.",
		User:        fmt.Sprintf("Nachricht:\n%s\n\nAnweisung:\n%s", reply, instruction),
		Temperature: 0.3,
		MaxTokens:   400,
	})
	if err != nil {
		return "", err
	}

	processed := postprocess.Process(text, l.PostOptions)
	if !processed.Success {
		return "", fmt.Errorf("rewrite produced no usable reply")
	}
	return processed.Text, nil
}

package agents

import (
	"context"
	"strings"

	"github.com/kavora-ai/replygen/pkg/blackboard"
	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/store"
)

// FirstMessageKind distinguishes the three opener templates.
type FirstMessageKind string

const (
	FirstKindKiss  FirstMessageKind = "kiss"
	FirstKindLike  FirstMessageKind = "like"
	FirstKindPlain FirstMessageKind = "plain"
)

// FirstMessageResult reports whether this turn is a first contact from us.
type FirstMessageResult struct {
	IsFirstMessage bool
	Kind           FirstMessageKind
	Instruction    string
	Success        bool
}

// FirstMessageDetector decides whether we are writing first: the history is
// empty or carries only info notices, and there is no inbound message.
type FirstMessageDetector struct {
	Classifiers capability.Classifiers
}

// Fallback is the not-first-message result.
func (d *FirstMessageDetector) Fallback() FirstMessageResult {
	return FirstMessageResult{Success: false}
}

// Run inspects the history and the inbound message.
func (d *FirstMessageDetector) Run(ctx context.Context, message string, conv Conversation) (FirstMessageResult, error) {
	if strings.TrimSpace(message) != "" {
		return FirstMessageResult{Success: true}, nil
	}

	kind := FirstKindPlain
	for _, m := range append(append([]store.Message{}, conv.CustomerMessages...), conv.ModeratorMessages...) {
		if !d.isInfo(m) {
			// A real written turn exists; this is not a first contact.
			return FirstMessageResult{Success: true}, nil
		}
		lower := strings.ToLower(m.Text + " " + m.Type)
		switch {
		case strings.Contains(lower, "kuss") || strings.Contains(lower, "kiss"):
			kind = FirstKindKiss
		case kind != FirstKindKiss && (strings.Contains(lower, "like") || strings.Contains(lower, "gefällt") || strings.Contains(lower, "gefaellt")):
			kind = FirstKindLike
		}
	}

	return FirstMessageResult{
		IsFirstMessage: true,
		Kind:           kind,
		Instruction:    firstMessageInstruction(kind),
		Success:        true,
	}, nil
}

func (d *FirstMessageDetector) isInfo(m store.Message) bool {
	if m.Type != "" && m.Type != "message" {
		return true
	}
	if d.Classifiers != nil {
		return d.Classifiers.IsInfoMessage(m.Text)
	}
	return false
}

// Publish writes the first-message guidance to the board.
func (r FirstMessageResult) Publish(board *blackboard.Board) {
	if board == nil || !r.IsFirstMessage {
		return
	}
	board.AddPriority(r.Instruction, blackboard.PriorityHigh, string(NameFirstMessage))
	board.Write(string(NameFirstMessage), []string{string(r.Kind)}, nil, r)
}

func firstMessageInstruction(kind FirstMessageKind) string {
	common := "WICHTIG für die erste Nachricht: KEINE Selbstvorstellung (kein Name, kein Alter, keine Stadt). " +
		"Stelle 1-2 lockere Einstiegsfragen (wie geht es ihm, was macht er gerade). " +
		"KEINE Treffen-Andeutungen, KEINE sexuellen Inhalte. Mindestens 150 Zeichen."

	switch kind {
	case FirstKindKiss:
		return "Der Kunde hat dir einen Kuss geschickt. Bedanke dich locker und charmant dafür. " + common
	case FirstKindLike:
		return "Der Kunde hat dein Profil geliked. Freue dich kurz darüber, ohne aufdringlich zu sein. " + common
	default:
		return "Du schreibst die allererste Nachricht. Eröffne locker und neugierig. " + common
	}
}

package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/kavora-ai/replygen/pkg/blackboard"
	"github.com/kavora-ai/replygen/pkg/store"
)

// RulesBlocks are the composed prompt fragments of the rule bundle.
type RulesBlocks struct {
	StyleReminder  string
	ForbiddenWords string
	PreferredWords string
	MeetingBlock   string
	KnowledgeBlock string
	Success        bool
}

// RulesApplicator composes the rule bundle into prompt fragments. Sexual
// preferred words activate only in sexual conversations.
type RulesApplicator struct{}

// Fallback carries only the hardcoded style reminder.
func (r *RulesApplicator) Fallback() RulesBlocks {
	return RulesBlocks{StyleReminder: styleReminderBlock, Success: false}
}

const styleReminderBlock = `Schreibstil:
- Schreibe locker und natürlich, wie in einem echten Chat.
- Kurze Sätze, keine Schachtelsätze.
- Keine Ausrufezeichen, keine Meta-Kommentare über die Nachricht des Kunden.
- Genau eine Frage am Ende.`

// Run composes the blocks.
func (r *RulesApplicator) Run(ctx context.Context, rules *store.Rules, sexualConversation, meetingContext, knowledgeQuestion bool, board *blackboard.Board) (RulesBlocks, error) {
	blocks := RulesBlocks{StyleReminder: styleReminderBlock, Success: true}
	if rules == nil {
		return blocks, nil
	}

	if len(rules.ForbiddenWords) > 0 {
		blocks.ForbiddenWords = fmt.Sprintf(
			"VERBOTENE WÖRTER (niemals verwenden, auch nicht abgewandelt): %s",
			strings.Join(rules.ForbiddenWords, ", "))
	}

	if len(rules.PreferredWords) > 0 {
		var sexual, neutral []string
		for _, word := range rules.PreferredWords {
			if ContainsExplicitSexual(word) {
				sexual = append(sexual, word)
			} else {
				neutral = append(neutral, word)
			}
		}
		var sb strings.Builder
		if len(neutral) > 0 {
			fmt.Fprintf(&sb, "Bevorzugte Wörter: %s\n", strings.Join(neutral, ", "))
		}
		if len(sexual) > 0 && sexualConversation {
			fmt.Fprintf(&sb, "In diesem sexuellen Gespräch zusätzlich bevorzugt: %s\n", strings.Join(sexual, ", "))
		}
		blocks.PreferredWords = strings.TrimSpace(sb.String())
	}

	if meetingContext {
		blocks.MeetingBlock = `Treffen-Härtung:
- Sage NIEMALS einem Treffen zu und schlage keines vor.
- Keine Orte (Café, Park), kein Abholen, kein "bei dir/bei mir".
- Lenke freundlich ab und halte das Gespräch am Laufen.`
	}

	if knowledgeQuestion {
		blocks.KnowledgeBlock = `Wissensfragen-Härtung:
- Beantworte Sachfragen nur vage und persönlich, nie lexikonartig.
- Lenke zurück auf den Kunden und das Gespräch.`
	}

	if board != nil {
		board.Write(string(NameRulesApplicator), []string{"Regel-Blöcke erstellt"}, nil, blocks)
	}
	return blocks, nil
}

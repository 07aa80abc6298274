package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/kavora-ai/replygen/pkg/blackboard"
)

// ConversationContextResult is the rendered chat-history prompt section.
type ConversationContextResult struct {
	Block   string
	Success bool
}

// ConversationContextBuilder renders the history into the chat-verlauf
// section with its continuity rules.
type ConversationContextBuilder struct{}

// Fallback is the empty block.
func (b *ConversationContextBuilder) Fallback() ConversationContextResult {
	return ConversationContextResult{Success: false}
}

// Run renders the block.
func (b *ConversationContextBuilder) Run(ctx context.Context, message string, conv Conversation, board *blackboard.Board) (ConversationContextResult, error) {
	var sb strings.Builder

	sb.WriteString("CHAT-VERLAUF (neueste zuletzt):\n")
	turns := interleave(conv)
	start := 0
	if len(turns) > 12 {
		start = len(turns) - 12
	}
	for _, turn := range turns[start:] {
		sb.WriteString(turn)
		sb.WriteString("\n")
	}
	if last := conv.LastModerator(); last != "" {
		fmt.Fprintf(&sb, "\n>> Deine letzte Nachricht: %q\n", last)
	}
	if message != "" {
		fmt.Fprintf(&sb, ">> Neueste Kundennachricht: %q\n", message)
	}

	sb.WriteString(`
Regeln zum Verlauf:
- Antworte auf die NEUESTE Kundennachricht, nicht auf ältere Themen.
- Unterscheide Angebot und Annahme: Wenn du etwas angeboten hast und der Kunde annimmt, bestätige den Bezug, biete es nicht erneut an.
- Kurze Antworten des Kunden ("ja", "ok", "gerne") beziehen sich auf deine letzte Nachricht.
- Wiederhole keine Fakten, die im Verlauf schon genannt wurden.
- Bei "wir": stelle klar, wen der Kunde meint, falls unklar.`)

	result := ConversationContextResult{Block: sb.String(), Success: true}
	if board != nil {
		board.Write(string(NameConversationCtx), []string{"Verlaufsblock erstellt"}, nil, result)
	}
	return result, nil
}

func interleave(conv Conversation) []string {
	// Without reliable timestamps the sides are interleaved by index, which
	// matches the rendered order of the upstream snapshot.
	var turns []string
	i, j := 0, 0
	for i < len(conv.ModeratorMessages) || j < len(conv.CustomerMessages) {
		if i < len(conv.ModeratorMessages) {
			turns = append(turns, "Du: "+conv.ModeratorMessages[i].Text)
			i++
		}
		if j < len(conv.CustomerMessages) {
			turns = append(turns, "Kunde: "+conv.CustomerMessages[j].Text)
			j++
		}
	}
	return turns
}

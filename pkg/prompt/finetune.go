package prompt

import (
	"fmt"
	"strings"

	"github.com/kavora-ai/replygen/pkg/store"
)

// FineTuneComposer emits the minimal training-format prompt for fine-tuned
// backends: only the hard rules as system prompt and the conversation in
// `Du:`/`Kunde:` lines, optionally with a one-shot example. The model learned
// everything else during fine-tuning; elaborate guidance would fight it.
type FineTuneComposer struct{}

// Compose returns the system and user prompts.
func (c *FineTuneComposer) Compose(in *Inputs, oneShot *store.Example) (system, user string) {
	var situationRules strings.Builder
	if in.Rules != nil {
		for _, situation := range in.Situations {
			if instructions, ok := in.Rules.SituationalResponses[situation]; ok {
				fmt.Fprintf(&situationRules, "[%s] %s\n", situation, instructions)
			}
		}
	}

	system = render("finetune_system.tmpl", map[string]string{
		"PersonaName":    in.Profile.Name,
		"SituationRules": strings.TrimSpace(situationRules.String()),
	})

	var sb strings.Builder
	for _, turn := range lastTurns(in, 6) {
		sb.WriteString(turn + "\n")
	}
	if oneShot != nil {
		fmt.Fprintf(&sb, "\nBeispiel:\nKunde: %q\nDu: %q\n\n", oneShot.CustomerMessage, oneShot.Response())
	}
	fmt.Fprintf(&sb, "Kunde: %q\nAntworte als Chat-Moderator.", in.CustomerMessage)

	return system, sb.String()
}

func lastTurns(in *Inputs, n int) []string {
	var turns []string
	mods := in.Conversation.ModeratorMessages
	custs := in.Conversation.CustomerMessages
	for i := 0; i < len(mods) || i < len(custs); i++ {
		if i < len(mods) {
			turns = append(turns, fmt.Sprintf("Du: %q", mods[i].Text))
		}
		if i < len(custs) {
			turns = append(turns, fmt.Sprintf("Kunde: %q", custs[i].Text))
		}
	}
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return turns
}

package prompt

import (
	"fmt"
	"strings"

	"github.com/kavora-ai/replygen/pkg/style"
)

// SimplifiedComposer emits the compact global-style prompt: roughly 30%
// style, 20% examples, 20% context, 20% rules, 10% special handling. Used
// when a pre-extracted global style is available.
type SimplifiedComposer struct{}

// Usable reports whether the simplified shape applies to the inputs.
func (c *SimplifiedComposer) Usable(in *Inputs) bool {
	return in.Style.Success && in.Style.SampleCount >= 5 && !in.IsASA
}

// Compose returns the system and user prompts.
func (c *SimplifiedComposer) Compose(in *Inputs) (system, user string) {
	system = render("system.tmpl", map[string]string{"PersonaName": in.Profile.Name})

	var examples strings.Builder
	limit := len(in.Retrieval.Examples)
	if limit > 4 {
		limit = 4
	}
	for i := 0; i < limit; i++ {
		ex := in.Retrieval.Examples[i].Example
		fmt.Fprintf(&examples, "Kunde: %s -> %s\n", ex.CustomerMessage, ex.Response())
	}

	var rules strings.Builder
	rules.WriteString(in.RulesBlocks.StyleReminder)
	if in.RulesBlocks.ForbiddenWords != "" {
		rules.WriteString("\n" + in.RulesBlocks.ForbiddenWords)
	}
	if in.RulesBlocks.MeetingBlock != "" {
		rules.WriteString("\n" + in.RulesBlocks.MeetingBlock)
	}

	var special strings.Builder
	if in.FirstMessage.IsFirstMessage {
		special.WriteString(in.FirstMessage.Instruction + "\n")
	}
	for _, g := range in.Board.Priority(nil) {
		if g.Priority.String() == "high" {
			special.WriteString("- " + g.Guidance + "\n")
		}
	}
	if in.CustomerMessage != "" {
		fmt.Fprintf(&special, "Antworte auf: %q\n", in.CustomerMessage)
	}

	features := in.Style.Features
	if features.MeanSentenceLength == 0 {
		features = style.Extract([]string{in.Conversation.LastModerator()})
	}

	user = render("simplified.tmpl", map[string]interface{}{
		"PersonaName":       in.Profile.Name,
		"Style":             features,
		"ExamplesBlock":     strings.TrimSpace(examples.String()),
		"LastModerator":     in.Conversation.LastModerator(),
		"LastCustomer":      in.Conversation.LastCustomer(),
		"RecentTurns":       recentTurns(in, 4),
		"OpenQuestions":     in.ContextConn.OpenQuestions,
		"AnsweredQuestions": in.ContextConn.AnsweredQuestions,
		"RulesBlock":        rules.String(),
		"SpecialBlock":      strings.TrimSpace(special.String()),
	})
	return system, user
}

func recentTurns(in *Inputs, n int) string {
	var lines []string
	mods := in.Conversation.ModeratorMessages
	custs := in.Conversation.CustomerMessages
	if len(mods) > n {
		mods = mods[len(mods)-n:]
	}
	if len(custs) > n {
		custs = custs[len(custs)-n:]
	}
	for i := range mods {
		lines = append(lines, "- Du: "+mods[i].Text)
		if i < len(custs) {
			lines = append(lines, "- Kunde: "+custs[i].Text)
		}
	}
	return strings.Join(lines, "\n")
}

package prompt

import (
	"fmt"
	"strings"

	"github.com/kavora-ai/replygen/pkg/agents"
	"github.com/kavora-ai/replygen/pkg/utils"
)

// Composer builds the full structured prompt in the strict section priority
// order: enforcement, critical rules, chat history, training data, learning
// system, situations, context, customer message, final instructions.
type Composer struct{}

// Compose returns the system and user prompts.
func (c *Composer) Compose(in *Inputs) (system, user string) {
	system = render("system.tmpl", map[string]string{"PersonaName": in.Profile.Name})

	sections := []string{
		c.enforcementSection(in),
		c.criticalRulesSection(in),
		c.historySection(in),
		c.trainingSection(in),
		c.learningSection(in),
		c.situationsSection(in),
		c.contextSection(in),
		c.customerMessageSection(in),
		c.finalSection(in),
	}

	user = strings.Join(nonEmpty(sections), "\n")

	if in.TokenBudget > 0 && utils.CountTokens(system+user) > in.TokenBudget {
		user = c.composeTrimmed(in, sections)
	}
	return system, user
}

// composeTrimmed re-renders with fewer training examples until the budget
// holds; the training block is always the first to shrink.
func (c *Composer) composeTrimmed(in *Inputs, sections []string) string {
	trimmed := *in
	for keep := len(in.Retrieval.Examples) - 1; keep >= 3; keep-- {
		trimmed.Retrieval.Examples = in.Retrieval.Examples[:keep]
		sections[3] = c.trainingSection(&trimmed)
		user := strings.Join(nonEmpty(sections), "\n")
		if utils.CountTokens(user) <= in.TokenBudget {
			return user
		}
	}
	return strings.Join(nonEmpty(sections), "\n")
}

// Section 1: hard enforcement preface.
func (c *Composer) enforcementSection(in *Inputs) string {
	var sb strings.Builder
	for _, q := range in.ContextConn.OpenQuestions {
		fmt.Fprintf(&sb, "- Beantworte die offene Frage des Kunden: %s\n", q)
	}
	for _, q := range in.ContextConn.AnsweredQuestions {
		fmt.Fprintf(&sb, "- Diese Frage wurde beantwortet, stelle sie NICHT erneut: %s\n", q)
	}
	for _, a := range in.ContextConn.OpenAnnouncements {
		fmt.Fprintf(&sb, "- Löse deine offene Ankündigung ein oder greife sie auf: %s\n", a)
	}
	if in.SexualConversation() || agents.ContainsPositiveAffect(in.CustomerMessage) {
		sb.WriteString("- Der Kunde äußert sich positiv/intim: erwidere das erkennbar (\"finde ich auch\", \"macht mich auch...\", \"freut mich\").\n")
	}
	return section("HARTE DURCHSETZUNG", sb.String())
}

// Section 2: critical rules.
func (c *Composer) criticalRulesSection(in *Inputs) string {
	var sb strings.Builder
	sb.WriteString(in.RulesBlocks.StyleReminder)
	sb.WriteString("\n")
	if in.RulesBlocks.ForbiddenWords != "" {
		sb.WriteString(in.RulesBlocks.ForbiddenWords + "\n")
	}
	if in.RulesBlocks.MeetingBlock != "" {
		sb.WriteString(in.RulesBlocks.MeetingBlock + "\n")
	}
	if in.RulesBlocks.KnowledgeBlock != "" {
		sb.WriteString(in.RulesBlocks.KnowledgeBlock + "\n")
	}
	if in.Rules != nil {
		for _, rule := range in.Rules.CriticalRules {
			fmt.Fprintf(&sb, "- %s\n", rule)
		}
	}
	if in.FirstMessage.IsFirstMessage {
		sb.WriteString(in.FirstMessage.Instruction + "\n")
	}
	return section("KRITISCHE REGELN", sb.String())
}

// Section 3: chat history.
func (c *Composer) historySection(in *Inputs) string {
	return section("VERLAUF", in.ConvContext.Block)
}

// Section 4: training data.
func (c *Composer) trainingSection(in *Inputs) string {
	var sb strings.Builder

	if in.IsASA && in.ASAExample != nil {
		return section("TRAININGSDATEN", render("asa.tmpl", map[string]string{
			"ExampleResponse": in.ASAExample.Response(),
			"Context":         in.ASAContext,
		}))
	}

	if in.Retrieval.FallbackMode {
		sb.WriteString(render("fallback.tmpl", nil))
		return section("TRAININGSDATEN", sb.String())
	}

	if len(in.Retrieval.Examples) == 0 {
		return ""
	}

	sb.WriteString("Antworte im Stil dieser Beispiele (beste zuerst):\n\n")
	for i, scored := range in.Retrieval.Examples {
		marker := ""
		if i < 5 {
			marker = fmt.Sprintf(" [PRIORITÄT %d]", i+1)
		}
		fmt.Fprintf(&sb, "Beispiel %d%s:\nKunde: %s\nAntwort: %s\n",
			i+1, marker, scored.Example.CustomerMessage, scored.Example.Response())
		if scored.Example.Explanation != "" {
			fmt.Fprintf(&sb, "Hinweis: %s\n", scored.Example.Explanation)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Übernimm Satzbau, Ton und Länge der Beispiele; kopiere sie nicht wörtlich.\n")
	return section("TRAININGSDATEN", sb.String())
}

// Section 5: learning system plus agent sub-blocks.
func (c *Composer) learningSection(in *Inputs) string {
	var sb strings.Builder

	for _, entry := range in.Learning.BySituation {
		fmt.Fprintf(&sb, "[%s]\n", entry.Situation)
		if len(entry.GoodWords) > 0 {
			fmt.Fprintf(&sb, "Bewährte Wörter: %s\n", strings.Join(entry.GoodWords, ", "))
		}
		if len(entry.AvoidWords) > 0 {
			fmt.Fprintf(&sb, "Vermeide: %s\n", strings.Join(entry.AvoidWords, ", "))
		}
		for _, p := range entry.GoodPatterns {
			fmt.Fprintf(&sb, "Bewährtes Muster (%.0f%%): %s\n", p.SuccessRate()*100, p.GoodResponse)
		}
	}

	writeSub := func(title, body string) {
		if strings.TrimSpace(body) != "" {
			fmt.Fprintf(&sb, "\n[%s]\n%s\n", title, strings.TrimSpace(body))
		}
	}
	writeSub("Beispiel-Intelligenz", joinNonEmpty("\n",
		in.ExampleIntel.StructureGuidance, in.ExampleIntel.WordChoice,
		in.ExampleIntel.QuestionGuidance, in.ExampleIntel.ContextPattern,
		in.ExampleIntel.AntiRedundancy))
	if in.Meeting.Fired {
		writeSub("Treffen-Antwort", fmt.Sprintf("Erlaubt: %s\nVerboten: %s",
			strings.Join(in.Meeting.AllowedPhrases, " | "),
			strings.Join(in.Meeting.BlockedPhrases, " | ")))
	}
	writeSub("Regel-Abgleich", in.RuleInterp.Guidance)
	writeSub("Wissens-Synthese", in.Synthesis.Synthesized)
	writeSub("Gesprächsfluss", in.Flow.Guidance)
	if in.Ambiguity.Fired {
		writeSub("Mehrdeutigkeit", in.Ambiguity.ResolvedMeaning)
	}
	if len(in.Agreement.Consensus) > 0 {
		var lines []string
		for _, consensus := range in.Agreement.Consensus {
			lines = append(lines, fmt.Sprintf("%s (%s)", consensus.Statement, consensus.Polarity))
		}
		writeSub("Übereinkünfte", strings.Join(lines, "\n"))
	}
	if len(in.Deep.Patterns) > 0 {
		writeSub("Tiefenmuster", strings.Join(in.Deep.Patterns, "\n"))
	}

	return section("LERNSYSTEM", sb.String())
}

// Section 6: situations.
func (c *Composer) situationsSection(in *Inputs) string {
	var sb strings.Builder
	if len(in.Situations) > 1 {
		// the multi-situation instruction arrives via priority guidance
		for _, g := range in.Board.Priority(nil) {
			if g.Source == string(agents.NameMultiSituation) {
				sb.WriteString(g.Guidance + "\n")
			}
		}
	}
	if in.Rules != nil {
		for _, situation := range in.Situations {
			if instructions, ok := in.Rules.SituationalResponses[situation]; ok {
				fmt.Fprintf(&sb, "[%s]\n%s\n", situation, instructions)
			}
		}
	}
	return section("SITUATIONEN", sb.String())
}

// Section 7: context blocks.
func (c *Composer) contextSection(in *Inputs) string {
	var sb strings.Builder
	if in.FakeContext.Description != "" {
		sb.WriteString(in.FakeContext.Description + "\n")
	}
	if len(in.ProfileFilter.RelevantUserFacts) > 0 {
		fmt.Fprintf(&sb, "Über den Kunden bekannt: %s\n", strings.Join(in.ProfileFilter.RelevantUserFacts, "; "))
	}
	if in.ProfileFilter.CustomerType != "" {
		sb.WriteString(in.ProfileFilter.CustomerType + "\n")
	}
	if in.Context.Topic != "" {
		fmt.Fprintf(&sb, "Thema: %s, Stimmung: %s\n", in.Context.Topic, in.Context.Flow)
	}
	if in.Style.SampleCount > 0 {
		fmt.Fprintf(&sb, "Dein bisheriger Schreibstil: %s, %s, ~%.0f Wörter/Satz, ~%.0f Sätze/Nachricht\n",
			in.Style.Features.DominantFormality, in.Style.Features.DominantDirectness,
			in.Style.Features.MeanSentenceLength, in.Style.Features.MeanSentenceCount)
	}
	if in.RulesBlocks.PreferredWords != "" {
		sb.WriteString(in.RulesBlocks.PreferredWords + "\n")
	}
	if in.Image.Fired {
		fmt.Fprintf(&sb, "Bild des Kunden: %s (%s)\n", in.Image.Description, in.Image.ImageType)
	}
	if in.Profile.HasProfilePic {
		sb.WriteString("Dein Profil hat ein Profilbild; der Kunde kann es sehen.\n")
	}
	if in.Proactive.Fired {
		sb.WriteString(in.Proactive.Suggestion + "\n")
	}
	if in.Mood.Guidance != "" {
		sb.WriteString(in.Mood.Guidance + "\n")
	}
	return section("KONTEXT", sb.String())
}

// Section 8: customer message.
func (c *Composer) customerMessageSection(in *Inputs) string {
	if in.IsASA || in.CustomerMessage == "" {
		return ""
	}
	body := fmt.Sprintf("Der Kunde schreibt: %q\nAntworte auf GENAU diese Nachricht; ältere Themen nur aufgreifen, wenn der Kunde es tut.", in.CustomerMessage)
	return section("KUNDENNACHRICHT", body)
}

// Section 9: final instructions.
func (c *Composer) finalSection(in *Inputs) string {
	minLen, maxLen := in.Stats.TargetLength(in.Situations)
	body := render("final_instructions.tmpl", map[string]interface{}{
		"MinLength":          minLen,
		"MaxLength":          maxLen,
		"TargetQuestions":    in.Stats.TargetQuestions(in.Situations),
		"FirstMessage":       in.FirstMessage.IsFirstMessage,
		"SexualConversation": in.SexualConversation(),
		"MeetingContext":     in.MeetingContext(),
	})
	return section("ANWEISUNGEN", body)
}

func nonEmpty(sections []string) []string {
	out := sections[:0]
	for _, s := range sections {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

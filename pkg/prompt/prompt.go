// Package prompt composes the generation prompts. Three shapes exist: the
// full structured composer, the simplified global-style composer, and the
// minimal training-format composer for fine-tuned backends. Static text lives
// in embedded templates; each section is a pure function of the inputs it
// consumes.
package prompt

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/kavora-ai/replygen/pkg/agents"
	"github.com/kavora-ai/replygen/pkg/blackboard"
	"github.com/kavora-ai/replygen/pkg/learning"
	"github.com/kavora-ai/replygen/pkg/retrieval"
	"github.com/kavora-ai/replygen/pkg/store"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("prompt").
	Funcs(template.FuncMap{"join": strings.Join}).
	ParseFS(templateFS, "templates/*.tmpl"))

// Inputs is the blackboard snapshot the composers consume. The generator
// reads this snapshot once at composition time; later board writes are
// invisible by design.
type Inputs struct {
	CustomerMessage string
	Conversation    agents.Conversation
	Profile         agents.ProfileInfo
	Rules           *store.Rules

	IsASA      bool
	ASAContext string
	ASAExample *store.Example

	Context       agents.ContextResult
	Situations    []string
	FirstMessage  agents.FirstMessageResult
	Flow          agents.FlowResult
	Ambiguity     agents.AmbiguityResult
	Agreement     agents.AgreementResult
	FakeContext   agents.FakeContextResult
	ProfileFilter agents.ProfileFilterResult
	Style         agents.StyleResult
	Mood          agents.MoodResult
	Proactive     agents.ProactiveResult
	Image         agents.ImageResult
	ExampleIntel  agents.ExampleIntelResult
	Meeting       agents.MeetingResult
	Learning      agents.LearningResult
	Deep          agents.DeepLearningResult
	RuleInterp    agents.RuleInterpreterResult
	RulesBlocks   agents.RulesBlocks
	ContextConn   agents.ContextConnectionResult
	ConvContext   agents.ConversationContextResult
	Synthesis     agents.SynthesisResult

	Retrieval retrieval.Result
	Stats     *learning.Stats
	Board     *blackboard.Board

	// TokenBudget caps the composed prompt; examples are truncated from the
	// tail first.
	TokenBudget int
}

// SexualConversation reports whether the sexual framing is active.
func (in *Inputs) SexualConversation() bool {
	return containsString(in.Situations, agents.SituationSexual) ||
		in.Context.Flow == agents.FlowSexual
}

// MeetingContext reports whether meeting hardening applies.
func (in *Inputs) MeetingContext() bool {
	return containsString(in.Situations, agents.SituationMeeting) || in.Meeting.Fired
}

func render(name string, data interface{}) string {
	var sb strings.Builder
	if err := templates.ExecuteTemplate(&sb, name, data); err != nil {
		// templates are embedded and parsed at init; an execution error is a
		// programming bug surfaced loudly in the prompt
		return fmt.Sprintf("[template %s failed: %v]", name, err)
	}
	return sb.String()
}

func containsString(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}

func section(title, body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	return "=== " + title + " ===\n" + body + "\n"
}

// Package agents implements the analysis agents of the reply pipeline. Each
// agent consumes a typed subset of the request plus prior blackboard content,
// returns a typed result with a Success flag, and is executed through
// pkg/agentrunner so a timeout or error degrades to the agent's documented
// fallback instead of aborting the request.
package agents

import "fmt"

// Name identifies an agent on the blackboard.
type Name string

const (
	NameSafety            Name = "safety"
	NameLanguage          Name = "language"
	NameContext           Name = "context"
	NameProfileFilter     Name = "profile_filter"
	NameSituation         Name = "situation"
	NameFakeContext       Name = "fake_context"
	NameFlow              Name = "conversation_flow"
	NameAmbiguity         Name = "ambiguity"
	NameAgreement         Name = "agreement"
	NameFirstMessage      Name = "first_message"
	NameMetaValidator     Name = "meta_validator"
	NameMultiSituation    Name = "multi_situation"
	NameConversationCtx   Name = "conversation_context"
	NameContextConnection Name = "context_connection"
	NameStyle             Name = "style"
	NameMood              Name = "mood"
	NameProactive         Name = "proactive"
	NameImage             Name = "image"
	NameExampleIntel      Name = "example_intelligence"
	NameMeetingResponse   Name = "meeting_response"
	NameLearning          Name = "learning_integrator"
	NameDeepLearning      Name = "deep_learning"
	NameRuleInterpreter   Name = "rule_interpreter"
	NameRulesApplicator   Name = "rules_applicator"
	NameSynthesizer       Name = "knowledge_synthesizer"
)

// Situation labels of the fixed taxonomy. The rules bundle may add more via
// its situational_responses keys.
const (
	SituationMeeting    = "Treffen/Termine"
	SituationContact    = "Kontaktdaten außerhalb der Plattform"
	SituationPictures   = "Bilder Anfrage"
	SituationMoney      = "Geld/Coins"
	SituationSexual     = "Sexuelle Themen"
	SituationBot        = "Bot-Vorwurf"
	SituationLocation   = "Standort"
	SituationOccupation = "Beruf"
	SituationOuting     = "Moderator-Outing"
)

// situationPriority orders detected situations; lower is more important.
var situationPriority = map[string]int{
	SituationMeeting:    0,
	SituationContact:    1,
	SituationPictures:   2,
	SituationMoney:      3,
	SituationSexual:     4,
	SituationBot:        5,
	SituationLocation:   6,
	SituationOccupation: 7,
	SituationOuting:     8,
}

// Layer is one stage of the agent DAG; agents within a layer may run
// concurrently.
type Layer struct {
	Number int
	Agents []Name
}

// DAG is the immutable layer declaration of §agent ordering. Later layers
// only ever read insights written by earlier layers.
var DAG = []Layer{
	{1, []Name{NameSafety, NameLanguage}},
	{2, []Name{NameContext}},
	{3, []Name{NameProfileFilter, NameSituation, NameFakeContext, NameFlow, NameAmbiguity, NameAgreement, NameFirstMessage}},
	{4, []Name{NameMetaValidator}},
	{5, []Name{NameMultiSituation, NameConversationCtx, NameContextConnection}},
	{6, []Name{NameStyle, NameExampleIntel, NameMeetingResponse, NameLearning, NameDeepLearning, NameMood, NameProactive, NameImage}},
	{7, []Name{NameRuleInterpreter, NameRulesApplicator, NameSynthesizer}},
}

// ValidateDAG asserts the layer declaration is well-formed: no agent appears
// twice and layers are numbered consecutively. Called at engine startup.
func ValidateDAG() error {
	seen := map[Name]int{}
	for i, layer := range DAG {
		if layer.Number != i+1 {
			return fmt.Errorf("layer %d is numbered %d", i+1, layer.Number)
		}
		for _, agent := range layer.Agents {
			if prev, ok := seen[agent]; ok {
				return fmt.Errorf("agent %s appears in layers %d and %d", agent, prev, layer.Number)
			}
			seen[agent] = layer.Number
		}
	}
	return nil
}

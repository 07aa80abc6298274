package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavora-ai/replygen/pkg/agents"
	"github.com/kavora-ai/replygen/pkg/blackboard"
	"github.com/kavora-ai/replygen/pkg/learning"
	"github.com/kavora-ai/replygen/pkg/retrieval"
	"github.com/kavora-ai/replygen/pkg/store"
)

func baseInputs() *Inputs {
	return &Inputs{
		CustomerMessage: "Was machst du morgen? Hast du Zeit?",
		Conversation: agents.Conversation{
			Rendered:          "Du: Erzähl mir von deinem Tag\nKunde: War lang",
			ModeratorMessages: []store.Message{{Text: "Erzähl mir von deinem Tag"}},
			CustomerMessages:  []store.Message{{Text: "War lang"}},
		},
		Profile: agents.ProfileInfo{Name: "Lena", City: "Berlin"},
		Rules: &store.Rules{
			ForbiddenWords:       []string{"treffen"},
			SituationalResponses: map[string]string{agents.SituationMeeting: "Freundlich ablenken."},
		},
		Situations:  []string{agents.SituationMeeting},
		RulesBlocks: agents.RulesBlocks{StyleReminder: "Schreibstil: locker.", ForbiddenWords: "VERBOTENE WÖRTER: treffen"},
		ConvContext: agents.ConversationContextResult{Block: "CHAT-VERLAUF: ..."},
		Retrieval: retrieval.Result{Examples: []retrieval.Scored{
			{Example: store.Example{ID: "e1", CustomerMessage: "Hast du Zeit?", ModeratorResponse: "Schauen wir mal."}, Semantic: 0.8},
		}},
		Stats: &learning.Stats{},
		Board: blackboard.New(),
	}
}

func TestComposer_SectionOrder(t *testing.T) {
	composer := &Composer{}
	in := baseInputs()
	in.ContextConn.OpenQuestions = []string{"Wie alt bist du?"}

	system, user := composer.Compose(in)

	assert.Contains(t, system, "Lena")
	assert.Contains(t, system, "Niemals einem Treffen zusagen")

	// sections appear in the strict priority order
	enforcement := strings.Index(user, "HARTE DURCHSETZUNG")
	rules := strings.Index(user, "KRITISCHE REGELN")
	history := strings.Index(user, "VERLAUF")
	training := strings.Index(user, "TRAININGSDATEN")
	message := strings.Index(user, "KUNDENNACHRICHT")
	final := strings.Index(user, "ANWEISUNGEN")

	require.GreaterOrEqual(t, enforcement, 0)
	require.Greater(t, rules, enforcement)
	require.Greater(t, history, rules)
	require.Greater(t, training, history)
	require.Greater(t, message, training)
	require.Greater(t, final, message)
}

func TestComposer_PriorityMarkers(t *testing.T) {
	composer := &Composer{}
	in := baseInputs()
	for i := 0; i < 7; i++ {
		in.Retrieval.Examples = append(in.Retrieval.Examples, retrieval.Scored{
			Example: store.Example{CustomerMessage: "x", ModeratorResponse: "y"},
		})
	}

	_, user := composer.Compose(in)
	assert.Contains(t, user, "[PRIORITÄT 1]")
	assert.Contains(t, user, "[PRIORITÄT 5]")
	assert.NotContains(t, user, "[PRIORITÄT 6]")
}

func TestComposer_FallbackMode(t *testing.T) {
	composer := &Composer{}
	in := baseInputs()
	in.Retrieval.FallbackMode = true

	_, user := composer.Compose(in)
	assert.Contains(t, user, "keine gut passenden Trainingsdaten")
	assert.NotContains(t, user, "[PRIORITÄT 1]")
}

func TestComposer_ASABlock(t *testing.T) {
	composer := &Composer{}
	in := baseInputs()
	in.IsASA = true
	in.CustomerMessage = ""
	in.ASAExample = &store.Example{ASAMessage: "Hey, ich musste an dich denken. Wie geht es dir?"}

	_, user := composer.Compose(in)
	assert.Contains(t, user, "nahezu wörtlich")
	assert.Contains(t, user, "ich musste an dich denken")
	assert.NotContains(t, user, "KUNDENNACHRICHT")
}

func TestComposer_FinalInstructionsTargets(t *testing.T) {
	composer := &Composer{}
	in := baseInputs()

	_, user := composer.Compose(in)
	assert.Contains(t, user, "150")
	assert.Contains(t, user, "Keine Ausrufezeichen")
	assert.Contains(t, user, "Treffen-Kontext")
}

func TestSimplifiedComposer_Usable(t *testing.T) {
	composer := &SimplifiedComposer{}
	in := baseInputs()
	assert.False(t, composer.Usable(in), "needs a successful style analysis")

	in.Style.Success = true
	in.Style.SampleCount = 8
	assert.True(t, composer.Usable(in))

	in.IsASA = true
	assert.False(t, composer.Usable(in))
}

func TestSimplifiedComposer_Compose(t *testing.T) {
	composer := &SimplifiedComposer{}
	in := baseInputs()
	in.Style.Success = true
	in.Style.SampleCount = 8
	in.Style.Features.MeanSentenceLength = 9
	in.Style.Features.MeanSentenceCount = 2
	in.Style.Features.DominantFormality = "informal"
	in.Style.Features.DominantDirectness = "direct"

	system, user := composer.Compose(in)
	assert.Contains(t, system, "Lena")
	assert.Contains(t, user, "STIL")
	assert.Contains(t, user, "informal")
	assert.Contains(t, user, "Verstehe den Kontext")
}

func TestFineTuneComposer_TrainingFormat(t *testing.T) {
	composer := &FineTuneComposer{}
	in := baseInputs()

	oneShot := &store.Example{CustomerMessage: "Hast du Zeit?", ModeratorResponse: "Schauen wir mal."}
	system, user := composer.Compose(in, oneShot)

	assert.Contains(t, system, "Chat-Moderator")
	assert.Contains(t, user, `Kunde: "Was machst du morgen? Hast du Zeit?"`)
	assert.Contains(t, user, "Antworte als Chat-Moderator.")
	assert.Contains(t, user, "Beispiel:")
	// the minimal shape carries no guidance sections
	assert.NotContains(t, user, "LERNSYSTEM")
	assert.NotContains(t, user, "TRAININGSDATEN")
}

package multistage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavora-ai/replygen/pkg/agents"
	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/llms"
	"github.com/kavora-ai/replygen/pkg/prompt"
	"github.com/kavora-ai/replygen/pkg/store"
)

type routedLLM struct {
	planJSON   string
	selection  string
	generation string
}

func (r *routedLLM) Name() string { return "routed" }

func (r *routedLLM) Complete(ctx context.Context, req capability.CompletionRequest) (string, error) {
	switch {
	case strings.Contains(req.System, "planst eine Chat-Antwort"):
		return r.planJSON, nil
	case strings.Contains(req.System, "Wähle die 1-2 Beispiele"):
		return r.selection, nil
	default:
		return r.generation, nil
	}
}

func (r *routedLLM) CompleteJSON(ctx context.Context, req capability.CompletionRequest) (map[string]interface{}, error) {
	text, err := r.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return llms.ParseJSONObject(text)
}

type cannedSearch struct{ hits []capability.ScoredExample }

func (c cannedSearch) Search(ctx context.Context, query string, opts capability.SearchOptions) ([]capability.ScoredExample, error) {
	return c.hits, nil
}

func inputs(message string) *prompt.Inputs {
	return &prompt.Inputs{
		CustomerMessage: message,
		Conversation: agents.Conversation{
			Rendered:          "Du: Hey\nKunde: " + message,
			ModeratorMessages: []store.Message{{Text: "Hey"}},
			CustomerMessages:  []store.Message{{Text: message}},
		},
		Profile: agents.ProfileInfo{Name: "Lena", City: "Berlin"},
	}
}

func TestStage1Plan(t *testing.T) {
	llm := &routedLLM{planJSON: `{"topic": "alltag", "summary": "s", "key_points": ["tag"],
		"detected_situations": ["Beruf"], "critical_instructions": [],
		"new_information": [], "open_questions": [], "is_ongoing_conversation": true}`}
	pipeline := &Pipeline{LLM: llm, Classify: agents.KeywordClassifiers{}}

	plan, err := pipeline.Stage1Plan(context.Background(), inputs("Was arbeitest du?"), "")
	require.NoError(t, err)
	assert.Equal(t, "alltag", plan.Topic)
	assert.Equal(t, []string{"Beruf"}, plan.DetectedSituations)
	assert.False(t, plan.LocationError)
}

func TestStage1Plan_LocationHandoff(t *testing.T) {
	llm := &routedLLM{planJSON: `{"topic": "standort"}`}
	pipeline := &Pipeline{LLM: llm, Classify: agents.KeywordClassifiers{}}

	in := inputs("Woher kommst du denn?")
	in.Profile.City = ""
	plan, err := pipeline.Stage1Plan(context.Background(), in, "")
	require.NoError(t, err)
	assert.True(t, plan.LocationError)
}

func TestStage2SelectExamples(t *testing.T) {
	llm := &routedLLM{selection: `{"indices": [2]}`}
	search := cannedSearch{hits: []capability.ScoredExample{
		{Example: store.Example{ID: "a", CustomerMessage: "x", ModeratorResponse: "1"}},
		{Example: store.Example{ID: "b", CustomerMessage: "y", ModeratorResponse: "2"}},
	}}
	pipeline := &Pipeline{LLM: llm, Search: search}

	selected, err := pipeline.Stage2SelectExamples(context.Background(), Plan{}, "hi")
	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, "b", selected[0].ID)
}

func TestStage4_FineTunedPathSkipsValidation(t *testing.T) {
	pipeline := &Pipeline{LLM: &routedLLM{}}
	draft := "So ein Tag heute. Wie war deiner?"
	out, err := pipeline.Stage4Validate(context.Background(), draft, Plan{}, inputs("hi"), true)
	require.NoError(t, err)
	assert.Equal(t, draft, out)
}

func TestTrimToSentence(t *testing.T) {
	assert.Equal(t, "Eins. Zwei.", trimToSentence("Eins. Zwei. Drei ohne Ende"))
	assert.Equal(t, "Wie geht es dir?", trimToSentence("Wie geht es dir? Und da"))
}

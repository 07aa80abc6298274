package generate

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/learning"
	"github.com/kavora-ai/replygen/pkg/llms"
	"github.com/kavora-ai/replygen/pkg/retrieval"
	"github.com/kavora-ai/replygen/pkg/store"
)

type genLLM struct {
	reply         string
	semanticScore string
	completions   int
}

func (g *genLLM) Name() string { return "gen" }

func (g *genLLM) Complete(ctx context.Context, req capability.CompletionRequest) (string, error) {
	if strings.Contains(req.System, "prüfst") {
		return g.semanticScore, nil
	}
	g.completions++
	return g.reply, nil
}

func (g *genLLM) CompleteJSON(ctx context.Context, req capability.CompletionRequest) (map[string]interface{}, error) {
	text, err := g.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return llms.ParseJSONObject(text)
}

type flatEmbedder struct{}

func (flatEmbedder) Dimension() int { return 8 }

func (flatEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 8)
	for _, r := range text {
		vec[int(r)%8]++
	}
	return vec, nil
}

func (f flatEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = f.Embed(ctx, t)
	}
	return out, nil
}

const reply = "Gerade ist bei mir viel los, lass uns doch erstmal weiter schreiben und uns in Ruhe besser kennenlernen, das finde ich gerade wirklich schöner so. Was hast du denn am Wochenende vor?"

func statsWithData() *learning.Stats {
	return learning.Derive(&store.FeedbackData{Feedbacks: []store.Feedback{
		{Label: store.FeedbackGood, Situation: "allgemein", Response: reply, ExampleID: "e1"},
		{Label: store.FeedbackGood, Situation: "allgemein", Response: "Erzähl mir gerne mehr von deinem Tag. Was war das Beste daran?", ExampleID: "e1"},
	}})
}

func newGenerator(llm *genLLM, stats *learning.Stats) *Generator {
	return &Generator{
		LLM:      llm,
		Embedder: flatEmbedder{},
		Stats:    stats,
		Scorer: &QualityScorer{
			LLM:      llm,
			Embedder: flatEmbedder{},
			Stats:    stats,
			Rules:    &store.Rules{ForbiddenWords: []string{"whatsapp"}},
		},
	}
}

func TestGenerate_MultiCandidateFanOut(t *testing.T) {
	llm := &genLLM{reply: reply, semanticScore: `{"score": 20, "reason": "ok"}`}
	generator := newGenerator(llm, statsWithData())

	result, err := generator.Generate(context.Background(), Params{
		System:          "sys",
		User:            "user",
		CustomerMessage: "Wie war dein Tag?",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Candidates)
	assert.Equal(t, 3, llm.completions, "three parallel temperatures")
	assert.NotEmpty(t, result.Message)
	assert.False(t, result.Retried)
}

func TestGenerate_SingleWhenNoLearningData(t *testing.T) {
	llm := &genLLM{reply: reply, semanticScore: `{"score": 20, "reason": "ok"}`}
	generator := newGenerator(llm, &learning.Stats{})

	result, err := generator.Generate(context.Background(), Params{System: "sys", User: "user"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Candidates)
	assert.Equal(t, 1, llm.completions)
}

func TestGenerate_SingleInFallbackMode(t *testing.T) {
	llm := &genLLM{reply: reply, semanticScore: `{"score": 20, "reason": "ok"}`}
	generator := newGenerator(llm, statsWithData())

	result, err := generator.Generate(context.Background(), Params{System: "sys", User: "user", FallbackMode: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Candidates)
}

func TestGenerate_SemanticRetry(t *testing.T) {
	llm := &genLLM{reply: reply, semanticScore: `{"score": 5, "reason": "am Thema vorbei"}`}
	generator := newGenerator(llm, statsWithData())

	result, err := generator.Generate(context.Background(), Params{System: "sys", User: "user"})
	require.NoError(t, err)
	// all candidates fail the 12.5 threshold; the context retry and the
	// final rewrite retry both fail too, and the best original is kept
	assert.NotEmpty(t, result.Message)
	assert.Equal(t, 5, llm.completions, "three candidates plus two retries")
}

func TestQualityScorer_RulesCompliance(t *testing.T) {
	scorer := &QualityScorer{Rules: &store.Rules{ForbiddenWords: []string{"whatsapp"}}, Stats: &learning.Stats{}}

	clean := scorer.rulesCompliance("Alles gut bei dir? Erzähl mal.")
	dirty := scorer.rulesCompliance("Schreib mir auf WhatsApp! Na?")
	assert.Greater(t, clean, dirty)
	assert.Equal(t, 25.0, clean)
}

func TestQualityDetails_TotalCap(t *testing.T) {
	details := QualityDetails{
		TrainingDataUsage:   25,
		ContextUsage:        25,
		RulesCompliance:     25,
		LearningSystemUsage: 25,
		SemanticValidation:  25,
	}
	assert.Equal(t, 100.0, details.Total())
}

func TestBuildScoringCache(t *testing.T) {
	cache := BuildScoringCache(context.Background(), flatEmbedder{}, []retrieval.Scored{
		{Example: store.Example{ModeratorResponse: "Antwort eins hier."}},
		{Example: store.Example{ModeratorResponse: "Antwort zwei hier."}},
	}, statsWithData(), nil)

	assert.Len(t, cache.ExampleTexts, 2)
	assert.Len(t, cache.ExampleVectors, 2)
	assert.NotEmpty(t, cache.PatternVectors)
	assert.Greater(t, cache.ExampleStyle.MeanSentenceLength, 0.0)
}

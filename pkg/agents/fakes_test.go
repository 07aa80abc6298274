package agents

import (
	"context"
	"errors"

	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/llms"
)

// fakeLLM returns canned JSON/text responses for agent tests.
type fakeLLM struct {
	response string
	err      error
	calls    int
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Complete(ctx context.Context, req capability.CompletionRequest) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeLLM) CompleteJSON(ctx context.Context, req capability.CompletionRequest) (map[string]interface{}, error) {
	text, err := f.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return llms.ParseJSONObject(text)
}

var errFake = errors.New("fake llm unavailable")

// fakeEmbedder embeds texts as sparse marker vectors so cosine similarity is
// predictable: identical texts score 1, disjoint texts 0.
type fakeEmbedder struct{}

func (fakeEmbedder) Dimension() int { return 64 }

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 64)
	for _, r := range text {
		vec[int(r)%64]++
	}
	return vec, nil
}

func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, _ := f.Embed(ctx, t)
		out[i] = vec
	}
	return out, nil
}

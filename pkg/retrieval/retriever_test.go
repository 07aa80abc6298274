package retrieval

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavora-ai/replygen/pkg/agents"
	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/learning"
	"github.com/kavora-ai/replygen/pkg/store"
)

// fakeSearch records calls and returns canned hits.
type fakeSearch struct {
	hits  []capability.ScoredExample
	calls []capability.SearchOptions
}

func (f *fakeSearch) Search(ctx context.Context, query string, opts capability.SearchOptions) ([]capability.ScoredExample, error) {
	f.calls = append(f.calls, opts)
	if opts.Situation != "" {
		var filtered []capability.ScoredExample
		for _, hit := range f.hits {
			if hit.Example.Situation == opts.Situation {
				filtered = append(filtered, hit)
			}
		}
		return filtered, nil
	}
	return f.hits, nil
}

func hits() []capability.ScoredExample {
	return []capability.ScoredExample{
		{Example: store.Example{ID: "m1", CustomerMessage: "wollen wir uns treffen", ModeratorResponse: "Schauen wir mal wann es klappt", Situation: agents.SituationMeeting}, Similarity: 0.9},
		{Example: store.Example{ID: "g1", CustomerMessage: "wie geht es dir", ModeratorResponse: "Gut und dir?", Situation: "allgemein"}, Similarity: 0.7},
		{Example: store.Example{ID: "g2", CustomerMessage: "was machst du", ModeratorResponse: "Gerade Feierabend", Situation: "allgemein"}, Similarity: 0.5},
	}
}

func TestBuildQuery_MeetingPrefix(t *testing.T) {
	query := BuildQuery("general", []string{"Zeit morgen"}, "Hast du morgen Zeit?", []string{agents.SituationMeeting})
	assert.True(t, strings.HasPrefix(query, meetingQueryPrefix))
	assert.Contains(t, query, "Hast du morgen Zeit?")
	assert.Contains(t, query, "ablenken")
}

func TestBuildQuery_TruncatesLongMessage(t *testing.T) {
	long := strings.Repeat("a", 300)
	query := BuildQuery("", nil, long, nil)
	assert.Less(t, len(query), 200)
}

func TestRetrieve_MeetingDualSearch(t *testing.T) {
	search := &fakeSearch{hits: hits()}
	retriever := &Retriever{Search: search, Stats: &learning.Stats{}}

	result, err := retriever.Retrieve(context.Background(), Params{
		CustomerMessage: "wollen wir uns treffen",
		Situations:      []string{agents.SituationMeeting},
	})
	require.NoError(t, err)
	require.Len(t, search.calls, 2)

	var filtered, unfiltered bool
	for _, call := range search.calls {
		if call.Situation == agents.SituationMeeting {
			assert.Equal(t, meetingFilteredTopK, call.TopK)
			filtered = true
		} else {
			assert.Equal(t, meetingUnfilteredTopK, call.TopK)
			unfiltered = true
		}
	}
	assert.True(t, filtered)
	assert.True(t, unfiltered)
	assert.NotEmpty(t, result.Examples)
}

func TestRetrieve_DefaultSearch(t *testing.T) {
	search := &fakeSearch{hits: hits()}
	retriever := &Retriever{Search: search, Stats: &learning.Stats{}}

	_, err := retriever.Retrieve(context.Background(), Params{CustomerMessage: "wie geht es dir"})
	require.NoError(t, err)
	require.Len(t, search.calls, 1)
	assert.Equal(t, defaultTopK, search.calls[0].TopK)
	assert.Equal(t, defaultMinSimilarity, search.calls[0].MinSimilarity)
}

func TestAdaptiveWeights(t *testing.T) {
	stats := &learning.Stats{ExamplePerformance: map[string]map[string]learning.ExamplePerf{
		"m1": {"allgemein": {Good: 4, Bad: 0, Total: 4, SuccessRate: 1.0}},
		"g1": {"allgemein": {Good: 3, Bad: 1, Total: 4, SuccessRate: 0.75}},
	}}
	retriever := &Retriever{Stats: stats}

	weights := retriever.adaptiveWeights(hits(), Params{})
	// both examples with feedback are good -> feedback-heavy blend
	assert.Equal(t, Weights{Semantic: 0.3, Feedback: 0.5, Context: 0.2}, weights)

	badStats := &learning.Stats{ExamplePerformance: map[string]map[string]learning.ExamplePerf{
		"m1": {"allgemein": {Good: 0, Bad: 4, Total: 4, SuccessRate: 0.0}},
	}}
	retriever = &Retriever{Stats: badStats}
	weights = retriever.adaptiveWeights(hits(), Params{})
	assert.Equal(t, Weights{Semantic: 0.5, Feedback: 0.3, Context: 0.2}, weights)

	retriever = &Retriever{Stats: &learning.Stats{}}
	weights = retriever.adaptiveWeights(hits(), Params{})
	assert.Equal(t, Weights{Semantic: 0.5, Feedback: 0.3, Context: 0.2}, weights)
}

func TestContextScore_SituationMatch(t *testing.T) {
	retriever := &Retriever{Stats: &learning.Stats{}}
	matching := retriever.contextScore(store.Example{Situation: agents.SituationMeeting}, Params{}, agents.SituationMeeting)
	other := retriever.contextScore(store.Example{Situation: "allgemein"}, Params{}, agents.SituationMeeting)
	assert.Greater(t, matching, other)
}

func TestFallbackMode(t *testing.T) {
	retriever := &Retriever{Stats: &learning.Stats{}}

	weak := []Scored{{Example: store.Example{CustomerMessage: "x", ModeratorResponse: "y"}, Semantic: 0.3}}
	assert.True(t, retriever.fallbackMode(weak, Params{}))

	strong := []Scored{{Example: store.Example{CustomerMessage: "x", ModeratorResponse: "y"}, Semantic: 0.8}}
	assert.False(t, retriever.fallbackMode(strong, Params{}))

	// first messages never enter fallback mode
	assert.False(t, retriever.fallbackMode(weak, Params{IsFirstMessage: true}))

	// a big examples block blocks fallback regardless of similarity
	big := []Scored{{Example: store.Example{
		CustomerMessage:   strings.Repeat("k", 300),
		ModeratorResponse: strings.Repeat("m", 300),
	}, Semantic: 0.3}}
	assert.False(t, retriever.fallbackMode(big, Params{}))
}

func TestFeedbackScore_LegacyFallback(t *testing.T) {
	feedback := &store.FeedbackData{Feedbacks: []store.Feedback{
		{Label: store.FeedbackGood, ExampleID: "legacy-1", Response: "x"},
		{Label: store.FeedbackGood, ExampleID: "legacy-1", Response: "y"},
	}}
	retriever := &Retriever{Stats: &learning.Stats{}, Feedback: feedback}

	score, weighted := retriever.feedbackScore(store.Example{ID: "legacy-1"}, "allgemein")
	assert.True(t, weighted)
	assert.InDelta(t, 0.5, score, 0.01) // full success discounted by 0.5

	score, weighted = retriever.feedbackScore(store.Example{ID: "unknown"}, "allgemein")
	assert.False(t, weighted)
	assert.Equal(t, 0.5, score)
}

package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSituationEmbeddings_WarmOnce(t *testing.T) {
	cache := NewSituationEmbeddings(fakeEmbedder{})
	require.NoError(t, cache.Warm(context.Background()))
	require.NoError(t, cache.Warm(context.Background()))

	cache.mu.RLock()
	defer cache.mu.RUnlock()
	assert.Len(t, cache.vectors, len(situationSeedPhrases))
}

func TestSituationEmbeddings_MatchesSeedPhrase(t *testing.T) {
	cache := NewSituationEmbeddings(fakeEmbedder{})

	// a seed phrase embeds identically to itself, so its situation must hit
	hits, err := cache.Match(context.Background(), "wollen wir uns treffen")
	require.NoError(t, err)
	assert.Contains(t, hits, SituationMeeting)
	assert.GreaterOrEqual(t, hits[SituationMeeting], situationEmbedSimilarity)
}

package retrieval

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavora-ai/replygen/pkg/learning"
	"github.com/kavora-ai/replygen/pkg/store"
)

func asaPool(n int) []store.Example {
	pool := make([]store.Example, n)
	for i := range pool {
		pool[i] = store.Example{
			ID:         fmt.Sprintf("asa-%d", i),
			ASAMessage: fmt.Sprintf("Hey du, ich musste gerade an dich denken, Nummer %d. Wie geht es dir denn so?", i),
		}
	}
	return pool
}

func TestASASelector_NoBackToBackRepeat(t *testing.T) {
	selector := NewASASelector(0.5)
	selector.SetSeed(42)
	pool := asaPool(5)
	stats := &learning.Stats{}

	last := ""
	for i := 0; i < 200; i++ {
		pick, err := selector.Select("persona-1", pool, stats)
		require.NoError(t, err)
		signature := Signature(pick.Response())
		assert.NotEqual(t, last, signature, "consecutive picks must differ")
		last = signature
	}
}

func TestASASelector_UniformMarginal(t *testing.T) {
	selector := NewASASelector(0.5)
	selector.SetSeed(7)
	pool := asaPool(4)
	stats := &learning.Stats{}

	counts := map[string]int{}
	const draws = 4000
	for i := 0; i < draws; i++ {
		pick, err := selector.Select("persona-u", pool, stats)
		require.NoError(t, err)
		counts[pick.ID]++
	}

	expected := draws / len(pool)
	for id, count := range counts {
		assert.InDelta(t, expected, count, float64(expected)*0.25, "id %s drawn %d times", id, count)
	}
}

func TestASASelector_SeparatePersonas(t *testing.T) {
	selector := NewASASelector(0.5)
	selector.SetSeed(1)
	pool := asaPool(2)
	stats := &learning.Stats{}

	// last-pick memory is per persona; the same example may follow for a
	// different persona
	a, err := selector.Select("p1", pool, stats)
	require.NoError(t, err)
	b, err := selector.Select("p2", pool, stats)
	require.NoError(t, err)
	_ = a
	_ = b // both calls must simply succeed independently
}

func TestASASelector_GreetingFilter(t *testing.T) {
	selector := NewASASelector(0.5)
	selector.SetSeed(3)

	pool := []store.Example{
		{ID: "bad-greeting", ASAMessage: "Huhu, na du, lange nichts gehört von dir?"},
		{ID: "good", ASAMessage: "Hey, ich musste gerade an dich denken. Wie läuft deine Woche so?"},
	}
	stats := &learning.Stats{WordFrequencies: map[string]map[string]learning.WordScore{
		"allgemein": {"huhu": {Good: 1, Bad: 5}},
	}}

	for i := 0; i < 50; i++ {
		pick, err := selector.Select(fmt.Sprintf("p-%d", i), pool, stats)
		require.NoError(t, err)
		assert.Equal(t, "good", pick.ID)
	}
}

func TestASASelector_EmptyPool(t *testing.T) {
	selector := NewASASelector(0.5)
	_, err := selector.Select("p", nil, &learning.Stats{})
	assert.Error(t, err)
}

func TestSignature(t *testing.T) {
	sig := Signature("hallo")
	assert.Len(t, sig, 16)
	assert.Equal(t, sig, Signature("hallo"))
	assert.NotEqual(t, sig, Signature("hallo!"))
}

package blackboard

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoard_WriteAndRead(t *testing.T) {
	board := New()

	board.Write("context", []string{"topic: general"}, []string{"keep it light"}, map[string]string{"topic": "general"})

	insight, ok := board.Read("context")
	require.True(t, ok)
	assert.Equal(t, []string{"topic: general"}, insight.Insights)
	assert.Equal(t, []string{"keep it light"}, insight.Recommendations)
	assert.False(t, insight.Timestamp.IsZero())

	_, ok = board.Read("unknown")
	assert.False(t, ok)
}

func TestBoard_PriorityOrdering(t *testing.T) {
	board := New()
	board.AddPriority("low first", PriorityLow, "a")
	board.AddPriority("high later", PriorityHigh, "b")
	board.AddPriority("medium", PriorityMedium, "c")
	board.AddPriority("second high", PriorityHigh, "d")

	guidance := board.Priority(nil)
	require.Len(t, guidance, 4)
	assert.Equal(t, "high later", guidance[0].Guidance)
	assert.Equal(t, "second high", guidance[1].Guidance)
	assert.Equal(t, PriorityMedium, guidance[2].Priority)
	assert.Equal(t, PriorityLow, guidance[3].Priority)
}

func TestBoard_PriorityFilter(t *testing.T) {
	board := New()
	board.AddPriority("keep", PriorityHigh, "wanted")
	board.AddPriority("drop", PriorityHigh, "other")

	guidance := board.Priority(func(g Guidance) bool { return g.Source == "wanted" })
	require.Len(t, guidance, 1)
	assert.Equal(t, "keep", guidance[0].Guidance)
}

func TestBoard_ContextualPatternsAndFeedback(t *testing.T) {
	board := New()
	board.AddContextualPattern("Treffen/Termine", "schauen wir mal", KindPattern)
	board.AddContextualPattern("Treffen/Termine", "vielleicht", KindWord)
	board.AddFeedback("Treffen/Termine", "zusagen", FeedbackAvoid)

	patterns := board.ContextualPatterns()
	require.Contains(t, patterns, "Treffen/Termine")
	assert.Equal(t, []string{"schauen wir mal"}, patterns["Treffen/Termine"].Patterns)
	assert.Equal(t, []string{"vielleicht"}, patterns["Treffen/Termine"].Words)

	feedback := board.Feedback()
	assert.Equal(t, []string{"zusagen"}, feedback["Treffen/Termine"].Avoid)
}

func TestBoard_ConcurrentWrites(t *testing.T) {
	board := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			board.Write(fmt.Sprintf("agent-%d", n), []string{"x"}, nil, nil)
			board.AddPriority("g", PriorityMedium, "s")
		}(i)
	}
	wg.Wait()

	assert.Len(t, board.ReadAll(), 50)
	assert.Len(t, board.Priority(nil), 50)
}

func TestBoard_Synthesized(t *testing.T) {
	board := New()
	assert.Empty(t, board.Synthesized())
	board.SetSynthesized("summary")
	assert.Equal(t, "summary", board.Synthesized())
}

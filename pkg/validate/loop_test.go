package validate

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavora-ai/replygen/pkg/agents"
	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/store"
)

// scriptedLLM returns queued responses in order.
type scriptedLLM struct {
	responses []string
	calls     int
}

func (s *scriptedLLM) Name() string { return "scripted" }

func (s *scriptedLLM) Complete(ctx context.Context, req capability.CompletionRequest) (string, error) {
	s.calls++
	if len(s.responses) == 0 {
		return "", context.DeadlineExceeded
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	return next, nil
}

func (s *scriptedLLM) CompleteJSON(ctx context.Context, req capability.CompletionRequest) (map[string]interface{}, error) {
	return nil, context.DeadlineExceeded
}

const cleanReply = "Gerade ist bei mir echt viel los, lass uns doch erstmal weiter schreiben und uns besser kennenlernen. Was hast du am Wochenende denn so gemacht?"

func TestLoop_CleanReplyPassesUntouched(t *testing.T) {
	llm := &scriptedLLM{}
	loop := &Loop{LLM: llm, MaxTotalRewrites: 5}

	outcome := loop.Run(context.Background(), cleanReply, &Context{})
	assert.False(t, outcome.Failed)
	assert.Equal(t, cleanReply, outcome.Message)
	assert.Zero(t, outcome.Rewrites)
	assert.Zero(t, llm.calls)
}

func TestLoop_ForbiddenWordRewritten(t *testing.T) {
	llm := &scriptedLLM{responses: []string{cleanReply}}
	loop := &Loop{LLM: llm, MaxTotalRewrites: 5}
	vctx := &Context{ForbiddenWords: BuildForbiddenWords(&store.Rules{ForbiddenWords: []string{"whatsapp"}})}

	dirty := "Schreib mir doch auf WhatsApp, da bin ich schneller. Was machst du heute noch so den ganzen Abend lang bei dir zuhause?"
	outcome := loop.Run(context.Background(), dirty, vctx)

	assert.False(t, outcome.Failed)
	assert.Equal(t, 1, outcome.Rewrites)
	assert.NotContains(t, strings.ToLower(outcome.Message), "whatsapp")
}

func TestLoop_ExhaustedNonMetaFails(t *testing.T) {
	// every rewrite still contains the forbidden word
	dirty := "Schreib mir auf WhatsApp bitte, da können wir viel besser und schneller schreiben als hier auf der Plattform. Was meinst du dazu denn so?"
	llm := &scriptedLLM{responses: []string{dirty, dirty, dirty, dirty, dirty}}
	loop := &Loop{LLM: llm, MaxTotalRewrites: 5}
	vctx := &Context{ForbiddenWords: BuildForbiddenWords(&store.Rules{ForbiddenWords: []string{"whatsapp"}})}

	outcome := loop.Run(context.Background(), dirty, vctx)
	assert.True(t, outcome.Failed)
	assert.Contains(t, outcome.FailReason, "Kritische Regelverstöße")
}

func TestLoop_MetaOnlyExhaustionAccepted(t *testing.T) {
	meta := "Das klingt wirklich spannend bei dir und ich freue mich sehr darüber, dass du mir das alles so offen und ehrlich erzählst. Was machst du denn sonst noch so?"
	llm := &scriptedLLM{responses: []string{meta, meta}}
	loop := &Loop{LLM: llm, MaxTotalRewrites: 5}

	outcome := loop.Run(context.Background(), meta, &Context{})
	assert.False(t, outcome.Failed, "meta-commentary alone is accepted with a warning")
	assert.NotEmpty(t, outcome.Warnings)
	assert.Equal(t, 2, outcome.Rewrites, "meta-commentary budget is two rewrites")
}

func TestLoop_GlobalCeiling(t *testing.T) {
	dirty := "Das klingt spannend. Schreib mir auf WhatsApp, wann können wir uns treffen? Ich hole dich ab, das wird bestimmt richtig schön mit uns beiden zusammen."
	llm := &scriptedLLM{responses: []string{dirty, dirty, dirty, dirty, dirty, dirty, dirty, dirty}}
	loop := &Loop{LLM: llm, MaxTotalRewrites: 5}
	vctx := &Context{ForbiddenWords: BuildForbiddenWords(&store.Rules{ForbiddenWords: []string{"whatsapp"}})}

	outcome := loop.Run(context.Background(), dirty, vctx)
	assert.LessOrEqual(t, outcome.Rewrites, 5)
}

func TestLoop_ContradictionOnlyWarns(t *testing.T) {
	llm := &scriptedLLM{}
	loop := &Loop{LLM: llm, MaxTotalRewrites: 5}
	vctx := &Context{Consensus: []agents.ConsensusEntry{
		{Statement: "beide mögen italienisches Essen", Polarity: "agreed"},
	}}

	reply := "Italienisches Essen mag ich eigentlich nicht so, beide Sorten Pasta finde ich schwierig. Was isst du denn am liebsten, wenn du ausgehst?"
	outcome := loop.Run(context.Background(), reply, vctx)
	assert.False(t, outcome.Failed, "contradictions log but never block")
	require.NotEmpty(t, outcome.Warnings)
	assert.Zero(t, llm.calls)
}

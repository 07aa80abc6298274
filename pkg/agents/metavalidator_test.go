package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavora-ai/replygen/pkg/blackboard"
)

func TestMetaValidator_FirstMessageDropsSexual(t *testing.T) {
	validator := &MetaValidator{}
	board := blackboard.New()

	result, err := validator.Run(context.Background(), "",
		ContextResult{Topic: TopicSexual, Flow: FlowSexual},
		SituationResult{Situations: []string{SituationSexual, SituationLocation}},
		FirstMessageResult{IsFirstMessage: true},
		board)
	require.NoError(t, err)

	assert.NotContains(t, result.Situations, SituationSexual)
	assert.Contains(t, result.Situations, SituationLocation)
	assert.True(t, result.ShouldBlockSexual)

	guidance := board.Priority(nil)
	require.NotEmpty(t, guidance)
	assert.Equal(t, blackboard.PriorityHigh, guidance[0].Priority)
}

func TestMetaValidator_HarmlessCollocation(t *testing.T) {
	validator := &MetaValidator{}
	result, err := validator.Run(context.Background(),
		"evtl ziehen wir uns ja an, wer weiss",
		ContextResult{Topic: TopicSexual, Flow: FlowSexual},
		SituationResult{Situations: []string{SituationSexual}},
		FirstMessageResult{},
		nil)
	require.NoError(t, err)
	assert.Empty(t, result.Situations)
	assert.Equal(t, "harmless collocation", result.DroppedSexualReason)
}

func TestMetaValidator_ConservativeTieBreak(t *testing.T) {
	validator := &MetaValidator{}
	result, err := validator.Run(context.Background(),
		"was machst du heute",
		ContextResult{Topic: TopicGeneral, Flow: FlowNeutral},
		SituationResult{Situations: []string{SituationSexual}},
		FirstMessageResult{},
		nil)
	require.NoError(t, err)
	assert.NotContains(t, result.Situations, SituationSexual)
}

func TestMetaValidator_KeepsSupportedSexual(t *testing.T) {
	validator := &MetaValidator{}
	result, err := validator.Run(context.Background(),
		"ich bin so geil auf dich",
		ContextResult{Topic: TopicSexual, Flow: FlowSexual},
		SituationResult{Situations: []string{SituationSexual}},
		FirstMessageResult{},
		nil)
	require.NoError(t, err)
	assert.Contains(t, result.Situations, SituationSexual)
	assert.False(t, result.ShouldBlockSexual)
}

package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavora-ai/replygen/pkg/store"
)

func TestFirstMessageDetector(t *testing.T) {
	detector := &FirstMessageDetector{Classifiers: KeywordClassifiers{}}

	tests := []struct {
		name      string
		message   string
		history   []store.Message
		wantFirst bool
		wantKind  FirstMessageKind
	}{
		{
			name:      "empty history and message",
			wantFirst: true,
			wantKind:  FirstKindPlain,
		},
		{
			name:      "like notice only",
			history:   []store.Message{{Text: "Hat dich geliked", Type: "info"}},
			wantFirst: true,
			wantKind:  FirstKindLike,
		},
		{
			name:      "kiss notice only",
			history:   []store.Message{{Text: "Hat dir einen Kuss gesendet", Type: "info"}},
			wantFirst: true,
			wantKind:  FirstKindKiss,
		},
		{
			name:      "written history exists",
			history:   []store.Message{{Text: "Hallo, wie geht es dir?"}},
			wantFirst: false,
		},
		{
			name:      "inbound message present",
			message:   "Hey du",
			wantFirst: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := Conversation{CustomerMessages: tt.history}
			result, err := detector.Run(context.Background(), tt.message, conv)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFirst, result.IsFirstMessage)
			if tt.wantFirst {
				assert.Equal(t, tt.wantKind, result.Kind)
				assert.Contains(t, result.Instruction, "KEINE Selbstvorstellung")
				assert.Contains(t, result.Instruction, "150")
			}
		})
	}
}

func TestFirstMessageInstruction_NoSexualContent(t *testing.T) {
	for _, kind := range []FirstMessageKind{FirstKindKiss, FirstKindLike, FirstKindPlain} {
		instruction := firstMessageInstruction(kind)
		assert.Contains(t, instruction, "KEINE sexuellen Inhalte")
		assert.Contains(t, instruction, "KEINE Treffen-Andeutungen")
	}
}

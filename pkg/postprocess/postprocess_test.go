package postprocess

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcess_Normalization(t *testing.T) {
	long := "Hallo, wie geht es dir denn heute so? Ich habe gerade an dich gedacht und wollte hören, wie dein Tag war und ob du schon Pläne hast."

	tests := []struct {
		name  string
		input string
		check func(t *testing.T, out Result)
	}{
		{
			name:  "strips surrounding quotes",
			input: `"` + long + `"`,
			check: func(t *testing.T, out Result) {
				assert.False(t, strings.HasPrefix(out.Text, `"`))
				assert.False(t, strings.HasSuffix(out.Text, `"`))
			},
		},
		{
			name:  "replaces sharp s",
			input: strings.Replace(long, "wie geht es", "ich weiß wie es", 1),
			check: func(t *testing.T, out Result) {
				assert.NotContains(t, out.Text, "ß")
				assert.Contains(t, out.Text, "weiss")
			},
		},
		{
			name:  "replaces exclamation marks",
			input: strings.Replace(long, "gedacht und", "gedacht! Und", 1),
			check: func(t *testing.T, out Result) {
				assert.NotContains(t, out.Text, "!")
			},
		},
		{
			name:  "collapses question mark runs",
			input: strings.Replace(long, "heute so?", "heute so???", 1),
			check: func(t *testing.T, out Result) {
				assert.NotContains(t, out.Text, "??")
			},
		},
		{
			name:  "replaces hyphens with spaces",
			input: strings.Replace(long, "wie dein Tag", "wie dein Feierabend-Tag", 1),
			check: func(t *testing.T, out Result) {
				assert.NotContains(t, out.Text, "-")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Process(tt.input, Options{})
			require.True(t, out.Success)
			tt.check(t, out)
		})
	}
}

func TestProcess_MinLengthGuard(t *testing.T) {
	out := Process("Zu kurz.", Options{TargetMaxLength: 160})
	if out.Success {
		// a successful result must satisfy the length floor
		assert.GreaterOrEqual(t, len([]rune(out.Text)), MinLength)
	} else {
		assert.Empty(t, out.Text)
	}
}

func TestProcess_EmptyInput(t *testing.T) {
	out := Process("", Options{})
	assert.False(t, out.Success)
	assert.Empty(t, out.Text)
}

func TestProcess_EnsuresQuestion(t *testing.T) {
	input := "Ich hatte heute einen langen Tag auf der Arbeit und bin gerade erst nach Hause gekommen. Jetzt mache ich es mir mit einem Tee gemütlich und entspanne ein bisschen auf dem Sofa."
	out := Process(input, Options{})
	require.True(t, out.Success)
	assert.Contains(t, out.Text, "?")
}

func TestProcess_QuestionReduction(t *testing.T) {
	input := "Wie war dein Tag heute eigentlich so? Hast du schon gegessen? Was machst du am Wochenende? Ich war heute lange arbeiten und bin jetzt ziemlich kaputt, aber ich wollte unbedingt noch von dir hören."
	out := Process(input, Options{TargetQuestions: 1})
	require.True(t, out.Success)
	if len([]rune(out.Text)) >= MinLength {
		assert.LessOrEqual(t, strings.Count(out.Text, "?"), 2)
	}
}

func TestProcess_Idempotent(t *testing.T) {
	inputs := []string{
		`"Hallo! Wie geht's dir?? Ich habe heute viel erlebt und würde dir gerne alles erzählen, wenn du magst. Es war wirklich ein aufregender Tag für mich - ehrlich."`,
		"Ich weiß nicht, was ich sagen soll! Aber du bist mir wichtig und ich denke oft an dich. Erzähl mir doch mal, wie dein Tag so war und was du heute erlebt hast?",
	}
	opts := Options{TargetQuestions: 1, TargetMaxLength: 250}

	for _, input := range inputs {
		first := Process(input, opts)
		require.True(t, first.Success)
		second := Process(first.Text, opts)
		require.True(t, second.Success)
		assert.Equal(t, first.Text, second.Text)
	}
}

func TestProcess_IdempotentWithSentenceTarget(t *testing.T) {
	// A short input already at the sentence target gains an extension; the
	// second pass must not trim the result into something different.
	input := "Ich war heute ziemlich lange arbeiten und bin müde. Jetzt liege ich mit einem Tee auf dem Sofa. Wie war dein Tag denn so?"
	opts := Options{TargetSentences: 3, TargetQuestions: 1, TargetMaxLength: 250}

	first := Process(input, opts)
	require.True(t, first.Success)
	second := Process(first.Text, opts)
	require.True(t, second.Success)
	assert.Equal(t, first.Text, second.Text)

	// and the extension respects the length ceiling when one fits
	assert.LessOrEqual(t, len([]rune(first.Text)), opts.TargetMaxLength+20)
}

func TestNormalize(t *testing.T) {
	out := Normalize(`"Na süße! Wie läufts??"`)
	assert.Equal(t, "Na süsse. Wie läufts?", out)
}

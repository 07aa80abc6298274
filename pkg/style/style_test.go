package style

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var corpus = []string{
	"Hey du, wie war dein Tag heute? Ich war lange arbeiten und bin jetzt müde.",
	"Na, was machst du gerade so? Ich liege auf dem Sofa und schaue eine Serie.",
	"Ich habe heute an dich gedacht. Magst du mir erzählen, wie dein Wochenende war?",
	"Du bist echt sympathisch. Was machst du denn beruflich, wenn ich fragen darf?",
	"Mal schauen, vielleicht erzähle ich dir später mehr. Was hast du heute vor?",
}

func TestExtract_BasicFeatures(t *testing.T) {
	features := Extract(corpus)

	assert.Greater(t, features.MeanSentenceLength, 3.0)
	assert.Less(t, features.MeanSentenceLength, 15.0)
	assert.InDelta(t, 2.0, features.MeanSentenceCount, 1.0)
	assert.Greater(t, features.QuestionRate, 0.0)
	assert.Equal(t, FormalityInformal, features.DominantFormality)
	assert.NotEmpty(t, features.CommonOpenings)
}

func TestExtract_Empty(t *testing.T) {
	features := Extract(nil)
	assert.Zero(t, features.MeanSentenceLength)
	assert.Zero(t, features.MeanSentenceCount)
}

func TestExtract_CapsAtFiveTexts(t *testing.T) {
	many := append(append([]string{}, corpus...), corpus...)
	a := Extract(many)
	b := Extract(corpus)
	assert.Equal(t, b.MeanSentenceCount, a.MeanSentenceCount)
}

func TestCompare_IdenticalScoresHigh(t *testing.T) {
	features := Extract(corpus)
	score := Compare(features, features)
	assert.GreaterOrEqual(t, score, 95.0)
}

func TestCompare_DifferentStylesScoreLow(t *testing.T) {
	informal := Extract(corpus)
	formal := Extract([]string{
		"Sehr geehrte Damen und Herren, vielen Dank für Ihre ausführliche Nachricht bezüglich der offenen Punkte.",
		"Gerne würde ich Ihnen die gewünschten Unterlagen zukommen lassen, sofern Sie mir Ihre Referenznummer mitteilen könnten.",
	})
	assert.Less(t, Compare(informal, formal), Compare(informal, informal))
}

func TestCompare_NearSymmetry(t *testing.T) {
	a := Extract(corpus[:3])
	b := Extract(corpus[2:])
	diff := math.Abs(Compare(a, b) - Compare(b, a))
	// symmetric up to the opening-overlap asymmetry
	assert.LessOrEqual(t, diff, 5.0)
}

func TestSplitSentences(t *testing.T) {
	sentences := SplitSentences("Hallo du. Wie geht es dir? Alles klar")
	require.Len(t, sentences, 3)
	assert.Equal(t, "Hallo du.", sentences[0])
	assert.Equal(t, "Wie geht es dir?", sentences[1])
}

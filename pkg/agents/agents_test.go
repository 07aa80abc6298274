package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDAG(t *testing.T) {
	require.NoError(t, ValidateDAG())
}

func TestDAG_LayerShape(t *testing.T) {
	require.Len(t, DAG, 7)
	assert.Equal(t, []Name{NameSafety, NameLanguage}, DAG[0].Agents)
	assert.Equal(t, []Name{NameContext}, DAG[1].Agents)
	assert.Equal(t, []Name{NameMetaValidator}, DAG[3].Agents)
}

func TestSituationPriorityOrdering(t *testing.T) {
	situations := []string{SituationOuting, SituationSexual, SituationMeeting, SituationContact}
	sortSituations(situations)
	assert.Equal(t, []string{SituationMeeting, SituationContact, SituationSexual, SituationOuting}, situations)
}

func TestKeywordHelpers(t *testing.T) {
	assert.True(t, ContainsExplicitSexual("ich bin so geil auf dich"))
	assert.False(t, ContainsExplicitSexual("wie war dein tag"))

	_, ok := ContainsMeetingAgreement("wann können wir uns treffen")
	assert.True(t, ok)

	_, ok = ContainsMetaCommentary("Das klingt super bei dir")
	assert.True(t, ok)

	assert.True(t, ContainsReciprocity("finde ich auch toll"))
	assert.True(t, IsLocationOnlyQuestion("woher kommst du denn"))
	assert.True(t, ContainsPositiveAffect("du bist echt sympathisch"))

	_, ok = ContainsContactKeyword("hast du telegram")
	assert.True(t, ok)
}

func TestDistrictsFor(t *testing.T) {
	assert.NotEmpty(t, DistrictsFor("Berlin"))
	assert.NotEmpty(t, DistrictsFor("köln"))
	assert.Empty(t, DistrictsFor("Kleinkleckersdorf"))
}

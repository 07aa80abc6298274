package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavora-ai/replygen/pkg/store"
)

func newDetector(llmResponse string) *SituationDetector {
	return &SituationDetector{
		LLM:         &fakeLLM{response: llmResponse},
		Model:       "test",
		Classifiers: KeywordClassifiers{},
	}
}

func TestSituationDetector_MeetingRequest(t *testing.T) {
	detector := newDetector(`{"situations": [{"label": "Treffen/Termine", "confidence": 0.9}]}`)

	result, err := detector.Run(context.Background(),
		"Was machst du morgen? Hast du Zeit?",
		Conversation{ModeratorMessages: []store.Message{{Text: "Erzähl mir von deinem Tag"}}},
		ProfileInfo{City: "Berlin"}, nil, nil)
	require.NoError(t, err)
	assert.True(t, result.MeetingRequest)
	require.NotEmpty(t, result.Situations)
	assert.Equal(t, SituationMeeting, result.Situations[0])
}

func TestSituationDetector_LocationNotMeeting(t *testing.T) {
	detector := newDetector(`{"situations": [{"label": "Treffen/Termine", "confidence": 0.8}]}`)

	result, err := detector.Run(context.Background(),
		"Woher kommst du eigentlich?",
		Conversation{}, ProfileInfo{City: "Berlin"}, nil, nil)
	require.NoError(t, err)
	assert.NotContains(t, result.Situations, SituationMeeting)
	assert.Contains(t, result.Situations, SituationLocation)
	require.NotNil(t, result.Location)
	assert.Equal(t, "Berlin", result.Location.City)
}

func TestSituationDetector_LocationNearbyCity(t *testing.T) {
	detector := newDetector(`{"situations": []}`)
	detector.City = staticCity{"Leverkusen"}

	result, err := detector.Run(context.Background(),
		"Woher kommst du eigentlich?",
		Conversation{}, ProfileInfo{CustomerInfo: map[string]interface{}{"city": "Köln"}}, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, result.Location)
	assert.Equal(t, "Leverkusen", result.Location.City)
	assert.Contains(t, result.Location.Instruction, "Leverkusen")
	assert.False(t, result.LocationError)
}

func TestSituationDetector_LocationUnresolvable(t *testing.T) {
	detector := newDetector(`{"situations": []}`)
	detector.City = staticCity{""}

	result, err := detector.Run(context.Background(),
		"Wo wohnst du denn?",
		Conversation{}, ProfileInfo{}, nil, nil)
	require.NoError(t, err)
	assert.True(t, result.LocationError)
	assert.Nil(t, result.Location)
}

func TestSituationDetector_SexualNeedsExplicitEvidence(t *testing.T) {
	detector := newDetector(`{"situations": [{"label": "Sexuelle Themen", "confidence": 0.95}]}`)

	result, err := detector.Run(context.Background(),
		"Du bist mir sympathisch",
		Conversation{}, ProfileInfo{}, nil, nil)
	require.NoError(t, err)
	assert.NotContains(t, result.Situations, SituationSexual)

	result, err = detector.Run(context.Background(),
		"Ich bin richtig horny auf dich. Was magst du beim Sex?",
		Conversation{}, ProfileInfo{}, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, result.Situations, SituationSexual)
}

func TestSituationDetector_PriorityOrdering(t *testing.T) {
	detector := newDetector(`{"situations": [
		{"label": "Bilder Anfrage", "confidence": 0.9},
		{"label": "Kontaktdaten außerhalb der Plattform", "confidence": 0.9}]}`)

	result, err := detector.Run(context.Background(),
		"Gib mir deine Nummer und schick mir ein Bild",
		Conversation{}, ProfileInfo{}, nil, nil)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(result.Situations), 2)
	assert.Equal(t, SituationContact, result.Situations[0])
	assert.Equal(t, SituationPictures, result.Situations[1])
}

func TestSituationDetector_ContactKeywords(t *testing.T) {
	detector := newDetector(`{"situations": []}`)

	result, err := detector.Run(context.Background(),
		"Gib mir deine WhatsApp Nummer, da schreiben wir weiter",
		Conversation{}, ProfileInfo{}, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, result.Situations, SituationContact)
}

func TestSituationDetector_LLMConfidenceGate(t *testing.T) {
	detector := newDetector(`{"situations": [{"label": "Bot-Vorwurf", "confidence": 0.4}]}`)

	result, err := detector.Run(context.Background(),
		"Du bist mir sympathisch",
		Conversation{}, ProfileInfo{}, nil, nil)
	require.NoError(t, err)
	assert.NotContains(t, result.Situations, SituationBot)
}

// staticCity is a canned city lookup.
type staticCity struct{ city string }

func (s staticCity) FindNearby(ctx context.Context, city string) (string, error) {
	return s.city, nil
}

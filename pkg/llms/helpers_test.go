package llms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONObject(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain object", `{"topic": "general"}`, "general"},
		{"fenced json", "```json\n{\"topic\": \"general\"}\n```", "general"},
		{"fenced without language", "```\n{\"topic\": \"general\"}\n```", "general"},
		{"prose prefix", "Hier ist das Ergebnis: {\"topic\": \"general\"}", "general"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseJSONObject(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result["topic"])
		})
	}
}

func TestParseJSONObject_Invalid(t *testing.T) {
	_, err := ParseJSONObject("keine antwort")
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	input := map[string]interface{}{
		"topic":      "sexual",
		"key_points": []interface{}{"a", "b"},
		"confidence": "0.9", // weakly typed input is tolerated
	}
	var out struct {
		Topic      string   `json:"topic"`
		KeyPoints  []string `json:"key_points"`
		Confidence float64  `json:"confidence"`
	}
	require.NoError(t, Decode(input, &out))
	assert.Equal(t, "sexual", out.Topic)
	assert.Equal(t, []string{"a", "b"}, out.KeyPoints)
	assert.Equal(t, 0.9, out.Confidence)
}

func TestStripJSONFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripJSONFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripJSONFences(`{"a":1}`))
}

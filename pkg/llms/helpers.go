package llms

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ParseJSONObject parses an LLM response into a JSON object. Models sometimes
// wrap JSON-mode output in markdown fences or prepend prose; both are
// stripped before parsing.
func ParseJSONObject(text string) (map[string]interface{}, error) {
	cleaned := StripJSONFences(text)

	var result map[string]interface{}
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		// last resort: parse the outermost brace pair
		start := strings.Index(cleaned, "{")
		end := strings.LastIndex(cleaned, "}")
		if start >= 0 && end > start {
			if err2 := json.Unmarshal([]byte(cleaned[start:end+1]), &result); err2 == nil {
				return result, nil
			}
		}
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return result, nil
}

// StripJSONFences removes markdown code fences around a JSON payload.
func StripJSONFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```JSON")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
	}
	return strings.TrimSpace(trimmed)
}

// Decode maps a parsed JSON object onto a typed struct. Agents use it to turn
// CompleteJSON results into their result types without hand-written field
// plumbing.
func Decode(input map[string]interface{}, output interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           output,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build decoder: %w", err)
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

package agents

import (
	"context"
	"strings"
	"unicode"

	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/llms"
)

// GermanReplyRequest is the fixed polite sentence returned for confidently
// non-German messages.
const GermanReplyRequest = "Es tut mir leid, aber ich kann nur auf Deutsch antworten. Magst du mir auf Deutsch schreiben?"

// languageConfidenceThreshold is the minimum detector confidence required to
// block. Anything less lets the message through.
const languageConfidenceThreshold = 0.995

// LanguageResult is the language gate verdict.
type LanguageResult struct {
	IsGerman   bool
	Confidence float64
	Block      bool
	Success    bool
}

// LanguageGate detects the inbound message language. Two cheap heuristics
// run before the LLM: short greetings and the German word whitelist.
type LanguageGate struct {
	LLM   capability.LLM
	Model string
}

// Fallback treats the message as German; the gate only blocks on positive,
// confident evidence.
func (g *LanguageGate) Fallback() LanguageResult {
	return LanguageResult{IsGerman: true, Confidence: 0, Success: false}
}

// Run classifies the message.
func (g *LanguageGate) Run(ctx context.Context, message string) (LanguageResult, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return LanguageResult{IsGerman: true, Confidence: 1, Success: true}, nil
	}

	if isShortGermanish(trimmed) || hasGermanEvidence(trimmed) {
		return LanguageResult{IsGerman: true, Confidence: 1, Success: true}, nil
	}

	result, err := g.LLM.CompleteJSON(ctx, capability.CompletionRequest{
		Model: g.Model,
		System: "Du bist ein Sprachdetektor. Bestimme die Sprache der Nachricht. " +
			"Antworte als JSON: {\"is_german\": bool, \"confidence\": 0.0-1.0, \"language\": \"...\"}",
		User:        trimmed,
		Temperature: 0,
		MaxTokens:   100,
		JSONMode:    true,
	})
	if err != nil {
		return g.Fallback(), err
	}

	var parsed struct {
		IsGerman   bool    `json:"is_german"`
		Confidence float64 `json:"confidence"`
	}
	if err := llms.Decode(result, &parsed); err != nil {
		return g.Fallback(), err
	}

	out := LanguageResult{
		IsGerman:   parsed.IsGerman,
		Confidence: parsed.Confidence,
		Success:    true,
	}
	out.Block = !parsed.IsGerman && parsed.Confidence >= languageConfidenceThreshold
	return out, nil
}

// isShortGermanish accepts short latin-only messages that open with a common
// greeting or contain a common German token. These never abort the call.
func isShortGermanish(message string) bool {
	if len([]rune(message)) > 80 || !isLatinOnly(message) {
		return false
	}
	lower := strings.ToLower(message)
	for _, greeting := range shortGreetings {
		if lower == greeting || strings.HasPrefix(lower, greeting+" ") ||
			strings.HasPrefix(lower, greeting+",") || strings.HasPrefix(lower, greeting+"!") {
			return true
		}
	}
	for _, word := range germanFunctionWords {
		if containsWord(lower, word) {
			return true
		}
	}
	return false
}

// hasGermanEvidence scans up to 500 chars for umlauts or whitelist words.
func hasGermanEvidence(message string) bool {
	if len([]rune(message)) > 500 {
		return false
	}
	if strings.ContainsAny(message, "äöüÄÖÜß") {
		return true
	}
	lower := strings.ToLower(message)
	for _, word := range germanFunctionWords {
		if containsWord(lower, word) {
			return true
		}
	}
	return false
}

func isLatinOnly(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII && !unicode.Is(unicode.Latin, r) {
			return false
		}
	}
	return true
}

func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordRune(rune(text[start-1]))
		afterOK := end >= len(text) || !isWordRune(rune(text[end]))
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

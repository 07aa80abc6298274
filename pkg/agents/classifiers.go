package agents

import (
	"context"
	"strings"
)

// KeywordClassifiers is the built-in predicate set used when no external
// classifier service is wired. The heuristics mirror the keyword tables of
// the situation detector.
type KeywordClassifiers struct{}

var meetingRequestMarkers = []string{
	"treffen", "date", "verabreden", "sehen wir uns", "zeit am", "zeit morgen",
	"zeit heute", "vorbeikommen", "besuchen", "kaffee trinken", "was machst du morgen",
	"hast du zeit",
}

// IsMeetingRequest reports a meeting request by keyword evidence in the
// message alone; the history argument is not consulted.
func (KeywordClassifiers) IsMeetingRequest(ctx context.Context, message, history string) (bool, error) {
	lower := strings.ToLower(message)
	if IsLocationOnlyQuestion(lower) {
		return false, nil
	}
	if _, ok := containsAny(lower, meetingRequestMarkers); ok {
		return true, nil
	}
	return false, nil
}

// IsLocationQuestion reports a location question.
func (KeywordClassifiers) IsLocationQuestion(ctx context.Context, message string) (bool, error) {
	return IsLocationOnlyQuestion(message), nil
}

var infoMessageMarkers = []string{
	"hat dich geliked", "hat dein profil", "gefällt dir", "kuss gesendet",
	"hat dir einen kuss", "geschenk gesendet", "hat dich besucht", "system",
	"liked you", "kiss",
}

// IsInfoMessage reports system notices (likes, kisses, visits).
func (KeywordClassifiers) IsInfoMessage(message string) bool {
	_, ok := containsAny(strings.ToLower(message), infoMessageMarkers)
	return ok
}

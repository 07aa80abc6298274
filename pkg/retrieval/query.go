// Package retrieval selects training examples for a request: query
// construction, vector search, hybrid re-ranking with adaptive weights, and
// the ASA random-draw selector.
package retrieval

import (
	"strings"

	"github.com/kavora-ai/replygen/pkg/agents"
)

// meetingQueryPrefix widens meeting searches with the domain vocabulary.
const meetingQueryPrefix = "Treffen Termine Besuch vorbeikommen zu mir zu dir:"

// answerPatternHints bias the query toward the expected answer shape.
var answerPatternHints = map[string]string{
	agents.SituationMeeting:  "ablenken vertrösten kennenlernen schauen wir mal",
	agents.SituationContact:  "hier schreiben kennenlernen noch nicht",
	agents.SituationPictures: "vertrösten später vielleicht",
	agents.SituationMoney:    "verständnis zeigen hier bleiben",
	agents.SituationSexual:   "darauf eingehen erwidern",
	agents.SituationBot:      "echt menschlich beweisen locker",
	agents.SituationLocation: "stadt nennen gegenfrage",
}

// BuildQuery constructs the retrieval query text from the analyzed turn.
func BuildQuery(topic string, keyPoints []string, customerMessage string, situations []string) string {
	prefix := customerMessage
	if len([]rune(prefix)) > 120 {
		prefix = string([]rune(prefix)[:120])
	}

	var parts []string
	if topic != "" {
		parts = append(parts, topic)
	}
	if len(keyPoints) > 0 {
		parts = append(parts, strings.Join(keyPoints, " "))
	}
	parts = append(parts, prefix)
	query := strings.Join(parts, ": ")

	if hasSituation(situations, agents.SituationMeeting) {
		query = meetingQueryPrefix + " " + query
		if hint := answerPatternHints[agents.SituationMeeting]; hint != "" {
			query += " " + hint
		}
		return query
	}

	for _, situation := range situations {
		if hint, ok := answerPatternHints[situation]; ok {
			query += " " + hint
		}
	}
	return query
}

func hasSituation(situations []string, target string) bool {
	for _, s := range situations {
		if s == target {
			return true
		}
	}
	return false
}

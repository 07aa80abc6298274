package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/kavora-ai/replygen/pkg/blackboard"
)

// ProfileFilterResult is the filtered view of the extracted user info.
type ProfileFilterResult struct {
	RelevantUserFacts      []string
	RelevantAssistantFacts []string
	CustomerType           string
	Success                bool
}

// ProfileFilter selects the profile facts relevant to the current turn so
// the prompt does not drown in stale attributes.
type ProfileFilter struct{}

// Fallback passes no facts through.
func (f *ProfileFilter) Fallback() ProfileFilterResult {
	return ProfileFilterResult{Success: false}
}

// Run filters the extracted info against the current message.
func (f *ProfileFilter) Run(ctx context.Context, message string, info ExtractedUserInfo, profile ProfileInfo, board *blackboard.Board) (ProfileFilterResult, error) {
	result := ProfileFilterResult{Success: true}
	lower := strings.ToLower(message)

	pick := func(facts map[string]interface{}) []string {
		var out []string
		for key, value := range facts {
			text := fmt.Sprintf("%v", value)
			if text == "" || text == "<nil>" {
				continue
			}
			// A fact is relevant when the message touches its key or value.
			if strings.Contains(lower, strings.ToLower(key)) ||
				(len(text) > 3 && strings.Contains(lower, strings.ToLower(text))) {
				out = append(out, fmt.Sprintf("%s: %s", key, text))
				continue
			}
			// Base facts always pass.
			switch key {
			case "name", "city", "age", "hobbys", "hobbies", "occupation", "beruf":
				out = append(out, fmt.Sprintf("%s: %s", key, text))
			}
		}
		return out
	}

	result.RelevantUserFacts = pick(info.User)
	result.RelevantAssistantFacts = pick(info.Assistant)

	switch {
	case profile.IsNewCustomer:
		result.CustomerType = "Neukunde: besonders einladend schreiben, Bindung aufbauen"
	case profile.MessageCount > 100:
		result.CustomerType = "Stammkunde: vertrauter Ton, an gemeinsame Themen anknüpfen"
	default:
		result.CustomerType = "Bestandskunde: natürlicher, lockerer Ton"
	}

	if board != nil {
		board.Write(string(NameProfileFilter),
			append([]string{result.CustomerType}, result.RelevantUserFacts...), nil, result)
	}
	return result, nil
}

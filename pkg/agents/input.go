package agents

import (
	"strings"
	"time"

	"github.com/kavora-ai/replygen/pkg/store"
)

// ProfileInfo describes the persona and what is known about the customer.
type ProfileInfo struct {
	Name          string                 `json:"name,omitempty"`
	City          string                 `json:"city,omitempty"`
	Country       string                 `json:"country,omitempty"`
	Gender        string                 `json:"gender,omitempty"`
	BirthDate     string                 `json:"birth_date,omitempty"`
	Occupation    string                 `json:"occupation,omitempty"`
	HasProfilePic bool                   `json:"has_profile_pic,omitempty"`
	HasPictures   bool                   `json:"has_pictures,omitempty"`
	MessageCount  int                    `json:"message_count,omitempty"`
	IsNewCustomer bool                   `json:"is_new_customer,omitempty"`
	ModeratorInfo map[string]interface{} `json:"moderator_info,omitempty"`
	CustomerInfo  map[string]interface{} `json:"customer_info,omitempty"`
}

// ExtractedUserInfo carries the parsed structured fields for both sides.
type ExtractedUserInfo struct {
	User      map[string]interface{} `json:"user,omitempty"`
	Assistant map[string]interface{} `json:"assistant,omitempty"`
}

// Conversation is the history view agents receive.
type Conversation struct {
	// Rendered is the pre-rendered text snapshot of recent turns.
	Rendered string

	// ModeratorMessages are persona-sent turns, oldest first.
	ModeratorMessages []store.Message

	// CustomerMessages are inbound turns, oldest first.
	CustomerMessages []store.Message
}

// LastModerator returns the newest persona-sent turn.
func (c Conversation) LastModerator() string {
	if len(c.ModeratorMessages) == 0 {
		return ""
	}
	return c.ModeratorMessages[len(c.ModeratorMessages)-1].Text
}

// LastCustomer returns the newest inbound turn.
func (c Conversation) LastCustomer() string {
	if len(c.CustomerMessages) == 0 {
		return ""
	}
	return c.CustomerMessages[len(c.CustomerMessages)-1].Text
}

// RecentText concatenates the last n turns of both sides for keyword scans.
func (c Conversation) RecentText(n int) string {
	var parts []string
	mods := c.ModeratorMessages
	if len(mods) > n {
		mods = mods[len(mods)-n:]
	}
	custs := c.CustomerMessages
	if len(custs) > n {
		custs = custs[len(custs)-n:]
	}
	for _, m := range mods {
		parts = append(parts, m.Text)
	}
	for _, m := range custs {
		parts = append(parts, m.Text)
	}
	return strings.Join(parts, "\n")
}

// OlderThan reports whether the message's timestamp (when present) is older
// than the cutoff.
func OlderThan(m store.Message, cutoff time.Duration) bool {
	if m.Timestamp == nil {
		return false
	}
	return time.Since(*m.Timestamp) > cutoff
}

// Package store loads and watches the persisted read-mostly state of the
// engine: rules, training data, the feedback log, derived learning statistics
// and deep patterns. All files are JSON; requests read immutable snapshots.
package store

import "time"

// Message is a single chat turn.
type Message struct {
	Text      string     `json:"text"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Type      string     `json:"type,omitempty"`
}

// Example is a curated training or feedback example.
type Example struct {
	ID                string `json:"id,omitempty"`
	CustomerMessage   string `json:"customerMessage"`
	ModeratorResponse string `json:"moderatorResponse,omitempty"`
	ASAMessage        string `json:"asaMessage,omitempty"`
	Situation         string `json:"situation,omitempty"`
	Explanation       string `json:"explanation,omitempty"`
	IsNegativeExample bool   `json:"isNegativeExample,omitempty"`
}

// Response returns the reply side of the example, regardless of whether it is
// a conversation or an ASA example.
func (e Example) Response() string {
	if e.ModeratorResponse != "" {
		return e.ModeratorResponse
	}
	return e.ASAMessage
}

// Rules is the content-rule bundle.
type Rules struct {
	ForbiddenWords       []string          `json:"forbiddenWords"`
	PreferredWords       []string          `json:"preferredWords"`
	CriticalRules        []string          `json:"criticalRules"`
	SituationalResponses map[string]string `json:"situationalResponses"`
	GeneralRules         string            `json:"generalRules"`
}

// TrainingData is the curated example corpus.
type TrainingData struct {
	Conversations []Example `json:"conversations"`
	ASAExamples   []Example `json:"asaExamples"`
}

// FeedbackLabel classifies a feedback entry.
type FeedbackLabel string

const (
	FeedbackGood   FeedbackLabel = "good"
	FeedbackBad    FeedbackLabel = "bad"
	FeedbackEdited FeedbackLabel = "edited"
)

// Feedback is one entry of the live feedback log.
type Feedback struct {
	ID              string        `json:"id,omitempty"`
	Label           FeedbackLabel `json:"label"`
	Situation       string        `json:"situation,omitempty"`
	CustomerMessage string        `json:"customerMessage,omitempty"`
	Response        string        `json:"response"`
	EditedResponse  string        `json:"editedResponse,omitempty"`
	Reasoning       string        `json:"reasoning,omitempty"`
	ExampleID       string        `json:"exampleId,omitempty"`
	Tags            []string      `json:"tags,omitempty"`
	Timestamp       *time.Time    `json:"timestamp,omitempty"`
}

// FeedbackData is the feedback log.
type FeedbackData struct {
	Feedbacks []Feedback `json:"feedbacks"`
}

// Package pipeline orchestrates one reply-generation request: the agent DAG,
// retrieval, prompt composition, candidate generation, validation and
// post-processing.
package pipeline

import (
	"time"

	"github.com/kavora-ai/replygen/pkg/agents"
	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/generate"
	"github.com/kavora-ai/replygen/pkg/store"
)

// Request is one inbound reply-generation request.
type Request struct {
	CustomerMessage     string                   `json:"customer_message"`
	ConversationHistory string                   `json:"conversation_history"`
	ModeratorMessages   []store.Message          `json:"moderator_messages"`
	CustomerMessages    []store.Message          `json:"customer_messages"`
	ProfileInfo         agents.ProfileInfo       `json:"profile_info"`
	ExtractedUserInfo   agents.ExtractedUserInfo `json:"extracted_user_info"`

	Rules        *store.Rules        `json:"rules"`
	TrainingData *store.TrainingData `json:"training_data"`
	FeedbackData *store.FeedbackData `json:"feedback_data"`

	ImageURL         string `json:"image_url,omitempty"`
	ImageType        string `json:"image_type,omitempty"`
	ImageDescription string `json:"image_description,omitempty"`

	IsASA                  bool   `json:"is_asa"`
	ASAConversationContext string `json:"asa_conversation_context,omitempty"`
	PlatformID             string `json:"platform_id"`
}

// Conversation builds the agents' history view.
func (r *Request) Conversation() agents.Conversation {
	return agents.Conversation{
		Rendered:          r.ConversationHistory,
		ModeratorMessages: r.ModeratorMessages,
		CustomerMessages:  r.CustomerMessages,
	}
}

// PersonaKey identifies the persona for the ASA no-repeat memory.
func (r *Request) PersonaKey() string {
	return r.PlatformID + "/" + r.ProfileInfo.Name
}

// LocationQuestionError describes the human-handoff case.
type LocationQuestionError struct {
	Message      string `json:"message"`
	CustomerCity string `json:"customer_city,omitempty"`
}

// Response is the outbound result.
type Response struct {
	Message string `json:"message"`
	Success bool   `json:"success"`

	QualityScore   int                      `json:"quality_score,omitempty"`
	QualityDetails *generate.QualityDetails `json:"quality_details,omitempty"`

	Blocked bool                        `json:"blocked,omitempty"`
	Safety  *capability.ModerationResult `json:"safety,omitempty"`
	Error   string                      `json:"error,omitempty"`

	LocationQuestionError *LocationQuestionError `json:"location_question_error,omitempty"`

	NeedsGermanResponse bool   `json:"needs_german_response,omitempty"`
	GermanResponse      string `json:"german_response,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
}

// Per-agent timeout budgets.
const (
	TimeoutSafety            = 5 * time.Second
	TimeoutLanguage          = 5 * time.Second
	TimeoutContext           = 8 * time.Second
	TimeoutProfileFilter     = 5 * time.Second
	TimeoutSituation         = 15 * time.Second
	TimeoutFakeContext       = 3 * time.Second
	TimeoutFlow              = 10 * time.Second
	TimeoutAmbiguity         = 8 * time.Second
	TimeoutAgreement         = 10 * time.Second
	TimeoutFirstMessage      = 5 * time.Second
	TimeoutMetaValidator     = 8 * time.Second
	TimeoutMultiSituation    = 3 * time.Second
	TimeoutConversationCtx   = 5 * time.Second
	TimeoutContextConnection = 10 * time.Second
	TimeoutStyle             = 10 * time.Second
	TimeoutMood              = 3 * time.Second
	TimeoutProactive         = 3 * time.Second
	TimeoutImage             = 10 * time.Second
	TimeoutExampleIntel      = 10 * time.Second
	TimeoutMeetingResponse   = 10 * time.Second
	TimeoutLearning          = 5 * time.Second
	TimeoutDeepLearning      = 5 * time.Second
	TimeoutRuleInterpreter   = 8 * time.Second
	TimeoutRulesApplicator   = 3 * time.Second
	TimeoutSynthesizer       = 15 * time.Second
	TimeoutRetrieval         = 15 * time.Second
)

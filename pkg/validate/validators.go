// Package validate gates generated replies: hard-enforcement post-validation
// and the critical-rules battery with per-class rewrite budgets.
package validate

import (
	"context"
	"fmt"
	"strings"

	"github.com/kavora-ai/replygen/pkg/agents"
	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/learning"
	"github.com/kavora-ai/replygen/pkg/store"
	"github.com/kavora-ai/replygen/pkg/utils"
)

// ViolationClass identifies one validator family.
type ViolationClass string

const (
	ViolationForbiddenWord      ViolationClass = "forbidden_word"
	ViolationMeetingCommit      ViolationClass = "meeting_commitment"
	ViolationMeetingAgreement   ViolationClass = "meeting_agreement"
	ViolationMetaCommentary     ViolationClass = "meta_commentary"
	ViolationParaphrase         ViolationClass = "paraphrase"
	ViolationContradiction      ViolationClass = "contradiction"
	ViolationFirstMessageSexual ViolationClass = "first_message_sexual"
)

// retryBudgets per violation class. Contradictions are log-only.
var retryBudgets = map[ViolationClass]int{
	ViolationForbiddenWord:      1,
	ViolationMeetingCommit:      1,
	ViolationMeetingAgreement:   1,
	ViolationMetaCommentary:     2,
	ViolationParaphrase:         2,
	ViolationContradiction:      0,
	ViolationFirstMessageSexual: 1,
}

// Violation is one detected rule breach.
type Violation struct {
	Class   ViolationClass
	Detail  string
	Rewrite string // targeted rewrite instruction
}

// ForbiddenWord pairs a word with an optional skip predicate, preserving the
// source system's single exception ("treffen" outside meeting replies is not
// counted) in a form that admits more exceptions safely.
type ForbiddenWord struct {
	Word string
	Skip func(reply string, meetingReply bool) bool
}

// BuildForbiddenWords compiles the rule bundle's list into matcher pairs.
func BuildForbiddenWords(rules *store.Rules) []ForbiddenWord {
	if rules == nil {
		return nil
	}
	words := make([]ForbiddenWord, 0, len(rules.ForbiddenWords))
	for _, word := range rules.ForbiddenWords {
		if word == "" {
			continue
		}
		fw := ForbiddenWord{Word: strings.ToLower(word)}
		if fw.Word == "treffen" {
			fw.Skip = func(reply string, meetingReply bool) bool {
				return !meetingReply
			}
		}
		words = append(words, fw)
	}
	return words
}

// Context carries the request-side state the validators need.
type Context struct {
	CustomerMessage string
	CustomerVector  []float32
	ForbiddenWords  []ForbiddenWord
	MeetingReply    bool
	Sexual          bool
	Positive        bool

	// FirstMessage marks a first-contact-from-us turn; sexual content is then
	// hard-forbidden in the reply regardless of any detector verdict.
	FirstMessage bool
	OpenQuestions   []string
	AnsweredQ       []string
	Consensus       []agents.ConsensusEntry

	// ParaphraseThreshold is the cosine similarity above which the reply
	// counts as paraphrasing the customer (configuration, default 0.85).
	ParaphraseThreshold float64

	Embedder capability.Embedder
}

// CheckCritical runs the critical-rules battery and returns the violations.
func CheckCritical(ctx context.Context, reply string, vctx *Context) []Violation {
	var violations []Violation
	lower := strings.ToLower(reply)

	var hitWords []string
	for _, fw := range vctx.ForbiddenWords {
		if !strings.Contains(lower, fw.Word) {
			continue
		}
		if fw.Skip != nil && fw.Skip(reply, vctx.MeetingReply) {
			continue
		}
		hitWords = append(hitWords, fw.Word)
	}
	if len(hitWords) > 0 {
		violations = append(violations, Violation{
			Class:  ViolationForbiddenWord,
			Detail: strings.Join(hitWords, ", "),
			Rewrite: fmt.Sprintf(
				"Entferne diese verbotenen Wörter und ersetze sie durch Synonyme: %s. Inhalt und Ton bleiben gleich.",
				strings.Join(hitWords, ", ")),
		})
	}

	if vctx.FirstMessage {
		if keyword, ok := agents.ExplicitSexualKeyword(lower); ok {
			violations = append(violations, Violation{
				Class:  ViolationFirstMessageSexual,
				Detail: keyword,
				Rewrite: fmt.Sprintf(
					"Dies ist die allererste Nachricht an den Kunden; sexuelle Inhalte sind hier verboten (%q). "+
						"Entferne alles Sexuelle und eröffne locker mit 1-2 harmlosen Einstiegsfragen.", keyword),
			})
		}
	}

	if detail, ok := detectMeetingCommitment(lower); ok {
		violations = append(violations, Violation{
			Class:  ViolationMeetingCommit,
			Detail: detail,
			Rewrite: "Die Antwort sagt einem Treffen zu oder schlägt eines vor. " +
				"Lenke stattdessen freundlich ab, ohne Zusage, ohne Ort, ohne Zeitpunkt.",
		})
	}

	if phrase, ok := agents.ContainsMeetingAgreement(lower); ok {
		violations = append(violations, Violation{
			Class:  ViolationMeetingAgreement,
			Detail: phrase,
			Rewrite: fmt.Sprintf(
				"Die Formulierung %q ist verboten, ebenso alle Varianten von Treffen-Zusagen. "+
					"Formuliere offen und unverbindlich (z.B. 'schauen wir mal wann es bei mir klappt').", phrase),
		})
	}

	if phrase, ok := agents.ContainsMetaCommentary(lower); ok {
		violations = append(violations, Violation{
			Class:  ViolationMetaCommentary,
			Detail: phrase,
			Rewrite: fmt.Sprintf(
				"Die Antwort kommentiert die Nachricht (%q) statt auf den Inhalt einzugehen. "+
					"Verboten sind: 'das klingt...', 'ich finde es toll, dass...'. "+
					"Gehe stattdessen direkt inhaltlich auf das Gesagte ein.", phrase),
		})
	}

	if vctx.Embedder != nil && vctx.CustomerMessage != "" {
		if sim, ok := paraphraseSimilarity(ctx, reply, vctx); ok {
			violations = append(violations, Violation{
				Class:  ViolationParaphrase,
				Detail: fmt.Sprintf("similarity %.2f", sim),
				Rewrite: "Die Antwort formuliert nur die Kundennachricht um. " +
					"Gehe auf den INHALT ein, ohne die Worte des Kunden zu wiederholen.",
			})
		}
	}

	for _, consensus := range vctx.Consensus {
		if contradicts(lower, consensus) {
			violations = append(violations, Violation{
				Class:  ViolationContradiction,
				Detail: consensus.Statement,
			})
		}
	}

	return violations
}

// CheckHardEnforcement verifies the enforcement preface: open questions
// addressed, answered questions not re-asked, reciprocity shown.
func CheckHardEnforcement(reply string, vctx *Context) []string {
	var issues []string

	for _, question := range vctx.OpenQuestions {
		if !addressesQuestion(reply, question) {
			issues = append(issues, fmt.Sprintf("Die offene Frage %q wird nicht erkennbar beantwortet.", question))
		}
	}
	for _, question := range vctx.AnsweredQ {
		if reAsksQuestion(reply, question) {
			issues = append(issues, fmt.Sprintf("Die bereits beantwortete Frage %q wird erneut gestellt.", question))
		}
	}
	if (vctx.Sexual || vctx.Positive) && !agents.ContainsReciprocity(reply) {
		issues = append(issues, "Es fehlt eine Erwiderung (z.B. 'finde ich auch', 'macht mich auch...', 'freut mich').")
	}

	return issues
}

// addressesQuestion approximates "recognizably addressed" with a keyword
// intersection.
func addressesQuestion(reply, question string) bool {
	keywords := topKeywords(question, 3)
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(reply)
	for _, keyword := range keywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// reAsksQuestion matches on a 3-keyword intersection inside a question
// sentence.
func reAsksQuestion(reply, question string) bool {
	keywords := topKeywords(question, 3)
	if len(keywords) == 0 {
		return false
	}
	for _, sentence := range strings.Split(reply, "?") {
		matched := 0
		lower := strings.ToLower(sentence)
		for _, keyword := range keywords {
			if strings.Contains(lower, keyword) {
				matched++
			}
		}
		if matched >= len(keywords) && matched >= 2 {
			return true
		}
	}
	return false
}

func topKeywords(text string, n int) []string {
	var keywords []string
	for _, word := range learning.Tokenize(text) {
		if len(word) >= 4 {
			keywords = append(keywords, word)
		}
		if len(keywords) == n {
			break
		}
	}
	return keywords
}

var meetingCommitmentMarkers = []string{
	"wir treffen uns", "lass uns uns treffen", "ich treffe dich",
	"komme ich zu dir", "kommst du zu mir", "hole dich ab",
	"im café", "im park", "bei dir vorbei", "bei mir vorbei",
	"sehen uns am", "sehen uns um",
}

func detectMeetingCommitment(lower string) (string, bool) {
	for _, marker := range meetingCommitmentMarkers {
		if strings.Contains(lower, marker) {
			return marker, true
		}
	}
	return "", false
}

func paraphraseSimilarity(ctx context.Context, reply string, vctx *Context) (float64, bool) {
	threshold := vctx.ParaphraseThreshold
	if threshold == 0 {
		threshold = 0.85
	}
	customerVector := vctx.CustomerVector
	if customerVector == nil {
		vec, err := vctx.Embedder.Embed(ctx, vctx.CustomerMessage)
		if err != nil {
			return 0, false
		}
		customerVector = vec
		vctx.CustomerVector = vec
	}
	replyVector, err := vctx.Embedder.Embed(ctx, reply)
	if err != nil {
		return 0, false
	}
	sim := utils.CosineSimilarity(customerVector, replyVector)
	return sim, sim > threshold
}

// contradicts flags a reply that negates an agreed statement or affirms a
// declined one.
func contradicts(lowerReply string, consensus agents.ConsensusEntry) bool {
	keywords := topKeywords(consensus.Statement, 3)
	if len(keywords) < 2 {
		return false
	}
	matched := 0
	for _, keyword := range keywords {
		if strings.Contains(lowerReply, keyword) {
			matched++
		}
	}
	if matched < 2 {
		return false
	}
	negated := strings.Contains(lowerReply, "nicht") || strings.Contains(lowerReply, "kein")
	switch consensus.Polarity {
	case "agreed":
		return negated
	case "declined":
		return !negated
	}
	return false
}

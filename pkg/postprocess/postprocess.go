// Package postprocess normalizes generated replies. The pipeline applies it
// before and after each validation cycle; the whole pass is idempotent.
package postprocess

import (
	"strings"
)

// MinLength is the hard lower bound of a deliverable reply.
const MinLength = 150

// Options steer the normalization targets, usually derived from the learning
// statistics.
type Options struct {
	// TargetSentences caps the sentence count; 0 means no cap.
	TargetSentences int

	// TargetQuestions is the question-count target; 0 defaults to 1.
	TargetQuestions int

	// TargetMaxLength bounds extensions; 0 defaults to 220.
	TargetMaxLength int

	// Sexual selects the sexual extension list for too-short replies.
	Sexual bool
}

// generalExtensions pad a too-short reply with a contextual closer.
var generalExtensions = []string{
	"Erzähl mir doch mal, wie dein Tag bisher so war?",
	"Was hast du heute eigentlich noch so vor?",
	"Wie sieht denn dein Wochenende normalerweise aus?",
	"Was machst du gerade so, wenn ich fragen darf?",
}

// sexualExtensions are the closers for sexual conversations.
var sexualExtensions = []string{
	"Und was würdest du jetzt am liebsten mit mir machen?",
	"Was gefällt dir denn besonders, wenn es knistert?",
	"Wie stellst du dir das mit uns beiden gerade vor?",
}

var quoteRunes = "\"'`“”‚‘’«»"

// Result is the post-processing outcome.
type Result struct {
	Text    string
	Success bool
}

// Process runs all normalization passes. An empty or too-short final text
// yields the empty sentinel with Success false; an unsafe reply is never
// returned.
func Process(text string, opts Options) Result {
	if opts.TargetQuestions <= 0 {
		opts.TargetQuestions = 1
	}
	if opts.TargetMaxLength <= 0 {
		opts.TargetMaxLength = 220
	}

	out := strings.TrimSpace(text)
	out = strings.Trim(out, quoteRunes)
	out = strings.TrimSpace(out)

	out = strings.ReplaceAll(out, "-", " ")
	out = strings.ReplaceAll(out, "ß", "ss")
	out = strings.ReplaceAll(out, "!", ".")
	out = collapseQuestionMarks(out)
	out = collapseSpaces(out)

	// The sentence clamp runs after extension and question insertion so a
	// second pass finds nothing left to add or drop (idempotence).
	out = extendIfShort(out, opts)
	if opts.TargetSentences > 0 {
		out = trimSentences(out, opts.TargetSentences)
	}
	out = reduceQuestions(out, opts.TargetQuestions)
	out = normalizeEnding(out)
	out = ensureQuestion(out, opts)
	if opts.TargetSentences > 0 {
		out = trimSentences(out, opts.TargetSentences)
	}

	if len([]rune(out)) < MinLength {
		return Result{Text: "", Success: false}
	}
	return Result{Text: out, Success: true}
}

// Normalize applies only the character-level passes (quotes, hyphens, ß,
// exclamation marks, question-mark runs, ending). Reactivation replies use it
// instead of Process because they reproduce a curated example near-verbatim
// and have their own length floor.
func Normalize(text string) string {
	out := strings.TrimSpace(text)
	out = strings.Trim(out, quoteRunes)
	out = strings.TrimSpace(out)
	out = strings.ReplaceAll(out, "-", " ")
	out = strings.ReplaceAll(out, "ß", "ss")
	out = strings.ReplaceAll(out, "!", ".")
	out = collapseQuestionMarks(out)
	out = collapseSpaces(out)
	return normalizeEnding(out)
}

func collapseQuestionMarks(text string) string {
	for strings.Contains(text, "??") {
		text = strings.ReplaceAll(text, "??", "?")
	}
	return text
}

func collapseSpaces(text string) string {
	for strings.Contains(text, "  ") {
		text = strings.ReplaceAll(text, "  ", " ")
	}
	return strings.TrimSpace(text)
}

// trimSentences drops trailing sentences down to the target: non-question
// sentences first, then trailing questions keeping the first question. It
// never cuts mid-sentence and never drops below MinLength.
func trimSentences(text string, target int) string {
	sentences := splitSentences(text)
	if len(sentences) <= target {
		return text
	}

	// drop trailing non-questions first
	for len(sentences) > target {
		idx := lastNonQuestion(sentences)
		if idx < 0 {
			break
		}
		candidate := joinSentences(removeAt(sentences, idx))
		if len([]rune(candidate)) < MinLength {
			break
		}
		sentences = removeAt(sentences, idx)
	}

	// then drop trailing questions, keeping the first question
	for len(sentences) > target {
		idx := lastQuestionAfterFirst(sentences)
		if idx < 0 {
			break
		}
		candidate := joinSentences(removeAt(sentences, idx))
		if len([]rune(candidate)) < MinLength {
			break
		}
		sentences = removeAt(sentences, idx)
	}

	return joinSentences(sentences)
}

// extendIfShort appends one contextual extension when the reply is below
// MinLength, preferring the first extension that stays within
// TargetMaxLength+20. When none fits, the first extension is used anyway so
// the length floor still has a chance to hold.
func extendIfShort(text string, opts Options) string {
	if len([]rune(text)) >= MinLength {
		return text
	}
	base := strings.TrimSpace(text)
	if base != "" && !strings.HasSuffix(base, ".") && !strings.HasSuffix(base, "?") {
		base += "."
	}
	extensions := generalExtensions
	if opts.Sexual {
		extensions = sexualExtensions
	}
	limit := opts.TargetMaxLength + 20
	first := ""
	for _, extension := range extensions {
		candidate := strings.TrimSpace(base + " " + extension)
		if first == "" {
			first = candidate
		}
		if len([]rune(candidate)) <= limit {
			return candidate
		}
	}
	return first
}

// reduceQuestions keeps the first question and drops later ones, last first,
// while the candidate over-asks and the result stays at or above MinLength.
func reduceQuestions(text string, target int) string {
	sentences := splitSentences(text)
	questions := 0
	for _, s := range sentences {
		if strings.HasSuffix(s, "?") {
			questions++
		}
	}
	if questions <= target {
		return text
	}

	dropped := false
	for questions > target {
		idx := lastQuestionAfterFirst(sentences)
		if idx < 0 {
			break
		}
		candidate := removeAt(sentences, idx)
		if len([]rune(joinSentences(candidate))) < MinLength {
			break
		}
		sentences = candidate
		questions--
		dropped = true
	}
	if !dropped {
		return text
	}
	return joinSentences(sentences)
}

// normalizeEnding forces a `.` or `?` terminator and drops a truncated last
// fragment (short tail without terminator).
func normalizeEnding(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return text
	}
	if strings.HasSuffix(text, ".") || strings.HasSuffix(text, "?") {
		return text
	}

	sentences := splitSentences(text)
	if len(sentences) > 1 {
		last := sentences[len(sentences)-1]
		if len([]rune(last)) < 10 {
			return joinSentences(sentences[:len(sentences)-1])
		}
	}
	return text + "."
}

// ensureQuestion guarantees at least one question mark; a reply without a
// question stalls the conversation.
func ensureQuestion(text string, opts Options) string {
	if strings.Contains(text, "?") || text == "" {
		return text
	}
	extensions := generalExtensions
	if opts.Sexual {
		extensions = sexualExtensions
	}
	return strings.TrimSpace(text + " " + extensions[0])
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '?' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func joinSentences(sentences []string) string {
	return strings.TrimSpace(strings.Join(sentences, " "))
}

func removeAt(sentences []string, idx int) []string {
	out := make([]string, 0, len(sentences)-1)
	out = append(out, sentences[:idx]...)
	return append(out, sentences[idx+1:]...)
}

func lastNonQuestion(sentences []string) int {
	for i := len(sentences) - 1; i >= 0; i-- {
		if !strings.HasSuffix(sentences[i], "?") {
			return i
		}
	}
	return -1
}

func lastQuestionAfterFirst(sentences []string) int {
	firstQuestion := -1
	lastQuestion := -1
	for i, s := range sentences {
		if strings.HasSuffix(s, "?") {
			if firstQuestion < 0 {
				firstQuestion = i
			}
			lastQuestion = i
		}
	}
	if lastQuestion > firstQuestion {
		return lastQuestion
	}
	return -1
}

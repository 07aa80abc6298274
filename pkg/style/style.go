// Package style extracts and compares writing-style features. The style
// analyst derives the moderator's historical style from it and the candidate
// scorer measures how closely a generated reply matches.
package style

import (
	"sort"
	"strings"
	"unicode"
)

// Formality labels.
const (
	FormalityFormal   = "formal"
	FormalityInformal = "informal"
)

// Directness labels.
const (
	DirectnessDirect   = "direct"
	DirectnessIndirect = "indirect"
)

// Features are the extracted writing-style characteristics.
type Features struct {
	MeanSentenceLength  float64  // words per sentence
	MeanSentenceCount   float64  // sentences per message
	CommaRate           float64  // per character
	QuestionRate        float64  // per character
	PeriodRate          float64  // per character
	ExclamationRate     float64  // per character
	CommonOpenings      []string // top two/three-word sentence starts
	DominantFormality   string
	DominantDirectness  string
}

var formalIndicators = []string{
	"sie", "ihnen", "ihrer", "sehr geehrte", "vielen dank", "freundliche",
	"gerne würde", "dürfte", "könnten sie", "möchten sie",
}

var informalIndicators = []string{
	"du", "dich", "dir", "hey", "na", "haha", "hihi", "mega", "voll",
	"krass", "echt", "halt", "mal", "ne", "nen", "bisschen", "bissl",
}

var directIndicators = []string{
	"ich will", "ich möchte", "sag mir", "erzähl mir", "zeig mir",
	"was machst du", "wie geht es dir", "magst du",
}

var indirectIndicators = []string{
	"vielleicht", "eventuell", "könnte", "würde", "wäre", "irgendwie",
	"ich glaube", "ich denke", "mal schauen", "wer weiß",
}

// Extract computes the features of up to 5 reference texts.
func Extract(texts []string) Features {
	if len(texts) > 5 {
		texts = texts[:5]
	}

	features := Features{}
	if len(texts) == 0 {
		return features
	}

	var totalSentences, totalWords, totalChars int
	var commas, questions, periods, exclamations int
	openingCounts := map[string]int{}
	formalScore, informalScore := 0, 0
	directScore, indirectScore := 0, 0

	for _, text := range texts {
		sentences := SplitSentences(text)
		totalSentences += len(sentences)
		totalChars += len([]rune(text))
		commas += strings.Count(text, ",")
		questions += strings.Count(text, "?")
		periods += strings.Count(text, ".")
		exclamations += strings.Count(text, "!")

		for _, sentence := range sentences {
			words := strings.Fields(sentence)
			totalWords += len(words)
			if opening := sentenceOpening(words); opening != "" {
				openingCounts[opening]++
			}
		}

		lower := strings.ToLower(text)
		for _, ind := range formalIndicators {
			formalScore += strings.Count(lower, ind)
		}
		for _, ind := range informalIndicators {
			informalScore += strings.Count(lower, ind)
		}
		for _, ind := range directIndicators {
			directScore += strings.Count(lower, ind)
		}
		for _, ind := range indirectIndicators {
			indirectScore += strings.Count(lower, ind)
		}
	}

	if totalSentences > 0 {
		features.MeanSentenceLength = float64(totalWords) / float64(totalSentences)
	}
	features.MeanSentenceCount = float64(totalSentences) / float64(len(texts))
	if totalChars > 0 {
		features.CommaRate = float64(commas) / float64(totalChars)
		features.QuestionRate = float64(questions) / float64(totalChars)
		features.PeriodRate = float64(periods) / float64(totalChars)
		features.ExclamationRate = float64(exclamations) / float64(totalChars)
	}

	features.CommonOpenings = topOpenings(openingCounts, 10)

	if formalScore > informalScore {
		features.DominantFormality = FormalityFormal
	} else {
		features.DominantFormality = FormalityInformal
	}
	if indirectScore > directScore {
		features.DominantDirectness = DirectnessIndirect
	} else {
		features.DominantDirectness = DirectnessDirect
	}

	return features
}

// Compare scores how closely candidate features match the reference, in
// [0,100]: 25 sentence length, 20 sentence count, 25 punctuation rates,
// 15 opening overlap, 10 formality, 5 directness.
func Compare(reference, candidate Features) float64 {
	score := 0.0

	score += 25 * proximity(reference.MeanSentenceLength, candidate.MeanSentenceLength, 8)
	score += 20 * proximity(reference.MeanSentenceCount, candidate.MeanSentenceCount, 2.5)

	punct := 0.0
	punct += proximity(reference.CommaRate, candidate.CommaRate, 0.03)
	punct += proximity(reference.QuestionRate, candidate.QuestionRate, 0.02)
	punct += proximity(reference.PeriodRate, candidate.PeriodRate, 0.03)
	punct += proximity(reference.ExclamationRate, candidate.ExclamationRate, 0.02)
	score += 25 * punct / 4

	score += 15 * openingOverlap(reference.CommonOpenings, candidate.CommonOpenings)

	if reference.DominantFormality == candidate.DominantFormality {
		score += 10
	}
	if reference.DominantDirectness == candidate.DominantDirectness {
		score += 5
	}

	return score
}

// SplitSentences splits text into sentences at terminal punctuation.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(current.String()); s != "" && hasLetter(s) {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" && hasLetter(s) {
		sentences = append(sentences, s)
	}
	return sentences
}

func sentenceOpening(words []string) string {
	if len(words) >= 3 {
		return strings.ToLower(strings.Join(words[:3], " "))
	}
	if len(words) == 2 {
		return strings.ToLower(strings.Join(words, " "))
	}
	return ""
}

func topOpenings(counts map[string]int, n int) []string {
	type entry struct {
		opening string
		count   int
	}
	entries := make([]entry, 0, len(counts))
	for opening, count := range counts {
		entries = append(entries, entry{opening, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count == entries[j].count {
			return entries[i].opening < entries[j].opening
		}
		return entries[i].count > entries[j].count
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.opening
	}
	return out
}

func openingOverlap(reference, candidate []string) float64 {
	if len(reference) == 0 || len(candidate) == 0 {
		return 0
	}
	refSet := map[string]bool{}
	for _, o := range reference {
		refSet[o] = true
	}
	matches := 0
	for _, o := range candidate {
		if refSet[o] {
			matches++
		}
	}
	return float64(matches) / float64(len(candidate))
}

// proximity maps |a-b| onto [0,1] with scale as the distance that scores 0.
func proximity(a, b, scale float64) float64 {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	if diff >= scale {
		return 0
	}
	return 1 - diff/scale
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

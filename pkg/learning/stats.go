// Package learning derives and serves the supervised feedback statistics the
// engine uses for retrieval scoring, candidate scoring and prompt guidance.
package learning

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kavora-ai/replygen/pkg/store"
)

// WordScore counts good and bad occurrences of a word within a situation.
type WordScore struct {
	Good int `json:"good"`
	Bad  int `json:"bad"`
}

// Ratio returns the good share; 0.5 when no data.
func (w WordScore) Ratio() float64 {
	total := w.Good + w.Bad
	if total == 0 {
		return 0.5
	}
	return float64(w.Good) / float64(total)
}

// ResponsePattern is a reply that repeatedly performed well in a situation.
type ResponsePattern struct {
	Situation    string `json:"situation"`
	GoodResponse string `json:"goodResponse"`
	SuccessCount int    `json:"successCount"`
	FailCount    int    `json:"failCount"`
}

// SuccessRate of the pattern; 0.5 when no data.
func (p ResponsePattern) SuccessRate() float64 {
	total := p.SuccessCount + p.FailCount
	if total == 0 {
		return 0.5
	}
	return float64(p.SuccessCount) / float64(total)
}

// ReasoningPrinciple is an editor-stated principle behind a correction.
type ReasoningPrinciple struct {
	Situation string `json:"situation"`
	Principle string `json:"principle"`
	Count     int    `json:"count"`
}

// DiffPattern aggregates words editors removed from or added to replies.
type DiffPattern struct {
	Removed []string `json:"removed"`
	Added   []string `json:"added"`
}

// ExamplePerf tracks how a training example performed when used.
type ExamplePerf struct {
	Good        int     `json:"good"`
	Bad         int     `json:"bad"`
	Total       int     `json:"total"`
	SuccessRate float64 `json:"successRate"`
}

// PositiveStats carries length/question targets from well-rated replies.
type PositiveStats struct {
	Count                  int     `json:"count"`
	MedianLength           float64 `json:"medianLength"`
	MedianQuestions        float64 `json:"medianQuestions"`
	MedianExclamationMarks float64 `json:"medianExclamationMarks"`
}

// MessageStats groups per-situation reply statistics.
type MessageStats struct {
	Positive PositiveStats `json:"positive"`
}

// DeepPatterns is the optional background-extracted pattern set.
type DeepPatterns struct {
	Patterns    []string  `json:"patterns"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Stats is the derived learning state, one read per request.
type Stats struct {
	WordFrequencies     map[string]map[string]WordScore `json:"wordFrequencies"`
	ResponsePatterns    []ResponsePattern               `json:"responsePatterns"`
	ReasoningPrinciples []ReasoningPrinciple            `json:"reasoningPrinciples"`
	DiffPatterns        map[string]DiffPattern          `json:"diffPatterns"`
	ExamplePerformance  map[string]map[string]ExamplePerf `json:"examplePerformance"`
	MessageStats        map[string]MessageStats         `json:"messageStats"`
	DeepPatterns        *DeepPatterns                   `json:"deepPatterns,omitempty"`
}

// GeneralSituation is the catch-all bucket.
const GeneralSituation = "allgemein"

// Empty reports whether the stats carry no usable signal.
func (s *Stats) Empty() bool {
	if s == nil {
		return true
	}
	return len(s.WordFrequencies) == 0 && len(s.ResponsePatterns) == 0 &&
		len(s.ExamplePerformance) == 0 && len(s.MessageStats) == 0
}

// PerfLookup resolves example performance with the documented fallbacks:
// exact situation first, then the general bucket at a 0.7 discount. The
// returned weight scales the feedback score component.
func (s *Stats) PerfLookup(exampleID, situation string) (ExamplePerf, float64, bool) {
	if s == nil || exampleID == "" {
		return ExamplePerf{SuccessRate: 0.5}, 0, false
	}
	bySituation, ok := s.ExamplePerformance[exampleID]
	if !ok {
		return ExamplePerf{SuccessRate: 0.5}, 0, false
	}
	if perf, ok := bySituation[situation]; ok && perf.Total > 0 {
		return perf, 1.0, true
	}
	if perf, ok := bySituation[GeneralSituation]; ok && perf.Total > 0 {
		return perf, 0.7, true
	}
	return ExamplePerf{SuccessRate: 0.5}, 0, false
}

// TopWords returns up to n words that performed well in the situation.
// A word qualifies with at least 3 sightings and a good share of 0.7.
func (s *Stats) TopWords(situation string, n int) []string {
	return s.rankedWords(situation, n, func(w WordScore) bool {
		return w.Good+w.Bad >= 3 && w.Ratio() >= 0.7
	}, func(a, b WordScore) bool { return a.Ratio() > b.Ratio() })
}

// AvoidWords returns up to n words that performed badly in the situation.
// A word qualifies with at least 2 sightings and a bad share of 0.6.
func (s *Stats) AvoidWords(situation string, n int) []string {
	return s.rankedWords(situation, n, func(w WordScore) bool {
		return w.Good+w.Bad >= 2 && 1-w.Ratio() >= 0.6
	}, func(a, b WordScore) bool { return a.Ratio() < b.Ratio() })
}

func (s *Stats) rankedWords(situation string, n int, keep func(WordScore) bool, less func(a, b WordScore) bool) []string {
	if s == nil || n <= 0 {
		return nil
	}
	freqs, ok := s.WordFrequencies[situation]
	if !ok {
		return nil
	}
	type entry struct {
		word  string
		score WordScore
	}
	var entries []entry
	for word, score := range freqs {
		if keep(score) {
			entries = append(entries, entry{word, score})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score.Ratio() == entries[j].score.Ratio() {
			return entries[i].word < entries[j].word
		}
		return less(entries[i].score, entries[j].score)
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	words := make([]string, len(entries))
	for i, e := range entries {
		words[i] = e.word
	}
	return words
}

// SuccessPatterns returns up to n well-performing response patterns for the
// situation, best first.
func (s *Stats) SuccessPatterns(situation string, n int) []ResponsePattern {
	if s == nil || n <= 0 {
		return nil
	}
	var out []ResponsePattern
	for _, p := range s.ResponsePatterns {
		if p.Situation == situation && p.SuccessCount > p.FailCount {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SuccessRate() == out[j].SuccessRate() {
			return out[i].SuccessCount > out[j].SuccessCount
		}
		return out[i].SuccessRate() > out[j].SuccessRate()
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// TargetLength returns the reply length band for the detected situations,
// falling back to [150, 220] when the stats are silent.
func (s *Stats) TargetLength(situations []string) (min, max int) {
	min, max = 150, 220
	if s == nil {
		return min, max
	}
	for _, sit := range append(situations, GeneralSituation) {
		if ms, ok := s.MessageStats[sit]; ok && ms.Positive.Count > 0 && ms.Positive.MedianLength > 0 {
			median := int(ms.Positive.MedianLength)
			if median < 150 {
				median = 150
			}
			return 150, median + 50
		}
	}
	return min, max
}

// TargetQuestions returns the question-count target, default 1.
func (s *Stats) TargetQuestions(situations []string) int {
	if s == nil {
		return 1
	}
	for _, sit := range append(situations, GeneralSituation) {
		if ms, ok := s.MessageStats[sit]; ok && ms.Positive.Count > 0 {
			q := int(ms.Positive.MedianQuestions + 0.5)
			if q < 1 {
				q = 1
			}
			if q > 2 {
				q = 2
			}
			return q
		}
	}
	return 1
}

// TargetSentences estimates the sentence target from the median length,
// assuming the corpus average of roughly 60 characters per sentence.
func (s *Stats) TargetSentences(situations []string) int {
	_, max := s.TargetLength(situations)
	n := max / 60
	if n < 2 {
		n = 2
	}
	if n > 5 {
		n = 5
	}
	return n
}

// GreetingScore returns the good/bad score of a greeting token across all
// situations. Used by the ASA selector to drop examples opening with a
// greeting the feedback log dislikes.
func (s *Stats) GreetingScore(token string) WordScore {
	var total WordScore
	if s == nil {
		return total
	}
	token = strings.ToLower(token)
	for _, freqs := range s.WordFrequencies {
		if score, ok := freqs[token]; ok {
			total.Good += score.Good
			total.Bad += score.Bad
		}
	}
	return total
}

var wordSplitter = regexp.MustCompile(`[a-zA-ZäöüÄÖÜß]+`)

// Tokenize lowercases and splits text into words.
func Tokenize(text string) []string {
	return wordSplitter.FindAllString(strings.ToLower(text), -1)
}

// Derive computes learning statistics from the feedback log. It is used when
// learning-stats.json is absent; deployments normally refresh the file
// out-of-band with the same computation.
func Derive(feedback *store.FeedbackData) *Stats {
	stats := &Stats{
		WordFrequencies:    map[string]map[string]WordScore{},
		DiffPatterns:       map[string]DiffPattern{},
		ExamplePerformance: map[string]map[string]ExamplePerf{},
		MessageStats:       map[string]MessageStats{},
	}
	if feedback == nil {
		return stats
	}

	patternIndex := map[string]int{}
	type positives struct {
		lengths      []int
		questions    []int
		exclamations []int
	}
	positive := map[string]*positives{}

	for _, fb := range feedback.Feedbacks {
		situation := fb.Situation
		if situation == "" {
			situation = GeneralSituation
		}
		good := fb.Label == store.FeedbackGood

		for _, word := range Tokenize(fb.Response) {
			if len(word) < 3 {
				continue
			}
			if stats.WordFrequencies[situation] == nil {
				stats.WordFrequencies[situation] = map[string]WordScore{}
			}
			score := stats.WordFrequencies[situation][word]
			if good {
				score.Good++
			} else {
				score.Bad++
			}
			stats.WordFrequencies[situation][word] = score
		}

		key := situation + "\x00" + fb.Response
		if idx, ok := patternIndex[key]; ok {
			if good {
				stats.ResponsePatterns[idx].SuccessCount++
			} else {
				stats.ResponsePatterns[idx].FailCount++
			}
		} else {
			p := ResponsePattern{Situation: situation, GoodResponse: fb.Response}
			if good {
				p.SuccessCount = 1
			} else {
				p.FailCount = 1
			}
			patternIndex[key] = len(stats.ResponsePatterns)
			stats.ResponsePatterns = append(stats.ResponsePatterns, p)
		}

		if fb.Label == store.FeedbackEdited && fb.EditedResponse != "" {
			diff := stats.DiffPatterns[situation]
			removed, added := wordDiff(fb.Response, fb.EditedResponse)
			diff.Removed = appendUnique(diff.Removed, removed...)
			diff.Added = appendUnique(diff.Added, added...)
			stats.DiffPatterns[situation] = diff
		}

		if fb.Reasoning != "" {
			stats.ReasoningPrinciples = upsertPrinciple(stats.ReasoningPrinciples, situation, fb.Reasoning)
		}

		if fb.ExampleID != "" {
			if stats.ExamplePerformance[fb.ExampleID] == nil {
				stats.ExamplePerformance[fb.ExampleID] = map[string]ExamplePerf{}
			}
			perf := stats.ExamplePerformance[fb.ExampleID][situation]
			if good {
				perf.Good++
			} else {
				perf.Bad++
			}
			perf.Total = perf.Good + perf.Bad
			perf.SuccessRate = float64(perf.Good) / float64(perf.Total)
			stats.ExamplePerformance[fb.ExampleID][situation] = perf
		}

		if good {
			if positive[situation] == nil {
				positive[situation] = &positives{}
			}
			p := positive[situation]
			p.lengths = append(p.lengths, len([]rune(fb.Response)))
			p.questions = append(p.questions, strings.Count(fb.Response, "?"))
			p.exclamations = append(p.exclamations, strings.Count(fb.Response, "!"))
		}
	}

	for situation, p := range positive {
		stats.MessageStats[situation] = MessageStats{Positive: PositiveStats{
			Count:                  len(p.lengths),
			MedianLength:           median(p.lengths),
			MedianQuestions:        median(p.questions),
			MedianExclamationMarks: median(p.exclamations),
		}}
	}

	return stats
}

func wordDiff(original, edited string) (removed, added []string) {
	origSet := map[string]bool{}
	for _, w := range Tokenize(original) {
		origSet[w] = true
	}
	editSet := map[string]bool{}
	for _, w := range Tokenize(edited) {
		editSet[w] = true
	}
	for w := range origSet {
		if !editSet[w] && len(w) >= 3 {
			removed = append(removed, w)
		}
	}
	for w := range editSet {
		if !origSet[w] && len(w) >= 3 {
			added = append(added, w)
		}
	}
	sort.Strings(removed)
	sort.Strings(added)
	return removed, added
}

func upsertPrinciple(principles []ReasoningPrinciple, situation, principle string) []ReasoningPrinciple {
	for i := range principles {
		if principles[i].Situation == situation && principles[i].Principle == principle {
			principles[i].Count++
			return principles
		}
	}
	return append(principles, ReasoningPrinciple{Situation: situation, Principle: principle, Count: 1})
}

func appendUnique(dst []string, items ...string) []string {
	seen := map[string]bool{}
	for _, s := range dst {
		seen[s] = true
	}
	for _, s := range items {
		if !seen[s] {
			dst = append(dst, s)
			seen[s] = true
		}
	}
	return dst
}

func median(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return float64(sorted[mid])
	}
	return float64(sorted[mid-1]+sorted[mid]) / 2
}

package style

import "context"

// Analyzer implements the writing-style capability on the local feature
// extractor, for deployments without an external style service.
type Analyzer struct{}

// Analyze extracts the features as a generic map.
func (Analyzer) Analyze(ctx context.Context, messages []string) (map[string]interface{}, error) {
	features := Extract(messages)
	return map[string]interface{}{
		"mean_sentence_length": features.MeanSentenceLength,
		"mean_sentence_count":  features.MeanSentenceCount,
		"comma_rate":           features.CommaRate,
		"question_rate":        features.QuestionRate,
		"period_rate":          features.PeriodRate,
		"exclamation_rate":     features.ExclamationRate,
		"common_openings":      features.CommonOpenings,
		"dominant_formality":   features.DominantFormality,
		"dominant_directness":  features.DominantDirectness,
	}, nil
}

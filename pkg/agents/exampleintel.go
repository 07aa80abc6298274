package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/kavora-ai/replygen/pkg/blackboard"
	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/llms"
)

// ExampleIntelResult distills guidance from the retrieved examples.
type ExampleIntelResult struct {
	BestExampleIDs    []string `json:"best_example_ids"`
	StructureGuidance string   `json:"structure_guidance"`
	WordChoice        string   `json:"word_choice"`
	QuestionGuidance  string   `json:"question_guidance"`
	ContextPattern    string   `json:"context_pattern"`
	AntiRedundancy    string   `json:"-"`
	BestSimilarity    float64  `json:"-"`
	Success           bool     `json:"-"`
}

// ExampleIntelligence surfaces the best retrieved examples and extracts
// structural guidance. It also detects whether customer preferences were
// already asked about, emitting an anti-redundancy instruction.
type ExampleIntelligence struct {
	LLM   capability.LLM
	Model string
}

// Fallback is the empty guidance.
func (e *ExampleIntelligence) Fallback() ExampleIntelResult {
	return ExampleIntelResult{Success: false}
}

// Run analyzes the retrieval results against the conversation.
func (e *ExampleIntelligence) Run(ctx context.Context, message string, conv Conversation, examples []capability.ScoredExample, board *blackboard.Board) (ExampleIntelResult, error) {
	if len(examples) == 0 {
		return ExampleIntelResult{Success: true}, nil
	}

	best := 0.0
	var sb strings.Builder
	limit := len(examples)
	if limit > 8 {
		limit = 8
	}
	for i := 0; i < limit; i++ {
		ex := examples[i]
		if ex.Similarity > best {
			best = ex.Similarity
		}
		fmt.Fprintf(&sb, "[%d] (id=%s, sim=%.2f) Kunde: %s -> Antwort: %s\n",
			i+1, ex.Example.ID, ex.Similarity, ex.Example.CustomerMessage, ex.Example.Response())
	}

	system := `Du analysierst Trainingsbeispiele für Chat-Antworten.
Leite aus den Beispielen Struktur-, Wortwahl- und Fragen-Hinweise ab.
Antworte als JSON:
{"best_example_ids": ["ids der 2-3 besten Beispiele"],
 "structure_guidance": "wie die Antwort aufgebaut sein soll",
 "word_choice": "typische Formulierungen",
 "question_guidance": "welche Frage ans Ende passt",
 "context_pattern": "wann welche Frage gestellt wird"}`

	user := fmt.Sprintf("Kundennachricht: %q\n\nBeispiele:\n%s", message, sb.String())

	raw, err := e.LLM.CompleteJSON(ctx, capability.CompletionRequest{
		Model:       e.Model,
		System:      system,
		User:        user,
		Temperature: 0.2,
		MaxTokens:   500,
		JSONMode:    true,
	})
	if err != nil {
		return e.Fallback(), err
	}

	var result ExampleIntelResult
	if err := llms.Decode(raw, &result); err != nil {
		return e.Fallback(), err
	}
	result.BestSimilarity = best
	result.Success = true

	// Anti-redundancy: preferences already discussed must not be asked again.
	history := strings.ToLower(conv.RecentText(10))
	var mentioned []string
	for topic, markers := range map[string][]string{
		"sexuelle Vorlieben": {"vorlieben", "stehst du auf", "magst du im bett"},
		"Hobbys":             {"hobby", "hobbys", "freizeit"},
		"Arbeit":             {"beruf", "arbeit", "arbeitest"},
	} {
		if _, ok := containsAny(history, markers); ok {
			mentioned = append(mentioned, topic)
		}
	}
	if len(mentioned) > 0 {
		result.AntiRedundancy = fmt.Sprintf(
			"Bereits besprochen: %s. Frage NICHT erneut danach; vertiefe das Thema stattdessen.",
			strings.Join(mentioned, ", "))
	}

	if board != nil {
		insights := []string{result.StructureGuidance}
		if result.AntiRedundancy != "" {
			insights = append(insights, result.AntiRedundancy)
			board.AddPriority(result.AntiRedundancy, blackboard.PriorityHigh, string(NameExampleIntel))
		}
		board.Write(string(NameExampleIntel), insights, []string{result.QuestionGuidance}, result)
	}

	return result, nil
}

// Package multistage implements the alternative 4-stage pipeline used for
// fine-tuned backends: Planning, Example Selection, Generation, and
// Validation & Correction.
package multistage

import (
	"context"
	"fmt"
	"strings"

	"github.com/kavora-ai/replygen/pkg/agents"
	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/llms"
	"github.com/kavora-ai/replygen/pkg/prompt"
	"github.com/kavora-ai/replygen/pkg/store"
)

// Plan is the Stage-1 output.
type Plan struct {
	Topic                 string   `json:"topic"`
	Summary               string   `json:"summary"`
	KeyPoints             []string `json:"key_points"`
	DetectedSituations    []string `json:"detected_situations"`
	CriticalInstructions  []string `json:"critical_instructions"`
	NewInformation        []string `json:"new_information"`
	OpenQuestions         []string `json:"open_questions"`
	IsOngoingConversation bool     `json:"is_ongoing_conversation"`

	LocationCity  string `json:"-"`
	LocationError bool   `json:"-"`
	ImageGuidance string `json:"-"`
}

// Pipeline runs the four stages.
type Pipeline struct {
	LLM       capability.LLM
	FineTuned capability.LLM
	Model     string
	Search    capability.VectorSearch
	City      capability.CityLookup
	Image     capability.ImageAnalyzer
	Classify  capability.Classifiers
}

// Stage1Plan computes the plan with one LLM call, handling location and
// image questions inline.
func (p *Pipeline) Stage1Plan(ctx context.Context, in *prompt.Inputs, imageURL string) (Plan, error) {
	system := `Du planst eine Chat-Antwort. Analysiere Nachricht, Verlauf und Profil.
Antworte als JSON:
{"topic": "...", "summary": "...", "key_points": ["..."],
 "detected_situations": ["..."], "critical_instructions": ["..."],
 "new_information": ["..."], "open_questions": ["..."],
 "is_ongoing_conversation": bool}`

	user := fmt.Sprintf("Profil: %s aus %s\nVerlauf:\n%s\n\nNachricht: %q",
		in.Profile.Name, in.Profile.City, in.Conversation.Rendered, in.CustomerMessage)

	raw, err := p.LLM.CompleteJSON(ctx, capability.CompletionRequest{
		Model:       p.Model,
		System:      system,
		User:        user,
		Temperature: 0.1,
		MaxTokens:   500,
		JSONMode:    true,
	})
	if err != nil {
		return Plan{}, fmt.Errorf("planning stage failed: %w", err)
	}

	var plan Plan
	if err := llms.Decode(raw, &plan); err != nil {
		return Plan{}, fmt.Errorf("planning stage returned invalid JSON: %w", err)
	}

	// Location questions resolve inline; an unresolvable city is a human
	// handoff, not a generation.
	if p.isLocationQuestion(ctx, in.CustomerMessage) {
		city := strings.TrimSpace(in.Profile.City)
		if city == "" && p.City != nil {
			if customerCity, ok := in.Profile.CustomerInfo["city"].(string); ok && customerCity != "" {
				if nearby, err := p.City.FindNearby(ctx, customerCity); err == nil {
					city = nearby
				}
			}
		}
		if city == "" {
			plan.LocationError = true
		} else {
			plan.LocationCity = city
			plan.CriticalInstructions = append(plan.CriticalInstructions,
				fmt.Sprintf("Nenne im ersten Satz, dass du aus %s kommst, und stelle eine Gegenfrage.", city))
		}
	}

	if imageURL != "" && p.Image != nil {
		if analysis, err := p.Image.Analyze(ctx, imageURL, in.Conversation.Rendered); err == nil {
			plan.ImageGuidance = fmt.Sprintf("Der Kunde hat ein Bild geschickt (%s): %s. Reagiere darauf.",
				analysis.ImageType, analysis.Description)
			plan.CriticalInstructions = append(plan.CriticalInstructions, plan.ImageGuidance)
		}
	}

	return plan, nil
}

// Stage2SelectExamples searches with the plan's situations and asks the LLM
// for the best one or two examples; quality over quantity.
func (p *Pipeline) Stage2SelectExamples(ctx context.Context, plan Plan, customerMessage string) ([]store.Example, error) {
	situation := ""
	if len(plan.DetectedSituations) > 0 {
		situation = plan.DetectedSituations[0]
	}

	hits, err := p.Search.Search(ctx, customerMessage, capability.SearchOptions{
		TopK:      12,
		Situation: situation,
	})
	if err != nil || len(hits) == 0 {
		hits, err = p.Search.Search(ctx, customerMessage, capability.SearchOptions{TopK: 12})
		if err != nil {
			return nil, fmt.Errorf("example search failed: %w", err)
		}
	}
	if len(hits) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	for i, hit := range hits {
		fmt.Fprintf(&sb, "[%d] Kunde: %s -> %s\n", i+1, hit.Example.CustomerMessage, hit.Example.Response())
	}

	raw, err := p.LLM.CompleteJSON(ctx, capability.CompletionRequest{
		Model: p.Model,
		System: `Wähle die 1-2 Beispiele, die am besten zur Kundennachricht passen.
Qualität vor Quantität. Antworte als JSON: {"indices": [1-basiert]}`,
		User:        fmt.Sprintf("Nachricht: %q\n\nBeispiele:\n%s", customerMessage, sb.String()),
		Temperature: 0,
		MaxTokens:   100,
		JSONMode:    true,
	})
	if err != nil {
		// selection is an optimization; fall back to the top hit
		return []store.Example{hits[0].Example}, nil
	}

	var parsed struct {
		Indices []int `json:"indices"`
	}
	if err := llms.Decode(raw, &parsed); err != nil || len(parsed.Indices) == 0 {
		return []store.Example{hits[0].Example}, nil
	}

	var selected []store.Example
	for _, idx := range parsed.Indices {
		if idx >= 1 && idx <= len(hits) && len(selected) < 2 {
			selected = append(selected, hits[idx-1].Example)
		}
	}
	if len(selected) == 0 {
		selected = []store.Example{hits[0].Example}
	}
	return selected, nil
}

// Stage3Generate renders the minimal training-format prompt and completes it
// on the fine-tuned backend, falling back to the general LLM.
func (p *Pipeline) Stage3Generate(ctx context.Context, in *prompt.Inputs, plan Plan, examples []store.Example) (string, error) {
	composer := &prompt.FineTuneComposer{}
	var oneShot *store.Example
	if len(examples) > 0 {
		oneShot = &examples[0]
	}
	in.Situations = plan.DetectedSituations
	system, user := composer.Compose(in, oneShot)

	backend := p.FineTuned
	if backend == nil {
		backend = p.LLM
	}
	text, err := backend.Complete(ctx, capability.CompletionRequest{
		System:      system,
		User:        user,
		Temperature: 0.7,
		MaxTokens:   300,
	})
	if err != nil && backend != p.LLM {
		// on-premise backend timeout: retry on the cloud LLM
		text, err = p.LLM.Complete(ctx, capability.CompletionRequest{
			System:      system,
			User:        user,
			Temperature: 0.7,
			MaxTokens:   300,
		})
	}
	if err != nil {
		return "", fmt.Errorf("generation stage failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Stage4Validate corrects the draft against the plan. Sexual conversations
// get structural fixes only; meeting hints are removed for the rest; a
// missing terminal question is appended. Fine-tuned-backend outputs skip
// this stage entirely.
func (p *Pipeline) Stage4Validate(ctx context.Context, draft string, plan Plan, in *prompt.Inputs, fineTunedPath bool) (string, error) {
	if fineTunedPath {
		return draft, nil
	}

	sexual := containsString(plan.DetectedSituations, agents.SituationSexual)
	result := draft

	if !sexual {
		if _, hasMeeting := agents.ContainsMeetingAgreement(strings.ToLower(result)); hasMeeting ||
			containsString(plan.DetectedSituations, agents.SituationMeeting) {
			cleaned, err := p.removeMeetingSentence(ctx, result)
			if err == nil && cleaned != "" {
				result = cleaned
			}
		}

		validated, err := p.validateAgainstPlan(ctx, result, plan, in)
		if err == nil && validated != "" {
			result = validated
		}
	}

	if !in.IsASA && !strings.Contains(result, "?") {
		appended, err := p.appendQuestion(ctx, result, plan.Topic)
		if err == nil && appended != "" {
			result = appended
		}
	}

	ceiling := 300
	if sexual {
		ceiling = 250
	}
	if runes := []rune(result); len(runes) > ceiling {
		result = trimToSentence(string(runes[:ceiling]))
	}

	return result, nil
}

func (p *Pipeline) validateAgainstPlan(ctx context.Context, draft string, plan Plan, in *prompt.Inputs) (string, error) {
	system := `Du prüfst eine Chat-Antwort gegen den Plan und korrigierst sie minimal.
Behalte Ton und Länge bei. Antworte NUR mit der (gegebenenfalls korrigierten) Nachricht.`
	user := fmt.Sprintf("Plan: Thema %s; Situationen %s; Anweisungen: %s\n\nNachricht: %q\n\nKundennachricht: %q",
		plan.Topic, strings.Join(plan.DetectedSituations, ", "),
		strings.Join(plan.CriticalInstructions, "; "), draft, in.CustomerMessage)

	return p.LLM.Complete(ctx, capability.CompletionRequest{
		Model:       p.Model,
		System:      system,
		User:        user,
		Temperature: 0.2,
		MaxTokens:   350,
	})
}

func (p *Pipeline) removeMeetingSentence(ctx context.Context, draft string) (string, error) {
	return p.LLM.Complete(ctx, capability.CompletionRequest{
		Model: p.Model,
		System: "Entferne aus der Nachricht jeden Satz, der ein Treffen vorschlägt oder zusagt. " +
			"Ersetze ihn falls nötig durch eine unverbindliche Formulierung. " +
			"Antworte NUR mit der bereinigten Nachricht.",
		User:        draft,
		Temperature: 0.2,
		MaxTokens:   350,
	})
}

func (p *Pipeline) appendQuestion(ctx context.Context, draft, topic string) (string, error) {
	question, err := p.LLM.Complete(ctx, capability.CompletionRequest{
		Model: p.Model,
		System: "Formuliere EINE kurze, zum Thema passende Frage für das Ende einer Chat-Nachricht. " +
			"Antworte nur mit der Frage.",
		User:        fmt.Sprintf("Thema: %s\nNachricht: %s", topic, draft),
		Temperature: 0.5,
		MaxTokens:   60,
	})
	if err != nil {
		return "", err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("no question generated")
	}
	return strings.TrimSpace(draft) + " " + question, nil
}

func (p *Pipeline) isLocationQuestion(ctx context.Context, message string) bool {
	if message == "" {
		return false
	}
	if agents.IsLocationOnlyQuestion(message) {
		return true
	}
	if p.Classify != nil {
		if ok, err := p.Classify.IsLocationQuestion(ctx, message); err == nil {
			return ok
		}
	}
	return false
}

func containsString(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}

func trimToSentence(text string) string {
	for i := len(text) - 1; i >= 0; i-- {
		if text[i] == '.' || text[i] == '?' {
			return strings.TrimSpace(text[:i+1])
		}
	}
	return strings.TrimSpace(text)
}

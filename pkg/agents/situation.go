package agents

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kavora-ai/replygen/pkg/blackboard"
	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/llms"
)

// situationKeywords provide the regex/keyword evidence channel.
var situationKeywords = map[string][]string{
	SituationMeeting: {
		"treffen", "date", "verabreden", "vorbeikommen", "besuchen", "sehen wir uns",
		"zeit am", "kaffee trinken", "zu mir", "zu dir",
	},
	SituationContact:    contactKeywords,
	SituationPictures:   {"bild", "foto", "pic", "zeig dich", "selfie"},
	SituationMoney:      {"coins", "geld", "teuer", "bezahlen", "kostet", "abzocke", "kohle"},
	SituationSexual:     explicitSexualKeywords,
	SituationBot:        {"bot", "fake", "computer", "nicht echt", "ki ", "roboter", "programm"},
	SituationLocation:   locationQuestionPatterns,
	SituationOccupation: {"beruf", "arbeitest", "arbeit", "job", "beruflich"},
	SituationOuting:     {"moderator", "bezahlt fürs schreiben", "schreibkraft", "agentur"},
}

// LocationInjection carries the resolved city for a location answer.
type LocationInjection struct {
	City        string
	Instruction string
}

// SituationResult is the ordered situation classification.
type SituationResult struct {
	Situations []string

	// Location is set when the message asks where the persona lives and a
	// city could be resolved.
	Location *LocationInjection

	// LocationError is set when a location question could not be answered
	// with any real city; the request requires human handoff.
	LocationError bool

	// MeetingRequest mirrors the meeting classifier verdict.
	MeetingRequest bool

	Success bool
}

// SituationDetector combines three evidence channels: an LLM detector, the
// situation-embedding cache, and keyword scans over the current message and
// recent history. Corrections and the fixed priority order are applied last.
type SituationDetector struct {
	LLM         capability.LLM
	Model       string
	Embeddings  *SituationEmbeddings
	City        capability.CityLookup
	Classifiers capability.Classifiers
}

// Fallback is the empty classification.
func (d *SituationDetector) Fallback() SituationResult {
	return SituationResult{Success: false}
}

// Run detects the ordered situation list.
func (d *SituationDetector) Run(ctx context.Context, message string, conv Conversation, profile ProfileInfo, situationalKeys []string, board *blackboard.Board) (SituationResult, error) {
	detected := map[string]float64{}

	// Channel 1: LLM detector, confidence gated.
	llmHits, err := d.detectLLM(ctx, message, conv, situationalKeys)
	if err != nil {
		slog.Debug("LLM situation detection failed, continuing with other channels", "error", err)
	}
	for situation, confidence := range llmHits {
		if confidence > 0.6 {
			detected[situation] = confidence
		}
	}

	// Channel 2: embedding similarity.
	if d.Embeddings != nil && message != "" {
		embedHits, err := d.Embeddings.Match(ctx, message)
		if err != nil {
			slog.Debug("Situation embedding match failed", "error", err)
		}
		for situation, sim := range embedHits {
			if sim > detected[situation] {
				detected[situation] = sim
			}
		}
	}

	// Channel 3: keyword evidence over message and recent history.
	scanText := strings.ToLower(message + "\n" + conv.RecentText(4))
	for situation, keywords := range situationKeywords {
		if _, ok := containsAny(scanText, keywords); ok {
			if detected[situation] == 0 {
				detected[situation] = 0.65
			}
		}
	}

	meeting := false
	if d.Classifiers != nil && message != "" {
		meeting, _ = d.Classifiers.IsMeetingRequest(ctx, message, conv.Rendered)
	}

	result := SituationResult{MeetingRequest: meeting, Success: true}
	d.applyCorrections(ctx, message, conv, detected, meeting)

	// Location handling: resolve a real city or require handoff.
	if d.isLocationQuestion(ctx, message) {
		detected[SituationLocation] = 1
		injection, locErr := d.resolveLocation(ctx, profile)
		if locErr != nil {
			result.LocationError = true
		} else {
			result.Location = injection
		}
	}

	for situation := range detected {
		result.Situations = append(result.Situations, situation)
	}
	sortSituations(result.Situations)

	if board != nil {
		board.Write(string(NameSituation),
			[]string{fmt.Sprintf("Situationen: %s", strings.Join(result.Situations, ", "))},
			nil, result)
	}

	return result, nil
}

func (d *SituationDetector) detectLLM(ctx context.Context, message string, conv Conversation, situationalKeys []string) (map[string]float64, error) {
	if message == "" {
		return nil, nil
	}

	labels := append([]string{
		SituationMeeting, SituationContact, SituationPictures, SituationMoney,
		SituationSexual, SituationBot, SituationLocation, SituationOccupation,
		SituationOuting,
	}, situationalKeys...)

	system := fmt.Sprintf(`Du klassifizierst Kundennachrichten einer Dating-Plattform.
Erkenne alle zutreffenden Situationen aus dieser Liste: %s
Antworte als JSON: {"situations": [{"label": "...", "confidence": 0.0-1.0}]}`,
		strings.Join(labels, "; "))

	raw, err := d.LLM.CompleteJSON(ctx, capability.CompletionRequest{
		Model:       d.Model,
		System:      system,
		User:        fmt.Sprintf("Verlauf:\n%s\n\nNachricht: %q", conv.Rendered, message),
		Temperature: 0,
		MaxTokens:   300,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Situations []struct {
			Label      string  `json:"label"`
			Confidence float64 `json:"confidence"`
		} `json:"situations"`
	}
	if err := llms.Decode(raw, &parsed); err != nil {
		return nil, err
	}

	known := map[string]bool{}
	for _, label := range labels {
		known[label] = true
	}
	hits := map[string]float64{}
	for _, s := range parsed.Situations {
		if known[s.Label] {
			hits[s.Label] = s.Confidence
		}
	}
	return hits, nil
}

// applyCorrections implements the hard correction rules that dominate any
// channel's raw verdict.
func (d *SituationDetector) applyCorrections(ctx context.Context, message string, conv Conversation, detected map[string]float64, meeting bool) {
	lower := strings.ToLower(message)

	// Location-only questions never mean a meeting.
	if IsLocationOnlyQuestion(lower) && !meeting {
		delete(detected, SituationMeeting)
	}

	// An answer to our own time-availability question is not a meeting
	// request by the customer.
	lastModerator := strings.ToLower(conv.LastModerator())
	if _, asked := containsAny(lastModerator, []string{"wann hast du zeit", "wann passt es dir", "hast du zeit"}); asked {
		if !meeting {
			delete(detected, SituationMeeting)
		}
	}

	// Sexual survives only with explicit keywords or an already sexual
	// context; a meeting request demotes an unsupported sexual label.
	if _, ok := detected[SituationSexual]; ok {
		combined := message + "\n" + conv.RecentText(5)
		explicit := ContainsExplicitSexual(combined)
		if !explicit || (meeting && !ContainsExplicitSexual(message)) {
			delete(detected, SituationSexual)
		}
	}

	if meeting {
		detected[SituationMeeting] = 1
	}
}

func (d *SituationDetector) isLocationQuestion(ctx context.Context, message string) bool {
	if message == "" {
		return false
	}
	if IsLocationOnlyQuestion(message) {
		return true
	}
	if d.Classifiers != nil {
		if ok, err := d.Classifiers.IsLocationQuestion(ctx, message); err == nil {
			return ok
		}
	}
	return false
}

// resolveLocation finds the city to answer a location question with: the
// persona's own city, or a real nearby city from the lookup capability.
func (d *SituationDetector) resolveLocation(ctx context.Context, profile ProfileInfo) (*LocationInjection, error) {
	city := strings.TrimSpace(profile.City)
	if city == "" && d.City != nil {
		customerCity := ""
		if profile.CustomerInfo != nil {
			if c, ok := profile.CustomerInfo["city"].(string); ok {
				customerCity = c
			}
		}
		if customerCity != "" {
			nearby, err := d.City.FindNearby(ctx, customerCity)
			if err == nil && nearby != "" {
				city = nearby
			}
		}
	}
	if city == "" {
		return nil, fmt.Errorf("no resolvable city for location question")
	}
	return &LocationInjection{
		City: city,
		Instruction: fmt.Sprintf(
			"Der Kunde fragt nach deinem Wohnort. Antworte im ersten Satz, dass du aus %s kommst, und stelle eine Gegenfrage (z.B. 'und du?' oder 'woher kommst du?').",
			city),
	}, nil
}

// sortSituations orders by the fixed priority table; unknown labels (from
// the rules bundle) sort after the taxonomy, alphabetically.
func sortSituations(situations []string) {
	sort.SliceStable(situations, func(i, j int) bool {
		pi, iok := situationPriority[situations[i]]
		pj, jok := situationPriority[situations[j]]
		switch {
		case iok && jok:
			return pi < pj
		case iok:
			return true
		case jok:
			return false
		default:
			return situations[i] < situations[j]
		}
	})
}

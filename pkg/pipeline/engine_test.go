package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavora-ai/replygen/pkg/agents"
	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/config"
	"github.com/kavora-ai/replygen/pkg/llms"
	"github.com/kavora-ai/replygen/pkg/retrieval"
	"github.com/kavora-ai/replygen/pkg/store"
)

// stubLLM routes calls by prompt markers and records everything for
// assertions.
type stubLLM struct {
	mu           sync.Mutex
	generation   string
	rewritten    string // returned by rewrite calls; falls back to generation
	situations   string // JSON array payload for the situation detector
	german       string // language detector verdict JSON
	calls        int
	genCalls     int
	rewriteCalls int
	genPrompts   []string
}

func (s *stubLLM) Name() string { return "stub" }

func (s *stubLLM) Complete(ctx context.Context, req capability.CompletionRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	system := req.System
	switch {
	case strings.Contains(system, "Sprachdetektor"):
		return s.german, nil
	case strings.Contains(system, "analysierst Chat-Nachrichten"):
		return `{"topic": "general", "flow": "neutral", "key_points": [], "roleplay": {"active": false}}`, nil
	case strings.Contains(system, "klassifizierst Kundennachrichten"):
		return `{"situations": ` + s.situations + `}`, nil
	case strings.Contains(system, "Gesprächsfluss"):
		return `{"active_context": {"current_topic": "alltag", "is_reply_to_last_moderator": true}, "outdated_topics": [], "guidance": ""}`, nil
	case strings.Contains(system, "Übereinkünfte aus einem Dating-Chat"):
		return `{"consensus": []}`, nil
	case strings.Contains(system, "löst mehrdeutige"):
		return `{"resolved_meaning": "", "profile_connections": [], "sexual_context": false, "recommendations": []}`, nil
	case strings.Contains(system, "Verbindungen zwischen den Turns"):
		return `{"open_announcements": [], "open_questions": [], "answered_questions": [], "closed_topics": [], "new_information": [], "problematic_requests": []}`, nil
	case strings.Contains(system, "Trainingsbeispiele für Chat-Antworten"):
		return `{"best_example_ids": [], "structure_guidance": "kurz und locker", "word_choice": "", "question_guidance": "", "context_pattern": ""}`, nil
	case strings.Contains(system, "Treffen-Wunsch"):
		return `{"allowed_phrases": ["schauen wir mal wann es bei mir klappt"], "blocked_phrases": [], "guidance": "ablenken"}`, nil
	case strings.Contains(system, "widersprechen sich"):
		return `{"priority": "examples", "guidance": ""}`, nil
	case strings.Contains(system, "fasst Analyse-Erkenntnisse"):
		return `{"synthesized_knowledge": "locker bleiben", "key_insights": [], "actionable_guidance": [], "priority_insights": []}`, nil
	case strings.Contains(system, "prüfst, ob eine Chat-Antwort"), strings.Contains(system, "prüfst eine Chat-Antwort"):
		return `{"score": 20, "reason": "passt"}`, nil
	case strings.Contains(system, "überarbeitest Chat-Nachrichten"):
		s.rewriteCalls++
		if s.rewritten != "" {
			return s.rewritten, nil
		}
		return s.generation, nil
	case strings.Contains(system, "Moderations-Feedback"):
		return `{"patterns": []}`, nil
	default:
		s.genCalls++
		s.genPrompts = append(s.genPrompts, req.System+"\n"+req.User)
		return s.generation, nil
	}
}

func (s *stubLLM) CompleteJSON(ctx context.Context, req capability.CompletionRequest) (map[string]interface{}, error) {
	text, err := s.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return llms.ParseJSONObject(text)
}

// stubSearch returns canned scored examples.
type stubSearch struct{ examples []capability.ScoredExample }

func (s *stubSearch) Search(ctx context.Context, query string, opts capability.SearchOptions) ([]capability.ScoredExample, error) {
	return s.examples, nil
}

// stubModeration blocks messages containing the marker.
type stubModeration struct{ marker string }

func (s *stubModeration) Check(ctx context.Context, text string) (capability.ModerationResult, error) {
	if s.marker != "" && strings.Contains(text, s.marker) {
		return capability.ModerationResult{IsBlocked: true, Reason: "test", ErrorMessage: "blockiert"}, nil
	}
	return capability.ModerationResult{}, nil
}

// histEmbedder embeds texts as character histograms.
type histEmbedder struct{}

func (histEmbedder) Dimension() int { return 64 }

func (histEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 64)
	for _, r := range text {
		vec[int(r)%64]++
	}
	return vec, nil
}

func (h histEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = h.Embed(ctx, t)
	}
	return out, nil
}

const goodReply = "Mein Alltag ist momentan ziemlich voll, deshalb kann ich dir dazu noch gar nichts versprechen, lass uns doch erstmal hier weiter schreiben und uns in Ruhe besser kennenlernen. Was hast du am Wochenende denn so vor?"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		LLM:  config.LLMConfig{Backend: config.BackendLocal, Model: "test-model", Timeout: 10, MaxRetries: 1, RetryDelay: 1},
		Data: config.DataConfig{Dir: t.TempDir()},
		Engine: config.EngineConfig{
			MLQualityWeight:       0.5,
			FeedbackRichThreshold: 0.6,
			FeedbackPoorThreshold: 0.3,
			ParaphraseSimilarity:  0.999,
			GreetingBadRatio:      0.5,
			MaxTotalRewrites:      5,
			PromptTokenBudget:     100000,
		},
	}
}

func testCaps(llm *stubLLM) capability.Set {
	return capability.Set{
		LLM:      llm,
		Embedder: histEmbedder{},
		Search: &stubSearch{examples: []capability.ScoredExample{
			{Example: store.Example{ID: "e1", CustomerMessage: "Hast du am Wochenende Zeit?", ModeratorResponse: "Schauen wir mal wann es bei mir klappt, gerade ist viel los. Was machst du so?", Situation: agents.SituationMeeting}, Similarity: 0.85},
			{Example: store.Example{ID: "e2", CustomerMessage: "Wie geht es dir?", ModeratorResponse: "Gut, und dir? Erzähl mal von deinem Tag.", Situation: "allgemein"}, Similarity: 0.7},
		}},
		Moderation:  &stubModeration{marker: "VERBOTEN"},
		City:        capability.NewStaticCityLookup(),
		Classifiers: agents.KeywordClassifiers{},
	}
}

func feedback() *store.FeedbackData {
	return &store.FeedbackData{Feedbacks: []store.Feedback{
		{Label: store.FeedbackGood, Situation: "allgemein", Response: "Gut, und dir? Erzähl mal von deinem Tag.", ExampleID: "e2"},
		{Label: store.FeedbackGood, Situation: agents.SituationMeeting, Response: "Schauen wir mal wann es bei mir klappt, gerade ist viel los. Was machst du so?", ExampleID: "e1"},
	}}
}

func baseRequest(message string) *Request {
	return &Request{
		CustomerMessage:     message,
		ConversationHistory: "Du: Erzähl mir von deinem Tag\nKunde: " + message,
		ModeratorMessages:   []store.Message{{Text: "Erzähl mir von deinem Tag"}},
		CustomerMessages:    []store.Message{{Text: message}},
		ProfileInfo:         agents.ProfileInfo{Name: "Lena", City: "Berlin"},
		Rules: &store.Rules{
			ForbiddenWords:       []string{"treffen", "whatsapp"},
			SituationalResponses: map[string]string{},
		},
		TrainingData: &store.TrainingData{},
		FeedbackData: feedback(),
		PlatformID:   "platform-1",
	}
}

func assertReplyInvariants(t *testing.T, message string) {
	t.Helper()
	assert.NotContains(t, message, "ß")
	assert.NotContains(t, message, "!")
	assert.False(t, strings.HasPrefix(message, `"`))
	assert.False(t, strings.HasSuffix(message, `"`))
	assert.Contains(t, message, "?")
	assert.GreaterOrEqual(t, len([]rune(message)), 150)
}

func TestEngine_MeetingRequestScenario(t *testing.T) {
	llm := &stubLLM{
		generation: goodReply,
		situations: `[{"label": "Treffen/Termine", "confidence": 0.9}]`,
	}
	engine, err := New(testConfig(t), testCaps(llm))
	require.NoError(t, err)

	resp := engine.Run(context.Background(), baseRequest("Was machst du morgen? Hast du Zeit?"))
	require.True(t, resp.Success, "error: %s", resp.Error)

	assertReplyInvariants(t, resp.Message)
	lower := strings.ToLower(resp.Message)
	for _, banned := range []string{"treffen", "café", "park", "abholen", "bei dir", "bei mir"} {
		assert.NotContains(t, lower, banned)
	}
	assert.LessOrEqual(t, llm.calls, 30, "LLM call budget per request")
}

func TestEngine_WhatsAppScenario(t *testing.T) {
	reply := "Ich finde es hier eigentlich ganz gemütlich zum Schreiben, lass uns ruhig noch eine Weile hier bleiben und uns besser kennenlernen. Was hat dich denn heute zum Lachen gebracht?"
	llm := &stubLLM{
		generation: reply,
		situations: `[{"label": "Kontaktdaten außerhalb der Plattform", "confidence": 0.9}]`,
	}
	engine, err := New(testConfig(t), testCaps(llm))
	require.NoError(t, err)

	resp := engine.Run(context.Background(), baseRequest("Gib mir deine WhatsApp Nummer, da schreiben wir weiter"))
	require.True(t, resp.Success, "error: %s", resp.Error)

	assertReplyInvariants(t, resp.Message)
	lower := strings.ToLower(resp.Message)
	for _, banned := range []string{"telegram", "whatsapp", "insta"} {
		assert.NotContains(t, lower, banned)
	}
}

func TestEngine_SafetyBlockedMakesNoGenerationCall(t *testing.T) {
	llm := &stubLLM{generation: goodReply, situations: `[]`}
	engine, err := New(testConfig(t), testCaps(llm))
	require.NoError(t, err)

	resp := engine.Run(context.Background(), baseRequest("VERBOTEN schlimmer inhalt"))
	assert.True(t, resp.Blocked)
	assert.False(t, resp.Success)
	assert.Zero(t, llm.genCalls, "a blocked request must not reach generation")
	assert.Empty(t, resp.Message)
}

func TestEngine_NonGermanReturnsFixedSentence(t *testing.T) {
	llm := &stubLLM{
		generation: goodReply,
		situations: `[]`,
		german:     `{"is_german": false, "confidence": 0.999, "language": "ru"}`,
	}
	engine, err := New(testConfig(t), testCaps(llm))
	require.NoError(t, err)

	req := baseRequest("Privet, rasskazhi pozhaluysta pro svoyu rabotu segodnya vecherom, ochen interesno uznat bolshe pro tvoyu zhizn tam seychas i pro vsyo ostalnoe chto proishodit ryadom s toboy kazhdyy den")
	resp := engine.Run(context.Background(), req)

	assert.True(t, resp.NeedsGermanResponse)
	assert.Equal(t, agents.GermanReplyRequest, resp.Message)
	assert.Equal(t, agents.GermanReplyRequest, resp.GermanResponse)
	assert.Zero(t, llm.genCalls)
}

func TestEngine_FirstContactAfterLike(t *testing.T) {
	reply := "Hey, das hat mich gerade echt gefreut zu sehen, ich bin eben erst von der Arbeit gekommen und mache es mir gemütlich. Wie läuft dein Abend denn bisher so, was machst du gerade Schönes?"
	llm := &stubLLM{generation: reply, situations: `[]`}
	engine, err := New(testConfig(t), testCaps(llm))
	require.NoError(t, err)

	req := baseRequest("")
	req.ConversationHistory = ""
	req.ModeratorMessages = nil
	req.CustomerMessages = []store.Message{{Text: "Hat dich geliked", Type: "info"}}

	resp := engine.Run(context.Background(), req)
	require.True(t, resp.Success, "error: %s", resp.Error)

	assertReplyInvariants(t, resp.Message)
	assert.False(t, agents.ContainsExplicitSexual(resp.Message))

	// the first-message instruction must have reached the prompt
	require.NotEmpty(t, llm.genPrompts)
	assert.Contains(t, llm.genPrompts[0], "KEINE Selbstvorstellung")
}

func TestEngine_FirstContactSexualContentIsRewritten(t *testing.T) {
	// the generator misbehaves and produces sexual content on a first
	// contact; the critical-rules gate must rewrite it away
	sexual := "Hey, ich bin gerade richtig geil und würde dich am liebsten sofort ausziehen, wenn ich ehrlich bin, mir gehen da gerade einige Bilder durch den Kopf. Magst du das auch so direkt?"
	clean := "Hey, das hat mich gerade echt gefreut zu sehen, ich bin eben erst von der Arbeit gekommen und mache es mir gemütlich. Wie läuft dein Abend denn bisher so, was machst du gerade Schönes?"
	llm := &stubLLM{generation: sexual, rewritten: clean, situations: `[]`}
	engine, err := New(testConfig(t), testCaps(llm))
	require.NoError(t, err)

	req := baseRequest("")
	req.ConversationHistory = ""
	req.ModeratorMessages = nil
	req.CustomerMessages = []store.Message{{Text: "Hat dich geliked", Type: "info"}}

	resp := engine.Run(context.Background(), req)
	require.True(t, resp.Success, "error: %s", resp.Error)

	assert.False(t, agents.ContainsExplicitSexual(resp.Message))
	assert.GreaterOrEqual(t, llm.rewriteCalls, 1, "the sexual draft must go through a rewrite")
	assertReplyInvariants(t, resp.Message)
}

func TestEngine_FirstContactSexualContentExhaustionFails(t *testing.T) {
	// the rewrite keeps the sexual content; the budget runs out and the
	// request must fail rather than ship the reply
	sexual := "Hey, ich bin gerade richtig geil und würde dich am liebsten sofort ausziehen, wenn ich ehrlich bin, mir gehen da gerade einige Bilder durch den Kopf. Magst du das auch so direkt?"
	llm := &stubLLM{generation: sexual, rewritten: sexual, situations: `[]`}
	engine, err := New(testConfig(t), testCaps(llm))
	require.NoError(t, err)

	req := baseRequest("")
	req.ConversationHistory = ""
	req.ModeratorMessages = nil
	req.CustomerMessages = []store.Message{{Text: "Hat dich geliked", Type: "info"}}

	resp := engine.Run(context.Background(), req)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "Kritische Regelverstöße")
	assert.Empty(t, resp.Message)
}

func TestEngine_ASAPath(t *testing.T) {
	llm := &stubLLM{
		generation: "Hey du, ich musste heute zufällig an dich denken und wollte einfach mal hören, wie es dir inzwischen so ergangen ist. Was treibst du gerade so?",
		situations: `[]`,
	}
	engine, err := New(testConfig(t), testCaps(llm))
	require.NoError(t, err)

	req := baseRequest("")
	req.IsASA = true
	req.TrainingData = &store.TrainingData{ASAExamples: []store.Example{
		{ID: "a1", ASAMessage: "Hey du, ich musste heute an dich denken und wollte hören, wie es dir so geht. Was treibst du gerade?"},
		{ID: "a2", ASAMessage: "Na du, lange nichts von dir gehört, ich hoffe bei dir ist alles gut. Wie laufen deine Tage gerade so?"},
		{ID: "a3", ASAMessage: "Huhu, gerade kam mir unser letztes Gespräch in den Kopf und ich wollte mich mal melden. Wie geht es dir?"},
	}}

	resp := engine.Run(context.Background(), req)
	require.True(t, resp.Success, "error: %s", resp.Error)
	assert.GreaterOrEqual(t, len([]rune(resp.Message)), 120)
	assert.NotContains(t, resp.Message, "ASA")
	assert.NotContains(t, resp.Message, "Reaktivierung")
	assert.NotContains(t, resp.Message, "!")

	// a second ASA run of the same request also succeeds; both replies come
	// from the same generation stub, so their signatures are not compared
	first := retrieval.Signature(resp.Message)
	resp2 := engine.Run(context.Background(), req)
	require.True(t, resp2.Success)
	_ = first // the selector guarantees distinct examples; replies share the generation stub here
}

func TestEngine_SexualScenarioReciprocity(t *testing.T) {
	reply := "Das macht mich auch richtig an, wenn du so offen schreibst, ich mag es langsam und intensiv und lasse mich gerne treiben dabei. Was gefällt dir denn besonders, wenn es knistert?"
	llm := &stubLLM{
		generation: reply,
		situations: `[{"label": "Sexuelle Themen", "confidence": 0.95}]`,
	}
	engine, err := New(testConfig(t), testCaps(llm))
	require.NoError(t, err)

	resp := engine.Run(context.Background(), baseRequest("Ich bin richtig horny auf dich. Was magst du beim Sex?"))
	require.True(t, resp.Success, "error: %s", resp.Error)

	assertReplyInvariants(t, resp.Message)
	assert.True(t, agents.ContainsReciprocity(resp.Message))
	lower := strings.ToLower(resp.Message)
	assert.NotContains(t, lower, "das klingt")
	assert.NotContains(t, lower, "ich finde es toll, dass")
}

func TestEngine_EmptyASAPoolFails(t *testing.T) {
	llm := &stubLLM{generation: goodReply, situations: `[]`}
	engine, err := New(testConfig(t), testCaps(llm))
	require.NoError(t, err)

	req := baseRequest("")
	req.IsASA = true
	req.TrainingData = &store.TrainingData{}

	resp := engine.Run(context.Background(), req)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kavora-ai/replygen/pkg/agentrunner"
	"github.com/kavora-ai/replygen/pkg/agents"
	"github.com/kavora-ai/replygen/pkg/blackboard"
	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/config"
	"github.com/kavora-ai/replygen/pkg/generate"
	"github.com/kavora-ai/replygen/pkg/learning"
	"github.com/kavora-ai/replygen/pkg/multistage"
	"github.com/kavora-ai/replygen/pkg/postprocess"
	"github.com/kavora-ai/replygen/pkg/prompt"
	"github.com/kavora-ai/replygen/pkg/retrieval"
	"github.com/kavora-ai/replygen/pkg/store"
	"github.com/kavora-ai/replygen/pkg/validate"
)

// asaMinLength is the length floor for reactivation replies.
const asaMinLength = 120

// Engine is the request pipeline. One Engine serves many concurrent
// requests; all per-request state lives on the blackboard.
type Engine struct {
	cfg  *config.Config
	caps capability.Set

	asa             *retrieval.ASASelector
	situationEmbeds *agents.SituationEmbeddings
	deep            *learning.DeepExtractor
}

// New builds the engine and asserts the agent DAG is well-formed.
func New(cfg *config.Config, caps capability.Set) (*Engine, error) {
	if err := agents.ValidateDAG(); err != nil {
		return nil, fmt.Errorf("agent DAG invalid: %w", err)
	}
	engine := &Engine{
		cfg:  cfg,
		caps: caps,
		asa:  retrieval.NewASASelector(cfg.Engine.GreetingBadRatio),
	}
	if caps.Embedder != nil {
		engine.situationEmbeds = agents.NewSituationEmbeddings(caps.Embedder)
	}
	if caps.LLM != nil {
		engine.deep = learning.NewDeepExtractor(caps.LLM, cfg.LLM.Model, cfg.Data.Dir)
	}
	return engine, nil
}

// results carries the typed agent outputs of one request.
type results struct {
	safety        agents.SafetyResult
	language      agents.LanguageResult
	context       agents.ContextResult
	profileFilter agents.ProfileFilterResult
	situation     agents.SituationResult
	fakeContext   agents.FakeContextResult
	flow          agents.FlowResult
	ambiguity     agents.AmbiguityResult
	agreement     agents.AgreementResult
	firstMessage  agents.FirstMessageResult
	meta          agents.MetaResult
	multi         agents.MultiSituationResult
	convContext   agents.ConversationContextResult
	contextConn   agents.ContextConnectionResult
	styleResult   agents.StyleResult
	mood          agents.MoodResult
	proactive     agents.ProactiveResult
	image         agents.ImageResult
	exampleIntel  agents.ExampleIntelResult
	meeting       agents.MeetingResult
	learningRes   agents.LearningResult
	deepRes       agents.DeepLearningResult
	ruleInterp    agents.RuleInterpreterResult
	rulesBlocks   agents.RulesBlocks
	synthesis     agents.SynthesisResult
	retrieval     retrieval.Result
}

// Run processes one request end to end.
func (e *Engine) Run(ctx context.Context, req *Request) *Response {
	requestID := uuid.NewString()
	start := time.Now()
	log := slog.With("request_id", requestID, "platform", req.PlatformID)
	log.Info("Request started", "asa", req.IsASA, "message_len", len(req.CustomerMessage))

	board := blackboard.New()
	stats := e.loadStats(req)
	board.SetLearningStats(stats)
	conv := req.Conversation()
	res := &results{}

	// Layer 1: safety, then language. A block short-circuits everything.
	if resp := e.runGates(ctx, req, res, log); resp != nil {
		requestsTotal.WithLabelValues(outcomeOf(resp)).Inc()
		return resp
	}

	// ASA requests bypass the analysis battery entirely.
	if req.IsASA {
		resp := e.runASA(ctx, req, res, stats, board, log)
		requestsTotal.WithLabelValues(outcomeOf(resp)).Inc()
		log.Info("Request finished", "duration", time.Since(start), "success", resp.Success)
		return resp
	}

	// Layers 2-7.
	e.runAnalysis(ctx, req, conv, res, stats, board, log)

	if res.situation.LocationError {
		requestsTotal.WithLabelValues("location_handoff").Inc()
		return &Response{
			Success: false,
			LocationQuestionError: &LocationQuestionError{
				Message: "Standortfrage ohne auflösbare Stadt; manuelle Bearbeitung nötig.",
			},
		}
	}

	// Layer 8: composition, generation, validation.
	resp := e.generateAndValidate(ctx, req, conv, res, stats, board, log)
	requestsTotal.WithLabelValues(outcomeOf(resp)).Inc()
	log.Info("Request finished", "duration", time.Since(start), "success", resp.Success)
	return resp
}

func (e *Engine) loadStats(req *Request) *learning.Stats {
	return learning.LoadStats(e.cfg.Data.Dir, req.FeedbackData)
}

// runGates executes safety and language sequentially; a block returns the
// terminal response.
func (e *Engine) runGates(ctx context.Context, req *Request, res *results, log *slog.Logger) *Response {
	safetyGate := &agents.SafetyGate{Moderation: e.caps.Moderation}
	res.safety = timed(string(agents.NameSafety), func() agentrunner.Result[agents.SafetyResult] {
		return agentrunner.Run(ctx, string(agents.NameSafety), TimeoutSafety, safetyGate.Fallback(),
			func(ctx context.Context) (agents.SafetyResult, error) {
				return safetyGate.Run(ctx, req.CustomerMessage)
			})
	}).Value
	if res.safety.Blocked {
		log.Warn("Request blocked by safety gate", "reason", res.safety.Reason)
		return &Response{
			Success: false,
			Blocked: true,
			Safety: &capability.ModerationResult{
				IsBlocked:    true,
				Reason:       res.safety.Reason,
				ErrorMessage: res.safety.ErrorMessage,
			},
			Error: res.safety.ErrorMessage,
		}
	}

	languageGate := &agents.LanguageGate{LLM: e.caps.LLM, Model: e.cfg.LLM.Model}
	res.language = timed(string(agents.NameLanguage), func() agentrunner.Result[agents.LanguageResult] {
		return agentrunner.Run(ctx, string(agents.NameLanguage), TimeoutLanguage, languageGate.Fallback(),
			func(ctx context.Context) (agents.LanguageResult, error) {
				return languageGate.Run(ctx, req.CustomerMessage)
			})
	}).Value
	if res.language.Block {
		log.Info("Request answered with German-language request", "confidence", res.language.Confidence)
		return &Response{
			Success:             true,
			Message:             agents.GermanReplyRequest,
			NeedsGermanResponse: true,
			GermanResponse:      agents.GermanReplyRequest,
		}
	}

	return nil
}

// runAnalysis executes layers 2-7 of the DAG. Agents inside one layer run
// concurrently; layers are barriers.
func (e *Engine) runAnalysis(ctx context.Context, req *Request, conv agents.Conversation, res *results, stats *learning.Stats, board *blackboard.Board, log *slog.Logger) {
	model := e.cfg.LLM.Model

	// Layer 2: context analyst feeds everyone.
	contextAnalyst := &agents.ContextAnalyst{LLM: e.caps.LLM, Model: model}
	res.context = timed(string(agents.NameContext), func() agentrunner.Result[agents.ContextResult] {
		return agentrunner.Run(ctx, string(agents.NameContext), TimeoutContext, contextAnalyst.Fallback(),
			func(ctx context.Context) (agents.ContextResult, error) {
				return contextAnalyst.Run(ctx, req.CustomerMessage, conv, board)
			})
	}).Value

	// Layer 3: independent analyzers in parallel.
	var g errgroup.Group
	g.Go(func() error {
		filter := &agents.ProfileFilter{}
		res.profileFilter = timed(string(agents.NameProfileFilter), func() agentrunner.Result[agents.ProfileFilterResult] {
			return agentrunner.Run(ctx, string(agents.NameProfileFilter), TimeoutProfileFilter, filter.Fallback(),
				func(ctx context.Context) (agents.ProfileFilterResult, error) {
					return filter.Run(ctx, req.CustomerMessage, req.ExtractedUserInfo, req.ProfileInfo, board)
				})
		}).Value
		return nil
	})
	g.Go(func() error {
		detector := &agents.SituationDetector{
			LLM: e.caps.LLM, Model: model,
			Embeddings:  e.situationEmbeds,
			City:        e.caps.City,
			Classifiers: e.caps.Classifiers,
		}
		res.situation = timed(string(agents.NameSituation), func() agentrunner.Result[agents.SituationResult] {
			return agentrunner.Run(ctx, string(agents.NameSituation), TimeoutSituation, detector.Fallback(),
				func(ctx context.Context) (agents.SituationResult, error) {
					return detector.Run(ctx, req.CustomerMessage, conv, req.ProfileInfo, situationalKeys(req.Rules), board)
				})
		}).Value
		return nil
	})
	g.Go(func() error {
		builder := &agents.FakeContextBuilder{}
		res.fakeContext = timed(string(agents.NameFakeContext), func() agentrunner.Result[agents.FakeContextResult] {
			return agentrunner.Run(ctx, string(agents.NameFakeContext), TimeoutFakeContext, builder.Fallback(),
				func(ctx context.Context) (agents.FakeContextResult, error) {
					return builder.Run(ctx, req.ProfileInfo, board)
				})
		}).Value
		return nil
	})
	g.Go(func() error {
		flow := &agents.FlowAnalyzer{LLM: e.caps.LLM, Model: model}
		res.flow = timed(string(agents.NameFlow), func() agentrunner.Result[agents.FlowResult] {
			return agentrunner.Run(ctx, string(agents.NameFlow), TimeoutFlow, flow.Fallback(),
				func(ctx context.Context) (agents.FlowResult, error) {
					return flow.Run(ctx, req.CustomerMessage, conv, board)
				})
		}).Value
		return nil
	})
	g.Go(func() error {
		resolver := &agents.AmbiguityResolver{LLM: e.caps.LLM, Model: model}
		res.ambiguity = timed(string(agents.NameAmbiguity), func() agentrunner.Result[agents.AmbiguityResult] {
			return agentrunner.Run(ctx, string(agents.NameAmbiguity), TimeoutAmbiguity, resolver.Fallback(),
				func(ctx context.Context) (agents.AmbiguityResult, error) {
					return resolver.Run(ctx, req.CustomerMessage, conv, req.ProfileInfo, board)
				})
		}).Value
		return nil
	})
	g.Go(func() error {
		detector := &agents.AgreementDetector{LLM: e.caps.LLM, Model: model}
		res.agreement = timed(string(agents.NameAgreement), func() agentrunner.Result[agents.AgreementResult] {
			return agentrunner.Run(ctx, string(agents.NameAgreement), TimeoutAgreement, detector.Fallback(),
				func(ctx context.Context) (agents.AgreementResult, error) {
					return detector.Run(ctx, conv, board)
				})
		}).Value
		return nil
	})
	g.Go(func() error {
		first := &agents.FirstMessageDetector{Classifiers: e.caps.Classifiers}
		res.firstMessage = timed(string(agents.NameFirstMessage), func() agentrunner.Result[agents.FirstMessageResult] {
			return agentrunner.Run(ctx, string(agents.NameFirstMessage), TimeoutFirstMessage, first.Fallback(),
				func(ctx context.Context) (agents.FirstMessageResult, error) {
					return first.Run(ctx, req.CustomerMessage, conv)
				})
		}).Value
		return nil
	})
	_ = g.Wait()
	res.firstMessage.Publish(board)

	// Layer 4: meta validator overwrites the situation list.
	meta := &agents.MetaValidator{}
	res.meta = timed(string(agents.NameMetaValidator), func() agentrunner.Result[agents.MetaResult] {
		return agentrunner.Run(ctx, string(agents.NameMetaValidator), TimeoutMetaValidator, meta.Fallback(res.situation.Situations),
			func(ctx context.Context) (agents.MetaResult, error) {
				return meta.Run(ctx, req.CustomerMessage, res.context, res.situation, res.firstMessage, board)
			})
	}).Value

	// Layer 5.
	var g5 errgroup.Group
	g5.Go(func() error {
		handler := &agents.MultiSituationHandler{}
		res.multi = timed(string(agents.NameMultiSituation), func() agentrunner.Result[agents.MultiSituationResult] {
			return agentrunner.Run(ctx, string(agents.NameMultiSituation), TimeoutMultiSituation, handler.Fallback(),
				func(ctx context.Context) (agents.MultiSituationResult, error) {
					return handler.Run(ctx, res.meta.Situations, board)
				})
		}).Value
		return nil
	})
	g5.Go(func() error {
		builder := &agents.ConversationContextBuilder{}
		res.convContext = timed(string(agents.NameConversationCtx), func() agentrunner.Result[agents.ConversationContextResult] {
			return agentrunner.Run(ctx, string(agents.NameConversationCtx), TimeoutConversationCtx, builder.Fallback(),
				func(ctx context.Context) (agents.ConversationContextResult, error) {
					return builder.Run(ctx, req.CustomerMessage, conv, board)
				})
		}).Value
		return nil
	})
	g5.Go(func() error {
		analyzer := &agents.ContextConnectionAnalyzer{LLM: e.caps.LLM, Model: model}
		res.contextConn = timed(string(agents.NameContextConnection), func() agentrunner.Result[agents.ContextConnectionResult] {
			return agentrunner.Run(ctx, string(agents.NameContextConnection), TimeoutContextConnection, analyzer.Fallback(),
				func(ctx context.Context) (agents.ContextConnectionResult, error) {
					return analyzer.Run(ctx, req.CustomerMessage, conv, board)
				})
		}).Value
		return nil
	})
	_ = g5.Wait()

	// Layer 6: retrieval first (the heavy agents consume its results), then
	// the rest in parallel.
	retriever := &retrieval.Retriever{Search: e.caps.Search, Stats: stats, Feedback: req.FeedbackData}
	retrievalResult := timed("retrieval", func() agentrunner.Result[retrieval.Result] {
		return agentrunner.Run(ctx, "retrieval", TimeoutRetrieval, retrieval.Result{},
			func(ctx context.Context) (retrieval.Result, error) {
				return retriever.Retrieve(ctx, retrieval.Params{
					Topic:           res.context.Topic,
					KeyPoints:       res.context.KeyPoints,
					CustomerMessage: req.CustomerMessage,
					Situations:      res.meta.Situations,
					IsFirstMessage:  res.firstMessage.IsFirstMessage,
					RichThreshold:   e.cfg.Engine.FeedbackRichThreshold,
					PoorThreshold:   e.cfg.Engine.FeedbackPoorThreshold,
				})
			})
	}).Value
	res.retrieval = retrievalResult

	scoredToCapability := capabilityExamples(retrievalResult.Examples)

	var g6 errgroup.Group
	g6.Go(func() error {
		analyst := &agents.StyleAnalyst{Classifiers: e.caps.Classifiers}
		res.styleResult = timed(string(agents.NameStyle), func() agentrunner.Result[agents.StyleResult] {
			return agentrunner.Run(ctx, string(agents.NameStyle), TimeoutStyle, analyst.Fallback(),
				func(ctx context.Context) (agents.StyleResult, error) {
					return analyst.Run(ctx, conv, board)
				})
		}).Value
		return nil
	})
	g6.Go(func() error {
		intel := &agents.ExampleIntelligence{LLM: e.caps.LLM, Model: model}
		res.exampleIntel = timed(string(agents.NameExampleIntel), func() agentrunner.Result[agents.ExampleIntelResult] {
			return agentrunner.Run(ctx, string(agents.NameExampleIntel), TimeoutExampleIntel, intel.Fallback(),
				func(ctx context.Context) (agents.ExampleIntelResult, error) {
					return intel.Run(ctx, req.CustomerMessage, conv, scoredToCapability, board)
				})
		}).Value
		return nil
	})
	g6.Go(func() error {
		meeting := &agents.MeetingResponse{LLM: e.caps.LLM, Model: model, Search: e.caps.Search}
		res.meeting = timed(string(agents.NameMeetingResponse), func() agentrunner.Result[agents.MeetingResult] {
			return agentrunner.Run(ctx, string(agents.NameMeetingResponse), TimeoutMeetingResponse, meeting.Fallback(),
				func(ctx context.Context) (agents.MeetingResult, error) {
					return meeting.Run(ctx, req.CustomerMessage, res.situation.MeetingRequest, board)
				})
		}).Value
		return nil
	})
	g6.Go(func() error {
		integrator := &agents.LearningIntegrator{}
		res.learningRes = timed(string(agents.NameLearning), func() agentrunner.Result[agents.LearningResult] {
			return agentrunner.Run(ctx, string(agents.NameLearning), TimeoutLearning, integrator.Fallback(),
				func(ctx context.Context) (agents.LearningResult, error) {
					return integrator.Run(ctx, res.meta.Situations, stats, board)
				})
		}).Value
		return nil
	})
	g6.Go(func() error {
		deepAgent := &agents.DeepLearningAgent{Extractor: e.deep}
		res.deepRes = timed(string(agents.NameDeepLearning), func() agentrunner.Result[agents.DeepLearningResult] {
			return agentrunner.Run(ctx, string(agents.NameDeepLearning), TimeoutDeepLearning, deepAgent.Fallback(),
				func(ctx context.Context) (agents.DeepLearningResult, error) {
					return deepAgent.Run(ctx, req.FeedbackData, board)
				})
		}).Value
		return nil
	})
	g6.Go(func() error {
		mood := &agents.MoodAgent{}
		res.mood = timed(string(agents.NameMood), func() agentrunner.Result[agents.MoodResult] {
			return agentrunner.Run(ctx, string(agents.NameMood), TimeoutMood, mood.Fallback(),
				func(ctx context.Context) (agents.MoodResult, error) {
					return mood.Run(ctx, req.CustomerMessage, res.context, board)
				})
		}).Value
		return nil
	})
	g6.Go(func() error {
		proactive := &agents.ProactiveAgent{}
		res.proactive = timed(string(agents.NameProactive), func() agentrunner.Result[agents.ProactiveResult] {
			return agentrunner.Run(ctx, string(agents.NameProactive), TimeoutProactive, proactive.Fallback(),
				func(ctx context.Context) (agents.ProactiveResult, error) {
					return proactive.Run(ctx, req.CustomerMessage, conv, board)
				})
		}).Value
		return nil
	})
	g6.Go(func() error {
		image := &agents.ImageAgent{Analyzer: e.caps.Image}
		res.image = timed(string(agents.NameImage), func() agentrunner.Result[agents.ImageResult] {
			return agentrunner.Run(ctx, string(agents.NameImage), TimeoutImage, image.Fallback(),
				func(ctx context.Context) (agents.ImageResult, error) {
					return image.Run(ctx, req.ImageURL, conv, board)
				})
		}).Value
		return nil
	})
	_ = g6.Wait()

	// Example intelligence can veto fallback mode.
	if res.retrieval.FallbackMode && retrieval.IntelBlocksFallback(res.exampleIntel.BestSimilarity) {
		res.retrieval.FallbackMode = false
	}

	// Layer 7: sequential.
	interpreter := &agents.RuleInterpreter{LLM: e.caps.LLM, Model: model}
	res.ruleInterp = timed(string(agents.NameRuleInterpreter), func() agentrunner.Result[agents.RuleInterpreterResult] {
		return agentrunner.Run(ctx, string(agents.NameRuleInterpreter), TimeoutRuleInterpreter, interpreter.Fallback(),
			func(ctx context.Context) (agents.RuleInterpreterResult, error) {
				return interpreter.Run(ctx, req.Rules, scoredToCapability, board)
			})
	}).Value

	applicator := &agents.RulesApplicator{}
	sexual := e.sexualConversation(res)
	res.rulesBlocks = timed(string(agents.NameRulesApplicator), func() agentrunner.Result[agents.RulesBlocks] {
		return agentrunner.Run(ctx, string(agents.NameRulesApplicator), TimeoutRulesApplicator, applicator.Fallback(),
			func(ctx context.Context) (agents.RulesBlocks, error) {
				return applicator.Run(ctx, req.Rules, sexual, res.situation.MeetingRequest || hasSituation(res.meta.Situations, agents.SituationMeeting), false, board)
			})
	}).Value

	synthesizer := &agents.KnowledgeSynthesizer{LLM: e.caps.LLM, Model: model}
	res.synthesis = timed(string(agents.NameSynthesizer), func() agentrunner.Result[agents.SynthesisResult] {
		return agentrunner.Run(ctx, string(agents.NameSynthesizer), TimeoutSynthesizer, synthesizer.Fallback(),
			func(ctx context.Context) (agents.SynthesisResult, error) {
				return synthesizer.Run(ctx, board)
			})
	}).Value
}

func timed[T any](name string, run func() agentrunner.Result[T]) agentrunner.Result[T] {
	start := time.Now()
	result := run()
	agentDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if result.Fallback {
		agentFallbacks.WithLabelValues(name).Inc()
	}
	return result
}

func (e *Engine) sexualConversation(res *results) bool {
	if res.meta.ShouldBlockSexual {
		return false
	}
	return hasSituation(res.meta.Situations, agents.SituationSexual) || res.context.Flow == agents.FlowSexual
}

func situationalKeys(rules *store.Rules) []string {
	if rules == nil {
		return nil
	}
	keys := make([]string, 0, len(rules.SituationalResponses))
	for key := range rules.SituationalResponses {
		keys = append(keys, key)
	}
	return keys
}

func hasSituation(situations []string, target string) bool {
	for _, s := range situations {
		if s == target {
			return true
		}
	}
	return false
}

func capabilityExamples(scored []retrieval.Scored) []capability.ScoredExample {
	out := make([]capability.ScoredExample, len(scored))
	for i, s := range scored {
		out[i] = capability.ScoredExample{Example: s.Example, Similarity: s.Semantic}
	}
	return out
}

func outcomeOf(resp *Response) string {
	switch {
	case resp.Blocked:
		return "blocked"
	case resp.NeedsGermanResponse:
		return "non_german"
	case resp.LocationQuestionError != nil:
		return "location_handoff"
	case !resp.Success:
		return "failed"
	default:
		return "success"
	}
}

// runASA is the reactivation path: one uniformly drawn example reproduced
// near-verbatim, generated on the general LLM, no analysis battery.
func (e *Engine) runASA(ctx context.Context, req *Request, res *results, stats *learning.Stats, board *blackboard.Board, log *slog.Logger) *Response {
	if req.TrainingData == nil || len(req.TrainingData.ASAExamples) == 0 {
		return &Response{Success: false, Error: "keine ASA-Beispiele vorhanden"}
	}

	example, err := e.asa.Select(req.PersonaKey(), req.TrainingData.ASAExamples, stats)
	if err != nil {
		return &Response{Success: false, Error: err.Error()}
	}
	log.Info("ASA example selected", "example_id", example.ID)

	inputs := &prompt.Inputs{
		CustomerMessage: req.CustomerMessage,
		Conversation:    req.Conversation(),
		Profile:         req.ProfileInfo,
		Rules:           req.Rules,
		IsASA:           true,
		ASAContext:      req.ASAConversationContext,
		ASAExample:      &example,
		Stats:           stats,
		Board:           board,
		RulesBlocks:     (&agents.RulesApplicator{}).Fallback(),
	}
	composer := &prompt.Composer{}
	system, user := composer.Compose(inputs)

	// ASA generations always use the general LLM, never the fine-tuned one.
	text, err := e.caps.GenerationLLM(true).Complete(ctx, capability.CompletionRequest{
		Model:       e.cfg.LLM.Model,
		System:      system,
		User:        user,
		Temperature: 0.7,
		MaxTokens:   300,
	})
	if err != nil {
		return &Response{Success: false, Error: fmt.Sprintf("ASA-Generierung fehlgeschlagen: %v", err)}
	}

	message := postprocess.Normalize(text)
	if len([]rune(message)) < asaMinLength {
		// the curated example is the safe floor
		message = postprocess.Normalize(example.Response())
	}
	if len([]rune(message)) < asaMinLength {
		return &Response{Success: false, Error: "ASA-Antwort zu kurz"}
	}

	return &Response{Success: true, Message: message}
}

// generateAndValidate runs composition, the candidate generator and the
// validation loop, and applies the final guards.
func (e *Engine) generateAndValidate(ctx context.Context, req *Request, conv agents.Conversation, res *results, stats *learning.Stats, board *blackboard.Board, log *slog.Logger) *Response {
	inputs := &prompt.Inputs{
		CustomerMessage: req.CustomerMessage,
		Conversation:    conv,
		Profile:         req.ProfileInfo,
		Rules:           req.Rules,
		Context:         res.context,
		Situations:      res.meta.Situations,
		FirstMessage:    res.firstMessage,
		Flow:            res.flow,
		Ambiguity:       res.ambiguity,
		Agreement:       res.agreement,
		FakeContext:     res.fakeContext,
		ProfileFilter:   res.profileFilter,
		Style:           res.styleResult,
		Mood:            res.mood,
		Proactive:       res.proactive,
		Image:           res.image,
		ExampleIntel:    res.exampleIntel,
		Meeting:         res.meeting,
		Learning:        res.learningRes,
		Deep:            res.deepRes,
		RuleInterp:      res.ruleInterp,
		RulesBlocks:     res.rulesBlocks,
		ContextConn:     res.contextConn,
		ConvContext:     res.convContext,
		Synthesis:       res.synthesis,
		Retrieval:       res.retrieval,
		Stats:           stats,
		Board:           board,
		TokenBudget:     e.cfg.Engine.PromptTokenBudget,
	}

	if res.retrieval.FallbackMode {
		fallbackModeTotal.Inc()
	}

	// Location answer injection rides as priority guidance.
	if res.situation.Location != nil {
		board.AddPriority(res.situation.Location.Instruction, blackboard.PriorityHigh, string(agents.NameSituation))
	}

	sexual := e.sexualConversation(res)

	// Fine-tuned backends use the multi-stage pipeline.
	if e.cfg.FineTuned.Enabled && e.caps.FineTuned != nil {
		return e.runMultiStage(ctx, req, inputs, sexual, log)
	}

	system, user := e.compose(inputs)

	generator := &generate.Generator{
		LLM:      e.caps.LLM,
		Embedder: e.caps.Embedder,
		Stats:    stats,
		Scorer: &generate.QualityScorer{
			LLM:      e.caps.LLM,
			Model:    e.cfg.LLM.Model,
			Embedder: e.caps.Embedder,
			Stats:    stats,
			Rules:    req.Rules,
			MLWeight: e.cfg.Engine.MLQualityWeight,
		},
	}

	genResult, err := generator.Generate(ctx, generate.Params{
		System:          system,
		User:            user,
		Model:           e.cfg.LLM.Model,
		CustomerMessage: req.CustomerMessage,
		History:         conv.Rendered,
		Situations:      res.meta.Situations,
		Sexual:          sexual,
		FallbackMode:    res.retrieval.FallbackMode,
		Examples:        res.retrieval.Examples,
		StyleReference:  res.styleResult.Features,
	})
	if err != nil {
		log.Error("Generation failed", "error", err)
		return &Response{Success: false, Error: fmt.Sprintf("Generierung fehlgeschlagen: %v", err)}
	}

	loop := &validate.Loop{
		LLM:              e.caps.LLM,
		Model:            e.cfg.LLM.Model,
		MaxTotalRewrites: e.cfg.Engine.MaxTotalRewrites,
		PostOptions: postprocess.Options{
			TargetQuestions: stats.TargetQuestions(res.meta.Situations),
			TargetSentences: stats.TargetSentences(res.meta.Situations),
			Sexual:          sexual,
		},
	}
	vctx := &validate.Context{
		CustomerMessage:     req.CustomerMessage,
		ForbiddenWords:      validate.BuildForbiddenWords(req.Rules),
		MeetingReply:        res.situation.MeetingRequest || hasSituation(res.meta.Situations, agents.SituationMeeting),
		Sexual:              sexual,
		Positive:            agents.ContainsPositiveAffect(req.CustomerMessage),
		FirstMessage:        res.firstMessage.IsFirstMessage,
		OpenQuestions:       res.contextConn.OpenQuestions,
		AnsweredQ:           res.contextConn.AnsweredQuestions,
		Consensus:           res.agreement.Consensus,
		ParaphraseThreshold: e.cfg.Engine.ParaphraseSimilarity,
		Embedder:            e.caps.Embedder,
	}

	outcome := loop.Run(ctx, genResult.Message, vctx)
	rewritesHistogram.Observe(float64(outcome.Rewrites))
	if outcome.Failed {
		log.Warn("Validation exhausted", "reason", outcome.FailReason)
		return &Response{Success: false, Error: outcome.FailReason, Warnings: outcome.Warnings}
	}

	final := postprocess.Process(outcome.Message, postprocess.Options{
		TargetQuestions: stats.TargetQuestions(res.meta.Situations),
		TargetSentences: stats.TargetSentences(res.meta.Situations),
		Sexual:          sexual,
	})
	if !final.Success {
		return &Response{Success: false, Error: "Antwort nach Nachbearbeitung zu kurz", Warnings: outcome.Warnings}
	}

	return &Response{
		Success:        true,
		Message:        final.Text,
		QualityScore:   genResult.QualityScore,
		QualityDetails: &genResult.QualityDetails,
		Warnings:       outcome.Warnings,
	}
}

func (e *Engine) compose(inputs *prompt.Inputs) (string, string) {
	simplified := &prompt.SimplifiedComposer{}
	if simplified.Usable(inputs) {
		return simplified.Compose(inputs)
	}
	composer := &prompt.Composer{}
	return composer.Compose(inputs)
}

// runMultiStage executes the 4-stage alternative pipeline.
func (e *Engine) runMultiStage(ctx context.Context, req *Request, inputs *prompt.Inputs, sexual bool, log *slog.Logger) *Response {
	pipeline := &multistage.Pipeline{
		LLM:       e.caps.LLM,
		FineTuned: e.caps.FineTuned,
		Model:     e.cfg.LLM.Model,
		Search:    e.caps.Search,
		City:      e.caps.City,
		Image:     e.caps.Image,
		Classify:  e.caps.Classifiers,
	}

	plan, err := pipeline.Stage1Plan(ctx, inputs, req.ImageURL)
	if err != nil {
		log.Error("Planning stage failed", "error", err)
		return &Response{Success: false, Error: err.Error()}
	}
	if plan.LocationError {
		return &Response{
			Success: false,
			LocationQuestionError: &LocationQuestionError{
				Message: "Standortfrage ohne auflösbare Stadt; manuelle Bearbeitung nötig.",
			},
		}
	}

	examples, err := pipeline.Stage2SelectExamples(ctx, plan, req.CustomerMessage)
	if err != nil {
		log.Warn("Example selection failed, generating without one-shot", "error", err)
	}

	draft, err := pipeline.Stage3Generate(ctx, inputs, plan, examples)
	if err != nil {
		return &Response{Success: false, Error: err.Error()}
	}

	validated, err := pipeline.Stage4Validate(ctx, draft, plan, inputs, true)
	if err != nil {
		validated = draft
	}

	final := postprocess.Process(validated, postprocess.Options{Sexual: sexual})
	if !final.Success {
		return &Response{Success: false, Error: "Antwort nach Nachbearbeitung zu kurz"}
	}
	return &Response{Success: true, Message: final.Text}
}

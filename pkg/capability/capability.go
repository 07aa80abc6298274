// Package capability declares the dependency-injected interfaces the pipeline
// consumes. The engine never talks to a provider SDK directly; callers wire
// concrete implementations (pkg/llms, pkg/embedders, pkg/vector) or test stubs.
package capability

import (
	"context"

	"github.com/kavora-ai/replygen/pkg/store"
)

// CompletionRequest is one LLM completion call.
type CompletionRequest struct {
	Model       string
	System      string
	User        string
	Temperature float64
	MaxTokens   int

	// JSONMode requests a JSON-object response from the backend. Parsers must
	// still tolerate fenced ```json prefixes.
	JSONMode bool
}

// LLM is the completion capability.
type LLM interface {
	// Complete returns the raw completion text.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// CompleteJSON enforces a JSON-object response and returns the parsed map.
	CompleteJSON(ctx context.Context, req CompletionRequest) (map[string]interface{}, error)

	// Name identifies the backend for logging.
	Name() string
}

// Embedder is the embeddings capability.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// SearchOptions narrows a vector search.
type SearchOptions struct {
	TopK          int
	MinSimilarity float64

	// Situation filters to examples tagged with the situation; empty means
	// unfiltered.
	Situation string
}

// ScoredExample is a vector search hit.
type ScoredExample struct {
	Example    store.Example
	Similarity float64
}

// VectorSearch searches the embedded training corpus.
type VectorSearch interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]ScoredExample, error)
}

// ModerationResult is the safety classifier verdict.
type ModerationResult struct {
	IsBlocked    bool
	Reason       string
	ErrorMessage string
}

// Moderation is the safety classifier capability.
type Moderation interface {
	Check(ctx context.Context, text string) (ModerationResult, error)
}

// ImageAnalysis describes an analyzed image.
type ImageAnalysis struct {
	ImageType      string
	Description    string
	ReactionNeeded bool
}

// ImageAnalyzer is the image-analysis capability.
type ImageAnalyzer interface {
	Analyze(ctx context.Context, url, conversationContext string) (ImageAnalysis, error)
}

// CityLookup resolves a nearby real city for location deflections. Empty
// result and nil error means no city could be resolved.
type CityLookup interface {
	FindNearby(ctx context.Context, city string) (string, error)
}

// Classifiers bundles the upstream predicates the pipeline consults.
type Classifiers interface {
	// IsMeetingRequest reports whether the message asks for a meeting given
	// the recent history.
	IsMeetingRequest(ctx context.Context, message, history string) (bool, error)

	// IsLocationQuestion reports whether the message asks where the persona
	// lives.
	IsLocationQuestion(ctx context.Context, message string) (bool, error)

	// IsInfoMessage reports whether a history entry is a system notice (like,
	// kiss, gift) rather than a written turn.
	IsInfoMessage(message string) bool
}

// WritingStyle analyzes moderator messages into style features.
type WritingStyle interface {
	Analyze(ctx context.Context, messages []string) (map[string]interface{}, error)
}

// Set bundles all capabilities a request needs. FineTuned may be nil; the
// engine then always uses the general LLM.
type Set struct {
	LLM         LLM
	FineTuned   LLM
	Embedder    Embedder
	Search      VectorSearch
	Moderation  Moderation
	Image       ImageAnalyzer
	City        CityLookup
	Classifiers Classifiers
	Style       WritingStyle
}

// GenerationLLM returns the backend to use for generation. ASA-family
// generations must always go to the general LLM, never the fine-tuned one.
func (s *Set) GenerationLLM(isASA bool) LLM {
	if isASA || s.FineTuned == nil {
		return s.LLM
	}
	return s.FineTuned
}

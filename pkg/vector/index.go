package vector

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/store"
)

// Index is the training-example search surface the pipeline consumes. It
// embeds queries, searches the provider and maps hits back to examples.
type Index struct {
	provider   Provider
	embedder   capability.Embedder
	collection string
}

// NewIndex builds the search surface over a provider and embedder.
func NewIndex(provider Provider, embedder capability.Embedder, collection string) *Index {
	return &Index{provider: provider, embedder: embedder, collection: collection}
}

// IndexExamples embeds and upserts the training conversations. Called once at
// startup; existing IDs are overwritten.
func (ix *Index) IndexExamples(ctx context.Context, examples []store.Example) error {
	if len(examples) == 0 {
		return nil
	}
	start := time.Now()

	texts := make([]string, len(examples))
	for i, ex := range examples {
		texts[i] = ex.CustomerMessage
	}
	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed training examples: %w", err)
	}

	for i, ex := range examples {
		id := ex.ID
		if id == "" {
			id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(ex.CustomerMessage+"\x00"+ex.Response())).String()
		}
		metadata := map[string]string{
			"content":     ex.CustomerMessage,
			"response":    ex.Response(),
			"situation":   ex.Situation,
			"explanation": ex.Explanation,
			"negative":    strconv.FormatBool(ex.IsNegativeExample),
			"exampleId":   ex.ID,
		}
		if err := ix.provider.Upsert(ctx, ix.collection, id, vectors[i], metadata); err != nil {
			return fmt.Errorf("failed to index example %s: %w", id, err)
		}
	}

	slog.Info("Indexed training examples",
		"count", len(examples),
		"collection", ix.collection,
		"duration", time.Since(start))
	return nil
}

// Search implements capability.VectorSearch.
func (ix *Index) Search(ctx context.Context, query string, opts capability.SearchOptions) ([]capability.ScoredExample, error) {
	vector, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var filter map[string]string
	if opts.Situation != "" {
		filter = map[string]string{"situation": opts.Situation}
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}

	hits, err := ix.provider.Search(ctx, ix.collection, vector, topK, filter)
	if err != nil {
		return nil, err
	}

	results := make([]capability.ScoredExample, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < opts.MinSimilarity {
			continue
		}
		negative, _ := strconv.ParseBool(hit.Metadata["negative"])
		results = append(results, capability.ScoredExample{
			Example: store.Example{
				ID:                coalesce(hit.Metadata["exampleId"], hit.ID),
				CustomerMessage:   hit.Metadata["content"],
				ModeratorResponse: hit.Metadata["response"],
				Situation:         hit.Metadata["situation"],
				Explanation:       hit.Metadata["explanation"],
				IsNegativeExample: negative,
			},
			Similarity: hit.Score,
		})
	}
	return results, nil
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package agents

import (
	"context"
	"fmt"
	"sync"

	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/utils"
)

// situationSeedPhrases anchor the per-situation reference embeddings.
var situationSeedPhrases = map[string][]string{
	SituationMeeting: {
		"wollen wir uns treffen", "hast du zeit am wochenende",
		"lass uns einen kaffee trinken gehen", "wann sehen wir uns",
		"kann ich zu dir kommen", "besuchst du mich mal",
	},
	SituationContact: {
		"gib mir deine nummer", "hast du whatsapp",
		"schreib mir auf telegram", "wie ist deine handynummer",
		"lass uns woanders weiterschreiben",
	},
	SituationPictures: {
		"schick mir ein bild von dir", "hast du noch mehr fotos",
		"zeig dich mal", "ich will sehen wie du aussiehst",
	},
	SituationMoney: {
		"das kostet mich zu viele coins", "ich habe kein geld mehr",
		"das ist mir zu teuer hier", "warum muss ich hier bezahlen",
	},
	SituationSexual: {
		"ich bin gerade richtig geil", "was magst du im bett",
		"was hast du gerade an", "lust auf was heisses",
	},
	SituationBot: {
		"bist du ein bot", "du bist doch nicht echt",
		"hier schreibt doch ein computer", "du bist fake",
	},
	SituationLocation: {
		"woher kommst du", "wo wohnst du denn", "aus welcher stadt bist du",
	},
	SituationOccupation: {
		"was arbeitest du", "was machst du beruflich", "wo arbeitest du",
	},
	SituationOuting: {
		"du wirst dafür bezahlt", "du bist ein moderator",
		"ihr schreibt doch nur für geld",
	},
}

// situationEmbedSimilarity is the normalized threshold for an embedding hit.
const situationEmbedSimilarity = 0.80

// SituationEmbeddings is the process-wide cache of per-situation reference
// vectors. It is warmed lazily on first use and append-only afterwards.
type SituationEmbeddings struct {
	embedder capability.Embedder

	mu      sync.RWMutex
	vectors map[string][][]float32
}

// NewSituationEmbeddings creates the cache.
func NewSituationEmbeddings(embedder capability.Embedder) *SituationEmbeddings {
	return &SituationEmbeddings{
		embedder: embedder,
		vectors:  make(map[string][][]float32),
	}
}

// Warm computes the reference vectors once. Safe to call concurrently.
func (s *SituationEmbeddings) Warm(ctx context.Context) error {
	s.mu.RLock()
	warmed := len(s.vectors) > 0
	s.mu.RUnlock()
	if warmed {
		return nil
	}

	computed := make(map[string][][]float32, len(situationSeedPhrases))
	for situation, phrases := range situationSeedPhrases {
		vectors, err := s.embedder.EmbedBatch(ctx, phrases)
		if err != nil {
			return fmt.Errorf("failed to embed situation seeds for %s: %w", situation, err)
		}
		computed[situation] = vectors
	}

	s.mu.Lock()
	if len(s.vectors) == 0 {
		s.vectors = computed
	}
	s.mu.Unlock()
	return nil
}

// Match returns situations whose best seed similarity crosses the threshold,
// with the similarity score.
func (s *SituationEmbeddings) Match(ctx context.Context, message string) (map[string]float64, error) {
	if err := s.Warm(ctx); err != nil {
		return nil, err
	}
	query, err := s.embedder.Embed(ctx, message)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make(map[string]float64)
	for situation, refs := range s.vectors {
		best := 0.0
		for _, ref := range refs {
			if sim := utils.CosineSimilarity(query, ref); sim > best {
				best = sim
			}
		}
		if best >= situationEmbedSimilarity {
			hits[situation] = best
		}
	}
	return hits, nil
}

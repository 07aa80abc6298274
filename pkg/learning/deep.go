package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/store"
)

// DeepPatternMaxAge is the staleness threshold after which a background
// re-extraction is scheduled.
const DeepPatternMaxAge = 7 * 24 * time.Hour

// DeepExtractor refreshes deep patterns in the background. Requests never
// block on it; they read whatever is cached and move on.
type DeepExtractor struct {
	llm   capability.LLM
	model string
	dir   string

	mu      sync.Mutex
	running bool
}

// NewDeepExtractor creates a background deep-pattern extractor writing to
// deep-patterns.json in dir.
func NewDeepExtractor(llm capability.LLM, model, dir string) *DeepExtractor {
	return &DeepExtractor{llm: llm, model: model, dir: dir}
}

// Load reads the cached deep patterns; nil when absent or unreadable.
func (d *DeepExtractor) Load() *DeepPatterns {
	var patterns DeepPatterns
	path := filepath.Join(d.dir, store.DeepPatternsFile)
	if err := store.ReadJSONFile(path, &patterns); err != nil || patterns.LastUpdated.IsZero() {
		return nil
	}
	return &patterns
}

// EnsureFresh returns the cached patterns and, when they are missing or older
// than DeepPatternMaxAge, schedules a fire-and-forget extraction. The returned
// patterns may be nil; callers treat that as "no deep context".
func (d *DeepExtractor) EnsureFresh(feedback *store.FeedbackData) *DeepPatterns {
	patterns := d.Load()
	if patterns != nil && time.Since(patterns.LastUpdated) < DeepPatternMaxAge {
		return patterns
	}

	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return patterns
	}
	d.running = true
	d.mu.Unlock()

	go func() {
		defer func() {
			d.mu.Lock()
			d.running = false
			d.mu.Unlock()
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := d.extract(ctx, feedback); err != nil {
			slog.Warn("Deep pattern extraction failed", "error", err)
		}
	}()

	return patterns
}

func (d *DeepExtractor) extract(ctx context.Context, feedback *store.FeedbackData) error {
	if feedback == nil || len(feedback.Feedbacks) == 0 {
		return nil
	}

	var sample strings.Builder
	count := 0
	for _, fb := range feedback.Feedbacks {
		if count >= 40 {
			break
		}
		fmt.Fprintf(&sample, "[%s] Kunde: %s | Antwort: %s\n", fb.Label, fb.CustomerMessage, fb.Response)
		count++
	}

	result, err := d.llm.CompleteJSON(ctx, capability.CompletionRequest{
		Model: d.model,
		System: "Du analysierst Moderations-Feedback. Extrahiere wiederkehrende Muster, " +
			"die gute von schlechten Antworten unterscheiden. " +
			"Antworte als JSON: {\"patterns\": [\"...\"]}",
		User:        sample.String(),
		Temperature: 0.2,
		MaxTokens:   800,
		JSONMode:    true,
	})
	if err != nil {
		return err
	}

	patterns := DeepPatterns{LastUpdated: time.Now()}
	if raw, ok := result["patterns"].([]interface{}); ok {
		for _, p := range raw {
			if s, ok := p.(string); ok && s != "" {
				patterns.Patterns = append(patterns.Patterns, s)
			}
		}
	}
	if len(patterns.Patterns) == 0 {
		return nil
	}

	data, err := json.MarshalIndent(patterns, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(d.dir, store.DeepPatternsFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadStats reads learning-stats.json from dir, deriving the statistics from
// the feedback log when the file is absent.
func LoadStats(dir string, feedback *store.FeedbackData) *Stats {
	var stats Stats
	path := filepath.Join(dir, store.StatsFile)
	if err := store.ReadJSONFile(path, &stats); err == nil && !stats.Empty() {
		return &stats
	}
	return Derive(feedback)
}

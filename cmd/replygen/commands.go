package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kavora-ai/replygen/pkg/agents"
	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/config"
	"github.com/kavora-ai/replygen/pkg/embedders"
	"github.com/kavora-ai/replygen/pkg/llms"
	"github.com/kavora-ai/replygen/pkg/pipeline"
	"github.com/kavora-ai/replygen/pkg/store"
	"github.com/kavora-ai/replygen/pkg/style"
	"github.com/kavora-ai/replygen/pkg/vector"
)

// requestTimeout is the soft per-request budget.
const requestTimeout = 60 * time.Second

// ServeCmd starts the ops server.
type ServeCmd struct {
	Addr string `help:"Listen address override."`
}

// Run starts the server.
func (s *ServeCmd) Run(cfg *config.Config) error {
	engine, st, cleanup, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Data.Watch {
		if err := st.Watch(); err != nil {
			slog.Warn("State watching disabled", "error", err)
		}
	}

	addr := cfg.Server.Addr
	if s.Addr != "" {
		addr = s.Addr
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Post("/generate", func(w http.ResponseWriter, r *http.Request) {
		var req pipeline.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fillFromStore(&req, st)

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		resp := engine.Run(ctx, &req)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	slog.Info("Serving", "addr", addr)
	return http.ListenAndServe(addr, router)
}

// GenerateCmd runs one request from a file.
type GenerateCmd struct {
	Request string `help:"Path to the request JSON file." arg:""`
}

// Run generates one reply.
func (g *GenerateCmd) Run(cfg *config.Config) error {
	engine, st, cleanup, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	raw, err := os.ReadFile(g.Request)
	if err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}
	var req pipeline.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("failed to parse request: %w", err)
	}
	fillFromStore(&req, st)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	resp := engine.Run(ctx, &req)
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// ValidateConfigCmd validates the config file.
type ValidateConfigCmd struct{}

// Run validates.
func (v *ValidateConfigCmd) Run(cfg *config.Config) error {
	fmt.Printf("config ok: backend=%s model=%s vector=%s data=%s\n",
		cfg.LLM.Backend, cfg.LLM.Model, cfg.Vector.Backend, cfg.Data.Dir)
	return nil
}

// buildEngine wires the providers into an engine plus the state store.
func buildEngine(cfg *config.Config) (*pipeline.Engine, *store.Store, func(), error) {
	st, err := store.Open(cfg.Data.Dir)
	if err != nil {
		return nil, nil, nil, err
	}

	llm, err := llms.NewFromConfig(cfg.LLM)
	if err != nil {
		return nil, nil, nil, err
	}
	fineTuned, err := llms.NewFineTunedFromConfig(cfg.FineTuned)
	if err != nil {
		return nil, nil, nil, err
	}

	embedder, err := embedders.NewOpenAIEmbedderFromConfig(cfg.Embedder)
	if err != nil {
		return nil, nil, nil, err
	}

	provider, err := vector.NewFromConfig(cfg.Vector)
	if err != nil {
		return nil, nil, nil, err
	}
	index := vector.NewIndex(provider, embedder, cfg.Vector.Collection)

	// Index the training corpus once at startup; a later store reload does
	// not re-index it.
	indexCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if snap := st.Snapshot(); snap.Training != nil {
		if err := index.IndexExamples(indexCtx, snap.Training.Conversations); err != nil {
			slog.Warn("Training indexing failed; retrieval will be degraded", "error", err)
		}
	}

	caps := capability.Set{
		LLM:         llm,
		Embedder:    embedder,
		Search:      index,
		Moderation:  llms.NewOpenAIModeration(cfg.LLM.APIKey, ""),
		City:        capability.NewStaticCityLookup(),
		Classifiers: agents.KeywordClassifiers{},
		Style:       style.Analyzer{},
	}
	if fineTuned != nil {
		caps.FineTuned = fineTuned
	}
	if cfg.LLM.Backend != config.BackendOpenAI || cfg.LLM.APIKey == "" {
		// the moderation endpoint needs an OpenAI key; other backends run
		// behind the platform's own moderation
		caps.Moderation = capability.PassthroughModeration{}
	}

	engine, err := pipeline.New(cfg, caps)
	if err != nil {
		provider.Close()
		st.Close()
		return nil, nil, nil, err
	}

	cleanup := func() {
		provider.Close()
		st.Close()
	}
	return engine, st, cleanup, nil
}

// fillFromStore supplies the request's rule/training/feedback handles from
// the store when the caller did not inline them.
func fillFromStore(req *pipeline.Request, st *store.Store) {
	snap := st.Snapshot()
	if req.Rules == nil {
		req.Rules = snap.Rules
	}
	if req.TrainingData == nil {
		req.TrainingData = snap.Training
	}
	if req.FeedbackData == nil {
		req.FeedbackData = snap.Feedback
	}
}

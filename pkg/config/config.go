// Package config defines the typed configuration of the reply engine.
//
// Configuration is loaded from YAML with ${VAR} / ${VAR:-default} environment
// expansion. Backend selection additionally honors the flat environment flags
// USE_TOGETHER_AI, USE_LOCAL_LLM, AI_MODEL and ML_QUALITY_WEIGHT so deployments
// can switch backends without touching the config file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	// LLM configures the general completion backend.
	LLM LLMConfig `yaml:"llm"`

	// FineTuned configures the optional fine-tuned backend. When enabled the
	// engine routes generation through the multi-stage pipeline.
	FineTuned FineTunedConfig `yaml:"fine_tuned"`

	// Embedder configures the embeddings backend.
	Embedder EmbedderConfig `yaml:"embedder"`

	// Vector configures the training-example vector store.
	Vector VectorConfig `yaml:"vector"`

	// Data configures the persisted state layout.
	Data DataConfig `yaml:"data"`

	// Engine holds the pipeline tunables.
	Engine EngineConfig `yaml:"engine"`

	// Server configures the ops mux.
	Server ServerConfig `yaml:"server"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogFormat is "simple" or "verbose".
	LogFormat string `yaml:"log_format"`
}

// LLMBackend identifies the completion backend type.
type LLMBackend string

const (
	BackendOpenAI   LLMBackend = "openai"
	BackendTogether LLMBackend = "together"
	BackendLocal    LLMBackend = "local"
)

// LLMConfig configures an OpenAI-compatible completion backend.
type LLMConfig struct {
	// Backend type (openai, together, local).
	Backend LLMBackend `yaml:"backend"`

	// Model name, overridable via AI_MODEL.
	Model string `yaml:"model"`

	// APIKey for authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key"`

	// Host overrides the default API endpoint.
	Host string `yaml:"host"`

	// Timeout in seconds for a single completion call.
	Timeout int `yaml:"timeout"`

	// MaxRetries for transient HTTP failures.
	MaxRetries int `yaml:"max_retries"`

	// RetryDelay base delay in seconds.
	RetryDelay int `yaml:"retry_delay"`
}

// FineTunedConfig configures the fine-tuned backend.
type FineTunedConfig struct {
	// Enabled switches generation to the multi-stage pipeline.
	Enabled bool `yaml:"enabled"`

	// Model name of the fine-tuned deployment.
	Model string `yaml:"model"`

	// Host of the fine-tuned deployment.
	Host string `yaml:"host"`

	// APIKey for the deployment.
	APIKey string `yaml:"api_key"`

	// Timeout in seconds. Remote fine-tuned backends get 30s, on-premise GPU
	// backends typically need 120s with a cloud fallback after timeout.
	Timeout int `yaml:"timeout"`
}

// EmbedderConfig configures the embeddings backend.
type EmbedderConfig struct {
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	Host      string `yaml:"host"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
	Timeout   int    `yaml:"timeout"`
}

// VectorBackend identifies the vector store type.
type VectorBackend string

const (
	VectorQdrant  VectorBackend = "qdrant"
	VectorChromem VectorBackend = "chromem"
)

// VectorConfig configures the vector store.
type VectorConfig struct {
	Backend    VectorBackend `yaml:"backend"`
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	APIKey     string        `yaml:"api_key"`
	UseTLS     bool          `yaml:"use_tls"`
	Collection string        `yaml:"collection"`

	// Path is the persistence directory for the embedded chromem backend.
	// Empty means in-memory only.
	Path string `yaml:"path"`
}

// DataConfig locates the persisted read-mostly state.
type DataConfig struct {
	// Dir containing rules.json, training-data.json, feedback.json,
	// learning-stats.json and deep-patterns.json.
	Dir string `yaml:"dir"`

	// Watch enables fsnotify-driven hot reload.
	Watch bool `yaml:"watch"`
}

// EngineConfig holds the pipeline tunables the engine treats as
// configuration rather than code.
type EngineConfig struct {
	// MLQualityWeight blends the ML quality score into the heuristic quality
	// score. Overridable via ML_QUALITY_WEIGHT.
	MLQualityWeight float64 `yaml:"ml_quality_weight"`

	// FeedbackRichThreshold and FeedbackPoorThreshold steer the adaptive
	// hybrid-score weighting (share of candidates with good feedback).
	FeedbackRichThreshold float64 `yaml:"feedback_rich_threshold"`
	FeedbackPoorThreshold float64 `yaml:"feedback_poor_threshold"`

	// ParaphraseSimilarity is the cosine threshold above which a reply counts
	// as paraphrasing the customer message.
	ParaphraseSimilarity float64 `yaml:"paraphrase_similarity"`

	// GreetingBadRatio filters ASA greeting tokens whose bad share in the
	// learning stats crosses this threshold.
	GreetingBadRatio float64 `yaml:"greeting_bad_ratio"`

	// MaxTotalRewrites is the global rewrite ceiling per request.
	MaxTotalRewrites int `yaml:"max_total_rewrites"`

	// PromptTokenBudget caps the composed prompt size; examples are truncated
	// from the tail when exceeded.
	PromptTokenBudget int `yaml:"prompt_token_budget"`
}

// ServerConfig configures the ops HTTP mux (health + metrics only; the
// product transport is owned by the caller).
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SetDefaults applies default values and the flat env overrides.
func (c *Config) SetDefaults() {
	if c.LLM.Backend == "" {
		c.LLM.Backend = BackendOpenAI
		if v, _ := strconv.ParseBool(os.Getenv("USE_TOGETHER_AI")); v {
			c.LLM.Backend = BackendTogether
		}
		if v, _ := strconv.ParseBool(os.Getenv("USE_LOCAL_LLM")); v {
			c.LLM.Backend = BackendLocal
		}
	}
	if m := os.Getenv("AI_MODEL"); m != "" {
		c.LLM.Model = m
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = apiKeyFromEnv(c.LLM.Backend)
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 10
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 3
	}
	if c.LLM.RetryDelay == 0 {
		c.LLM.RetryDelay = 1
	}

	if c.FineTuned.Timeout == 0 {
		if c.FineTuned.Host != "" && isLoopback(c.FineTuned.Host) {
			c.FineTuned.Timeout = 120
		} else {
			c.FineTuned.Timeout = 30
		}
	}

	if c.Embedder.Model == "" {
		c.Embedder.Model = "text-embedding-3-small"
	}
	if c.Embedder.Dimension == 0 {
		c.Embedder.Dimension = 1536
	}
	if c.Embedder.BatchSize == 0 {
		c.Embedder.BatchSize = 100
	}
	if c.Embedder.Timeout == 0 {
		c.Embedder.Timeout = 30
	}
	if c.Embedder.APIKey == "" {
		c.Embedder.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if c.Vector.Backend == "" {
		c.Vector.Backend = VectorChromem
	}
	if c.Vector.Collection == "" {
		c.Vector.Collection = "training-examples"
	}
	if c.Vector.Backend == VectorQdrant {
		if c.Vector.Host == "" {
			c.Vector.Host = "localhost"
		}
		if c.Vector.Port == 0 {
			c.Vector.Port = 6334
		}
	}

	if c.Data.Dir == "" {
		c.Data.Dir = "./data"
	}

	if c.Engine.MLQualityWeight == 0 {
		c.Engine.MLQualityWeight = 0.5
		if v := os.Getenv("ML_QUALITY_WEIGHT"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
				c.Engine.MLQualityWeight = f
			}
		}
	}
	if c.Engine.FeedbackRichThreshold == 0 {
		c.Engine.FeedbackRichThreshold = 0.6
	}
	if c.Engine.FeedbackPoorThreshold == 0 {
		c.Engine.FeedbackPoorThreshold = 0.3
	}
	if c.Engine.ParaphraseSimilarity == 0 {
		c.Engine.ParaphraseSimilarity = 0.85
	}
	if c.Engine.GreetingBadRatio == 0 {
		c.Engine.GreetingBadRatio = 0.5
	}
	if c.Engine.MaxTotalRewrites == 0 {
		c.Engine.MaxTotalRewrites = 5
	}
	if c.Engine.PromptTokenBudget == 0 {
		c.Engine.PromptTokenBudget = 12000
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":9090"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "simple"
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.LLM.Backend {
	case BackendOpenAI, BackendTogether, BackendLocal:
	default:
		return fmt.Errorf("invalid llm backend: %s", c.LLM.Backend)
	}
	if c.LLM.Backend != BackendLocal && c.LLM.APIKey == "" {
		return fmt.Errorf("api key is required for backend %s", c.LLM.Backend)
	}
	switch c.Vector.Backend {
	case VectorQdrant, VectorChromem:
	default:
		return fmt.Errorf("invalid vector backend: %s", c.Vector.Backend)
	}
	if c.FineTuned.Enabled && c.FineTuned.Model == "" {
		return fmt.Errorf("fine_tuned.model is required when fine_tuned.enabled")
	}
	if w := c.Engine.MLQualityWeight; w < 0 || w > 1 {
		return fmt.Errorf("ml_quality_weight must be in [0,1], got %v", w)
	}
	if c.Engine.ParaphraseSimilarity <= 0 || c.Engine.ParaphraseSimilarity > 1 {
		return fmt.Errorf("paraphrase_similarity must be in (0,1], got %v", c.Engine.ParaphraseSimilarity)
	}
	return nil
}

// Load reads, expands and validates a config file. A missing path yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}

		var data map[string]interface{}
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		expanded := ExpandEnvVarsInData(data)
		out, err := yaml.Marshal(expanded)
		if err != nil {
			return nil, fmt.Errorf("failed to re-marshal expanded config: %w", err)
		}
		if err := yaml.Unmarshal(out, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
		}
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func apiKeyFromEnv(backend LLMBackend) string {
	switch backend {
	case BackendOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case BackendTogether:
		return os.Getenv("TOGETHER_API_KEY")
	default:
		return ""
	}
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" ||
		len(host) > 10 && (host[:10] == "http://127" || host[:16] == "http://localhost")
}

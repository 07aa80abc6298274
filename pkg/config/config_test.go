package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaults_BackendFlags(t *testing.T) {
	t.Setenv("USE_TOGETHER_AI", "")
	t.Setenv("USE_LOCAL_LLM", "")
	t.Setenv("AI_MODEL", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := &Config{}
	cfg.SetDefaults()
	assert.Equal(t, BackendOpenAI, cfg.LLM.Backend)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)

	t.Setenv("USE_TOGETHER_AI", "true")
	t.Setenv("TOGETHER_API_KEY", "tk-test")
	cfg = &Config{}
	cfg.SetDefaults()
	assert.Equal(t, BackendTogether, cfg.LLM.Backend)
	assert.Equal(t, "tk-test", cfg.LLM.APIKey)

	// USE_LOCAL_LLM wins over USE_TOGETHER_AI
	t.Setenv("USE_LOCAL_LLM", "1")
	cfg = &Config{}
	cfg.SetDefaults()
	assert.Equal(t, BackendLocal, cfg.LLM.Backend)
}

func TestSetDefaults_ModelAndWeight(t *testing.T) {
	t.Setenv("AI_MODEL", "mistral-small")
	t.Setenv("ML_QUALITY_WEIGHT", "0.3")
	t.Setenv("USE_TOGETHER_AI", "")
	t.Setenv("USE_LOCAL_LLM", "")

	cfg := &Config{}
	cfg.SetDefaults()
	assert.Equal(t, "mistral-small", cfg.LLM.Model)
	assert.Equal(t, 0.3, cfg.Engine.MLQualityWeight)
}

func TestSetDefaults_EngineDefaults(t *testing.T) {
	t.Setenv("ML_QUALITY_WEIGHT", "")
	cfg := &Config{}
	cfg.SetDefaults()
	assert.Equal(t, 0.5, cfg.Engine.MLQualityWeight)
	assert.Equal(t, 0.6, cfg.Engine.FeedbackRichThreshold)
	assert.Equal(t, 0.3, cfg.Engine.FeedbackPoorThreshold)
	assert.Equal(t, 0.85, cfg.Engine.ParaphraseSimilarity)
	assert.Equal(t, 5, cfg.Engine.MaxTotalRewrites)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	t.Setenv("USE_TOGETHER_AI", "")
	t.Setenv("USE_LOCAL_LLM", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	cfg.LLM.Backend = "mystery"
	assert.Error(t, cfg.Validate())

	cfg.LLM.Backend = BackendOpenAI
	cfg.Engine.MLQualityWeight = 2
	assert.Error(t, cfg.Validate())
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_VECTOR_HOST", "qdrant.internal")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("USE_TOGETHER_AI", "")
	t.Setenv("USE_LOCAL_LLM", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
llm:
  backend: openai
vector:
  backend: qdrant
  host: ${TEST_VECTOR_HOST}
  port: ${TEST_VECTOR_PORT:-6334}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "qdrant.internal", cfg.Vector.Host)
	assert.Equal(t, 6334, cfg.Vector.Port)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("USE_TOGETHER_AI", "")
	t.Setenv("USE_LOCAL_LLM", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, VectorChromem, cfg.Vector.Backend)
}

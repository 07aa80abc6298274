// Package llms provides the OpenAI-compatible completion providers. The
// general backend, Together and local deployments all speak the chat
// completions dialect; they differ only in host, auth and timeout.
package llms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kavora-ai/replygen/pkg/capability"
	"github.com/kavora-ai/replygen/pkg/config"
	"github.com/kavora-ai/replygen/pkg/httpclient"
)

const (
	openAIDefaultHost   = "https://api.openai.com/v1"
	togetherDefaultHost = "https://api.together.xyz/v1"
	localDefaultHost    = "http://localhost:8000/v1"
)

// ChatProvider is an OpenAI-compatible chat completions client.
type ChatProvider struct {
	name       string
	model      string
	apiKey     string
	host       string
	httpClient *httpclient.Client
}

// ChatRequest is the chat completions payload.
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ChatMessage is one chat turn.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat requests structured output.
type ResponseFormat struct {
	Type string `json:"type"` // "json_object"
}

// ChatResponse is the chat completions response.
type ChatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *APIError `json:"error,omitempty"`
}

// APIError is the error object of the chat completions dialect.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// NewFromConfig builds the general completion provider.
func NewFromConfig(cfg config.LLMConfig) (*ChatProvider, error) {
	host := cfg.Host
	name := string(cfg.Backend)
	switch cfg.Backend {
	case config.BackendOpenAI:
		if host == "" {
			host = openAIDefaultHost
		}
	case config.BackendTogether:
		if host == "" {
			host = togetherDefaultHost
		}
	case config.BackendLocal:
		if host == "" {
			host = localDefaultHost
		}
	default:
		return nil, fmt.Errorf("unknown llm backend: %s", cfg.Backend)
	}
	if cfg.Backend != config.BackendLocal && cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required for backend %s", cfg.Backend)
	}

	return &ChatProvider{
		name:   name,
		model:  cfg.Model,
		apiKey: cfg.APIKey,
		host:   host,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithBaseDelay(time.Duration(cfg.RetryDelay)*time.Second),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIRateLimitHeaders),
		),
	}, nil
}

// NewFineTunedFromConfig builds the fine-tuned deployment provider.
func NewFineTunedFromConfig(cfg config.FineTunedConfig) (*ChatProvider, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	host := cfg.Host
	if host == "" {
		host = localDefaultHost
	}
	return &ChatProvider{
		name:   "fine-tuned",
		model:  cfg.Model,
		apiKey: cfg.APIKey,
		host:   host,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}),
			httpclient.WithMaxRetries(2),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIRateLimitHeaders),
		),
	}, nil
}

// Name identifies the backend for logging.
func (p *ChatProvider) Name() string { return p.name }

// Complete issues a chat completion and returns the text.
func (p *ChatProvider) Complete(ctx context.Context, req capability.CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	payload := ChatRequest{
		Model:     model,
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature > 0 {
		temp := req.Temperature
		payload.Temperature = &temp
	}
	if req.System != "" {
		payload.Messages = append(payload.Messages, ChatMessage{Role: "system", Content: req.System})
	}
	payload.Messages = append(payload.Messages, ChatMessage{Role: "user", Content: req.User})
	if req.JSONMode {
		payload.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/chat/completions", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq, body)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var parsed ChatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%s API error: %s (type: %s)", p.name, parsed.Error.Message, parsed.Error.Type)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s API returned status %d: %s", p.name, resp.StatusCode, string(respBody))
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%s API returned no choices", p.name)
	}

	return parsed.Choices[0].Message.Content, nil
}

// CompleteJSON issues a JSON-mode completion and parses the object. Fenced
// ```json blocks are tolerated even though JSON mode is requested.
func (p *ChatProvider) CompleteJSON(ctx context.Context, req capability.CompletionRequest) (map[string]interface{}, error) {
	req.JSONMode = true
	text, err := p.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return ParseJSONObject(text)
}

package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kavora-ai/replygen/pkg/capability"
)

// OpenAIModeration implements the safety classifier against the OpenAI
// moderations endpoint.
type OpenAIModeration struct {
	client  *http.Client
	apiKey  string
	baseURL string
}

// NewOpenAIModeration builds the moderation client.
func NewOpenAIModeration(apiKey, baseURL string) *OpenAIModeration {
	if baseURL == "" {
		baseURL = openAIDefaultHost
	}
	return &OpenAIModeration{
		client:  &http.Client{Timeout: 10 * time.Second},
		apiKey:  apiKey,
		baseURL: baseURL,
	}
}

type moderationRequest struct {
	Input string `json:"input"`
}

type moderationResponse struct {
	Results []struct {
		Flagged    bool            `json:"flagged"`
		Categories map[string]bool `json:"categories"`
	} `json:"results"`
}

// Check classifies the text.
func (m *OpenAIModeration) Check(ctx context.Context, text string) (capability.ModerationResult, error) {
	body, err := json.Marshal(moderationRequest{Input: text})
	if err != nil {
		return capability.ModerationResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/moderations", bytes.NewReader(body))
	if err != nil {
		return capability.ModerationResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return capability.ModerationResult{}, fmt.Errorf("moderation request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return capability.ModerationResult{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return capability.ModerationResult{}, fmt.Errorf("moderation API returned status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed moderationResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return capability.ModerationResult{}, err
	}
	if len(parsed.Results) == 0 {
		return capability.ModerationResult{}, nil
	}

	result := capability.ModerationResult{IsBlocked: parsed.Results[0].Flagged}
	if result.IsBlocked {
		for category, flagged := range parsed.Results[0].Categories {
			if flagged {
				result.Reason = category
				break
			}
		}
		result.ErrorMessage = "Nachricht durch Moderation blockiert"
	}
	return result, nil
}

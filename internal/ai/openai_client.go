package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/FrancescoCarrabino/feelghost/internal/analyzer"
	"github.com/FrancescoCarrabino/feelghost/internal/config"
)

// OpenAIClient implements Client using the OpenAI chat completions API.
type OpenAIClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
	prompt     *Prompt
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openAIResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   *openAIUsage   `json:"usage,omitempty"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIChoice struct {
	Index        int           `json:"index"`
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"` // e.g., "stop", "length", "content_filter"
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type openAIFineTuningJobs struct {
	Data []struct {
		Status         string `json:"status"`
		FineTunedModel string `json:"fine_tuned_model"`
	} `json:"data"`
	Error *openAIError `json:"error,omitempty"`
}

// NewOpenAIClient creates a new client for OpenAI using configuration.
func NewOpenAIClient(cfg config.OpenAIConfig, globalCfg config.Config, prompt *Prompt) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key not specified (config: providers.openai.api_key or env: OPENAI_API_KEY)")
	}
	if cfg.Model == "" {
		return nil, errors.New("OpenAI model name not specified in config (providers.openai.model)")
	}
	if prompt == nil {
		return nil, errors.New("OpenAI client needs a prompt")
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	log.Printf("[FG][OpenAI] Initializing client: Model=%s, BaseURL=%s, Timeout=%s", cfg.Model, baseURL, globalCfg.TimeoutDuration)
	return &OpenAIClient{
		httpClient: &http.Client{Timeout: globalCfg.TimeoutDuration},
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    baseURL,
		prompt:     prompt,
	}, nil
}

// GetSuggestion implements Client for OpenAI.
func (c *OpenAIClient) GetSuggestion(ctx context.Context, info *analyzer.ContextInfo) (string, error) {
	userPrompt, err := c.prompt.User(info)
	if err != nil {
		return "", err
	}
	log.Printf("[FG][OpenAI] Requesting suggestion from %s, prompt snippet: %.100q", c.Identify(), userPrompt)

	temp := 0.1
	reqBody := openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: c.prompt.System},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   256,
		Temperature: &temp,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal OpenAI request: %w", err)
	}

	bodyBytes, status, err := c.do(ctx, http.MethodPost, "/chat/completions", jsonData)
	if err != nil {
		return "", err
	}

	var apiResp openAIResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		log.Printf("[FG][OpenAI] Failed to decode JSON response. Status: %d, Body: %s", status, string(bodyBytes))
		return "", fmt.Errorf("failed to decode OpenAI response body (status %d): %w", status, err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("OpenAI API error (%s): %s", apiResp.Error.Code, apiResp.Error.Message)
	}
	if status < 200 || status >= 300 {
		log.Printf("[FG][OpenAI] HTTP error: status %d, body: %s", status, string(bodyBytes))
		return "", fmt.Errorf("OpenAI request failed with HTTP status: %d", status)
	}
	if apiResp.Usage != nil {
		log.Printf("[FG][OpenAI] Usage: Prompt=%d, Completion=%d, Total=%d", apiResp.Usage.PromptTokens, apiResp.Usage.CompletionTokens, apiResp.Usage.TotalTokens)
	}

	if len(apiResp.Choices) == 0 {
		log.Printf("[FG][OpenAI] No choices received. Body: %s", string(bodyBytes))
		return "", nil
	}
	choice := apiResp.Choices[0]
	switch choice.FinishReason {
	case "length":
		log.Printf("[FG][OpenAI] Warning: completion may have been truncated by max_tokens")
	case "content_filter":
		return "", errors.New("suggestion blocked by OpenAI content filter")
	}

	log.Printf("[FG][OpenAI] RAW response from model: %q", choice.Message.Content)
	suggestion := suggestionFrom(choice.Message.Content, info)
	log.Printf("[FG][OpenAI] Suggested completion: %q", suggestion)
	return suggestion, nil
}

// FineTunedModels lists the models produced by succeeded fine-tuning jobs.
func (c *OpenAIClient) FineTunedModels(ctx context.Context) ([]string, error) {
	bodyBytes, status, err := c.do(ctx, http.MethodGet, "/fine_tuning/jobs", nil)
	if err != nil {
		return nil, err
	}
	var jobs openAIFineTuningJobs
	if err := json.Unmarshal(bodyBytes, &jobs); err != nil {
		return nil, fmt.Errorf("failed to decode fine-tuning jobs (status %d): %w", status, err)
	}
	if jobs.Error != nil {
		return nil, fmt.Errorf("OpenAI API error (%s): %s", jobs.Error.Code, jobs.Error.Message)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("OpenAI request failed with HTTP status: %d", status)
	}

	models := []string{}
	for _, job := range jobs.Data {
		if job.Status == "succeeded" && job.FineTunedModel != "" {
			models = append(models, job.FineTunedModel)
		}
	}
	return models, nil
}

func (c *OpenAIClient) do(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create OpenAI request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, 0, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			log.Printf("[FG][OpenAI] Request timed out after %s", duration)
			return nil, 0, fmt.Errorf("request timed out: %w", err)
		}
		return nil, 0, fmt.Errorf("failed to send request to OpenAI: %w", err)
	}
	defer resp.Body.Close()
	log.Printf("[FG][OpenAI] %s %s completed in %s with status: %s", method, path, duration, resp.Status)

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read OpenAI response body: %w", err)
	}
	return bodyBytes, resp.StatusCode, nil
}

// Identify returns the client identifier.
func (c *OpenAIClient) Identify() string {
	return fmt.Sprintf("openai/%s", c.model)
}

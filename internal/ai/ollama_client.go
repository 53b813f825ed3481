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
	"net/url"
	"strings"
	"time"

	"github.com/FrancescoCarrabino/feelghost/internal/analyzer"
	"github.com/FrancescoCarrabino/feelghost/internal/config"
)

// OllamaClient implements Client using a local Ollama instance.
type OllamaClient struct {
	httpClient *http.Client
	model      string // Model name available in Ollama
	apiURL     string // Full URL to the /api/generate endpoint
	prompt     *Prompt
}

// Ollama API request structure (for /api/generate)
type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  *bool          `json:"stream,omitempty"` // false for a single response
	Options map[string]any `json:"options,omitempty"`
}

// Ollama API response structure (non-streaming)
type ollamaGenerateResponse struct {
	Model           string    `json:"model"`
	CreatedAt       time.Time `json:"created_at"`
	Response        string    `json:"response"`
	Done            bool      `json:"done"`
	Error           string    `json:"error,omitempty"`
	PromptEvalCount int       `json:"prompt_eval_count"`
	EvalCount       int       `json:"eval_count"`
}

// NewOllamaClient creates a new client for a local Ollama instance using config.
func NewOllamaClient(cfg config.OllamaConfig, globalCfg config.Config, prompt *Prompt) (*OllamaClient, error) {
	if cfg.Model == "" {
		return nil, errors.New("Ollama model name must be specified in config (providers.ollama.model)")
	}
	if prompt == nil {
		return nil, errors.New("Ollama client needs a prompt")
	}
	host := cfg.Host
	if host == "" {
		host = "http://localhost:11434"
	}
	if _, err := url.ParseRequestURI(host); err != nil {
		return nil, fmt.Errorf("invalid Ollama host '%s': %w", host, err)
	}
	apiBaseURL := strings.TrimSuffix(host, "/")

	log.Printf("[FG][Ollama] Initializing client: Host=%s, Model=%s, Timeout=%s", apiBaseURL, cfg.Model, globalCfg.TimeoutDuration)
	return &OllamaClient{
		httpClient: &http.Client{Timeout: globalCfg.TimeoutDuration},
		model:      cfg.Model,
		apiURL:     apiBaseURL + "/api/generate",
		prompt:     prompt,
	}, nil
}

// Ping checks that the Ollama host answers.
func (c *OllamaClient) Ping(ctx context.Context) error {
	base := strings.TrimSuffix(c.apiURL, "/api/generate")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base, nil)
	if err != nil {
		return fmt.Errorf("failed to create Ollama ping: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not ping Ollama host '%s': %w", base, err)
	}
	resp.Body.Close()
	return nil
}

// GetSuggestion implements Client for Ollama.
func (c *OllamaClient) GetSuggestion(ctx context.Context, info *analyzer.ContextInfo) (string, error) {
	prompt, err := c.prompt.User(info)
	if err != nil {
		return "", err
	}
	log.Printf("[FG][Ollama] Requesting suggestion from %s, prompt snippet: %.100q", c.Identify(), prompt)

	stream := false
	requestBody := ollamaGenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		System: c.prompt.System,
		Stream: &stream,
		Options: map[string]any{
			"num_predict": 128,
			"temperature": 0.1,
		},
	}
	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal Ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create Ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			log.Printf("[FG][Ollama] Request timed out after %s", duration)
			return "", fmt.Errorf("request timed out: %w", err)
		}
		return "", fmt.Errorf("cannot reach Ollama at '%s': %w", c.apiURL, err)
	}
	defer resp.Body.Close()
	log.Printf("[FG][Ollama] Request completed in %s with status: %s", duration, resp.Status)

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read Ollama response body: %w", err)
	}

	var apiResp ollamaGenerateResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		log.Printf("[FG][Ollama] Failed to decode JSON response. Status: %s, Body: %s", resp.Status, string(bodyBytes))
		return "", fmt.Errorf("failed to decode Ollama response body: %w", err)
	}
	if apiResp.Error != "" {
		lower := strings.ToLower(apiResp.Error)
		if strings.Contains(lower, "model") && strings.Contains(lower, "not found") {
			return "", fmt.Errorf("Ollama model '%s' not found locally (run `ollama pull %s`)", c.model, c.model)
		}
		return "", fmt.Errorf("Ollama API error: %s", apiResp.Error)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("Ollama request failed with status: %s", resp.Status)
	}
	if !apiResp.Done {
		return "", errors.New("no complete suggestion response received from Ollama")
	}

	log.Printf("[FG][Ollama] RAW response from model: %q", apiResp.Response)
	suggestion := suggestionFrom(apiResp.Response, info)
	log.Printf("[FG][Ollama] Suggested completion: %q (prompt=%d, eval=%d tokens)", suggestion, apiResp.PromptEvalCount, apiResp.EvalCount)
	return suggestion, nil
}

// Identify returns the client identifier.
func (c *OllamaClient) Identify() string {
	return fmt.Sprintf("ollama/%s", c.model)
}

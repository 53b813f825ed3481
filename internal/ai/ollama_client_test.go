package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FrancescoCarrabino/feelghost/internal/analyzer"
	"github.com/FrancescoCarrabino/feelghost/internal/config"
)

func TestOllamaClient_GetSuggestion(t *testing.T) {
	var got ollamaGenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			return
		}
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"model": "llama3", "response": "contains(name, \"x\")", "done": true}`))
	}))
	defer srv.Close()

	prompt, err := NewPrompt("")
	require.NoError(t, err)
	c, err := NewOllamaClient(config.OllamaConfig{Host: srv.URL + "/", Model: "llama3"}, config.Config{TimeoutDuration: 2 * time.Second}, prompt)
	require.NoError(t, err)
	require.NoError(t, c.Ping(context.Background()))

	s, err := c.GetSuggestion(context.Background(), analyzer.ExtractContext([]byte("contains(na"), nil, 11, "feel", ""))
	require.NoError(t, err)
	assert.Equal(t, "me, \"x\")", s)

	assert.Equal(t, "llama3", got.Model)
	require.NotNil(t, got.Stream)
	assert.False(t, *got.Stream)
	assert.Equal(t, prompt.System, got.System)
	assert.Equal(t, "ollama/llama3", c.Identify())
}

func TestOllamaClient_ModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "model \"nope\" not found, try pulling it first"}`))
	}))
	defer srv.Close()

	prompt, err := NewPrompt("")
	require.NoError(t, err)
	c, err := NewOllamaClient(config.OllamaConfig{Host: srv.URL, Model: "nope"}, config.Config{TimeoutDuration: time.Second}, prompt)
	require.NoError(t, err)

	_, err = c.GetSuggestion(context.Background(), analyzer.ExtractContext([]byte("a"), nil, 1, "feel", ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found locally")
}

func TestNewOllamaClient_InvalidHost(t *testing.T) {
	prompt, err := NewPrompt("")
	require.NoError(t, err)
	_, err = NewOllamaClient(config.OllamaConfig{Host: "::not a url", Model: "m"}, config.Config{}, prompt)
	assert.Error(t, err)
}

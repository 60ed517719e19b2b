package expand

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaLLM_Extract(t *testing.T) {
	// Given: a fake Ollama generate endpoint
	var got ollamaGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: cheapTruckResponse, Done: true})
	}))
	defer server.Close()

	// When: extracting
	raw, err := NewOllamaLLM(server.URL, "llama3.2").Extract(context.Background(), "prompt")

	// Then: JSON mode without streaming was requested
	require.NoError(t, err)
	assert.Equal(t, cheapTruckResponse, raw)
	assert.Equal(t, "json", got.Format)
	assert.False(t, got.Stream)
	assert.Equal(t, "llama3.2", got.Model)
}

func TestOllamaLLM_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewOllamaLLM(server.URL, "").Extract(context.Background(), "prompt")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestOpenAILLM_Extract(t *testing.T) {
	// Given: a fake OpenAI-compatible chat completions endpoint
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "test",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": cheapTruckResponse},
			}},
		})
	}))
	defer server.Close()

	llm, err := NewOpenAILLM(server.URL, "test", "")
	require.NoError(t, err)

	// When: extracting
	raw, err := llm.Extract(context.Background(), BuildPrompt("cheap truck"))

	// Then: the first choice's content is returned
	require.NoError(t, err)
	assert.Equal(t, cheapTruckResponse, raw)
}

func TestOllamaLLM_Available(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))

	llm := NewOllamaLLM(server.URL, "llama3.2")
	assert.True(t, llm.Available(context.Background()))

	server.Close()
	assert.False(t, llm.Available(context.Background()))
}

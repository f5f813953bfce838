package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/sportsdesk/internal/llm"
)

func newServer(t *testing.T, content string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"model":  "llama3",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCompleteJSON(t *testing.T) {
	var body map[string]any
	srv := newServer(t, ` {"uniqueness": 1} `, &body)

	c := NewClient("key", srv.URL+"/v1/", "llama3", time.Second)
	got, err := c.Complete(context.Background(), llm.Request{Prompt: "hello", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"uniqueness": 1}`, got)

	assert.Equal(t, "llama3", body["model"])
	format, ok := body["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_object", format["type"])
}

func TestCompletePlainText(t *testing.T) {
	var body map[string]any
	srv := newServer(t, "caption", &body)

	c := NewClient("key", srv.URL+"/v1", "", 0)
	got, err := c.Complete(context.Background(), llm.Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "caption", got)
	assert.Equal(t, DefaultModel, body["model"])
	assert.NotContains(t, body, "response_format")
}

func TestCompleteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient("key", srv.URL+"/v1", "m", time.Second)
	_, err := c.Complete(context.Background(), llm.Request{Prompt: "x"})
	assert.Error(t, err)
}

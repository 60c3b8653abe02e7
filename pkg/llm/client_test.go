package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsdesk/sentinel/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.AIConfig{
		Enabled:   true,
		Endpoint:  srv.URL + "/v1",
		APIKey:    "test-key",
		Model:     "test-model",
		MaxTokens: 500,
		Timeout:   5 * time.Second,
	})
}

func completionResponse(content string) map[string]interface{} {
	return map[string]interface{}{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "test-model",
		"choices": []map[string]interface{}{
			{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
	}
}

func TestClient_Enhance(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req["model"])

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(
			completionResponse("```html\n<p>Enhanced paragraph text.</p>\n```")))
	})

	out, err := client.Enhance(context.Background(), "<p>Original paragraph text.</p>")
	require.NoError(t, err)
	// fences some models add get stripped
	assert.Equal(t, "<p>Enhanced paragraph text.</p>", out)
}

func TestClient_Translate(t *testing.T) {
	t.Run("returns translation", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			require.NoError(t, json.NewEncoder(w).Encode(completionResponse("អត្ថបទបកប្រែ")))
		})

		out, err := client.Translate(context.Background(), "Translated text", "km")
		require.NoError(t, err)
		assert.Equal(t, "អត្ថបទបកប្រែ", out)
	})

	t.Run("empty response is an error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			require.NoError(t, json.NewEncoder(w).Encode(completionResponse("   ")))
		})

		_, err := client.Translate(context.Background(), "text", "km")
		require.Error(t, err)
	})

	t.Run("server error propagates", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		})

		_, err := client.Translate(context.Background(), "text", "km")
		require.Error(t, err)
	})
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"```html\n<p>a</p>\n```", "<p>a</p>"},
		{"```\n<p>a</p>\n```", "<p>a</p>"},
		{"<p>a</p>", "<p>a</p>"},
		{"  <p>a</p>  ", "<p>a</p>"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, stripFences(tt.in))
	}
}

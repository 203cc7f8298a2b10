package claude_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"materialflow/internal/config"
	"materialflow/internal/oracle"
	"materialflow/internal/oracle/claude"
	"materialflow/internal/port"
)

func newTestOracle(endpoint string) *claude.Oracle {
	return claude.NewOracleWithEndpoint(&config.OracleProviderConfig{
		Provider:     "claude",
		APIKey:       "test-claude-key",
		DefaultModel: "claude-sonnet-4-20250514",
		TimeoutSecs:  30,
	}, endpoint)
}

func TestGenerate_PDF(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-claude-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		content := body["messages"].([]interface{})[0].(map[string]interface{})["content"].([]interface{})
		require.Len(t, content, 2)
		assert.Equal(t, "document", content[0].(map[string]interface{})["type"])
		text := content[1].(map[string]interface{})["text"].(string)
		assert.True(t, strings.HasPrefix(text, "extract"))
		assert.Contains(t, text, `"processing_summary"`)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"model":       "claude-sonnet-4-20250514",
			"content":     []map[string]interface{}{{"type": "text", "text": `{"products":[]}`}},
			"stop_reason": "end_turn",
		})
	}))
	defer server.Close()

	out, err := newTestOracle(server.URL).Generate(context.Background(), port.OracleRequest{
		Content:  []byte("%PDF-"),
		MIMEType: "application/pdf",
		Prompt:   "extract",
		Schema:   oracle.ResponseSchema(),
	})

	require.NoError(t, err)
	assert.Equal(t, `{"products":[]}`, out.Text)
	assert.Equal(t, "claude-sonnet-4-20250514", out.Model)
}

func TestGenerate_ImageIgnoresForeignHandle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		content := body["messages"].([]interface{})[0].(map[string]interface{})["content"].([]interface{})
		block := content[0].(map[string]interface{})
		assert.Equal(t, "image", block["type"])
		assert.Equal(t, "image/png", block["source"].(map[string]interface{})["media_type"])

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]interface{}{{"type": "text", "text": `{}`}},
		})
	}))
	defer server.Close()

	out, err := newTestOracle(server.URL).Generate(context.Background(), port.OracleRequest{
		Content:  []byte("png"),
		MIMEType: "image/png",
		Handle:   &port.FileHandle{Provider: "gemini", URI: "https://files/abc"},
	})
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-20250514", out.Model)
}

func TestGenerate_RateLimitedAndTruncated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestOracle(server.URL).Generate(context.Background(), port.OracleRequest{MIMEType: "application/pdf"})
	var rlErr *oracle.RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, 60.0, rlErr.RetryAfter.Seconds())

	truncated := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"content":     []map[string]interface{}{{"type": "text", "text": `{"products":[`}},
			"stop_reason": "max_tokens",
		})
	}))
	defer truncated.Close()

	_, err = newTestOracle(truncated.URL).Generate(context.Background(), port.OracleRequest{MIMEType: "application/pdf"})
	assert.ErrorContains(t, err, "max_tokens")
}

package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"materialflow/internal/config"
	"materialflow/internal/oracle"
	"materialflow/internal/port"
)

const (
	providerName = "openai"
	apiURL       = "https://api.openai.com/v1/chat/completions"
)

// Oracle implements port.ExtractionOracle using the OpenAI Chat Completions API.
// When a response schema is given it is sent as a json_schema response format.
type Oracle struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewOracle creates an OpenAI-based extraction oracle from a provider config.
func NewOracle(cfg *config.OracleProviderConfig) *Oracle {
	return newOracle(cfg, apiURL)
}

// NewOracleWithEndpoint creates an oracle pointing at a custom API endpoint (for testing).
func NewOracleWithEndpoint(cfg *config.OracleProviderConfig, endpoint string) *Oracle {
	return newOracle(cfg, endpoint)
}

func newOracle(cfg *config.OracleProviderConfig, endpoint string) *Oracle {
	model := cfg.DefaultModel
	if model == "" {
		model = "gpt-4o"
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Oracle{
		apiKey:   cfg.APIKey,
		model:    model,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (o *Oracle) Name() string {
	return providerName
}

func (o *Oracle) Generate(ctx context.Context, req port.OracleRequest) (*port.OracleResponse, error) {
	contentBlocks, err := buildContentBlocks(req)
	if err != nil {
		return nil, fmt.Errorf("building content blocks: %w", err)
	}

	responseFormat := map[string]interface{}{"type": "json_object"}
	if req.Schema != nil {
		responseFormat = map[string]interface{}{
			"type": "json_schema",
			"json_schema": map[string]interface{}{
				"name":   "material_extraction",
				"schema": req.Schema,
			},
		}
	}

	reqBody := map[string]interface{}{
		"model":                 o.model,
		"max_completion_tokens": 16384,
		"messages": []map[string]interface{}{
			{
				"role":    "user",
				"content": contentBlocks,
			},
		},
		"response_format": responseFormat,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling openai API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		baseErr := fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, string(respBody))
		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := oracle.ParseRetryAfterHeader(resp.Header.Get("Retry-After"))
			return nil, oracle.NewRateLimitError(providerName, baseErr, retryAfter)
		}
		return nil, baseErr
	}

	return parseResponse(respBody, o.model)
}

func buildContentBlocks(req port.OracleRequest) ([]map[string]interface{}, error) {
	dataURI := fmt.Sprintf("data:%s;base64,%s", req.MIMEType, base64.StdEncoding.EncodeToString(req.Content))
	var blocks []map[string]interface{}

	switch req.MIMEType {
	case "application/pdf":
		blocks = append(blocks, map[string]interface{}{
			"type": "file",
			"file": map[string]interface{}{
				"filename":  "document.pdf",
				"file_data": dataURI,
			},
		})
	case "image/jpeg", "image/png":
		blocks = append(blocks, map[string]interface{}{
			"type":      "image_url",
			"image_url": map[string]interface{}{"url": dataURI},
		})
	default:
		return nil, fmt.Errorf("unsupported content type for extraction: %s", req.MIMEType)
	}

	blocks = append(blocks, map[string]interface{}{
		"type": "text",
		"text": req.Prompt,
	})
	return blocks, nil
}

// apiResponse models the OpenAI Chat Completions API response.
type apiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func parseResponse(body []byte, model string) (*port.OracleResponse, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from API: no choices")
	}

	if resp.Choices[0].FinishReason == "length" {
		return nil, fmt.Errorf("output truncated (finish_reason: length): response exceeded output token limit")
	}

	if resp.Model != "" {
		model = resp.Model
	}
	return &port.OracleResponse{Text: resp.Choices[0].Message.Content, Model: model}, nil
}

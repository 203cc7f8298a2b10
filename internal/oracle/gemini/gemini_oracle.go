package gemini

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
	providerName  = "gemini"
	apiBaseURL    = "https://generativelanguage.googleapis.com/v1beta/models"
	uploadBaseURL = "https://generativelanguage.googleapis.com/upload/v1beta/files"
)

// Oracle implements port.ExtractionOracle and port.FileUploader using the
// Gemini REST API and its Files API.
type Oracle struct {
	apiKey         string
	model          string
	endpoint       string
	uploadEndpoint string
	maxTokens      int
	temperature    float32
	client         *http.Client
}

// NewOracle creates a Gemini-based extraction oracle.
func NewOracle(cfg *config.OracleProviderConfig) *Oracle {
	return newOracle(cfg, "", "")
}

// NewOracleWithEndpoint creates an oracle pointing at custom API endpoints (for testing).
func NewOracleWithEndpoint(cfg *config.OracleProviderConfig, endpoint, uploadEndpoint string) *Oracle {
	return newOracle(cfg, endpoint, uploadEndpoint)
}

func newOracle(cfg *config.OracleProviderConfig, endpoint, uploadEndpoint string) *Oracle {
	model := cfg.DefaultModel
	if model == "" {
		model = "gemini-2.0-flash"
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if endpoint == "" {
		endpoint = fmt.Sprintf("%s/%s:generateContent", apiBaseURL, model)
	}
	if uploadEndpoint == "" {
		uploadEndpoint = uploadBaseURL
	}
	return &Oracle{
		apiKey:         cfg.APIKey,
		model:          model,
		endpoint:       endpoint,
		uploadEndpoint: uploadEndpoint,
		maxTokens:      8000,
		temperature:    0.2,
		client:         &http.Client{Timeout: timeout},
	}
}

func (o *Oracle) Name() string {
	return providerName
}

func (o *Oracle) Generate(ctx context.Context, req port.OracleRequest) (*port.OracleResponse, error) {
	var content map[string]interface{}
	if req.Handle != nil && req.Handle.Provider == providerName {
		content = map[string]interface{}{
			"file_data": map[string]interface{}{
				"mime_type": req.Handle.MIMEType,
				"file_uri":  req.Handle.URI,
			},
		}
	} else {
		mimeType, err := toGeminiMimeType(req.MIMEType)
		if err != nil {
			return nil, err
		}
		content = map[string]interface{}{
			"inline_data": map[string]interface{}{
				"mime_type": mimeType,
				"data":      base64.StdEncoding.EncodeToString(req.Content),
			},
		}
	}

	generationConfig := map[string]interface{}{
		"responseMimeType": "application/json",
		"maxOutputTokens":  o.maxTokens,
		"temperature":      o.temperature,
	}
	if req.Schema != nil {
		generationConfig["responseSchema"] = req.Schema
	}

	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"role": "user",
				"parts": []map[string]interface{}{
					{"text": req.Prompt},
					content,
				},
			},
		},
		"generationConfig": generationConfig,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	respBody, err := o.do(ctx, o.endpoint, "application/json", bodyBytes, nil)
	if err != nil {
		return nil, err
	}
	return parseResponse(respBody, o.model)
}

// Upload sends the document to the Files API and returns its file URI.
func (o *Oracle) Upload(ctx context.Context, documentID, mimeType string, content []byte) (*port.FileHandle, error) {
	headers := map[string]string{
		"X-Goog-Upload-Protocol":  "raw",
		"X-Goog-Upload-File-Name": documentID,
	}
	respBody, err := o.do(ctx, o.uploadEndpoint, mimeType, content, headers)
	if err != nil {
		return nil, fmt.Errorf("uploading file: %w", err)
	}

	var uploaded struct {
		File struct {
			Name     string `json:"name"`
			URI      string `json:"uri"`
			MIMEType string `json:"mimeType"`
		} `json:"file"`
	}
	if err := json.Unmarshal(respBody, &uploaded); err != nil {
		return nil, fmt.Errorf("unmarshaling upload response: %w", err)
	}
	if uploaded.File.URI == "" {
		return nil, fmt.Errorf("file upload failed: no URI returned")
	}
	if uploaded.File.MIMEType == "" {
		uploaded.File.MIMEType = mimeType
	}
	return &port.FileHandle{Provider: providerName, URI: uploaded.File.URI, MIMEType: uploaded.File.MIMEType}, nil
}

func (o *Oracle) do(ctx context.Context, url, contentType string, body []byte, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-goog-api-key", o.apiKey)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling gemini API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		baseErr := fmt.Errorf("gemini API error (status %d): %s", resp.StatusCode, string(respBody))
		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := oracle.ParseRetryAfterHeader(resp.Header.Get("Retry-After"))
			return nil, oracle.NewRateLimitError(providerName, baseErr, retryAfter)
		}
		return nil, baseErr
	}
	return respBody, nil
}

func toGeminiMimeType(contentType string) (string, error) {
	switch contentType {
	case "application/pdf", "image/jpeg", "image/png":
		return contentType, nil
	default:
		return "", fmt.Errorf("unsupported content type for extraction: %s", contentType)
	}
}

// geminiResponse models the Gemini API response.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	ModelVersion string `json:"modelVersion"`
}

func parseResponse(body []byte, model string) (*port.OracleResponse, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from API: no candidates")
	}
	if resp.Candidates[0].FinishReason == "MAX_TOKENS" {
		return nil, fmt.Errorf("output truncated (finishReason: MAX_TOKENS): response exceeded output token limit")
	}
	if len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from API: no parts")
	}

	if resp.ModelVersion != "" {
		model = resp.ModelVersion
	}
	return &port.OracleResponse{
		Text:  resp.Candidates[0].Content.Parts[0].Text,
		Model: model,
	}, nil
}

// Package vertex implements the extraction oracle on Vertex AI. Two-phase
// calls stage the document in Cloud Storage and reference it by gs:// URI.
package vertex

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"materialflow/internal/config"
	"materialflow/internal/oracle"
	"materialflow/internal/port"
)

const providerName = "vertex"

// Stager puts document content where Vertex AI can read it.
type Stager interface {
	PutIfAbsent(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Oracle implements port.ExtractionOracle on a Vertex AI generative model.
type Oracle struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
}

// UploadingOracle adds two-phase support through a Stager.
type UploadingOracle struct {
	*Oracle
	stager Stager
}

// New creates a Vertex AI oracle. When stager is non-nil the returned oracle
// also implements port.FileUploader.
func New(ctx context.Context, cfg *config.OracleProviderConfig, gcp *config.GCPConfig, stager Stager) (port.ExtractionOracle, error) {
	if gcp.ProjectID == "" {
		return nil, fmt.Errorf("vertex oracle requires gcp.project_id")
	}
	client, err := genai.NewClient(ctx, gcp.ProjectID, gcp.Location)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "gemini-1.5-pro"
	}
	o := &Oracle{client: client, model: model, maxTokens: 8000, temperature: 0.2}
	if stager != nil {
		return &UploadingOracle{Oracle: o, stager: stager}, nil
	}
	return o, nil
}

func (o *Oracle) Name() string {
	return providerName
}

// Close releases the underlying client.
func (o *Oracle) Close() error {
	if o.client != nil {
		return o.client.Close()
	}
	return nil
}

func (o *Oracle) Generate(ctx context.Context, req port.OracleRequest) (*port.OracleResponse, error) {
	model := o.client.GenerativeModel(o.model)
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr(o.temperature),
		MaxOutputTokens:  genai.Ptr(o.maxTokens),
	}
	if req.Schema != nil {
		model.GenerationConfig.ResponseSchema = toSchema(req.Schema)
	}

	var doc genai.Part
	if req.Handle != nil && req.Handle.Provider == providerName {
		doc = genai.FileData{MIMEType: req.Handle.MIMEType, FileURI: req.Handle.URI}
	} else {
		doc = genai.Blob{MIMEType: req.MIMEType, Data: req.Content}
	}

	resp, err := model.GenerateContent(ctx, doc, genai.Text(req.Prompt))
	if err != nil {
		if status.Code(err) == codes.ResourceExhausted {
			return nil, oracle.NewRateLimitError(providerName, err, 0)
		}
		return nil, fmt.Errorf("vertex generate content: %w", err)
	}
	return parseResponse(resp, o.model)
}

// Upload stages the document under uploads/<documentID> and returns its gs:// handle.
func (o *UploadingOracle) Upload(ctx context.Context, documentID, mimeType string, content []byte) (*port.FileHandle, error) {
	uri, err := o.stager.PutIfAbsent(ctx, "uploads/"+documentID+".pdf", mimeType, content)
	if err != nil {
		return nil, fmt.Errorf("staging document for vertex: %w", err)
	}
	return &port.FileHandle{Provider: providerName, URI: uri, MIMEType: mimeType}, nil
}

func parseResponse(resp *genai.GenerateContentResponse, model string) (*port.OracleResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("empty response from vertex")
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonMaxTokens {
		return nil, fmt.Errorf("vertex response truncated at max tokens")
	}

	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return &port.OracleResponse{Text: sb.String(), Model: model}, nil
}

var schemaTypes = map[string]genai.Type{
	"string":  genai.TypeString,
	"number":  genai.TypeNumber,
	"integer": genai.TypeInteger,
	"boolean": genai.TypeBoolean,
	"array":   genai.TypeArray,
	"object":  genai.TypeObject,
}

// toSchema converts the OpenAPI-style map schema into the SDK's typed form.
func toSchema(m map[string]interface{}) *genai.Schema {
	s := &genai.Schema{}
	if t, ok := m["type"].(string); ok {
		s.Type = schemaTypes[t]
	}
	if n, ok := m["nullable"].(bool); ok {
		s.Nullable = n
	}
	if items, ok := m["items"].(map[string]interface{}); ok {
		s.Items = toSchema(items)
	}
	if props, ok := m["properties"].(map[string]interface{}); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]interface{}); ok {
				s.Properties[name] = toSchema(pm)
			}
		}
	}
	if req, ok := m["required"].([]string); ok {
		s.Required = req
	}
	return s
}

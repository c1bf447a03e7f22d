package embedding

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/genai"
)

const (
	// DefaultGeminiModel is a purpose-built embedding model.
	DefaultGeminiModel = "text-embedding-004"
	providerGemini     = "gemini"
)

/*
ErrMissingAPIKey is returned by NewGemini when no key is configured.
*/
var ErrMissingAPIKey = errors.New("gemini: missing api key")

/*
GeminiConfig configures the Gemini embedding provider.
*/
type GeminiConfig struct {
	APIKey     string
	Model      string
	Dimensions int
	// BaseURL overrides the API endpoint. Empty uses the SDK default.
	BaseURL    string
	HTTPClient *http.Client
}

/*
Gemini embeds text with the Gemini embedding endpoint.
*/
type Gemini struct {
	client *genai.Client
	model  string
	dims   int
}

/*
NewGemini creates a Gemini provider.
*/
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, NewProviderError(providerGemini, err)
	}

	return &Gemini{client: client, model: cfg.Model, dims: cfg.Dimensions}, nil
}

/*
Embed requests a single embedding for text.
*/
func (g *Gemini) Embed(ctx context.Context, text string) ([]float64, error) {
	config := &genai.EmbedContentConfig{}
	if g.dims > 0 {
		d := int32(g.dims)
		config.OutputDimensionality = &d
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.model, genai.Text(text), config)
	if err != nil {
		return nil, NewProviderError(providerGemini, err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, NewProviderError(providerGemini, errors.New("empty embedding in response"))
	}

	values := resp.Embeddings[0].Values
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out, nil
}

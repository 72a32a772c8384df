package embeddings

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Gemini embeds text with Google's Gemini embedding models.
type Gemini struct {
	Model  string
	client *genai.Client
}

// NewGemini returns a Gemini provider. model defaults to gemini-embedding-001.
func NewGemini(model, apiKey string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini embed: API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embed: create client: %w", err)
	}
	return &Gemini{Model: model, client: client}, nil
}

// Embed embeds a single text.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch sends all texts in one EmbedContent call.
func (g *Gemini) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	result, err := g.client.Models.EmbedContent(ctx, g.Model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embed: expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}
	out := make([][]float32, len(texts))
	for i, e := range result.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}

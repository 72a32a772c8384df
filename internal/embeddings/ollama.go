package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-ports/comicshelf/internal/httpjson"
)

// Ollama calls a local Ollama server for embeddings.
type Ollama struct {
	Model   string
	BaseURL string
	client  *http.Client
}

// NewOllama returns an Ollama provider with a 30s timeout.
func NewOllama(model, baseURL string) *Ollama {
	return &Ollama{
		Model:   model,
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Embed embeds a single text.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch calls POST /api/embed, which accepts a list of inputs and
// returns one vector per input.
func (o *Ollama) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := map[string]any{
		"model": o.Model,
		"input": texts,
	}
	var resp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := httpjson.Do(ctx, o.client, http.MethodPost, o.BaseURL+"/api/embed", nil, reqBody, &resp); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}
	for i, v := range resp.Embeddings {
		if len(v) == 0 {
			return nil, fmt.Errorf("ollama embed: empty embedding for input %d", i)
		}
	}
	return resp.Embeddings, nil
}

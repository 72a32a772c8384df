// Package embeddings turns page analysis text into vectors for semantic search.
package embeddings

import (
	"context"
	"fmt"

	"github.com/go-ports/comicshelf/internal/config"
)

// Provider is the interface for embedding models.
type Provider interface {
	// Embed returns a float32 vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns vectors for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

const openRouterBase = "https://openrouter.ai/api/v1"

var defaultModels = map[string]string{
	"ollama":     "nomic-embed-text",
	"openai":     "text-embedding-3-small",
	"openrouter": "openai/text-embedding-3-small",
	"gemini":     "gemini-embedding-001",
}

// ModelFor returns the embedding model the configured provider will use.
func ModelFor(e config.EmbeddingConfig) string {
	if e.Model != "" {
		return e.Model
	}
	return defaultModels[e.Provider]
}

// NewProvider constructs a Provider from the given config.
// Returns (nil, nil) when the provider is "" or "none".
func NewProvider(cfg *config.LibraryConfig) (Provider, error) {
	e := cfg.Embedding
	model := ModelFor(e)
	switch e.Provider {
	case "ollama":
		baseURL := e.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return NewOllama(model, baseURL), nil

	case "openai":
		return NewOpenAI(model, e.APIKey, e.BaseURL), nil

	case "openrouter":
		return NewOpenAI(model, e.APIKey, openRouterBase), nil

	case "gemini":
		g, err := NewGemini(model, e.APIKey)
		if err != nil {
			return nil, err
		}
		return g, nil

	case "", "none":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", e.Provider)
	}
}

// EmbedChunked embeds texts in batches of at most size, calling progress
// after each batch with the number embedded so far. A size below one sends
// everything in a single batch.
func EmbedChunked(ctx context.Context, p Provider, texts []string, size int, progress func(done int)) ([][]float32, error) {
	if size < 1 {
		size = len(texts)
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		vecs, err := p.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embed batch %d-%d: got %d vectors", start, end, len(vecs))
		}
		out = append(out, vecs...)
		if progress != nil {
			progress(len(out))
		}
	}
	return out, nil
}

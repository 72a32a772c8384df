package embeddings_test

import (
	"context"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/go-ports/comicshelf/internal/config"
	"github.com/go-ports/comicshelf/internal/embeddings"
)

// cfg returns a LibraryConfig with the given embedding provider set.
func cfg(provider, model, apiKey, baseURL string) *config.LibraryConfig {
	c := config.Default()
	c.Embedding.Provider = provider
	c.Embedding.Model = model
	c.Embedding.APIKey = apiKey
	c.Embedding.BaseURL = baseURL
	return c
}

func TestNewProvider_HappyPath(t *testing.T) {
	c := qt.New(t)

	for _, p := range []string{"", "none"} {
		c.Run("disabled provider "+p, func(c *qt.C) {
			ep, err := embeddings.NewProvider(cfg(p, "", "", ""))
			c.Assert(err, qt.IsNil)
			c.Assert(ep, qt.IsNil)
		})
	}

	c.Run("ollama defaults its base URL", func(c *qt.C) {
		ep, err := embeddings.NewProvider(cfg("ollama", "nomic-embed-text", "", ""))
		c.Assert(err, qt.IsNil)
		c.Assert(ep.(*embeddings.Ollama).BaseURL, qt.Equals, "http://localhost:11434")
	})

	c.Run("openai honours a custom base URL", func(c *qt.C) {
		ep, err := embeddings.NewProvider(cfg("openai", "text-embedding-3-small", "sk", "http://proxy/v1/"))
		c.Assert(err, qt.IsNil)
		c.Assert(ep.(*embeddings.OpenAI).BaseURL, qt.Equals, "http://proxy/v1")
	})

	c.Run("openrouter uses its own endpoint", func(c *qt.C) {
		ep, err := embeddings.NewProvider(cfg("openrouter", "some-model", "or-key", ""))
		c.Assert(err, qt.IsNil)
		c.Assert(ep.(*embeddings.OpenAI).BaseURL, qt.Equals, "https://openrouter.ai/api/v1")
	})

	c.Run("missing model falls back per provider", func(c *qt.C) {
		ep, err := embeddings.NewProvider(cfg("openai", "", "sk", ""))
		c.Assert(err, qt.IsNil)
		c.Assert(ep.(*embeddings.OpenAI).Model, qt.Equals, "text-embedding-3-small")

		ep, err = embeddings.NewProvider(cfg("ollama", "", "", ""))
		c.Assert(err, qt.IsNil)
		c.Assert(ep.(*embeddings.Ollama).Model, qt.Equals, "nomic-embed-text")

		ep, err = embeddings.NewProvider(cfg("openrouter", "", "or-key", ""))
		c.Assert(err, qt.IsNil)
		c.Assert(ep.(*embeddings.OpenAI).Model, qt.Equals, "openai/text-embedding-3-small")
	})

	c.Run("gemini with key", func(c *qt.C) {
		ep, err := embeddings.NewProvider(cfg("gemini", "", "g-key", ""))
		c.Assert(err, qt.IsNil)
		c.Assert(ep.(*embeddings.Gemini).Model, qt.Equals, "gemini-embedding-001")
	})
}

func TestNewProvider_FailurePath(t *testing.T) {
	c := qt.New(t)

	c.Run("unknown provider returns error", func(c *qt.C) {
		ep, err := embeddings.NewProvider(cfg("unsupported-provider", "", "", ""))
		c.Assert(err, qt.ErrorMatches, "unknown embedding provider: unsupported-provider")
		c.Assert(ep, qt.IsNil)
	})

	c.Run("gemini without key returns error", func(c *qt.C) {
		ep, err := embeddings.NewProvider(cfg("gemini", "", "", ""))
		c.Assert(err, qt.IsNotNil)
		c.Assert(ep, qt.IsNil)
	})
}

// countingProvider returns a one-element vector holding each text's length
// and records batch sizes.
type countingProvider struct {
	batches []int
	failOn  int
}

func (p *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (p *countingProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.batches = append(p.batches, len(texts))
	if p.failOn > 0 && len(p.batches) == p.failOn {
		return nil, errors.New("boom")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func TestEmbedChunked(t *testing.T) {
	c := qt.New(t)
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}

	c.Run("batches preserve order and report progress", func(c *qt.C) {
		p := &countingProvider{}
		var progress []int
		got, err := embeddings.EmbedChunked(context.Background(), p, texts, 2, func(done int) {
			progress = append(progress, done)
		})
		c.Assert(err, qt.IsNil)
		c.Assert(got, qt.DeepEquals, [][]float32{{1}, {2}, {3}, {4}, {5}})
		c.Assert(p.batches, qt.DeepEquals, []int{2, 2, 1})
		c.Assert(progress, qt.DeepEquals, []int{2, 4, 5})
	})

	c.Run("zero size sends one batch", func(c *qt.C) {
		p := &countingProvider{}
		_, err := embeddings.EmbedChunked(context.Background(), p, texts, 0, nil)
		c.Assert(err, qt.IsNil)
		c.Assert(p.batches, qt.DeepEquals, []int{5})
	})

	c.Run("a failing batch aborts", func(c *qt.C) {
		p := &countingProvider{failOn: 2}
		_, err := embeddings.EmbedChunked(context.Background(), p, texts, 2, nil)
		c.Assert(err, qt.ErrorMatches, "embed batch 2-4: boom")
	})
}

package embeddings_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/go-ports/comicshelf/internal/embeddings"
)

// newOllamaEmbedServer answers /api/embed with vec repeated once per input
// and records the request path.
func newOllamaEmbedServer(t *testing.T, vec []float32, path *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if path != nil {
			*path = r.URL.Path
		}
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		out := make([][]float32, len(req.Input))
		for i := range out {
			out[i] = vec
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": out})
	}))
}

func TestOllamaEmbed_HappyPath(t *testing.T) {
	c := qt.New(t)

	var path string
	srv := newOllamaEmbedServer(t, []float32{0.1, 0.5, 0.9}, &path)
	defer srv.Close()

	o := embeddings.NewOllama("test-model", srv.URL+"/")
	got, err := o.Embed(context.Background(), "a duel on a rooftop")
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, []float32{0.1, 0.5, 0.9})
	c.Assert(path, qt.Equals, "/api/embed")
}

func TestOllamaEmbedBatch_HappyPath(t *testing.T) {
	c := qt.New(t)

	fixed := []float32{1, 2}
	srv := newOllamaEmbedServer(t, fixed, nil)
	defer srv.Close()

	o := embeddings.NewOllama("test-model", srv.URL)
	got, err := o.EmbedBatch(context.Background(), []string{"alpha", "beta", "gamma"})
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, [][]float32{fixed, fixed, fixed})
}

func TestOllamaEmbed_FailurePath(t *testing.T) {
	c := qt.New(t)

	c.Run("non-2xx response returns error", func(c *qt.C) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}))
		defer srv.Close()

		got, err := embeddings.NewOllama("m", srv.URL).Embed(context.Background(), "hello")
		c.Assert(err, qt.ErrorMatches, "ollama embed: HTTP 404.*")
		c.Assert(got, qt.IsNil)
	})

	c.Run("empty vector returns error", func(c *qt.C) {
		srv := newOllamaEmbedServer(t, make([]float32, 0), nil)
		defer srv.Close()

		got, err := embeddings.NewOllama("m", srv.URL).Embed(context.Background(), "hello")
		c.Assert(err, qt.ErrorMatches, ".*empty embedding.*")
		c.Assert(got, qt.IsNil)
	})

	c.Run("count mismatch returns error", func(c *qt.C) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"embeddings":[[1,2]]}`))
		}))
		defer srv.Close()

		_, err := embeddings.NewOllama("m", srv.URL).EmbedBatch(context.Background(), []string{"a", "b"})
		c.Assert(err, qt.ErrorMatches, ".*expected 2 embeddings, got 1.*")
	})
}

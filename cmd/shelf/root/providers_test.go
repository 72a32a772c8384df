package rootcmd_test

// Provider tests run the analyze → embed → search → reindex → covers
// pipeline through the CLI against mock vision and embedding servers, so no
// real external API is called.

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	qt "github.com/frankban/quicktest"
)

// fixedEmbeddingVec is returned for every input by the mock embedding servers.
var fixedEmbeddingVec = []float32{0.1, 0.2, 0.3, 0.4}

// mockAnswer satisfies both the page report and the cover verdict decoders.
const mockAnswer = `{"summary":"A lighthouse keeper spots a sea serpent.","characters":["Mara"],` +
	`"dialogue":["Lights out!"],"mood":"eerie","match":true,"confidence":0.8,"reason":"a lighthouse at night"}`

// newVisionMockServer mimics an OpenAI-compatible chat completions endpoint.
// calls counts requests.
func newVisionMockServer(tb testing.TB, calls *atomic.Int32) *httptest.Server {
	tb.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": mockAnswer}}},
		})
	}))
	tb.Cleanup(srv.Close)
	return srv
}

// newOllamaMockServer mimics POST /api/embed.
func newOllamaMockServer(tb testing.TB) *httptest.Server {
	tb.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		out := make([][]float32, len(req.Input))
		for i := range out {
			out[i] = fixedEmbeddingVec
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": out})
	})
	srv := httptest.NewServer(mux)
	tb.Cleanup(srv.Close)
	return srv
}

// newOpenAIMockServer mimics POST /embeddings, answering in reverse order to
// exercise index placement.
func newOpenAIMockServer(tb testing.TB) *httptest.Server {
	tb.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{"index": i, "embedding": fixedEmbeddingVec})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	})
	srv := httptest.NewServer(mux)
	tb.Cleanup(srv.Close)
	return srv
}

// writeProviderConfig points the library at the mock servers.
func writeProviderConfig(t *testing.T, home, visionURL, embProvider, embURL string) {
	t.Helper()
	cfg := fmt.Sprintf(`vision:
  provider: openai
  model: mock-vision
  base_url: %s
  api_key: vision-test-key
embedding:
  provider: %s
  model: test-model
  base_url: %s
  api_key: emb-test-key
search:
  concurrency: 2
`, visionURL, embProvider, embURL)
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestProviderPipeline(t *testing.T) {
	cases := []struct {
		provider string
		startSrv func(tb testing.TB) *httptest.Server
	}{
		{"ollama", newOllamaMockServer},
		{"openai", newOpenAIMockServer},
	}

	for _, tc := range cases {
		t.Run(tc.provider, func(t *testing.T) {
			c := qt.New(t)
			home, id := importComic(t, "Lighthouse", 2)

			var visionCalls atomic.Int32
			vision := newVisionMockServer(t, &visionCalls)
			emb := tc.startSrv(t)
			writeProviderConfig(t, home, vision.URL, tc.provider, emb.URL)

			out, err := runCmd(t, "--home", home, "analyze", id, "--notes")
			c.Assert(err, qt.IsNil)
			c.Assert(out, qt.Contains, "Analysing with openai/mock-vision")
			c.Assert(out, qt.Contains, "Analysed 2 pages, skipped 0, failed 0")
			c.Assert(out, qt.Contains, filepath.Join(home, "notes", "lighthouse.md"))
			c.Assert(visionCalls.Load(), qt.Equals, int32(2))

			out, err = runCmd(t, "--home", home, "analyze", id)
			c.Assert(err, qt.IsNil)
			c.Assert(out, qt.Contains, "skipped 2")
			c.Assert(visionCalls.Load(), qt.Equals, int32(2))

			out, err = runCmd(t, "--home", home, "search", "serpent", "--semantic", "always")
			c.Assert(err, qt.IsNil)
			c.Assert(out, qt.Contains, "Results (2 found)")
			c.Assert(out, qt.Contains, "Lighthouse, page 1")
			c.Assert(out, qt.Contains, "Characters: Mara")

			out, err = runCmd(t, "--home", home, "reindex")
			c.Assert(err, qt.IsNil)
			c.Assert(out, qt.Contains, "Re-indexed 2 page analyses with test-model (4 dims)")

			out, err = runCmd(t, "--home", home, "covers", "lighthouse at night")
			c.Assert(err, qt.IsNil)
			c.Assert(out, qt.Contains, id[:8])
			c.Assert(out, qt.Contains, "a lighthouse at night")
			c.Assert(out, qt.Contains, "1 of 1 covers checked matched")
			c.Assert(visionCalls.Load(), qt.Equals, int32(3))

			out, err = runCmd(t, "--home", home, "config")
			c.Assert(err, qt.IsNil)
			c.Assert(out, qt.Not(qt.Contains), "vision-test-key")
			c.Assert(out, qt.Not(qt.Contains), "emb-test-key")
		})
	}
}

func TestProviderPipeline_VisionDown(t *testing.T) {
	c := qt.New(t)
	home, id := importComic(t, "Offline", 2)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid key vision-test-key", http.StatusUnauthorized)
	}))
	t.Cleanup(down.Close)
	writeProviderConfig(t, home, down.URL, "none", "")

	out, err := runCmd(t, "--home", home, "analyze", id)
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.Contains, "Analysed 0 pages, skipped 0, failed 2")
	c.Assert(out, qt.Contains, "warning: page 1: ")
	c.Assert(out, qt.Contains, "warning: page 2: ")
	c.Assert(out, qt.Not(qt.Contains), "warning: page 0: ")
	c.Assert(out, qt.Contains, "HTTP 401")
	c.Assert(out, qt.Not(qt.Contains), "vision-test-key")

	_, err = runCmd(t, "--home", home, "covers", "offline")
	c.Assert(err, qt.ErrorMatches, ".*all 1 cover checks failed.*")
}

func TestCovers_IncludeMissesCountsOnlyMatches(t *testing.T) {
	c := qt.New(t)
	home, id := importComic(t, "Lighthouse", 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{
				"role":    "assistant",
				"content": `{"match":false,"confidence":0.9,"reason":"a daytime beach"}`,
			}}},
		})
	}))
	t.Cleanup(srv.Close)
	writeProviderConfig(t, home, srv.URL, "none", "")

	out, err := runCmd(t, "--home", home, "covers", "lighthouse", "--include-misses")
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.Contains, id[:8])
	c.Assert(out, qt.Contains, "miss")
	c.Assert(out, qt.Contains, "0 of 1 covers checked matched")

	out, err = runCmd(t, "--home", home, "covers", "lighthouse")
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.Contains, "No matching covers (1 checked).")
}

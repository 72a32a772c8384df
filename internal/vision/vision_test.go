package vision_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/go-ports/comicshelf/internal/config"
	"github.com/go-ports/comicshelf/internal/vision"
)

var testImage = vision.Image{Data: []byte("\x89PNG fake"), MimeType: "image/png"}

// newChatServer answers every chat completion with content and records the
// last request body into *got.
func newChatServer(t *testing.T, content string, got *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got != nil {
			_ = json.NewDecoder(r.Body).Decode(got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
		})
	}))
}

// ---------------------------------------------------------------------------
// OpenAICompat
// ---------------------------------------------------------------------------

func TestOpenAICompatAnalyzePage_HappyPath(t *testing.T) {
	c := qt.New(t)

	var body map[string]any
	srv := newChatServer(t, "```json\n{\"summary\":\"Two knights duel.\",\"characters\":[\"Sir Ava\"],\"dialogue\":[\"Yield!\"],\"mood\":\"tense\"}\n```", &body)
	defer srv.Close()

	a, err := vision.NewOpenAICompat("vision-model", "sk-test", srv.URL, "", time.Second)
	c.Assert(err, qt.IsNil)

	rep, err := a.AnalyzePage(context.Background(), testImage)
	c.Assert(err, qt.IsNil)
	c.Assert(rep.Summary, qt.Equals, "Two knights duel.")
	c.Assert(rep.Characters, qt.DeepEquals, []string{"Sir Ava"})
	c.Assert(rep.Dialogue, qt.DeepEquals, []string{"Yield!"})
	c.Assert(a.Model(), qt.Equals, "vision-model")

	c.Assert(body["model"], qt.Equals, "vision-model")
	raw, _ := json.Marshal(body["messages"])
	c.Assert(string(raw), qt.Contains, "data:image/png;base64,")
}

func TestOpenAICompatMatchCover_HappyPath(t *testing.T) {
	c := qt.New(t)

	srv := newChatServer(t, `{"match": true, "confidence": 0.8, "reason": "a robot in the rain"}`, nil)
	defer srv.Close()

	a, err := vision.NewOpenAICompat("m", "", srv.URL, "", 0)
	c.Assert(err, qt.IsNil)
	v, err := a.MatchCover(context.Background(), testImage, "robot in rain")
	c.Assert(err, qt.IsNil)
	c.Assert(v.Match, qt.IsTrue)
	c.Assert(v.Confidence, qt.Equals, 0.8)
	c.Assert(v.Reason, qt.Equals, "a robot in the rain")
}

func TestOpenAICompat_CustomResponsePath(t *testing.T) {
	c := qt.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"output":{"text":"{\"match\":false,\"confidence\":0.1}"}}`))
	}))
	defer srv.Close()

	a, err := vision.NewOpenAICompat("m", "", srv.URL, "$.output.text", 0)
	c.Assert(err, qt.IsNil)
	v, err := a.MatchCover(context.Background(), testImage, "anything")
	c.Assert(err, qt.IsNil)
	c.Assert(v.Match, qt.IsFalse)
}

func TestOpenAICompat_FailurePath(t *testing.T) {
	c := qt.New(t)

	c.Run("non-2xx response returns error", func(c *qt.C) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		a, err := vision.NewOpenAICompat("m", "", srv.URL, "", 0)
		c.Assert(err, qt.IsNil)
		_, err = a.AnalyzePage(context.Background(), testImage)
		c.Assert(err, qt.ErrorMatches, ".*HTTP 429.*")
	})

	c.Run("answer that is not JSON returns error", func(c *qt.C) {
		srv := newChatServer(t, "I think it is a cat.", nil)
		defer srv.Close()

		a, err := vision.NewOpenAICompat("m", "", srv.URL, "", 0)
		c.Assert(err, qt.IsNil)
		_, err = a.MatchCover(context.Background(), testImage, "cat")
		c.Assert(err, qt.ErrorMatches, ".*decode cover verdict.*")
	})

	c.Run("response without choices returns error", func(c *qt.C) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}))
		defer srv.Close()

		a, err := vision.NewOpenAICompat("m", "", srv.URL, "", 0)
		c.Assert(err, qt.IsNil)
		_, err = a.AnalyzePage(context.Background(), testImage)
		c.Assert(err, qt.IsNotNil)
	})

	c.Run("missing model is rejected", func(c *qt.C) {
		_, err := vision.NewOpenAICompat("", "", "http://localhost", "", 0)
		c.Assert(err, qt.ErrorMatches, ".*model is required.*")
	})
}

// ---------------------------------------------------------------------------
// NewAnalyzer
// ---------------------------------------------------------------------------

func visionCfg(provider, apiKey string) *config.LibraryConfig {
	cfg := config.Default()
	cfg.Vision.Provider = provider
	cfg.Vision.APIKey = apiKey
	return cfg
}

func TestNewAnalyzer(t *testing.T) {
	c := qt.New(t)

	for _, p := range []string{"", "none"} {
		c.Run("disabled provider "+p, func(c *qt.C) {
			a, err := vision.NewAnalyzer(visionCfg(p, ""))
			c.Assert(err, qt.IsNil)
			c.Assert(a, qt.IsNil)
		})
	}

	for _, p := range []string{"openai", "openrouter", "ollama"} {
		c.Run("compatible provider "+p, func(c *qt.C) {
			a, err := vision.NewAnalyzer(visionCfg(p, "key"))
			c.Assert(err, qt.IsNil)
			c.Assert(a, qt.IsNotNil)
		})
	}

	c.Run("gemini with key", func(c *qt.C) {
		a, err := vision.NewAnalyzer(visionCfg("gemini", "test-key"))
		c.Assert(err, qt.IsNil)
		c.Assert(a.Model(), qt.Equals, "gemini-2.5-flash")
	})

	c.Run("each provider gets its own default model", func(c *qt.C) {
		for provider, want := range map[string]string{
			"openai":     "gpt-4o-mini",
			"openrouter": "google/gemini-2.5-flash",
			"ollama":     "llava",
		} {
			a, err := vision.NewAnalyzer(visionCfg(provider, "key"))
			c.Assert(err, qt.IsNil)
			c.Assert(a.Model(), qt.Equals, want, qt.Commentf("provider %s", provider))
		}
	})

	c.Run("configured model wins", func(c *qt.C) {
		cfg := visionCfg("openai", "key")
		cfg.Vision.Model = "gpt-4.1"
		a, err := vision.NewAnalyzer(cfg)
		c.Assert(err, qt.IsNil)
		c.Assert(a.Model(), qt.Equals, "gpt-4.1")
		c.Assert(vision.ModelFor(cfg.Vision), qt.Equals, "gpt-4.1")
	})

	c.Run("gemini without key", func(c *qt.C) {
		a, err := vision.NewAnalyzer(visionCfg("gemini", ""))
		c.Assert(err, qt.ErrorMatches, ".*API key is required.*")
		c.Assert(a, qt.IsNil)
	})

	c.Run("unknown provider", func(c *qt.C) {
		a, err := vision.NewAnalyzer(visionCfg("crystal-ball", ""))
		c.Assert(err, qt.IsNotNil)
		c.Assert(strings.Contains(err.Error(), "crystal-ball"), qt.IsTrue)
		c.Assert(a, qt.IsNil)
	})
}

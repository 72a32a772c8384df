// Package vision describes comic pages and judges cover matches with a
// multimodal model.
package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-ports/comicshelf/internal/config"
)

// Image is an encoded page image handed to a model.
type Image struct {
	Data     []byte
	MimeType string
}

// PageReport is a model's description of one page.
type PageReport struct {
	Summary    string   `json:"summary"`
	Characters []string `json:"characters"`
	Dialogue   []string `json:"dialogue"`
	Mood       string   `json:"mood"`
}

// CoverVerdict is a model's judgement of whether a cover fits a description.
type CoverVerdict struct {
	Match      bool    `json:"match"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Analyzer is the interface for multimodal page models.
type Analyzer interface {
	// AnalyzePage describes the contents of a page.
	AnalyzePage(ctx context.Context, img Image) (*PageReport, error)
	// MatchCover decides whether a cover matches a natural-language description.
	MatchCover(ctx context.Context, img Image, query string) (*CoverVerdict, error)
	// Model returns the model identifier recorded alongside results.
	Model() string
}

const defaultOpenAIBase = "https://api.openai.com/v1"

var defaultModels = map[string]string{
	"gemini":     "gemini-2.5-flash",
	"openai":     "gpt-4o-mini",
	"openrouter": "google/gemini-2.5-flash",
	"ollama":     "llava",
}

// ModelFor returns the model the configured provider will use: the
// configured model, or the provider's default when none is set.
func ModelFor(v config.VisionConfig) string {
	if v.Model != "" {
		return v.Model
	}
	return defaultModels[v.Provider]
}

// NewAnalyzer constructs an Analyzer from the given config.
// Returns (nil, nil) when the provider is "" or "none".
func NewAnalyzer(cfg *config.LibraryConfig) (Analyzer, error) {
	v := cfg.Vision
	model := ModelFor(v)
	timeout := time.Duration(v.TimeoutSeconds) * time.Second

	switch v.Provider {
	case "gemini":
		g, err := NewGemini(model, v.APIKey, v.BaseURL, timeout)
		if err != nil {
			return nil, err
		}
		return g, nil

	case "openai":
		base := v.BaseURL
		if base == "" {
			base = defaultOpenAIBase
		}
		return newCompat(model, v.APIKey, base, v.ResponsePath, timeout)

	case "openrouter":
		const openRouterBase = "https://openrouter.ai/api/v1"
		return newCompat(model, v.APIKey, openRouterBase, v.ResponsePath, timeout)

	case "ollama":
		base := v.BaseURL
		if base == "" {
			base = "http://localhost:11434/v1"
		}
		return newCompat(model, "", base, v.ResponsePath, timeout)

	case "", "none":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown vision provider: %s", v.Provider)
	}
}

// newCompat keeps a failed constructor from yielding a non-nil Analyzer.
func newCompat(model, apiKey, baseURL, responsePath string, timeout time.Duration) (Analyzer, error) {
	o, err := NewOpenAICompat(model, apiKey, baseURL, responsePath, timeout)
	if err != nil {
		return nil, err
	}
	return o, nil
}

const pagePrompt = `You are cataloguing a comic book page.
Describe the page and answer with a single JSON object, no prose:
{"summary": "<two or three sentences on what happens>",
 "characters": ["<names or short descriptions of characters shown>"],
 "dialogue": ["<each legible speech balloon or caption, verbatim>"],
 "mood": "<one or two words>"}`

func coverPrompt(query string) string {
	return fmt.Sprintf(`You are looking at the cover of a comic book.
Does this cover match the description: %q?
Answer with a single JSON object, no prose:
{"match": true|false, "confidence": <number between 0 and 1>, "reason": "<one short sentence>"}`, query)
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag, that models often wrap JSON answers in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

func decodeReport(text string) (*PageReport, error) {
	var r PageReport
	if err := json.Unmarshal([]byte(stripFences(text)), &r); err != nil {
		return nil, fmt.Errorf("decode page report: %w", err)
	}
	if r.Characters == nil {
		r.Characters = make([]string, 0)
	}
	if r.Dialogue == nil {
		r.Dialogue = make([]string, 0)
	}
	r.Summary = strings.TrimSpace(r.Summary)
	r.Mood = strings.TrimSpace(r.Mood)
	return &r, nil
}

func decodeVerdict(text string) (*CoverVerdict, error) {
	var v CoverVerdict
	if err := json.Unmarshal([]byte(stripFences(text)), &v); err != nil {
		return nil, fmt.Errorf("decode cover verdict: %w", err)
	}
	v.Confidence = clamp01(v.Confidence)
	return &v, nil
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yalp/jsonpath"

	"github.com/go-ports/comicshelf/internal/httpjson"
)

// DefaultResponsePath locates the answer text in a chat completions response.
const DefaultResponsePath = "$.choices[0].message.content"

// OpenAICompat calls any OpenAI-compatible chat completions endpoint that
// accepts image_url content parts (OpenAI, OpenRouter, Ollama, llama.cpp).
type OpenAICompat struct {
	model   string
	APIKey  string // #nosec G117 -- APIKey is an intentional field name for the provider authentication token
	BaseURL string
	answer  jsonpath.FilterFunc
	client  *http.Client
}

// NewOpenAICompat returns an analyzer for the chat completions API at baseURL.
// responsePath is a JSONPath into the response body; empty uses
// DefaultResponsePath. A zero timeout means 60 seconds.
func NewOpenAICompat(model, apiKey, baseURL, responsePath string, timeout time.Duration) (*OpenAICompat, error) {
	if model == "" {
		return nil, fmt.Errorf("openai-compatible vision: model is required")
	}
	if responsePath == "" {
		responsePath = DefaultResponsePath
	}
	answer, err := jsonpath.Prepare(responsePath)
	if err != nil {
		return nil, fmt.Errorf("openai-compatible vision: response path %q: %w", responsePath, err)
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAICompat{
		model:   model,
		APIKey:  apiKey,
		BaseURL: strings.TrimRight(baseURL, "/"),
		answer:  answer,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Model returns the configured model name.
func (o *OpenAICompat) Model() string { return o.model }

// AnalyzePage describes a page.
func (o *OpenAICompat) AnalyzePage(ctx context.Context, img Image) (*PageReport, error) {
	text, err := o.complete(ctx, img, pagePrompt)
	if err != nil {
		return nil, fmt.Errorf("openai-compatible analyze: %w", err)
	}
	return decodeReport(text)
}

// MatchCover judges a cover against query.
func (o *OpenAICompat) MatchCover(ctx context.Context, img Image, query string) (*CoverVerdict, error) {
	text, err := o.complete(ctx, img, coverPrompt(query))
	if err != nil {
		return nil, fmt.Errorf("openai-compatible match: %w", err)
	}
	return decodeVerdict(text)
}

func (o *OpenAICompat) complete(ctx context.Context, img Image, prompt string) (string, error) {
	dataURL := "data:" + img.MimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
	content := []map[string]any{
		{"type": "text", "text": prompt},
		{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
	}
	reqBody := map[string]any{
		"model":       o.model,
		"temperature": 0,
		"messages":    []map[string]any{{"role": "user", "content": content}},
	}
	var resp any
	url := o.BaseURL + "/chat/completions"
	if err := httpjson.Do(ctx, o.client, http.MethodPost, url, httpjson.Bearer(o.APIKey), reqBody, &resp); err != nil {
		return "", err
	}
	out, err := o.answer(resp)
	if err != nil {
		return "", fmt.Errorf("extract answer: %w", err)
	}
	text, ok := out.(string)
	if !ok || strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("extract answer: expected text, got %T", out)
	}
	return text, nil
}

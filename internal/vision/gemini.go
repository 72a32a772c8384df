package vision

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// Gemini calls Google's Gemini API for page analysis.
type Gemini struct {
	model  string
	client *genai.Client
}

// NewGemini returns a Gemini analyzer. model defaults to gemini-2.5-flash.
// baseURL overrides the API endpoint when non-empty; a positive timeout bounds
// each request.
func NewGemini(model, apiKey, baseURL string, timeout time.Duration) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions.BaseURL = baseURL
	}
	if timeout > 0 {
		cc.HTTPOptions.Timeout = &timeout
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Gemini{model: model, client: client}, nil
}

// Model returns the configured model name.
func (g *Gemini) Model() string { return g.model }

// AnalyzePage describes a page.
func (g *Gemini) AnalyzePage(ctx context.Context, img Image) (*PageReport, error) {
	text, err := g.generate(ctx, img, pagePrompt)
	if err != nil {
		return nil, fmt.Errorf("gemini analyze: %w", err)
	}
	return decodeReport(text)
}

// MatchCover judges a cover against query.
func (g *Gemini) MatchCover(ctx context.Context, img Image, query string) (*CoverVerdict, error) {
	text, err := g.generate(ctx, img, coverPrompt(query))
	if err != nil {
		return nil, fmt.Errorf("gemini match: %w", err)
	}
	return decodeVerdict(text)
}

func (g *Gemini) generate(ctx context.Context, img Image, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(img.Data, img.MimeType),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0),
	})
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response")
	}
	return text, nil
}

// Package gemini implements llm.Provider on the Google GenAI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/thebtf/intervue/internal/llm"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// contentGenerator is the subset of *genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client is a Gemini-backed llm.Provider.
type Client struct {
	models contentGenerator
	model  string
}

// New creates a Client for the Gemini API backend.
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newWithModels(client.Models, model), nil
}

func newWithModels(models contentGenerator, model string) *Client {
	if model = strings.TrimSpace(model); model == "" {
		model = DefaultModel
	}
	return &Client{models: models, model: model}
}

// Name returns the provider and model name.
func (c *Client) Name() string {
	return "gemini/" + c.model
}

// Generate sends one prompt and returns the concatenated text parts of the
// response.
func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	cfg := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		t := req.Temperature
		cfg.Temperature = &t
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	if s := strings.TrimSpace(req.System); s != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: s}}}
	}

	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if resp == nil {
		return "", llm.ErrEmptyResponse
	}

	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(text)
		}
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", llm.ErrEmptyResponse
	}
	return out, nil
}

package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/thebtf/intervue/internal/llm"
)

type fakeModels struct {
	resp   *genai.GenerateContentResponse
	err    error
	model  string
	config *genai.GenerateContentConfig
	prompt string
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.config = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	return f.resp, f.err
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(context.Background(), "  ", "")
	require.Error(t, err)
}

func TestGenerate_JoinsParts(t *testing.T) {
	fake := &fakeModels{resp: textResponse(" first ", "", "second")}
	c := newWithModels(fake, "")

	out, err := c.Generate(context.Background(), llm.Request{
		System:      "be terse",
		Prompt:      "hello",
		Temperature: 0.5,
		JSON:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond", out)
	assert.Equal(t, DefaultModel, fake.model)
	assert.Equal(t, "hello", fake.prompt)
	require.NotNil(t, fake.config)
	assert.Equal(t, "application/json", fake.config.ResponseMIMEType)
	require.NotNil(t, fake.config.Temperature)
	assert.InDelta(t, 0.5, *fake.config.Temperature, 0.0001)
	require.NotNil(t, fake.config.SystemInstruction)
	assert.Equal(t, "gemini/"+DefaultModel, c.Name())
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		fake   *fakeModels
		prompt string
		target error
	}{
		{name: "empty prompt", fake: &fakeModels{}, prompt: " "},
		{name: "api error", fake: &fakeModels{err: errors.New("quota")}, prompt: "p"},
		{name: "nil response", fake: &fakeModels{}, prompt: "p", target: llm.ErrEmptyResponse},
		{name: "blank parts", fake: &fakeModels{resp: textResponse("  ")}, prompt: "p", target: llm.ErrEmptyResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newWithModels(tt.fake, "custom")
			_, err := c.Generate(context.Background(), llm.Request{Prompt: tt.prompt})
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

// Package llm defines the narrow contract intervue needs from a language model.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("language model returned empty response")

// Request is one single-turn generation.
type Request struct {
	System      string
	Prompt      string
	Temperature float32
	// JSON asks the provider to constrain output to a JSON document.
	JSON bool
}

// Provider generates text for a prompt.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

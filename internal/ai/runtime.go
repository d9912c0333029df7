package ai

import "context"

// Runtime is the minimal capability implemented by model backends: given a
// chat request, return a completion. Everything above this interface treats
// the model as a black box.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider identifiers used for runtime selection.
const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

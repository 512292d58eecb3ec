package llm

import (
	"context"

	"github.com/lokutor-ai/dialogue-orchestrator/pkg/task"
)

// GroqLLM streams chat completions from Groq's OpenAI-compatible API.
type GroqLLM struct {
	apiKey string
	url    string
	model  string
}

// NewGroqLLM builds a GroqLLM, defaulting model to llama-3.3-70b-versatile.
func NewGroqLLM(apiKey, model string) *GroqLLM {
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	return &GroqLLM{
		apiKey: apiKey,
		url:    "https://api.groq.com/openai/v1/chat/completions",
		model:  model,
	}
}

func (l *GroqLLM) Name() string { return "groq-llm" }

func (l *GroqLLM) Stream(ctx context.Context, systemPrompt string, history []task.Message, userInput string) (<-chan Chunk, <-chan error) {
	return streamOpenAICompatible(ctx, l.url, l.apiKey, l.model, systemPrompt, history, userInput)
}

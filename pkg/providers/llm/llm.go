// Package llm wraps remote language-model APIs behind a single streaming
// contract consumed by the LLM stage.
package llm

import (
	"context"

	"github.com/lokutor-ai/dialogue-orchestrator/pkg/task"
)

// Chunk is one piece of a streamed completion.
type Chunk struct {
	Text string
	Done bool
}

// Engine produces a streamed answer for a user turn, given a system prompt
// and a windowed chat history. The chunk channel is closed once the
// stream ends or ctx is cancelled; a stream error is reported on the
// error channel.
type Engine interface {
	Stream(ctx context.Context, systemPrompt string, history []task.Message, userInput string) (<-chan Chunk, <-chan error)
	Name() string
}

func buildMessages(systemPrompt string, history []task.Message, userInput string) []task.Message {
	msgs := make([]task.Message, 0, len(history)+2)
	if systemPrompt != "" {
		msgs = append(msgs, task.Message{Role: "system", Content: systemPrompt})
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, task.Message{Role: "user", Content: userInput})
	return msgs
}

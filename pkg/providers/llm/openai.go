package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/lokutor-ai/dialogue-orchestrator/pkg/task"
)

// OpenAILLM streams chat completions from OpenAI's SSE API.
type OpenAILLM struct {
	apiKey string
	url    string
	model  string
}

// NewOpenAILLM builds an OpenAILLM, defaulting model to gpt-4o.
func NewOpenAILLM(apiKey, model string) *OpenAILLM {
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAILLM{
		apiKey: apiKey,
		url:    "https://api.openai.com/v1/chat/completions",
		model:  model,
	}
}

func (l *OpenAILLM) Name() string { return "openai-llm" }

func (l *OpenAILLM) Stream(ctx context.Context, systemPrompt string, history []task.Message, userInput string) (<-chan Chunk, <-chan error) {
	return streamOpenAICompatible(ctx, l.url, l.apiKey, l.model, systemPrompt, history, userInput)
}

// streamOpenAICompatible drives the OpenAI chat-completions SSE wire format
// shared by OpenAI and Groq: Bearer auth, "data: {...}" frames, "[DONE]"
// sentinel.
func streamOpenAICompatible(ctx context.Context, url, apiKey, model, systemPrompt string, history []task.Message, userInput string) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		payload := map[string]interface{}{
			"model":    model,
			"messages": buildMessages(systemPrompt, history, userInput),
			"stream":   true,
		}
		body, err := json.Marshal(payload)
		if err != nil {
			errs <- err
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			errs <- err
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+apiKey)
		req.Header.Set("Accept", "text/event-stream")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			errs <- fmt.Errorf("%w: llm request: %v", task.ErrEngine, err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			var errResp interface{}
			json.NewDecoder(resp.Body).Decode(&errResp)
			errs <- fmt.Errorf("%w: llm stream (status %d): %v", task.ErrEngine, resp.StatusCode, errResp)
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			data, ok := strings.CutPrefix(line, "data: ")
			if !ok {
				continue
			}
			data = strings.TrimSpace(data)
			if data == "[DONE]" {
				return
			}
			if data == "" {
				continue
			}

			var frame struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
				} `json:"choices"`
			}
			if err := json.Unmarshal([]byte(data), &frame); err != nil {
				continue
			}
			for _, c := range frame.Choices {
				if c.Delta.Content != "" {
					select {
					case chunks <- Chunk{Text: c.Delta.Content}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- fmt.Errorf("%w: llm stream read: %v", task.ErrEngine, err)
		}
	}()

	return chunks, errs
}

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

// AnthropicLLM streams messages from Anthropic's SSE Messages API.
type AnthropicLLM struct {
	apiKey string
	url    string
	model  string
}

// NewAnthropicLLM builds an AnthropicLLM, defaulting model to claude-3-5-sonnet.
func NewAnthropicLLM(apiKey, model string) *AnthropicLLM {
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
	}
	return &AnthropicLLM{
		apiKey: apiKey,
		url:    "https://api.anthropic.com/v1/messages",
		model:  model,
	}
}

func (l *AnthropicLLM) Name() string { return "anthropic-llm" }

func (l *AnthropicLLM) Stream(ctx context.Context, systemPrompt string, history []task.Message, userInput string) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		var anthropicMessages []map[string]string
		for _, m := range history {
			anthropicMessages = append(anthropicMessages, map[string]string{"role": m.Role, "content": m.Content})
		}
		anthropicMessages = append(anthropicMessages, map[string]string{"role": "user", "content": userInput})

		payload := map[string]interface{}{
			"model":      l.model,
			"messages":   anthropicMessages,
			"max_tokens": 1024,
			"stream":     true,
		}
		if systemPrompt != "" {
			payload["system"] = systemPrompt
		}

		body, err := json.Marshal(payload)
		if err != nil {
			errs <- err
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url, bytes.NewReader(body))
		if err != nil {
			errs <- err
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", l.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")
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
			if data == "" {
				continue
			}

			var event struct {
				Type  string `json:"type"`
				Delta struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"delta"`
			}
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				continue
			}
			switch event.Type {
			case "content_block_delta":
				if event.Delta.Text != "" {
					select {
					case chunks <- Chunk{Text: event.Delta.Text}:
					case <-ctx.Done():
						return
					}
				}
			case "message_stop":
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- fmt.Errorf("%w: llm stream read: %v", task.ErrEngine, err)
		}
	}()

	return chunks, errs
}

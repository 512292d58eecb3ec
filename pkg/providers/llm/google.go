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

// GoogleLLM streams content from Gemini's SSE streamGenerateContent endpoint.
type GoogleLLM struct {
	apiKey string
	url    string
	model  string
}

// NewGoogleLLM builds a GoogleLLM, defaulting model to gemini-1.5-flash.
func NewGoogleLLM(apiKey, model string) *GoogleLLM {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GoogleLLM{
		apiKey: apiKey,
		url:    "https://generativelanguage.googleapis.com/v1beta/models/" + model + ":streamGenerateContent",
		model:  model,
	}
}

func (l *GoogleLLM) Name() string { return "google-llm" }

type googlePart struct {
	Text string `json:"text"`
}

type googleContent struct {
	Role  string       `json:"role"`
	Parts []googlePart `json:"parts"`
}

func (l *GoogleLLM) Stream(ctx context.Context, systemPrompt string, history []task.Message, userInput string) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		var contents []googleContent
		for _, m := range history {
			role := m.Role
			if role == "assistant" {
				role = "model"
			} else {
				role = "user"
			}
			contents = append(contents, googleContent{Role: role, Parts: []googlePart{{Text: m.Content}}})
		}
		contents = append(contents, googleContent{Role: "user", Parts: []googlePart{{Text: userInput}}})

		payload := map[string]interface{}{"contents": contents}
		if systemPrompt != "" {
			payload["systemInstruction"] = googleContent{Parts: []googlePart{{Text: systemPrompt}}}
		}

		body, err := json.Marshal(payload)
		if err != nil {
			errs <- err
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url+"?alt=sse&key="+l.apiKey, bytes.NewReader(body))
		if err != nil {
			errs <- err
			return
		}
		req.Header.Set("Content-Type", "application/json")

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

			var frame struct {
				Candidates []struct {
					Content struct {
						Parts []googlePart `json:"parts"`
					} `json:"content"`
				} `json:"candidates"`
			}
			if err := json.Unmarshal([]byte(data), &frame); err != nil {
				continue
			}
			for _, c := range frame.Candidates {
				for _, p := range c.Content.Parts {
					if p.Text == "" {
						continue
					}
					select {
					case chunks <- Chunk{Text: p.Text}:
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

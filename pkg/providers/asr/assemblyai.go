package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/lokutor-ai/dialogue-orchestrator/pkg/audio"
	"github.com/lokutor-ai/dialogue-orchestrator/pkg/task"
)

// AssemblyAIEngine transcribes via AssemblyAI's upload-then-poll API.
type AssemblyAIEngine struct {
	apiKey string

	// overrides let tests point at an httptest server instead of the
	// real AssemblyAI endpoints; left empty in production use.
	uploadURLOverride string
	submitURLOverride string
	pollURLOverride   string
}

// NewAssemblyAIEngine builds an AssemblyAIEngine.
func NewAssemblyAIEngine(apiKey string) *AssemblyAIEngine {
	return &AssemblyAIEngine{apiKey: apiKey}
}

func (e *AssemblyAIEngine) uploadEndpoint() string {
	if e.uploadURLOverride != "" {
		return e.uploadURLOverride
	}
	return "https://api.assemblyai.com/v2/upload"
}

func (e *AssemblyAIEngine) submitEndpoint() string {
	if e.submitURLOverride != "" {
		return e.submitURLOverride
	}
	return "https://api.assemblyai.com/v2/transcript"
}

func (e *AssemblyAIEngine) pollEndpoint(id string) string {
	if e.pollURLOverride != "" {
		return e.pollURLOverride + id
	}
	return "https://api.assemblyai.com/v2/transcript/" + id
}

func (e *AssemblyAIEngine) Setup(ctx context.Context) error { return nil }

func (e *AssemblyAIEngine) Warmup(ctx context.Context) error {
	_, err := e.Transcribe(ctx, referenceClipSamples(), "")
	if err != nil {
		log.Printf("asr: assemblyai warmup failed: %v", err)
	}
	return nil
}

func (e *AssemblyAIEngine) Name() string { return "assemblyai-asr" }

func (e *AssemblyAIEngine) Transcribe(ctx context.Context, pcm []float32, lang task.Language) (string, error) {
	pcmBytes := audio.PCM16FromFloat32(pcm)

	uploadURL, err := e.upload(ctx, pcmBytes)
	if err != nil {
		return "", err
	}

	transcriptID, err := e.submit(ctx, uploadURL, lang)
	if err != nil {
		return "", err
	}

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(500 * time.Millisecond):
			text, status, err := e.getTranscript(ctx, transcriptID)
			if err != nil {
				return "", err
			}
			if status == "completed" {
				return text, nil
			}
			if status == "error" {
				return "", fmt.Errorf("%w: assemblyai transcription failed", task.ErrEngine)
			}
		}
	}
}

func (e *AssemblyAIEngine) upload(ctx context.Context, pcm []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.uploadEndpoint(), bytes.NewReader(pcm))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", e.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: assemblyai upload: %v", task.ErrEngine, err)
	}
	defer resp.Body.Close()

	var result struct {
		UploadURL string `json:"upload_url"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	return result.UploadURL, nil
}

func (e *AssemblyAIEngine) submit(ctx context.Context, uploadURL string, lang task.Language) (string, error) {
	payload := map[string]interface{}{"audio_url": uploadURL}
	if lang != "" {
		payload["language_code"] = string(lang)
	}

	body, _ := json.Marshal(payload)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, e.submitEndpoint(), bytes.NewReader(body))
	req.Header.Set("Authorization", e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: assemblyai submit: %v", task.ErrEngine, err)
	}
	defer resp.Body.Close()

	var result struct {
		ID string `json:"id"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	return result.ID, nil
}

func (e *AssemblyAIEngine) getTranscript(ctx context.Context, id string) (string, string, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, e.pollEndpoint(id), nil)
	req.Header.Set("Authorization", e.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("%w: assemblyai poll: %v", task.ErrEngine, err)
	}
	defer resp.Body.Close()

	var result struct {
		Status string `json:"status"`
		Text   string `json:"text"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	return result.Text, result.Status, nil
}

package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"

	"github.com/lokutor-ai/dialogue-orchestrator/pkg/audio"
	"github.com/lokutor-ai/dialogue-orchestrator/pkg/task"
)

// GroqEngine transcribes via Groq's OpenAI-compatible Whisper endpoint.
type GroqEngine struct {
	apiKey     string
	url        string
	model      string
	sampleRate int
}

// NewGroqEngine builds a GroqEngine; model defaults to
// whisper-large-v3-turbo.
func NewGroqEngine(apiKey, model string) *GroqEngine {
	if model == "" {
		model = "whisper-large-v3-turbo"
	}
	return &GroqEngine{
		apiKey:     apiKey,
		url:        "https://api.groq.com/openai/v1/audio/transcriptions",
		model:      model,
		sampleRate: 16000,
	}
}

func (e *GroqEngine) Setup(ctx context.Context) error { return nil }

func (e *GroqEngine) Warmup(ctx context.Context) error {
	_, err := e.Transcribe(ctx, referenceClipSamples(), "")
	if err != nil {
		log.Printf("asr: groq warmup failed: %v", err)
	}
	return nil
}

func (e *GroqEngine) Name() string { return "groq-asr" }

func (e *GroqEngine) Transcribe(ctx context.Context, pcm []float32, lang task.Language) (string, error) {
	wavData := audio.NewWavBuffer(audio.PCM16FromFloat32(pcm), e.sampleRate)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("model", e.model); err != nil {
		return "", err
	}
	if lang != "" {
		if err := writer.WriteField("language", string(lang)); err != nil {
			return "", err
		}
	}

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, bytes.NewReader(wavData)); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: groq request: %v", task.ErrEngine, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("%w: groq asr (status %d): %v", task.ErrEngine, resp.StatusCode, errResp)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Text, nil
}

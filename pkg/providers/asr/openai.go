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

// OpenAIEngine transcribes via OpenAI's Whisper endpoint.
type OpenAIEngine struct {
	apiKey     string
	url        string
	model      string
	sampleRate int
}

// NewOpenAIEngine builds an OpenAIEngine; model defaults to whisper-1.
func NewOpenAIEngine(apiKey, model string) *OpenAIEngine {
	if model == "" {
		model = "whisper-1"
	}
	return &OpenAIEngine{
		apiKey:     apiKey,
		url:        "https://api.openai.com/v1/audio/transcriptions",
		model:      model,
		sampleRate: 16000,
	}
}

func (e *OpenAIEngine) Setup(ctx context.Context) error { return nil }

func (e *OpenAIEngine) Warmup(ctx context.Context) error {
	_, err := e.Transcribe(ctx, referenceClipSamples(), "")
	if err != nil {
		log.Printf("asr: openai warmup failed: %v", err)
	}
	return nil
}

func (e *OpenAIEngine) Name() string { return "openai-asr" }

func (e *OpenAIEngine) Transcribe(ctx context.Context, pcm []float32, lang task.Language) (string, error) {
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
	if _, err := part.Write(wavData); err != nil {
		return "", err
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: openai request: %v", task.ErrEngine, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: openai asr (status %d): %s", task.ErrEngine, resp.StatusCode, string(respBody))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Text, nil
}

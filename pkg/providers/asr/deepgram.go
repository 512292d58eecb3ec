package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"

	"github.com/lokutor-ai/dialogue-orchestrator/pkg/audio"
	"github.com/lokutor-ai/dialogue-orchestrator/pkg/task"
)

// DeepgramEngine transcribes via Deepgram's pre-recorded audio endpoint.
type DeepgramEngine struct {
	apiKey     string
	url        string
	sampleRate int
}

// NewDeepgramEngine builds a DeepgramEngine.
func NewDeepgramEngine(apiKey string) *DeepgramEngine {
	return &DeepgramEngine{
		apiKey:     apiKey,
		url:        "https://api.deepgram.com/v1/listen",
		sampleRate: 16000,
	}
}

func (e *DeepgramEngine) Setup(ctx context.Context) error { return nil }

func (e *DeepgramEngine) Warmup(ctx context.Context) error {
	_, err := e.Transcribe(ctx, referenceClipSamples(), "")
	if err != nil {
		log.Printf("asr: deepgram warmup failed: %v", err)
	}
	return nil
}

func (e *DeepgramEngine) Name() string { return "deepgram-asr" }

func (e *DeepgramEngine) Transcribe(ctx context.Context, pcm []float32, lang task.Language) (string, error) {
	u, err := url.Parse(e.url)
	if err != nil {
		return "", err
	}

	params := u.Query()
	params.Set("model", "nova-2")
	params.Set("smart_format", "true")
	if lang != "" {
		params.Set("language", string(lang))
	}
	u.RawQuery = params.Encode()

	pcmBytes := audio.PCM16FromFloat32(pcm)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(pcmBytes))
	if err != nil {
		return "", err
	}

	req.Header.Set("Authorization", "Token "+e.apiKey)
	req.Header.Set("Content-Type", fmt.Sprintf("audio/l16; rate=%d; channels=1", e.sampleRate))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: deepgram request: %v", task.ErrEngine, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: deepgram asr (status %d): %s", task.ErrEngine, resp.StatusCode, string(respBody))
	}

	var result struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return result.Results.Channels[0].Alternatives[0].Transcript, nil
}

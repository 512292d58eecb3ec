// Package asr adapts ASR (speech-to-text) engines behind a single
// Engine contract: setup, warmup, and transcribe float32 PCM into text.
package asr

import (
	"context"

	"github.com/lokutor-ai/dialogue-orchestrator/pkg/task"
)

// Engine is the ASR contract the pipeline's ASR stage consumes. PCM is
// mono 16kHz float32 in [-1, 1]; callers are responsible for padding
// clips shorter than 1s before calling Transcribe.
type Engine interface {
	Setup(ctx context.Context) error
	Warmup(ctx context.Context) error
	Transcribe(ctx context.Context, pcm []float32, lang task.Language) (string, error)
	Name() string
}

// referenceClipSamples is a one-second, near-silent 16kHz clip used to
// warm engines up without depending on a bundled audio fixture.
func referenceClipSamples() []float32 {
	samples := make([]float32, 16000)
	for i := range samples {
		samples[i] = 0.001
	}
	return samples
}

// Package tts wraps remote speech-synthesis engines behind the contract
// the TTS stage drives: setup, warmup, synthesize one sentence to PCM, and
// abort an in-flight synthesis when the user starts talking over playback.
package tts

import "context"

// Engine synthesizes one sentence of text into mono float32 PCM at the
// engine's reported sample rate.
type Engine interface {
	Setup(ctx context.Context) error
	Warmup(ctx context.Context) error
	Synthesize(ctx context.Context, text string) (samples []float32, sampleRate int, err error)
	// Abort cancels any synthesis in flight on the engine's connection.
	// The TTS stage calls this from a watcher goroutine racing Synthesize
	// against user-still-speaking, and the entrypoint calls it on the
	// outgoing engine whenever the active voice/language is swapped.
	Abort() error
	Name() string
}

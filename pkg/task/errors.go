package task

import "errors"

// Error taxonomy per spec.md §7. Only StartupError propagates out of
// ServiceManager.Start; every other error is logged and swallowed at the
// stage boundary that produced it.
var (
	// ErrConfig marks a caller-facing configuration problem (unknown
	// language, missing model, unknown TTS voice). No pipeline impact.
	ErrConfig = errors.New("config error")

	// ErrStartup marks a service that failed to become ready within its
	// timeout. Aborts the entire ServiceManager startup sequence.
	ErrStartup = errors.New("service startup error")

	// ErrEngine marks an ASR/LLM/TTS inference failure. The current task
	// is aborted and the current task id is reset; the pipeline continues.
	ErrEngine = errors.New("engine error")

	// ErrInterrupted marks a task found invalid at a stage boundary. It is
	// silently dropped and its answer id is added to the dropped set.
	ErrInterrupted = errors.New("task interrupted")

	// ErrDevice marks a capture/playback device failure.
	ErrDevice = errors.New("device error")

	// ErrEmptyTranscription marks an ASR call that returned no text.
	ErrEmptyTranscription = errors.New("transcription returned empty text")
)

// Package pipeline wires the six pipeline stages (Capture, Monitor, ASR,
// LLM, TTS, Playback) together with bounded Go channels, following the
// dependency order the ServiceManager starts them in.
package pipeline

import "github.com/lokutor-ai/dialogue-orchestrator/pkg/task"

// Queue sizes tolerate one in-flight answer per stage, plus a raw frame
// queue sized for roughly 2s of 16kHz mono audio at 10ms frames.
const (
	FrameQueueSize = 256
	TaskQueueSize  = 32
)

// Event is the answer-display message emitted to the UI as each sentence
// starts playing.
type Event struct {
	SessionID      string
	TaskID         string
	AnswerIndex    int
	AnswerSentence string
}

// Queues holds every channel coupling the six stages. A single Queues
// value is shared across all stage constructors.
type Queues struct {
	Frames   chan task.Frame
	ASR      chan task.VoiceTask
	LLM      chan task.VoiceTask
	TTS      chan task.VoiceTask
	Playback chan task.VoiceTask
	UIEvents chan Event
}

// NewQueues allocates every channel at its spec-mandated buffer size.
func NewQueues() *Queues {
	return &Queues{
		Frames:   make(chan task.Frame, FrameQueueSize),
		ASR:      make(chan task.VoiceTask, TaskQueueSize),
		LLM:      make(chan task.VoiceTask, TaskQueueSize),
		TTS:      make(chan task.VoiceTask, TaskQueueSize),
		Playback: make(chan task.VoiceTask, TaskQueueSize),
		UIEvents: make(chan Event, TaskQueueSize),
	}
}

// Package task defines the data that flows through the dialogue pipeline:
// the VoiceTask value type, per-session history, and process-wide state
// shared across the six pipeline stages.
package task

import "time"

// Language identifies the spoken language a task is being processed in.
type Language string

const (
	LanguageZH Language = "zh"
	LanguageEN Language = "en"
)

// Voice selects a TTS engine's speaker identity.
type Voice string

const (
	VoiceF1 Voice = "F1"
	VoiceF2 Voice = "F2"
	VoiceF3 Voice = "F3"
	VoiceM1 Voice = "M1"
	VoiceM2 Voice = "M2"
	VoiceM3 Voice = "M3"
)

// AudioState records what happened to a dispatched task's audio.
type AudioState int

const (
	AudioStatePlaying AudioState = iota
	AudioStateDrop
)

// TTSAudio is the synthesized clip attached to a task by the TTS stage.
type TTSAudio struct {
	Samples    []float32
	SampleRate int
}

// VoiceTask is the unit that flows through stages 3-6 (ASR, LLM, TTS,
// Playback). It is value-copied at every queue hand-off so each stage
// mutates its own copy; fan-out in the LLM stage produces multiple copies
// sharing ID but distinct AnswerIndex.
type VoiceTask struct {
	ID           string
	SessionID    string
	AnswerID     string
	AnswerIndex  int
	Language     Language
	UserVoice    []float32
	TranscribedText string
	AnswerSentence  string
	TTSAudio        TTSAudio

	IsOverFramesThreshold bool

	SendTime     time.Time
	ASRStartTime time.Time
	ASREndTime   time.Time
	LLMStartTime time.Time
	LLMEndTime   time.Time
	TTSStartTime time.Time
	TTSEndTime   time.Time
}

// Clone returns an independent copy of the task, deep-copying the audio
// slices so downstream mutation (e.g. clearing UserVoice after ASR) never
// affects a sibling copy held by another stage.
func (t VoiceTask) Clone() VoiceTask {
	c := t
	if t.UserVoice != nil {
		c.UserVoice = append([]float32(nil), t.UserVoice...)
	}
	if t.TTSAudio.Samples != nil {
		c.TTSAudio.Samples = append([]float32(nil), t.TTSAudio.Samples...)
	}
	return c
}

// Frame is a chunk of 16-bit-normalized PCM at 16kHz mono, optionally
// carrying a VAD flag supplied by an echo canceller. Produced by Capture,
// consumed exactly once by the Monitor.
type Frame struct {
	Samples     []float32
	VoiceActive *bool
}

// Message is one turn in a session's chat history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

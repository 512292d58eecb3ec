// Package monitor implements the speech-activity segmenter: the second
// pipeline stage, sitting between Capture and ASR. It buffers frames from
// an already voice-activity-tagged source, decides when a user has
// finished an utterance, and emits a VoiceTask for the ASR stage to pick
// up. It is also the sole writer of the interrupt-task-id and
// user-still-speaking signals that drive barge-in.
package monitor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lokutor-ai/dialogue-orchestrator/pkg/task"
)

// Config holds the segmenter's timing thresholds, all expressed as
// durations so callers can tune them without unit confusion.
type Config struct {
	SampleRate int

	// MinAudioAmplitude below which an "active" frame is discarded: it is
	// neither buffered nor counted as silence (filters VAD false positives
	// on near-zero signal).
	MinAudioAmplitude float64

	// ActiveFrameThreshold is how long a user must keep talking over an
	// in-flight answer before that answer's task id is marked interrupted.
	ActiveFrameThreshold time.Duration

	// UserSilenceThreshold is how long a user must be silent before the
	// silence-over-threshold condition signal fires.
	UserSilenceThreshold time.Duration

	// SilenceThreshold is how long a user must be silent before an
	// accumulated utterance is flushed as a VoiceTask.
	SilenceThreshold time.Duration

	// AudioFramesThreshold is the utterance length past which the task is
	// flagged IsOverFramesThreshold; the buffer is still flushed only on
	// silence, and cleared after a flagged flush.
	AudioFramesThreshold time.Duration
}

// DefaultConfig mirrors the dialogue engine's reference tuning: 0.01
// amplitude floor, 100ms active-frame trigger, 1s user-silence signal,
// 300ms silence-to-flush, 5s max utterance length.
func DefaultConfig() Config {
	return Config{
		SampleRate:            16000,
		MinAudioAmplitude:     0.01,
		ActiveFrameThreshold:  100 * time.Millisecond,
		UserSilenceThreshold:  1 * time.Second,
		SilenceThreshold:      300 * time.Millisecond,
		AudioFramesThreshold:  5 * time.Second,
	}
}

// Monitor is the speech-activity segmenter. It is not safe for concurrent
// use; a single goroutine owns Run.
type Monitor struct {
	cfg      Config
	registry *task.StateRegistry

	silenceOverThreshold *task.Signal
	userStillSpeaking    *task.Signal

	in  <-chan task.Frame
	out chan<- task.VoiceTask

	taskID                 string
	activeFrameDuration    time.Duration
	userSilenceDuration    time.Duration
	audioFrames            []float32
	audioFramesEmpty       bool
	audioSentForProcessing bool
}

// New builds a Monitor wired to a shared registry and the two barge-in
// signals it drives.
func New(cfg Config, registry *task.StateRegistry, silenceOverThreshold, userStillSpeaking *task.Signal, in <-chan task.Frame, out chan<- task.VoiceTask) *Monitor {
	return &Monitor{
		cfg:                  cfg,
		registry:             registry,
		silenceOverThreshold: silenceOverThreshold,
		userStillSpeaking:    userStillSpeaking,
		in:                   in,
		out:                  out,
		audioFramesEmpty:     true,
	}
}

// Run consumes frames until the input channel closes or ctx is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-m.in:
			if !ok {
				return nil
			}
			m.step(ctx, frame)
		}
	}
}

func (m *Monitor) step(ctx context.Context, frame task.Frame) {
	m.taskID = m.registry.CurrentTaskID()
	if m.taskID == "" {
		m.initNewTask()
	}

	if m.handleCleanup() {
		m.audioSentForProcessing = false
		return
	}

	if m.userSilenceDuration >= m.cfg.UserSilenceThreshold {
		m.silenceOverThreshold.Set()
	}

	voiceActive := frame.VoiceActive != nil && *frame.VoiceActive
	duration := sampleDuration(len(frame.Samples), m.cfg.SampleRate)

	if voiceActive {
		if m.processActiveFrame(frame.Samples, duration) {
			m.audioFramesEmpty = false
			m.audioFrames = append(m.audioFrames, frame.Samples...)
		}
	} else {
		if m.processSilenceFrame(frame.Samples, duration) {
			return
		}
		m.audioFramesEmpty = false
		m.audioFrames = append(m.audioFrames, frame.Samples...)
	}

	wasSent := m.audioSentForProcessing
	if voiceActive && wasSent {
		m.userStillSpeaking.Set()
	}

	if m.userSilenceDuration >= m.cfg.SilenceThreshold && !wasSent {
		vt := m.createVoiceTask()

		select {
		case m.out <- vt:
		case <-ctx.Done():
			return
		}

		m.audioSentForProcessing = true
		m.userStillSpeaking.Clear()

		if vt.IsOverFramesThreshold {
			m.audioFrames = nil
			m.audioFramesEmpty = true
		}
	}
}

func (m *Monitor) initNewTask() {
	if m.registry.CurrentTaskID() == "" {
		m.registry.CreateTaskID()
		m.registry.ResetInterruptTaskID()
	}
	m.taskID = m.registry.CurrentTaskID()

	m.silenceOverThreshold.Clear()
	m.userStillSpeaking.Clear()

	m.audioFrames = nil
	m.audioFramesEmpty = true
	m.audioSentForProcessing = false
	m.activeFrameDuration = 0
	m.userSilenceDuration = 0
}

func (m *Monitor) handleCleanup() bool {
	state, ok := m.registry.AudioTaskState(m.taskID)
	if ok && state == task.AudioStateDrop {
		m.registry.CleanupTaskState(m.taskID)
		return true
	}
	return false
}

func (m *Monitor) processActiveFrame(samples []float32, duration time.Duration) bool {
	if maxSample(samples) <= m.cfg.MinAudioAmplitude {
		return false
	}

	m.userSilenceDuration = 0
	m.activeFrameDuration += duration

	if m.activeFrameDuration > m.cfg.ActiveFrameThreshold {
		m.registry.SetInterruptTaskID(m.taskID)
	}

	return true
}

// processSilenceFrame reports whether the caller should skip the rest of
// this step (true) because the buffer's trailing-silence handling already
// appended the frame itself.
func (m *Monitor) processSilenceFrame(samples []float32, duration time.Duration) bool {
	m.activeFrameDuration = 0

	if m.audioFramesEmpty {
		m.audioFrames = append(m.audioFrames, samples...)

		if sampleDuration(len(m.audioFrames), m.cfg.SampleRate) >= m.cfg.SilenceThreshold {
			keep := int(m.cfg.SilenceThreshold.Seconds() * float64(m.cfg.SampleRate))
			if trim := len(m.audioFrames) - keep; trim > 0 && trim < len(m.audioFrames) {
				m.audioFrames = m.audioFrames[trim:]
			}
		}

		m.userStillSpeaking.Clear()
		if m.audioSentForProcessing {
			m.userSilenceDuration += duration
		}
		return true
	}

	m.userSilenceDuration += duration
	return false
}

func (m *Monitor) createVoiceTask() task.VoiceTask {
	vt := task.VoiceTask{
		ID:        m.taskID,
		SessionID: m.registry.CurrentSessionID(),
		AnswerID:  uuid.NewString(),
		UserVoice: append([]float32(nil), m.audioFrames...),
		SendTime:  time.Now(),
	}

	if sampleDuration(len(m.audioFrames), m.cfg.SampleRate) >= m.cfg.AudioFramesThreshold {
		vt.IsOverFramesThreshold = true
	}

	return vt
}

func sampleDuration(numSamples, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(numSamples) / float64(sampleRate) * float64(time.Second))
}

func maxSample(samples []float32) float64 {
	max := float64(0)
	for i, s := range samples {
		f := float64(s)
		if i == 0 || f > max {
			max = f
		}
	}
	return max
}

package pipeline

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/lokutor-ai/dialogue-orchestrator/pkg/task"
)

// GateSleep is how long the Playback stage naps between rechecks while
// waiting for silence-over-threshold to fire.
const GateSleep = 50 * time.Millisecond

// Player is the audio sink the Playback stage drives. Satisfied by
// *audio.Player; declared locally so this package depends on a narrow
// contract rather than the concrete device type.
type Player interface {
	Play(ctx context.Context, samples []float32, sampleRate int) error
	IsStopped() bool
}

// PlaybackStage plays synthesized audio in arrival order, gated on the
// silence-over-threshold signal and preemptable only at a clip boundary.
type PlaybackStage struct {
	player                Player
	registry              *task.StateRegistry
	silenceOverThreshold  *task.Signal
	userStillSpeaking     *task.Signal
	history               *task.HistoryCache

	in     <-chan task.VoiceTask
	events chan<- Event

	ready atomic.Bool
}

func NewPlaybackStage(player Player, registry *task.StateRegistry, silenceOverThreshold, userStillSpeaking *task.Signal, history *task.HistoryCache, in <-chan task.VoiceTask, events chan<- Event) *PlaybackStage {
	return &PlaybackStage{
		player:               player,
		registry:             registry,
		silenceOverThreshold: silenceOverThreshold,
		userStillSpeaking:    userStillSpeaking,
		history:              history,
		in:                   in,
		events:               events,
	}
}

func (s *PlaybackStage) IsReady() bool { return s.ready.Load() }

func (s *PlaybackStage) Run(ctx context.Context) error {
	s.ready.Store(true)

	for {
		select {
		case <-ctx.Done():
			return nil
		case vt, ok := <-s.in:
			if !ok {
				return nil
			}
			s.process(ctx, vt)
		case <-time.After(time.Second):
		}
	}
}

func (s *PlaybackStage) process(ctx context.Context, vt task.VoiceTask) {
	if !s.gate(ctx, vt) {
		return
	}

	select {
	case s.events <- Event{SessionID: vt.SessionID, TaskID: vt.ID, AnswerIndex: vt.AnswerIndex, AnswerSentence: vt.AnswerSentence}:
	case <-ctx.Done():
		return
	}

	h := s.history.Get(vt.SessionID)
	h.AddUserMessage(vt.AnswerID, vt.TranscribedText)
	h.AppendAssistantSentence(vt.AnswerID, vt.AnswerSentence)

	s.registry.SetAudioPlaying(vt.ID)
	s.registry.ResetTaskID()

	if s.player.IsStopped() {
		return
	}
	if err := s.player.Play(ctx, vt.TTSAudio.Samples, vt.TTSAudio.SampleRate); err != nil {
		log.Printf("pipeline: playback failed: %v", err)
	}
}

// gate blocks, rechecking barge-in and validity, until silence-over-
// threshold is set (proceed) or the task is dropped.
func (s *PlaybackStage) gate(ctx context.Context, vt task.VoiceTask) bool {
	for {
		if s.userStillSpeaking.IsSet() {
			s.registry.MarkAnswerDropped(vt.AnswerID)
			s.userStillSpeaking.Clear()
			return false
		}
		if !s.registry.IsValid(vt) {
			return false
		}
		if s.silenceOverThreshold.IsSet() {
			return true
		}
		select {
		case <-time.After(GateSleep):
		case <-ctx.Done():
			return false
		}
	}
}

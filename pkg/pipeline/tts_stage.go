package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/lokutor-ai/dialogue-orchestrator/pkg/providers/tts"
	"github.com/lokutor-ai/dialogue-orchestrator/pkg/task"
)

// TTSStage renders each playable sentence to PCM and forwards it to
// Playback.
type TTSStage struct {
	engine            tts.Engine
	registry          *task.StateRegistry
	userStillSpeaking *task.Signal

	in  <-chan task.VoiceTask
	out chan<- task.VoiceTask

	ready atomic.Bool
}

func NewTTSStage(engine tts.Engine, registry *task.StateRegistry, userStillSpeaking *task.Signal, in <-chan task.VoiceTask, out chan<- task.VoiceTask) *TTSStage {
	return &TTSStage{
		engine:            engine,
		registry:          registry,
		userStillSpeaking: userStillSpeaking,
		in:                in,
		out:               out,
	}
}

func (s *TTSStage) IsReady() bool { return s.ready.Load() }

func (s *TTSStage) Run(ctx context.Context) error {
	if err := s.engine.Setup(ctx); err != nil {
		return fmt.Errorf("%w: tts setup: %v", task.ErrStartup, err)
	}
	if err := s.engine.Warmup(ctx); err != nil {
		log.Printf("pipeline: tts warmup failed: %v", err)
	}
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

func (s *TTSStage) process(ctx context.Context, vt task.VoiceTask) {
	if s.userStillSpeaking.IsSet() {
		s.registry.MarkAnswerDropped(vt.AnswerID)
		s.userStillSpeaking.Clear()
		return
	}
	if !s.registry.IsValid(vt) {
		return
	}
	if !hasWordCharacter(vt.AnswerSentence) {
		return
	}

	vt.TTSStartTime = time.Now()

	// Synthesize blocks on the engine's own read loop, which a validity
	// checkpoint can't reach once it's started; race a watcher against it
	// so a mid-sentence barge-in forcibly aborts the provider connection
	// instead of waiting for it to finish synthesizing dead audio.
	synthDone := make(chan struct{})
	go func() {
		select {
		case <-s.userStillSpeaking.Wait():
			if err := s.engine.Abort(); err != nil {
				log.Printf("pipeline: tts abort failed: %v", err)
			}
		case <-synthDone:
		}
	}()
	samples, sampleRate, err := s.engine.Synthesize(ctx, vt.AnswerSentence)
	close(synthDone)
	if err != nil {
		log.Printf("pipeline: tts synthesize failed: %v", err)
		s.registry.ResetTaskID()
		return
	}
	vt.TTSEndTime = time.Now()
	vt.TTSAudio = task.TTSAudio{Samples: samples, SampleRate: sampleRate}

	select {
	case s.out <- vt:
	case <-ctx.Done():
	}
}

// hasWordCharacter reports whether s contains a letter (including CJK
// ideographs, categorized as letters by unicode.IsLetter) or a digit.
func hasWordCharacter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

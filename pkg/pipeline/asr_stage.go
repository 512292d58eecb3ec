package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lokutor-ai/dialogue-orchestrator/pkg/providers/asr"
	"github.com/lokutor-ai/dialogue-orchestrator/pkg/task"
)

// ASRStage transcribes dispatched utterances and forwards them to the LLM
// queue. It owns the per-task_id fragment buffer that lets one long
// utterance's several flagged pieces arrive as a single transcript.
type ASRStage struct {
	engine            asr.Engine
	registry          *task.StateRegistry
	userStillSpeaking *task.Signal

	in  <-chan task.VoiceTask
	out chan<- task.VoiceTask

	ready atomic.Bool

	fragments map[string]*strings.Builder
}

// NewASRStage builds an ASRStage. Fragment state is local to the stage
// since exactly one goroutine (Run) ever touches it.
func NewASRStage(engine asr.Engine, registry *task.StateRegistry, userStillSpeaking *task.Signal, in <-chan task.VoiceTask, out chan<- task.VoiceTask) *ASRStage {
	return &ASRStage{
		engine:            engine,
		registry:          registry,
		userStillSpeaking: userStillSpeaking,
		in:                in,
		out:               out,
		fragments:         make(map[string]*strings.Builder),
	}
}

func (s *ASRStage) IsReady() bool { return s.ready.Load() }

// Run performs the one-time engine setup and warmup, then services the
// ASR queue until ctx is canceled.
func (s *ASRStage) Run(ctx context.Context) error {
	if err := s.engine.Setup(ctx); err != nil {
		return fmt.Errorf("%w: asr setup: %v", task.ErrStartup, err)
	}
	if err := s.engine.Warmup(ctx); err != nil {
		log.Printf("pipeline: asr warmup failed: %v", err)
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

func (s *ASRStage) process(ctx context.Context, vt task.VoiceTask) {
	if !s.registry.IsValid(vt) {
		delete(s.fragments, vt.ID)
		return
	}

	// Engines expect at least 1s of 16kHz audio; zero-pad shorter clips.
	const minClipSamples = 16000
	pcm := vt.UserVoice
	if len(pcm) < minClipSamples {
		padded := make([]float32, minClipSamples)
		copy(padded, pcm)
		pcm = padded
	}

	vt.ASRStartTime = time.Now()
	text, err := s.engine.Transcribe(ctx, pcm, vt.Language)
	vt.ASREndTime = time.Now()

	if err != nil {
		log.Printf("pipeline: asr transcribe failed: %v", err)
		s.registry.ResetTaskID()
		delete(s.fragments, vt.ID)
		return
	}
	if text == "" {
		s.registry.ResetTaskID()
		delete(s.fragments, vt.ID)
		return
	}

	if s.userStillSpeaking.IsSet() {
		s.registry.MarkAnswerDropped(vt.AnswerID)
		s.registry.DropAudioTask(vt.ID)
		s.userStillSpeaking.Clear()
		delete(s.fragments, vt.ID)
		return
	}
	if s.registry.IsAnswerDropped(vt.AnswerID) {
		delete(s.fragments, vt.ID)
		return
	}

	buf, ok := s.fragments[vt.ID]
	if !ok {
		buf = &strings.Builder{}
		s.fragments[vt.ID] = buf
	}
	buf.WriteString(text)

	if vt.IsOverFramesThreshold {
		// The Monitor flagged this utterance as over the long-utterance
		// threshold and cleared its buffer; keep accumulating under the same
		// task id until a fragment without the flag arrives.
		return
	}

	vt.TranscribedText = buf.String()
	vt.UserVoice = nil
	delete(s.fragments, vt.ID)

	select {
	case s.out <- vt:
	case <-ctx.Done():
	}
}

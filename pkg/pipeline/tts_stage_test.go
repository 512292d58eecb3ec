package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lokutor-ai/dialogue-orchestrator/pkg/task"
)

type fakeTTSEngine struct {
	samples    []float32
	sampleRate int
	err        error

	// block, if non-nil, is closed to let a parked Synthesize call return.
	block chan struct{}

	// entered, if non-nil, is closed when Synthesize is called.
	entered chan struct{}

	aborted atomic.Bool
}

func (f *fakeTTSEngine) Setup(ctx context.Context) error  { return nil }
func (f *fakeTTSEngine) Warmup(ctx context.Context) error { return nil }
func (f *fakeTTSEngine) Name() string                     { return "fake-tts" }

func (f *fakeTTSEngine) Abort() error {
	f.aborted.Store(true)
	return nil
}

func (f *fakeTTSEngine) Synthesize(ctx context.Context, text string) ([]float32, int, error) {
	if f.entered != nil {
		close(f.entered)
	}
	if f.block != nil {
		<-f.block
	}
	return f.samples, f.sampleRate, f.err
}

func TestTTSStage_SynthesizesAndForwards(t *testing.T) {
	registry := newTestRegistry("s1")
	userStillSpeaking := task.NewSignal()
	out := make(chan task.VoiceTask, 1)
	stage := NewTTSStage(&fakeTTSEngine{samples: []float32{0.1, 0.2}, sampleRate: 24000}, registry, userStillSpeaking, nil, out)

	vt := task.VoiceTask{ID: "t1", SessionID: "s1", AnswerID: "a1", AnswerSentence: "hello there"}
	stage.process(context.Background(), vt)

	select {
	case forwarded := <-out:
		if forwarded.TTSAudio.SampleRate != 24000 || len(forwarded.TTSAudio.Samples) != 2 {
			t.Errorf("expected synthesized audio to be attached, got %+v", forwarded.TTSAudio)
		}
	default:
		t.Fatal("expected a task on the output channel")
	}
}

func TestTTSStage_DropsSentenceWithNoWordCharacters(t *testing.T) {
	registry := newTestRegistry("s1")
	userStillSpeaking := task.NewSignal()
	out := make(chan task.VoiceTask, 1)
	stage := NewTTSStage(&fakeTTSEngine{}, registry, userStillSpeaking, nil, out)

	vt := task.VoiceTask{ID: "t1", SessionID: "s1", AnswerID: "a1", AnswerSentence: " ... !! "}
	stage.process(context.Background(), vt)

	select {
	case <-out:
		t.Fatal("expected a punctuation-only sentence to be dropped")
	default:
	}
}

func TestTTSStage_DropsOnUserStillSpeaking(t *testing.T) {
	registry := newTestRegistry("s1")
	userStillSpeaking := task.NewSignal()
	userStillSpeaking.Set()
	out := make(chan task.VoiceTask, 1)
	stage := NewTTSStage(&fakeTTSEngine{}, registry, userStillSpeaking, nil, out)

	vt := task.VoiceTask{ID: "t1", SessionID: "s1", AnswerID: "a1", AnswerSentence: "hello"}
	stage.process(context.Background(), vt)

	if !registry.IsAnswerDropped("a1") {
		t.Error("expected answer to be marked dropped")
	}
	select {
	case <-out:
		t.Fatal("expected no forward when user is still speaking")
	default:
	}
}

func TestTTSStage_SynthesizeFailureResetsTaskID(t *testing.T) {
	registry := newTestRegistry("s1")
	registry.CreateTaskID()
	userStillSpeaking := task.NewSignal()
	out := make(chan task.VoiceTask, 1)
	stage := NewTTSStage(&fakeTTSEngine{err: errors.New("boom")}, registry, userStillSpeaking, nil, out)

	vt := task.VoiceTask{ID: registry.CurrentTaskID(), SessionID: "s1", AnswerID: "a1", AnswerSentence: "hello"}
	stage.process(context.Background(), vt)

	if registry.CurrentTaskID() != "" {
		t.Error("expected a synthesis failure to reset the current task id")
	}
}

func TestTTSStage_CJKSentenceHasWordCharacters(t *testing.T) {
	if !hasWordCharacter("你好") {
		t.Error("expected CJK ideographs to count as word characters")
	}
}

func TestTTSStage_BargeInMidSynthesisAbortsEngine(t *testing.T) {
	registry := newTestRegistry("s1")
	userStillSpeaking := task.NewSignal()
	out := make(chan task.VoiceTask, 1)
	engine := &fakeTTSEngine{block: make(chan struct{}), entered: make(chan struct{}), err: errors.New("aborted")}
	stage := NewTTSStage(engine, registry, userStillSpeaking, nil, out)

	vt := task.VoiceTask{ID: "t1", SessionID: "s1", AnswerID: "a1", AnswerSentence: "hello there"}
	done := make(chan struct{})
	go func() {
		stage.process(context.Background(), vt)
		close(done)
	}()

	<-engine.entered
	userStillSpeaking.Set()

	select {
	case <-done:
		t.Fatal("expected process to stay blocked in Synthesize until unblocked")
	case <-time.After(20 * time.Millisecond):
	}

	if !engine.aborted.Load() {
		t.Error("expected barge-in during synthesis to call Abort on the engine")
	}

	close(engine.block)
	<-done
}

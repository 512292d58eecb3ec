package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/lokutor-ai/dialogue-orchestrator/pkg/task"
)

type fakeASREngine struct {
	text string
	err  error
}

func (f *fakeASREngine) Setup(ctx context.Context) error  { return nil }
func (f *fakeASREngine) Warmup(ctx context.Context) error { return nil }
func (f *fakeASREngine) Name() string                     { return "fake-asr" }
func (f *fakeASREngine) Transcribe(ctx context.Context, pcm []float32, lang task.Language) (string, error) {
	return f.text, f.err
}

func newTestRegistry(sessionID string) *task.StateRegistry {
	r := task.NewStateRegistry()
	r.SetSessionID(sessionID)
	return r
}

func TestASRStage_ForwardsTranscribedTask(t *testing.T) {
	registry := newTestRegistry("s1")
	userStillSpeaking := task.NewSignal()
	out := make(chan task.VoiceTask, 1)
	stage := NewASRStage(&fakeASREngine{text: "hello there"}, registry, userStillSpeaking, nil, out)

	vt := task.VoiceTask{ID: "t1", SessionID: "s1", AnswerID: "a1", UserVoice: []float32{0.1, 0.2}}
	stage.process(context.Background(), vt)

	select {
	case forwarded := <-out:
		if forwarded.TranscribedText != "hello there" {
			t.Errorf("expected transcribed text to be forwarded, got %q", forwarded.TranscribedText)
		}
		if forwarded.UserVoice != nil {
			t.Error("expected UserVoice to be cleared before forwarding")
		}
	default:
		t.Fatal("expected a task on the output channel")
	}
}

func TestASRStage_EmptyTranscriptionResetsTaskID(t *testing.T) {
	registry := newTestRegistry("s1")
	registry.CreateTaskID()
	userStillSpeaking := task.NewSignal()
	out := make(chan task.VoiceTask, 1)
	stage := NewASRStage(&fakeASREngine{text: ""}, registry, userStillSpeaking, nil, out)

	vt := task.VoiceTask{ID: registry.CurrentTaskID(), SessionID: "s1", AnswerID: "a1"}
	stage.process(context.Background(), vt)

	if registry.CurrentTaskID() != "" {
		t.Error("expected empty transcription to reset the current task id")
	}
	select {
	case <-out:
		t.Fatal("expected no task forwarded for an empty transcription")
	default:
	}
}

func TestASRStage_TranscribeErrorResetsTaskID(t *testing.T) {
	registry := newTestRegistry("s1")
	registry.CreateTaskID()
	userStillSpeaking := task.NewSignal()
	out := make(chan task.VoiceTask, 1)
	stage := NewASRStage(&fakeASREngine{err: errors.New("boom")}, registry, userStillSpeaking, nil, out)

	vt := task.VoiceTask{ID: registry.CurrentTaskID(), SessionID: "s1", AnswerID: "a1"}
	stage.process(context.Background(), vt)

	if registry.CurrentTaskID() != "" {
		t.Error("expected a transcribe error to reset the current task id")
	}
}

func TestASRStage_UserStillSpeakingMarksAnswerDropped(t *testing.T) {
	registry := newTestRegistry("s1")
	userStillSpeaking := task.NewSignal()
	userStillSpeaking.Set()
	out := make(chan task.VoiceTask, 1)
	stage := NewASRStage(&fakeASREngine{text: "hi"}, registry, userStillSpeaking, nil, out)

	vt := task.VoiceTask{ID: "t1", SessionID: "s1", AnswerID: "a1"}
	stage.process(context.Background(), vt)

	if !registry.IsAnswerDropped("a1") {
		t.Error("expected answer to be marked dropped")
	}
	if userStillSpeaking.IsSet() {
		t.Error("expected user-still-speaking to be cleared after handling")
	}
	select {
	case <-out:
		t.Fatal("expected no task forwarded when user is still speaking")
	default:
	}
}

func TestASRStage_AccumulatesFragmentsAcrossOverThresholdFlushes(t *testing.T) {
	registry := newTestRegistry("s1")
	userStillSpeaking := task.NewSignal()
	out := make(chan task.VoiceTask, 1)

	engine := &fakeASREngine{text: "part "}
	stage := NewASRStage(engine, registry, userStillSpeaking, nil, out)

	first := task.VoiceTask{ID: "t1", SessionID: "s1", AnswerID: "a1", IsOverFramesThreshold: true}
	stage.process(context.Background(), first)

	select {
	case <-out:
		t.Fatal("expected no forward while the utterance is still over threshold")
	default:
	}

	engine.text = "two"
	final := task.VoiceTask{ID: "t1", SessionID: "s1", AnswerID: "a1"}
	stage.process(context.Background(), final)

	select {
	case forwarded := <-out:
		if forwarded.TranscribedText != "part two" {
			t.Errorf("expected concatenated fragments, got %q", forwarded.TranscribedText)
		}
	default:
		t.Fatal("expected the final fragment to forward the concatenated transcript")
	}
}

package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/lokutor-ai/dialogue-orchestrator/pkg/task"
)

func testConfig() Config {
	return Config{
		SampleRate:           1000, // 1 sample == 1ms, keeps duration math exact without real sleeps
		MinAudioAmplitude:    0.01,
		ActiveFrameThreshold: 100 * time.Millisecond,
		UserSilenceThreshold: 1 * time.Second,
		SilenceThreshold:     300 * time.Millisecond,
		AudioFramesThreshold: 5 * time.Second,
	}
}

func boolPtr(b bool) *bool { return &b }

func samples(n int, amplitude float32) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = amplitude
	}
	return s
}

func newHarness(cfg Config) (*Monitor, chan task.Frame, chan task.VoiceTask, *task.StateRegistry) {
	registry := task.NewStateRegistry()
	registry.SetSessionID("s1")
	in := make(chan task.Frame, 16)
	out := make(chan task.VoiceTask, 16)
	m := New(cfg, registry, task.NewSignal(), task.NewSignal(), in, out)
	return m, in, out, registry
}

func TestMonitor_FlushesAfterSilenceThreshold(t *testing.T) {
	cfg := testConfig()
	m, in, out, _ := newHarness(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	// One active frame (50ms, below the 100ms interrupt trigger).
	in <- task.Frame{Samples: samples(50, 0.5), VoiceActive: boolPtr(true)}
	// Three 100ms silence frames accumulate to the 300ms flush threshold.
	in <- task.Frame{Samples: samples(100, 0), VoiceActive: boolPtr(false)}
	in <- task.Frame{Samples: samples(100, 0), VoiceActive: boolPtr(false)}
	in <- task.Frame{Samples: samples(100, 0), VoiceActive: boolPtr(false)}

	select {
	case vt := <-out:
		if len(vt.UserVoice) == 0 {
			t.Fatal("expected the flushed task to carry the buffered audio")
		}
		if vt.IsOverFramesThreshold {
			t.Fatal("did not expect the long-utterance flag to be set")
		}
	case <-time.After(time.Second):
		t.Fatal("expected a VoiceTask to be emitted after the silence threshold")
	}
}

func TestMonitor_InterruptsCurrentTaskOnSustainedSpeech(t *testing.T) {
	cfg := testConfig()
	m, in, out, registry := newHarness(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	in <- task.Frame{Samples: samples(50, 0.5), VoiceActive: boolPtr(true)}
	in <- task.Frame{Samples: samples(100, 0), VoiceActive: boolPtr(false)}
	in <- task.Frame{Samples: samples(100, 0), VoiceActive: boolPtr(false)}
	in <- task.Frame{Samples: samples(100, 0), VoiceActive: boolPtr(false)}

	var taskID string
	select {
	case vt := <-out:
		taskID = vt.ID
	case <-time.After(time.Second):
		t.Fatal("expected an initial VoiceTask")
	}

	// Sustained speech past the 100ms active-frame threshold should mark
	// the accumulating task as interrupted (barge-in over the in-flight
	// answer).
	in <- task.Frame{Samples: samples(60, 0.5), VoiceActive: boolPtr(true)}
	in <- task.Frame{Samples: samples(60, 0.5), VoiceActive: boolPtr(true)}

	deadline := time.After(time.Second)
	for {
		if registry.InterruptTaskID() == taskID {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expected InterruptTaskID to be set to the in-flight task id")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestMonitor_FlagsLongUtterance(t *testing.T) {
	cfg := testConfig()
	m, in, out, _ := newHarness(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	// Alternate short bursts of active speech with brief sub-threshold
	// silence so the buffer keeps growing past AudioFramesThreshold
	// without ever triggering an early flush.
	for i := 0; i < 60; i++ {
		in <- task.Frame{Samples: samples(90, 0.5), VoiceActive: boolPtr(true)}
		in <- task.Frame{Samples: samples(10, 0), VoiceActive: boolPtr(false)}
	}
	// Now let silence run past the flush threshold.
	in <- task.Frame{Samples: samples(100, 0), VoiceActive: boolPtr(false)}
	in <- task.Frame{Samples: samples(100, 0), VoiceActive: boolPtr(false)}
	in <- task.Frame{Samples: samples(100, 0), VoiceActive: boolPtr(false)}

	select {
	case vt := <-out:
		if !vt.IsOverFramesThreshold {
			t.Fatal("expected the long-utterance flag to be set")
		}
	case <-time.After(time.Second):
		t.Fatal("expected a VoiceTask to be emitted")
	}
}

func TestMonitor_SkipsProcessingForDroppedTask(t *testing.T) {
	cfg := testConfig()
	m, in, _, registry := newHarness(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	// Force a task id to exist, then mark it dropped before any frame
	// arrives: the monitor must clean it up rather than process audio
	// under it.
	id := registry.CreateTaskID()
	registry.DropAudioTask(id)

	in <- task.Frame{Samples: samples(10, 0), VoiceActive: boolPtr(false)}

	deadline := time.After(time.Second)
	for {
		if _, ok := registry.AudioTaskState(id); !ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expected dropped task state to be cleaned up")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

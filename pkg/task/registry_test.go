package task

import "testing"

func TestStateRegistry_TaskIDInvariant(t *testing.T) {
	r := NewStateRegistry()

	id1 := r.CreateTaskID()
	if id1 == "" {
		t.Fatal("expected a non-empty task id")
	}

	// Creating again before reset must return the same id (at most one
	// current task id at any moment).
	id2 := r.CreateTaskID()
	if id1 != id2 {
		t.Fatalf("expected CreateTaskID to be idempotent until reset, got %q then %q", id1, id2)
	}

	r.ResetTaskID()
	id3 := r.CreateTaskID()
	if id3 == id1 {
		t.Fatal("expected a fresh task id after reset")
	}
}

func TestStateRegistry_SessionMismatchIsInvalid(t *testing.T) {
	r := NewStateRegistry()
	r.SetSessionID("session-a")

	valid := VoiceTask{ID: "t1", SessionID: "session-a"}
	if !r.IsValid(valid) {
		t.Fatal("expected task with matching session to be valid")
	}

	stale := VoiceTask{ID: "t2", SessionID: "session-b"}
	if r.IsValid(stale) {
		t.Fatal("expected task with stale session id to be invalid")
	}

	r.ResetSession()
	if r.IsValid(valid) {
		t.Fatal("expected task to become invalid once session is reset")
	}
}

func TestStateRegistry_DroppedAnswerIsInvalid(t *testing.T) {
	r := NewStateRegistry()
	r.SetSessionID("s1")

	tsk := VoiceTask{ID: "t1", SessionID: "s1", AnswerID: "a1"}
	if !r.IsValid(tsk) {
		t.Fatal("expected fresh task to be valid")
	}

	r.MarkAnswerDropped("a1")
	if r.IsValid(tsk) {
		t.Fatal("expected task with dropped answer id to be invalid")
	}
}

func TestStateRegistry_InterruptedTaskIsInvalid(t *testing.T) {
	r := NewStateRegistry()
	r.SetSessionID("s1")

	tsk := VoiceTask{ID: "t1", SessionID: "s1", AnswerID: "a1"}
	r.SetInterruptTaskID("t1")

	if !r.IsInterrupted(tsk) {
		t.Fatal("expected task to be reported as interrupted")
	}
	if r.IsValid(tsk) {
		t.Fatal("expected interrupted task to be invalid")
	}

	other := VoiceTask{ID: "t2", SessionID: "s1", AnswerID: "a2"}
	if !r.IsValid(other) {
		t.Fatal("expected a different task id to remain valid")
	}
}

func TestStateRegistry_AudioTaskStateLRUCapacity(t *testing.T) {
	r := NewStateRegistryWithCapacity(2, 2)

	r.SetAudioPlaying("a")
	r.SetAudioPlaying("b")
	r.SetAudioPlaying("c") // should evict "a" (least recently used)

	if r.audioTaskStates.Len() != 2 {
		t.Fatalf("expected capacity to be enforced, got len=%d", r.audioTaskStates.Len())
	}
	if _, ok := r.AudioTaskState("a"); ok {
		t.Fatal("expected oldest entry to be evicted")
	}
	if _, ok := r.AudioTaskState("b"); !ok {
		t.Fatal("expected recently-used entry to survive")
	}
	if _, ok := r.AudioTaskState("c"); !ok {
		t.Fatal("expected newest entry to survive")
	}
}

func TestStateRegistry_LRUTouchesRecencyOnGet(t *testing.T) {
	r := NewStateRegistryWithCapacity(2, 2)

	r.SetAudioPlaying("a")
	r.SetAudioPlaying("b")

	// Touch "a" so it becomes the most-recently-used.
	if _, ok := r.AudioTaskState("a"); !ok {
		t.Fatal("expected a to be present")
	}

	r.SetAudioPlaying("c") // should evict "b" now, not "a"

	if _, ok := r.AudioTaskState("a"); !ok {
		t.Fatal("expected touched entry to survive eviction")
	}
	if _, ok := r.AudioTaskState("b"); ok {
		t.Fatal("expected untouched entry to be evicted")
	}
}

func TestVoiceTask_CloneIsIndependent(t *testing.T) {
	orig := VoiceTask{ID: "t1", UserVoice: []float32{0.1, 0.2, 0.3}}
	clone := orig.Clone()
	clone.UserVoice[0] = 99

	if orig.UserVoice[0] == 99 {
		t.Fatal("expected Clone to deep-copy UserVoice")
	}
}

func TestHistory_WindowIsBounded(t *testing.T) {
	h := NewHistory()
	for i := 0; i < 5; i++ {
		answerID := string(rune('a' + i))
		h.AddUserMessage(answerID, "question "+answerID)
		h.AppendAssistantSentence(answerID, "answer "+answerID)
	}

	msgs := h.Window()
	// HistoryWindow=3 turns * 2 messages each = 6
	if len(msgs) != HistoryWindow*2 {
		t.Fatalf("expected %d messages in window, got %d", HistoryWindow*2, len(msgs))
	}
	if msgs[0].Content != "question c" {
		t.Fatalf("expected window to start at the 3rd-from-last turn, got %q", msgs[0].Content)
	}
}

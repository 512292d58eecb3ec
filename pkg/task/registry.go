package task

import (
	"sync"

	"github.com/google/uuid"
)

const (
	defaultAudioTaskStateCapacity = 10
	defaultDroppedAnswerCapacity  = 50
)

// StateRegistry is the process-wide shared state coordinating the six
// pipeline stages: current session/task identity, the interrupted task id,
// and the two LRU caches (audio_task_states, dropped_answer_ids).
//
// Invariants:
//   - at most one current task id exists at any moment; creating a new one
//     requires the previous to be reset.
//   - a task whose SessionID != CurrentSessionID is invalid and must be
//     discarded at every stage.
//   - a task whose AnswerID is in the dropped set is invalid.
//   - a task whose ID equals InterruptTaskID is interrupted and must be
//     discarded by downstream stages.
type StateRegistry struct {
	mu sync.RWMutex

	currentSessionID string
	currentTaskID    string
	interruptTaskID  string

	audioTaskStates *lruCache
	droppedAnswers  *lruCache

	History *HistoryCache
}

// NewStateRegistry builds a registry with the spec's default LRU
// capacities (10 audio task states, 50 dropped answers).
func NewStateRegistry() *StateRegistry {
	return NewStateRegistryWithCapacity(defaultAudioTaskStateCapacity, defaultDroppedAnswerCapacity)
}

// NewStateRegistryWithCapacity builds a registry with custom LRU
// capacities; exposed so the dropped-answer capacity (empirically 50 per
// spec.md §9) can be tuned without a code change.
func NewStateRegistryWithCapacity(audioTaskCap, droppedAnswerCap int) *StateRegistry {
	return &StateRegistry{
		audioTaskStates: newLRUCache(audioTaskCap),
		droppedAnswers:  newLRUCache(droppedAnswerCap),
		History:         NewHistoryCache(),
	}
}

// CurrentSessionID returns the active session id.
func (r *StateRegistry) CurrentSessionID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentSessionID
}

// SetSessionID sets the active session id (e.g. on system/start).
func (r *StateRegistry) SetSessionID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentSessionID = id
}

// ResetSession clears the active session id; any task carrying the old id
// becomes invalid at its next checkpoint.
func (r *StateRegistry) ResetSession() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentSessionID = ""
}

// CurrentTaskID returns the in-flight utterance's task id, or "" if none.
func (r *StateRegistry) CurrentTaskID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentTaskID
}

// CreateTaskID allocates a new task id, enforcing the at-most-one
// invariant: it only assigns when no task id is currently set.
func (r *StateRegistry) CreateTaskID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.currentTaskID != "" {
		return r.currentTaskID
	}
	r.currentTaskID = uuid.NewString()
	return r.currentTaskID
}

// ResetTaskID clears the current task id (utterance end or ASR failure).
func (r *StateRegistry) ResetTaskID() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentTaskID = ""
}

// InterruptTaskID returns the id of the task being preempted, if any.
func (r *StateRegistry) InterruptTaskID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.interruptTaskID
}

// SetInterruptTaskID is called only by the Monitor, the sole writer of
// this field.
func (r *StateRegistry) SetInterruptTaskID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interruptTaskID = id
}

// ResetInterruptTaskID clears the interrupted-task marker.
func (r *StateRegistry) ResetInterruptTaskID() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interruptTaskID = ""
}

// SetAudioPlaying records that task id's audio is (about to be) played.
func (r *StateRegistry) SetAudioPlaying(taskID string) {
	r.audioTaskStates.Set(taskID, AudioStatePlaying)
}

// DropAudioTask records that task id's audio has been dropped.
func (r *StateRegistry) DropAudioTask(taskID string) {
	r.audioTaskStates.Set(taskID, AudioStateDrop)
}

// AudioTaskState returns the recorded state for a task id, if any.
func (r *StateRegistry) AudioTaskState(taskID string) (AudioState, bool) {
	v, ok := r.audioTaskStates.Get(taskID)
	if !ok {
		return 0, false
	}
	return v.(AudioState), true
}

// CleanupTaskState removes a task id's recorded audio state.
func (r *StateRegistry) CleanupTaskState(taskID string) {
	r.audioTaskStates.Delete(taskID)
}

// MarkAnswerDropped adds an answer id to the dropped set.
func (r *StateRegistry) MarkAnswerDropped(answerID string) {
	r.droppedAnswers.Set(answerID, struct{}{})
}

// IsAnswerDropped reports whether an answer id has been dropped.
func (r *StateRegistry) IsAnswerDropped(answerID string) bool {
	return r.droppedAnswers.Has(answerID)
}

// IsInterrupted reports whether t's id matches the current
// InterruptTaskID (the Monitor's preemption marker).
func (r *StateRegistry) IsInterrupted(t VoiceTask) bool {
	interrupt := r.InterruptTaskID()
	return interrupt != "" && t.ID == interrupt
}

// IsValid reports whether t may still be processed: its session must
// match the current session, it must not be interrupted, and its answer
// must not have been dropped. This is the single checkpoint every stage
// runs at its boundary.
func (r *StateRegistry) IsValid(t VoiceTask) bool {
	if r.IsInterrupted(t) {
		return false
	}
	if t.SessionID != r.CurrentSessionID() {
		return false
	}
	if r.IsAnswerDropped(t.AnswerID) {
		return false
	}
	return true
}

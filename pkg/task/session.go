package task

import "sync"

// HistoryWindow is the number of past turns fed back to the LLM.
const HistoryWindow = 3

// Turn is one answer's worth of history: the user message that produced it
// and the ordered assistant sentences emitted for it.
type Turn struct {
	User      string
	Assistant []string
}

// History holds a session's ordered turns, keyed by answer id in arrival
// order, so the LLM stage can read a bounded recent window.
type History struct {
	mu      sync.Mutex
	order   []string
	turns   map[string]*Turn
}

// NewHistory creates an empty per-session history.
func NewHistory() *History {
	return &History{turns: make(map[string]*Turn)}
}

// AddUserMessage starts (or updates) the turn for answerID with the user's
// question.
func (h *History) AddUserMessage(answerID, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.turns[answerID]
	if !ok {
		t = &Turn{}
		h.turns[answerID] = t
		h.order = append(h.order, answerID)
	}
	t.User = text
}

// AppendAssistantSentence appends one streamed sentence to the answer's
// assistant turn.
func (h *History) AppendAssistantSentence(answerID, sentence string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.turns[answerID]
	if !ok {
		t = &Turn{}
		h.turns[answerID] = t
		h.order = append(h.order, answerID)
	}
	t.Assistant = append(t.Assistant, sentence)
}

// Window returns the last HistoryWindow turns as a flat Message slice
// (user then assistant per turn), suitable to hand to an LLM provider.
func (h *History) Window() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	start := 0
	if len(h.order) > HistoryWindow {
		start = len(h.order) - HistoryWindow
	}

	var msgs []Message
	for _, answerID := range h.order[start:] {
		t := h.turns[answerID]
		if t == nil {
			continue
		}
		if t.User != "" {
			msgs = append(msgs, Message{Role: "user", Content: t.User})
		}
		if len(t.Assistant) > 0 {
			content := ""
			for i, s := range t.Assistant {
				if i > 0 {
					content += " "
				}
				content += s
			}
			msgs = append(msgs, Message{Role: "assistant", Content: content})
		}
	}
	return msgs
}

// HistoryCache maps session id to that session's bounded history. Written
// only by Playback, read only by the LLM stage, single mutex per spec.
type HistoryCache struct {
	mu       sync.Mutex
	sessions map[string]*History
}

// NewHistoryCache creates an empty cache.
func NewHistoryCache() *HistoryCache {
	return &HistoryCache{sessions: make(map[string]*History)}
}

// Get returns (creating if necessary) the History for a session.
func (c *HistoryCache) Get(sessionID string) *History {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.sessions[sessionID]
	if !ok {
		h = NewHistory()
		c.sessions[sessionID] = h
	}
	return h
}

// Package memory implements bounded conversational memory for the chat chain.
// A Window keeps the most recent conversation turns in FIFO order and silently
// evicts the oldest turn once the limit is reached.
package memory

import (
	"sync"
	"time"
)

// DefaultWindowSize is the number of turns kept when no size is configured.
// A question and its answer are two turns, so 10 turns is 5 full exchanges.
const DefaultWindowSize = 10

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in the conversation.
type Turn struct {
	// Role identifies who authored the turn.
	Role Role `json:"role"`

	// Text is the message content.
	Text string `json:"text"`

	// At is when the turn was recorded.
	At time.Time `json:"at"`
}

// Window holds the most recent conversation turns, bounded at a fixed size.
// It is safe for concurrent use.
type Window struct {
	mu    sync.RWMutex
	turns []Turn
	max   int
}

// NewWindow creates a Window bounded at max turns. Non-positive max falls
// back to DefaultWindowSize.
func NewWindow(max int) *Window {
	if max <= 0 {
		max = DefaultWindowSize
	}
	return &Window{max: max}
}

// Append records one turn, evicting the oldest turn if the window is full.
func (w *Window) Append(role Role, text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.append(role, text)
}

// AppendExchange records a completed question/answer pair as two turns,
// applying FIFO eviction after each.
func (w *Window) AppendExchange(question, answer string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.append(RoleUser, question)
	w.append(RoleAssistant, answer)
}

// append must be called with the lock held.
func (w *Window) append(role Role, text string) {
	w.turns = append(w.turns, Turn{
		Role: role,
		Text: text,
		At:   time.Now(),
	})
	if len(w.turns) > w.max {
		// Shift rather than re-slice so the evicted turn can be collected.
		copy(w.turns, w.turns[1:])
		w.turns = w.turns[:w.max]
	}
}

// Turns returns a copy of the current turns, oldest first.
func (w *Window) Turns() []Turn {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]Turn, len(w.turns))
	copy(out, w.turns)
	return out
}

// Len reports the number of turns currently held.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.turns)
}

// Max reports the configured window bound.
func (w *Window) Max() int {
	return w.max
}

// Reset discards all turns.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.turns = nil
}

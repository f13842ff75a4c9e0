// Package progress is the in-process event bus the orchestrators publish
// tournament milestones on. The monitor's websocket hub and the console
// subscribe to it; a nil bus drops everything.
package progress

import (
	"sync"
	"time"
)

// Event types published over the bus.
const (
	TypeRoundStarted  = "round_started"
	TypeRoundFinished = "round_finished"
	TypeWindowDone    = "window_done"
	TypeEditStarted   = "edit_started"
	TypeEditFinished  = "edit_finished"
)

// Event is one tournament milestone.
type Event struct {
	Type     string    `json:"type"`
	Round    int       `json:"round,omitempty"`
	WindowID string    `json:"window_id,omitempty"`
	AgentID  string    `json:"agent_id,omitempty"`
	Status   string    `json:"status,omitempty"`
	Winner   string    `json:"winner,omitempty"`
	At       time.Time `json:"at"`
}

// Bus fans events out to subscribers. Publishing never blocks: a subscriber
// that falls behind loses events rather than stalling a round.
type Bus struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a buffered channel receiving future events. The
// returned cancel func removes and closes it.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
}

// Subscribers reports how many subscriptions are active.
func (b *Bus) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish delivers an event to every subscriber, dropping it for any whose
// buffer is full. A nil bus is a no-op.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Package notify holds the single-slot user feedback message shown across
// unrelated screens.
package notify

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Severity classifies a message.
type Severity string

const (
	Info    Severity = "info"
	Success Severity = "success"
	Error   Severity = "error"
)

// DefaultDelay is how long a message stays visible without a new Show.
const DefaultDelay = 5 * time.Second

// Message is the broadcaster state.
type Message struct {
	Visible  bool     `json:"visible"`
	Text     string   `json:"message"`
	Severity Severity `json:"type"`
}

// Broadcaster keeps at most one visible message. A new Show replaces the
// current message and restarts the auto-hide timer.
type Broadcaster struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	delay  time.Duration
	state  Message
	timer  clockwork.Timer
	gen    uint64
	subs   map[int]func(Message)
	nextID int
}

// New returns a Broadcaster using clock for the auto-hide timer. A nil clock
// means the real clock.
func New(clock clockwork.Clock) *Broadcaster {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Broadcaster{
		clock: clock,
		delay: DefaultDelay,
		state: Message{Severity: Info},
		subs:  map[int]func(Message){},
	}
}

// Show displays text with the given severity, pre-empting any current message
// and its pending timer. An empty severity means Info.
func (b *Broadcaster) Show(text string, sev Severity) {
	if sev == "" {
		sev = Info
	}
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
	}
	b.gen++
	gen := b.gen
	b.state = Message{Visible: true, Text: text, Severity: sev}
	b.timer = b.clock.AfterFunc(b.delay, func() { b.expire(gen) })
	msg, subs := b.state, b.subscribers()
	b.mu.Unlock()

	publish(subs, msg)
}

// Hide clears visibility immediately. Text and severity are kept.
func (b *Broadcaster) Hide() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++
	changed := b.state.Visible
	b.state.Visible = false
	msg, subs := b.state, b.subscribers()
	b.mu.Unlock()

	if changed {
		publish(subs, msg)
	}
}

// Current returns a snapshot of the broadcaster state.
func (b *Broadcaster) Current() Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Subscribe registers fn to be called after every state change. The returned
// function removes the subscription.
func (b *Broadcaster) Subscribe(fn func(Message)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// expire hides the message only if no Show or Hide happened since the timer
// for gen was armed.
func (b *Broadcaster) expire(gen uint64) {
	b.mu.Lock()
	if gen != b.gen || !b.state.Visible {
		b.mu.Unlock()
		return
	}
	b.timer = nil
	b.state.Visible = false
	msg, subs := b.state, b.subscribers()
	b.mu.Unlock()

	publish(subs, msg)
}

// subscribers must be called with b.mu held.
func (b *Broadcaster) subscribers() []func(Message) {
	out := make([]func(Message), 0, len(b.subs))
	for _, fn := range b.subs {
		out = append(out, fn)
	}
	return out
}

func publish(subs []func(Message), msg Message) {
	for _, fn := range subs {
		fn(msg)
	}
}

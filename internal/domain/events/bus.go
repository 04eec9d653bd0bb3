// Package events fans out app lifecycle notifications to subscribers.
package events

import (
	"sync"
	"time"

	"github.com/GriffinCanCode/seadaemon/internal/shared/id"
)

// Type names a lifecycle event
type Type string

const (
	AppInstalled    Type = "app.installed"
	AppRemoved      Type = "app.removed"
	InstanceStarted Type = "instance.started"
	InstanceStopped Type = "instance.stopped"
	OptionSet       Type = "option.set"
)

// Event is a single lifecycle notification
type Event struct {
	ID   id.EventID        `json:"id"`
	Type Type              `json:"type"`
	App  string            `json:"app,omitempty"`
	PID  int               `json:"pid,omitempty"`
	Data map[string]string `json:"data,omitempty"`
	Time time.Time         `json:"time"`
}

// DefaultBuffer is the per-subscriber queue length
const DefaultBuffer = 64

// Subscription receives events until cancelled
type Subscription struct {
	C       <-chan Event
	ch      chan Event
	bus     *Bus
	dropped uint64
}

// Dropped returns how many events were discarded because the subscriber lagged
func (s *Subscription) Dropped() uint64 {
	s.bus.mu.RLock()
	defer s.bus.mu.RUnlock()
	return s.dropped
}

// Close unsubscribes and closes the channel
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

// Bus is an in-process publisher. Publishing never blocks: a subscriber
// with a full queue misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
}

// NewBus creates a bus with the given per-subscriber buffer
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{subs: make(map[*Subscription]struct{}), buffer: buffer}
}

// Subscribe registers a new subscriber
func (b *Bus) Subscribe() *Subscription {
	ch := make(chan Event, b.buffer)
	sub := &Subscription{C: ch, ch: ch, bus: b}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

// Publish stamps and delivers an event to every subscriber
func (b *Bus) Publish(evt Event) Event {
	if b == nil {
		return evt
	}
	if evt.ID == "" {
		evt.ID = id.NewEventID()
	}
	if evt.Time.IsZero() {
		evt.Time = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		select {
		case sub.ch <- evt:
		default:
			sub.dropped++
		}
	}
	return evt
}

// Len returns the number of subscribers
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

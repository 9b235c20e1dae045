// Package transcript holds the append-only log of one run's events.
package transcript

import (
	"iter"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
)

// Callback is notified of every appended event.
type Callback func(core.RunEvent)

// Transcript is an ordered, append-only sequence of run events.
// It is safe for concurrent use.
type Transcript struct {
	mu        sync.RWMutex
	events    []core.RunEvent
	nextSeq   int
	callbacks map[int]Callback
	nextCB    int
	cbOrder   []int
	now       func() time.Time
}

// New creates an empty transcript.
func New() *Transcript {
	return &Transcript{
		nextSeq:   1,
		callbacks: make(map[int]Callback),
		now:       time.Now,
	}
}

// Append stores event at the end of the transcript and notifies observers.
// Seq is always assigned here; a zero Timestamp is filled in.
func (t *Transcript) Append(event core.RunEvent) core.RunEvent {
	t.mu.Lock()
	event.Seq = t.nextSeq
	t.nextSeq++
	if event.Timestamp.IsZero() {
		event.Timestamp = t.now()
	}
	t.events = append(t.events, event)
	callbacks := t.callbacksLocked()
	t.mu.Unlock()

	for _, cb := range callbacks {
		cb(event)
	}
	return event
}

func (t *Transcript) callbacksLocked() []Callback {
	if len(t.cbOrder) == 0 {
		return nil
	}
	out := make([]Callback, 0, len(t.cbOrder))
	for _, id := range t.cbOrder {
		out = append(out, t.callbacks[id])
	}
	return out
}

// Snapshot returns a sequence over the events present at call time.
// The sequence can be iterated any number of times.
func (t *Transcript) Snapshot() iter.Seq[core.RunEvent] {
	events := t.Events()
	return func(yield func(core.RunEvent) bool) {
		for _, e := range events {
			if !yield(e) {
				return
			}
		}
	}
}

// Events returns a copy of all events in append order.
func (t *Transcript) Events() []core.RunEvent {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]core.RunEvent, len(t.events))
	copy(out, t.events)
	return out
}

// Len returns the number of events.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.events)
}

// Clear removes every event and restarts sequence numbering.
// Observers stay registered.
func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
	t.nextSeq = 1
}

// Load replaces the contents with previously persisted events.
// Sequence numbers continue after the highest loaded Seq.
func (t *Transcript) Load(events []core.RunEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = make([]core.RunEvent, len(events))
	copy(t.events, events)
	t.nextSeq = 1
	for _, e := range events {
		if e.Seq >= t.nextSeq {
			t.nextSeq = e.Seq + 1
		}
	}
}

// OnEvent registers cb for every future append. Callbacks run synchronously
// on the appending goroutine in registration order, outside the transcript
// lock. The returned function unsubscribes; calling it twice is harmless.
func (t *Transcript) OnEvent(cb Callback) (unsubscribe func()) {
	t.mu.Lock()
	id := t.nextCB
	t.nextCB++
	t.callbacks[id] = cb
	t.cbOrder = append(t.cbOrder, id)
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.callbacks, id)
			for i, existing := range t.cbOrder {
				if existing == id {
					t.cbOrder = append(t.cbOrder[:i:i], t.cbOrder[i+1:]...)
					break
				}
			}
		})
	}
}

// Package event fans decoded records out to optional observers (the status
// server, the archive) without coupling them to the publish path.
package event

import (
	"sync"

	"github.com/p1mqtt/p1mqtt/internal/p1"
)

type Emitter struct {
	mu          sync.Mutex
	subscribers map[chan *p1.Record]struct{}
}

func NewEmitter() *Emitter {
	return &Emitter{
		subscribers: make(map[chan *p1.Record]struct{}),
	}
}

func (e *Emitter) Subscribe() chan *p1.Record {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan *p1.Record, 16)
	if e.subscribers == nil {
		// The emitter is closed; hand out an already-closed channel so a
		// late observer falls straight out of its receive loop.
		close(ch)
		return ch
	}
	e.subscribers[ch] = struct{}{}

	return ch
}

func (e *Emitter) Unsubscribe(ch chan *p1.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.subscribers[ch]; !ok {
		// Already closed, either by an earlier Unsubscribe or by Close.
		return
	}
	delete(e.subscribers, ch)
	close(ch)
}

// Emit delivers rec to every subscriber. A subscriber that cannot keep up is
// skipped; observers are best-effort and must never hold up the read loop.
func (e *Emitter) Emit(rec *p1.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for ch := range e.subscribers {
		select {
		case ch <- rec:
		default:
		}
	}
}

func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for ch := range e.subscribers {
		close(ch)
	}

	e.subscribers = nil
}

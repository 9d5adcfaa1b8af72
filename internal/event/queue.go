// Package event implements the Event Engine of spec.md §4.4: a periodic
// sweep over computed features that diffs each symbol's current snapshot
// against its previous one and raises discrete events on 6 triggers, and
// the bounded, drop-on-full, FIFO Event Queue that feeds the Signal
// Engine.
package event

import (
	"log/slog"

	"signalengine/internal/model"
)

// Queue is a bounded, drop-on-full, FIFO channel of events, per spec.md
// §4.4/§5. A full queue drops the newest event rather than blocking the
// Event Engine.
type Queue struct {
	ch      chan model.Event
	Dropped func(eventType string)
}

// NewQueue builds a Queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 10000
	}
	return &Queue{ch: make(chan model.Event, capacity)}
}

// Push enqueues ev, dropping it and counting if the queue is full.
func (q *Queue) Push(ev model.Event) {
	select {
	case q.ch <- ev:
	default:
		slog.Warn("event: queue full, dropping event", "type", ev.Type, "symbol", ev.Symbol)
		if q.Dropped != nil {
			q.Dropped(string(ev.Type))
		}
	}
}

// C exposes the receive side for a consumer to range over.
func (q *Queue) C() <-chan model.Event {
	return q.ch
}

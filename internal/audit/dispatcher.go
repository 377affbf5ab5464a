package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls how the dispatcher buffers events.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Stats counts dispatcher outcomes since construction.
type Stats struct {
	Delivered uint64
	Dropped   uint64
}

// Dispatcher hands events to a sink on a single background worker, so sinks
// see events in emission order. A nil *Dispatcher discards everything.
type Dispatcher struct {
	sink     Sink
	dropFull bool

	// mu guards queue against a send racing the close in Close.
	mu       sync.RWMutex
	queue    chan Event
	shutdown bool
	finished chan struct{}

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewDispatcher starts the worker. It returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:     sink,
		dropFull: cfg.DropIfFull,
		queue:    make(chan Event, max(cfg.BufferSize, 1)),
		finished: make(chan struct{}),
	}
	go d.work()
	return d
}

func (d *Dispatcher) work() {
	defer close(d.finished)
	for event := range d.queue {
		d.sink.Emit(context.Background(), event)
		d.delivered.Add(1)
	}
}

// Emit queues event. When the buffer is full it drops the event if DropIfFull
// is set and otherwise waits for room or for ctx to end.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.shutdown {
		return
	}

	select {
	case d.queue <- event:
		return
	default:
	}
	if d.dropFull {
		d.dropped.Add(1)
		return
	}

	var cancelled <-chan struct{}
	if ctx != nil {
		cancelled = ctx.Done()
	}
	select {
	case d.queue <- event:
	case <-cancelled:
		d.dropped.Add(1)
	}
}

// Close rejects further events and returns once everything already queued
// has reached the sink. It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}

	d.mu.Lock()
	if !d.shutdown {
		d.shutdown = true
		close(d.queue)
	}
	d.mu.Unlock()

	<-d.finished
}

func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
	}
}

package authcore

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher moves events off the request path onto a single worker
// that feeds the sink in arrival order. A nil *auditDispatcher is valid and
// discards everything.
type auditDispatcher struct {
	sink       AuditSink
	queue      chan AuditEvent
	dropOnFull bool

	// mu orders sends against Close so nothing is sent on a closed queue.
	mu       sync.RWMutex
	stopped  bool
	finished chan struct{}

	dropped atomic.Uint64
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		sink:       sink,
		queue:      make(chan AuditEvent, max(cfg.BufferSize, 1)),
		dropOnFull: cfg.DropIfFull,
		finished:   make(chan struct{}),
	}
	go d.work()
	return d
}

func (d *auditDispatcher) work() {
	defer close(d.finished)
	for event := range d.queue {
		d.deliver(event)
	}
}

// deliver isolates the worker from a misbehaving sink; a panicking Emit
// costs one event, not the dispatcher.
func (d *auditDispatcher) deliver(event AuditEvent) {
	defer func() {
		if recover() != nil {
			d.dropped.Add(1)
		}
	}()
	d.sink.Emit(context.Background(), event)
}

// Emit queues event for the sink. With DropIfFull a full buffer drops the
// event and counts it; otherwise Emit waits for room until ctx is done.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return
	}

	if d.dropOnFull {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	}
}

// Close refuses further events, then waits until the queued ones reach the
// sink. It is safe to call more than once.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}

	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()

	<-d.finished
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

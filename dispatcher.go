package esc

import (
	"context"
	"sync"
	"time"
)

// Dispatcher reliably drives every committed event to an IPublisher exactly
// once per successful publish, tolerating process restarts. It runs as a
// single cooperative worker: a mutex-guarded FIFO queue plus a
// timer-driven poll loop.
//
// The queue is guarded by a mutex rather than modeled as a channel because
// the contract requires peek-without-removing semantics on publish
// failure (leave the event at the head of the queue and stop the tick's
// progress to preserve order) — a plain channel can't express that without
// a side buffer, so a mutex-guarded slice models it directly.
type Dispatcher struct {
	storage   IStorage
	publisher IPublisher
	logger    ILogger
	interval  time.Duration

	mu      sync.Mutex
	pending []Event

	stopCh chan struct{}
	doneCh chan struct{}
}

// newDispatcher constructs a Dispatcher bound to the given collaborators.
// It does not start the poll loop; call Start for that.
func newDispatcher(storage IStorage, publisher IPublisher, logger ILogger, interval time.Duration) *Dispatcher {
	return &Dispatcher{
		storage:   storage,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start performs recovery — seeding the queue from
// Storage.GetUndispatchedEvents — then spawns the poll loop goroutine.
// This makes commit-then-crash safe: persisted Dispatched=false events are
// found and re-dispatched on the next Start.
func (d *Dispatcher) Start(ctx context.Context) error {
	backlog, err := d.storage.GetUndispatchedEvents(ctx)
	if err != nil {
		return &BackendError{Op: "GetUndispatchedEvents", Err: err}
	}

	d.mu.Lock()
	d.pending = append(d.pending, backlog...)
	d.mu.Unlock()

	if len(backlog) > 0 {
		d.logger.Info("dispatcher: recovered undispatched events from storage")
	}

	go d.loop(ctx)
	return nil
}

// AddUndispatchedEvents appends batch, in order, to the pending queue. It is
// the enqueue entry point used by Store.commit after a successful
// Storage.AddEvents.
func (d *Dispatcher) AddUndispatchedEvents(batch []Event) {
	if len(batch) == 0 {
		return
	}
	d.mu.Lock()
	d.pending = append(d.pending, batch...)
	d.mu.Unlock()
}

// Stop requests the loop to exit after the current tick finishes; any
// in-flight publish is allowed to complete. Queued events remain
// Dispatched=false in Storage and will be picked up on the next Start.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	<-d.doneCh
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.doneCh)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

// tick drains the pending queue head-first, publishing each event in FIFO
// order. On the first publish failure it logs and stops, leaving the
// failed event (and everything behind it) queued for the next tick — this
// preserves per-stream and cross-commit ordering exactly as enqueued.
func (d *Dispatcher) tick(ctx context.Context) {
	for {
		d.mu.Lock()
		if len(d.pending) == 0 {
			d.mu.Unlock()
			return
		}
		ev := d.pending[0]
		d.mu.Unlock()

		if err := d.publisher.Publish(ctx, ev); err != nil {
			d.logger.Warn("dispatcher: publish failed, will retry next tick")
			return
		}

		if err := d.storage.SetEventToDispatched(ctx, ev); err != nil {
			d.logger.Error("dispatcher: failed to mark event dispatched after successful publish")
			return
		}

		d.mu.Lock()
		if len(d.pending) > 0 && sameEvent(d.pending[0], ev) {
			d.pending = d.pending[1:]
		}
		d.mu.Unlock()
	}
}

// sameEvent identifies an event by its commit identity, which is stable and
// unique once assigned at commit time.
func sameEvent(a, b Event) bool {
	return a.StreamID == b.StreamID && a.CommitID == b.CommitID && a.CommitSequence == b.CommitSequence
}

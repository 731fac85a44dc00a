package audit

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrBufferFull      = errors.New("audit buffer full")
	ErrPublisherClosed = errors.New("audit publisher closed")
)

// Dispatcher decouples callers from a slow Publisher. Publish only enqueues;
// a single goroutine forwards events in order. Events that do not fit in the
// buffer are dropped.
type Dispatcher struct {
	next    Publisher
	ch      chan Event
	wg      sync.WaitGroup
	onError func(Event, error)

	// mu orders enqueues against close(ch)
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the forwarding goroutine. onError may be nil.
func NewDispatcher(next Publisher, bufferSize int, onError func(Event, error)) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if next == nil {
		next = NopPublisher{}
	}

	d := &Dispatcher{
		next:    next,
		ch:      make(chan Event, bufferSize),
		onError: onError,
	}

	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for event := range d.ch {
		// the request that produced the event may be gone by now
		if err := d.next.Publish(context.Background(), event); err != nil && d.onError != nil {
			d.onError(event, err)
		}
	}
}

// Publish never blocks. It fails with ErrBufferFull when the backlog is full.
func (d *Dispatcher) Publish(_ context.Context, event Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrPublisherClosed
	}

	select {
	case d.ch <- event:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops accepting events, forwards what is buffered and then closes the
// underlying publisher.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()

	d.wg.Wait()
	return d.next.Close()
}

package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingPublisher struct {
	release chan struct{}

	mu     sync.Mutex
	events []Event
	closed bool
	err    error
}

func (p *blockingPublisher) Publish(_ context.Context, event Event) error {
	if p.release != nil {
		<-p.release
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *blockingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *blockingPublisher) snapshot() ([]Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...), p.closed
}

func TestDispatcher_PublishDoesNotWaitForBroker(t *testing.T) {
	next := &blockingPublisher{release: make(chan struct{})}
	d := NewDispatcher(next, 4, nil)

	start := time.Now()
	require.NoError(t, d.Publish(context.Background(), NewEvent(EventTypeRefresh, "u-1", OutcomeSuccess, "")))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(next.release)
	require.NoError(t, d.Close())

	events, closed := next.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeRefresh, events[0].Type)
	assert.True(t, closed)
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	next := &blockingPublisher{release: make(chan struct{})}
	d := NewDispatcher(next, 1, nil)

	// the worker takes at most one event off the channel while blocked,
	// so three publishes must overflow a buffer of one
	var full int
	for i := 0; i < 3; i++ {
		if errors.Is(d.Publish(context.Background(), NewEvent(EventTypeLogin, "u-1", OutcomeSuccess, "")), ErrBufferFull) {
			full++
		}
	}
	assert.GreaterOrEqual(t, full, 1)

	close(next.release)
	require.NoError(t, d.Close())
}

func TestDispatcher_CloseDrainsBacklog(t *testing.T) {
	next := &blockingPublisher{}
	d := NewDispatcher(next, 16, nil)

	for i := 0; i < 10; i++ {
		require.NoError(t, d.Publish(context.Background(), NewEvent(EventTypeLogout, "u-1", OutcomeSuccess, "")))
	}
	require.NoError(t, d.Close())

	events, _ := next.snapshot()
	assert.Len(t, events, 10)
	assert.ErrorIs(t, d.Publish(context.Background(), NewEvent(EventTypeLogout, "u-1", OutcomeSuccess, "")), ErrPublisherClosed)
	assert.NoError(t, d.Close())
}

func TestDispatcher_ReportsDeliveryErrors(t *testing.T) {
	next := &blockingPublisher{err: errors.New("broker down")}

	var (
		mu     sync.Mutex
		failed []Event
	)
	d := NewDispatcher(next, 4, func(event Event, err error) {
		mu.Lock()
		defer mu.Unlock()
		failed = append(failed, event)
	})

	require.NoError(t, d.Publish(context.Background(), NewEvent(EventTypeRevoke, "u-2", OutcomeSuccess, "")))
	require.NoError(t, d.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, failed, 1)
	assert.Equal(t, "u-2", failed[0].UserID)
}

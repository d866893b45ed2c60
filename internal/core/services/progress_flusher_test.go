package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	portssvc "github.com/ilpaylabs/ilpay_backend/internal/core/ports/services"
)

// collectingSink gathers persisted progress events behind a mutex so the test
// can read them after Close.
type collectingSink struct {
	mu     sync.Mutex
	events []portssvc.PayProgress
}

func (c *collectingSink) persist(p portssvc.PayProgress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, p)
}

func (c *collectingSink) all() []portssvc.PayProgress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]portssvc.PayProgress(nil), c.events...)
}

func TestProgressFlusherCoalescesWithinWindow(t *testing.T) {
	sink := &collectingSink{}
	// A window far longer than the test keeps every event pending until Close.
	flusher := newProgressFlusher(time.Hour, sink.persist)

	for i := uint64(1); i <= 50; i++ {
		flusher.Record(portssvc.PayProgress{AmountSent: i * 10, AmountDelivered: i * 9})
	}
	flusher.Close()

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, uint64(500), events[0].AmountSent)
	assert.Equal(t, uint64(450), events[0].AmountDelivered)
}

func TestProgressFlusherFlushesPeriodically(t *testing.T) {
	sink := &collectingSink{}
	flusher := newProgressFlusher(time.Millisecond, sink.persist)

	flusher.Record(portssvc.PayProgress{AmountSent: 10, AmountDelivered: 9})
	time.Sleep(20 * time.Millisecond)
	flusher.Record(portssvc.PayProgress{AmountSent: 20, AmountDelivered: 18})
	flusher.Close()

	events := sink.all()
	require.NotEmpty(t, events)
	assert.Equal(t, portssvc.PayProgress{AmountSent: 10, AmountDelivered: 9}, events[0])
	assert.Equal(t, portssvc.PayProgress{AmountSent: 20, AmountDelivered: 18}, events[len(events)-1])
}

func TestProgressFlusherRecordNeverBlocks(t *testing.T) {
	sink := &collectingSink{}
	flusher := newProgressFlusher(time.Hour, sink.persist)

	// Far more events than the internal buffer holds.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := uint64(1); i <= 10000; i++ {
			flusher.Record(portssvc.PayProgress{AmountSent: i, AmountDelivered: i})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Record blocked on a full buffer")
	}
	flusher.Close()

	events := sink.all()
	require.NotEmpty(t, events)
	// Cumulative amounts: the last persisted event is one of the newest.
	assert.Greater(t, events[len(events)-1].AmountSent, uint64(9000))
}

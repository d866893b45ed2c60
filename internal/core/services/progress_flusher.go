package services

import (
	"time"

	portssvc "github.com/ilpaylabs/ilpay_backend/internal/core/ports/services"
)

// progressFlusher is a bounded-rate sink for partial-progress events. Events
// arriving within the debounce window are coalesced to the newest one and
// persisted at most once per window, so a tiny max-packet-amount cannot flood
// the progress store. Close flushes any pending event before returning, so the
// final update is never dropped and always lands while the payment row lock is
// still held.
type progressFlusher struct {
	events  chan portssvc.PayProgress
	stopped chan struct{}
}

func newProgressFlusher(interval time.Duration, persist func(portssvc.PayProgress)) *progressFlusher {
	f := &progressFlusher{
		events:  make(chan portssvc.PayProgress, 64),
		stopped: make(chan struct{}),
	}
	go f.run(interval, persist)
	return f
}

// Record enqueues a progress event without blocking the sender. When the
// buffer is full the oldest event is discarded; amounts are cumulative, so a
// newer event supersedes everything before it.
func (f *progressFlusher) Record(p portssvc.PayProgress) {
	select {
	case f.events <- p:
	default:
		select {
		case <-f.events:
		default:
		}
		select {
		case f.events <- p:
		default:
		}
	}
}

// Close stops the flusher and blocks until the last pending event has been
// persisted.
func (f *progressFlusher) Close() {
	close(f.events)
	<-f.stopped
}

func (f *progressFlusher) run(interval time.Duration, persist func(portssvc.PayProgress)) {
	defer close(f.stopped)

	timer := time.NewTimer(interval)
	if !timer.Stop() {
		<-timer.C
	}
	var timerC <-chan time.Time
	var pending *portssvc.PayProgress

	for {
		select {
		case p, ok := <-f.events:
			if !ok {
				if pending != nil {
					persist(*pending)
				}
				return
			}
			latest := p
			pending = &latest
			if timerC == nil {
				timer.Reset(interval)
				timerC = timer.C
			}
		case <-timerC:
			timerC = nil
			if pending != nil {
				persist(*pending)
				pending = nil
			}
		}
	}
}

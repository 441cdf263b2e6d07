package storage

import (
	"sync"
	"time"

	v1 "github.com/klubi/inkwell/pkg/apis/v1"
)

// subscriber is an internal subscription to service events.
type subscriber struct {
	ch chan v1.Event
}

// broadcaster fans events out to subscribers. Slow subscribers lose events
// rather than stalling the service.
type broadcaster struct {
	mu     sync.Mutex
	subs   []*subscriber
	closed bool
}

// Subscribe returns a channel of service events. The returned cancel
// function removes the subscription and closes the channel.
//
// A subscriber that arrives after hydration does not receive the
// storage:ready event; check IsHydrated or WaitForStorage instead.
func (s *Service) Subscribe() (<-chan v1.Event, func()) {
	return s.events.subscribe()
}

func (b *broadcaster) subscribe() (<-chan v1.Event, func()) {
	sub := &subscriber{ch: make(chan v1.Event, 64)}

	b.mu.Lock()
	if b.closed {
		close(sub.ch)
		b.mu.Unlock()
		return sub.ch, func() {}
	}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, existing := range b.subs {
			if existing == sub {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				close(sub.ch)
				return
			}
		}
	}
	return sub.ch, cancel
}

func (b *broadcaster) emit(evt v1.Event) {
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- evt:
		default:
			// Drop event if the subscriber is not consuming fast enough.
		}
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
	b.closed = true
}

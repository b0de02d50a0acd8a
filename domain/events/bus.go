// Package events implements the in-process domain event bus (spec §4.1):
// a bounded broadcast channel that fans out SystemEvents to N independent
// subscribers, lossy under slow consumers. It is adapted from the
// teacher's system/events.Dispatcher — that type queued ContractEvents
// into one shared channel consumed by a worker pool sharing the same
// handler set; here every subscriber needs its own cursor over the same
// stream (a rule-engine listener falling behind must not slow down the
// webhook dispatcher's view of the same events), so the single shared
// channel became a shared ring buffer with per-subscriber read cursors,
// keeping the same "count and continue, never block the publisher"
// contract.
package events

import (
	"context"
	"errors"
	"sync"
)

// ErrNoSubscribers is returned by Publish when the bus currently has no
// subscribers. Callers log and ignore it per spec §4.1.
var ErrNoSubscribers = errors.New("events: no subscribers")

// ErrClosed is returned by Recv once the bus has been closed and the
// subscriber has drained every buffered event.
var ErrClosed = errors.New("events: bus closed")

// LaggedError reports that N events were dropped for this subscriber
// before it could keep up with the publish rate.
type LaggedError struct {
	N uint64
}

func (e *LaggedError) Error() string {
	return "events: subscriber lagged"
}

// Bus is a bounded broadcast channel. The zero value is not usable; use
// New.
type Bus struct {
	mu      sync.Mutex
	cond    *sync.Cond
	cap     int
	ring    []SystemEvent
	nextSeq uint64 // sequence number of the next event to be written
	closed  bool

	subscribers map[*subscriber]struct{}
}

type subscriber struct {
	cursor uint64 // next sequence number this subscriber wants to read
}

// New creates a Bus with the given buffer capacity (spec §6.3
// event_bus.buffer, default 100).
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 100
	}
	b := &Bus{
		cap:         capacity,
		ring:        make([]SystemEvent, capacity),
		subscribers: make(map[*subscriber]struct{}),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Publish appends event to the ring buffer and wakes any blocked
// subscribers. It never blocks on a slow consumer: once the buffer is
// full, the oldest unread event is simply overwritten, and subscribers
// who had not yet read it observe a LaggedError on their next Recv.
func (b *Bus) Publish(event SystemEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("events: bus closed")
	}
	b.ring[b.nextSeq%uint64(b.cap)] = event
	b.nextSeq++
	if len(b.subscribers) == 0 {
		b.cond.Broadcast()
		return ErrNoSubscribers
	}
	b.cond.Broadcast()
	return nil
}

// Subscription is a per-consumer cursor over the bus.
type Subscription struct {
	bus *Bus
	sub *subscriber
}

// Subscribe registers a new subscriber starting at the current write
// position (it only sees events published after this call).
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &subscriber{cursor: b.nextSeq}
	b.subscribers[sub] = struct{}{}
	return &Subscription{bus: b, sub: sub}
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subscribers, s.sub)
}

// Recv blocks until the next event is available, ctx is cancelled, or the
// bus is closed. If this subscriber fell behind and events were
// overwritten before it read them, Recv returns a *LaggedError and
// advances the cursor past the gap so the caller can log-and-continue
// per spec §4.1.
func (s *Subscription) Recv(ctx context.Context) (SystemEvent, error) {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		oldest := uint64(0)
		if b.nextSeq > uint64(b.cap) {
			oldest = b.nextSeq - uint64(b.cap)
		}
		if s.sub.cursor < oldest {
			dropped := oldest - s.sub.cursor
			s.sub.cursor = oldest
			return SystemEvent{}, &LaggedError{N: dropped}
		}
		if s.sub.cursor < b.nextSeq {
			ev := b.ring[s.sub.cursor%uint64(b.cap)]
			s.sub.cursor++
			return ev, nil
		}
		if b.closed {
			return SystemEvent{}, ErrClosed
		}

		// Wait for Publish or Close, but remain cancellable via ctx.
		waitDone := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				b.mu.Lock()
				b.cond.Broadcast()
				b.mu.Unlock()
			case <-waitDone:
			}
		}()
		b.cond.Wait()
		close(waitDone)
		if ctx.Err() != nil {
			return SystemEvent{}, ctx.Err()
		}
	}
}

// Close shuts the bus down; blocked subscribers wake with ErrClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}

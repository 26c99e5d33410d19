// Package events implements the typed auth-event bus. The HTTP layer
// publishes fatal auth failures here; the application shell, the session
// manager, and the pollers subscribe independently, so none of them has to be
// wired to the others.
package events

import (
	"sync"
	"time"
)

// AuthEventKind classifies the broadcast.
type AuthEventKind string

const (
	// KindSessionTerminated covers revoked sessions and invalid/expired
	// refresh tokens: the session is gone, re-login required.
	KindSessionTerminated AuthEventKind = "session_terminated"

	// KindSessionReplaced means another device took over the session.
	KindSessionReplaced AuthEventKind = "session_replaced"

	// KindAccountSuspended means the account itself was suspended.
	KindAccountSuspended AuthEventKind = "account_suspended"
)

// AuthEvent is the payload broadcast on fatal auth failures.
type AuthEvent struct {
	Kind      AuthEventKind
	Code      string
	RequestID string
	At        time.Time
}

// Bus is a typed publish/subscribe channel for AuthEvents. Publishing never
// blocks: a subscriber whose buffer is full misses the event, which is
// acceptable because every fatal event carries the same remediation (stop,
// clear, re-login).
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan AuthEvent
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan AuthEvent)}
}

// Subscribe registers a new subscriber with the given buffer size and returns
// its channel plus an unsubscribe function. Unsubscribing closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan AuthEvent, func()) {
	if buffer < 1 {
		buffer = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan AuthEvent, buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every current subscriber without blocking.
func (b *Bus) Publish(ev AuthEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

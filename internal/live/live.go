// Package live fans out newly appended or status-updated messages to
// in-process subscribers of a conversation. Best-effort only: with no
// subscriber registered an event is dropped, not queued — consumers
// that need history read the ledger.
package live

import (
	"sync"

	"github.com/pentacloud/warelay/internal/store"
)

// Listener receives one message per publish.
type Listener func(msg *store.Message)

type subscription struct {
	id int
	fn Listener
}

// Channel is a per-conversation listener registry.
type Channel struct {
	mu   sync.RWMutex
	subs map[string][]subscription
	next int
}

// New creates an empty channel.
func New() *Channel {
	return &Channel{
		subs: make(map[string][]subscription),
	}
}

// Subscribe registers a listener for one conversation id. The returned
// function removes it; calling it more than once is harmless, and a
// listener may unsubscribe itself from within its own invocation.
func (c *Channel) Subscribe(conversationID string, fn Listener) func() {
	c.mu.Lock()
	id := c.next
	c.next++
	c.subs[conversationID] = append(c.subs[conversationID], subscription{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		subs := c.subs[conversationID]
		for i, s := range subs {
			if s.id == id {
				c.subs[conversationID] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(c.subs[conversationID]) == 0 {
			delete(c.subs, conversationID)
		}
	}
}

// SubscribeChan registers a buffered channel subscriber. Delivery is
// non-blocking: events beyond the buffer are dropped rather than
// stalling the publisher.
func (c *Channel) SubscribeChan(conversationID string, bufSize int) (<-chan *store.Message, func()) {
	ch := make(chan *store.Message, bufSize)
	unsub := c.Subscribe(conversationID, func(msg *store.Message) {
		select {
		case ch <- msg:
		default:
		}
	})
	return ch, unsub
}

// Publish invokes every registered listener for the conversation
// synchronously, in registration order. Iterates over a snapshot so
// listeners may unsubscribe mid-publish.
func (c *Channel) Publish(conversationID string, msg *store.Message) {
	c.mu.RLock()
	snapshot := make([]subscription, len(c.subs[conversationID]))
	copy(snapshot, c.subs[conversationID])
	c.mu.RUnlock()

	for _, s := range snapshot {
		s.fn(msg)
	}
}

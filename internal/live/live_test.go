package live

import (
	"testing"
	"time"

	"github.com/pentacloud/warelay/internal/store"
)

func TestPublishReachesSubscriber(t *testing.T) {
	c := New()
	var got []*store.Message
	unsub := c.Subscribe("+1555", func(msg *store.Message) {
		got = append(got, msg)
	})
	defer unsub()

	c.Publish("+1555", &store.Message{ID: "m1"})

	if len(got) != 1 || got[0].ID != "m1" {
		t.Errorf("got %v, want one message m1", got)
	}
}

func TestPublishScopedToConversation(t *testing.T) {
	c := New()
	var got int
	unsub := c.Subscribe("+1555", func(*store.Message) { got++ })
	defer unsub()

	c.Publish("+1999", &store.Message{ID: "other"})

	if got != 0 {
		t.Errorf("listener received %d events for another conversation", got)
	}
}

func TestRegistrationOrder(t *testing.T) {
	c := New()
	var order []string
	u1 := c.Subscribe("+1555", func(*store.Message) { order = append(order, "first") })
	defer u1()
	u2 := c.Subscribe("+1555", func(*store.Message) { order = append(order, "second") })
	defer u2()

	c.Publish("+1555", &store.Message{})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("order = %v", order)
	}
}

func TestUnsubscribe(t *testing.T) {
	c := New()
	var got int
	unsub := c.Subscribe("+1555", func(*store.Message) { got++ })
	unsub()
	unsub() // double unsubscribe is harmless

	c.Publish("+1555", &store.Message{})

	if got != 0 {
		t.Errorf("received %d events after unsubscribe", got)
	}
}

// TestUnsubscribeDuringPublish covers a listener removing itself from
// within its own invocation.
func TestUnsubscribeDuringPublish(t *testing.T) {
	c := New()
	var got int
	var unsub func()
	unsub = c.Subscribe("+1555", func(*store.Message) {
		got++
		unsub()
	})

	c.Publish("+1555", &store.Message{})
	c.Publish("+1555", &store.Message{})

	if got != 1 {
		t.Errorf("got %d invocations, want 1", got)
	}
}

func TestNoSubscriberDrops(t *testing.T) {
	c := New()
	// Must not panic or queue anything.
	c.Publish("+1555", &store.Message{ID: "dropped"})
}

func TestSubscribeChan(t *testing.T) {
	c := New()
	ch, unsub := c.SubscribeChan("+1555", 2)
	defer unsub()

	c.Publish("+1555", &store.Message{ID: "m1"})

	select {
	case msg := <-ch:
		if msg.ID != "m1" {
			t.Errorf("got %q, want m1", msg.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestSubscribeChanDropsOnFullBuffer(t *testing.T) {
	c := New()
	ch, unsub := c.SubscribeChan("+1555", 1)
	defer unsub()

	c.Publish("+1555", &store.Message{ID: "one"})
	// Buffer full; dropped rather than blocking the publisher.
	c.Publish("+1555", &store.Message{ID: "two"})

	msg := <-ch
	if msg.ID != "one" {
		t.Errorf("got %q, want one", msg.ID)
	}
	select {
	case msg := <-ch:
		t.Errorf("unexpected second message %q", msg.ID)
	default:
	}
}

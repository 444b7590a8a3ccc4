package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindMessagePending, Timestamp: time.Now(), Payload: "tmp-1"})

	select {
	case evt := <-ch:
		if evt.Kind != KindMessagePending {
			t.Errorf("got kind %q, want %s", evt.Kind, KindMessagePending)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("rt.", 10)
	defer unsub()

	b.Emit(KindPresenceChanged, nil)
	b.Emit(KindRTMessageReceived, nil)

	select {
	case evt := <-ch:
		if evt.Kind != KindRTMessageReceived {
			t.Errorf("got kind %q, want %s", evt.Kind, KindRTMessageReceived)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmitStampsTime(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 1)
	defer unsub()

	before := time.Now()
	b.Emit(KindSyncConnected, nil)
	evt := <-ch
	if evt.Timestamp.Before(before) {
		t.Errorf("timestamp %v is before publish time %v", evt.Timestamp, before)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 10)
	unsub()
	// Calling twice must be harmless (deferred and explicit unsubscribe).
	unsub()

	b.Emit(KindSessionStatusChanged, nil)

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
	if n := b.Subscribers(); n != 0 {
		t.Errorf("Subscribers() = %d, want 0", n)
	}
}

// TestRemountDoesNotDuplicate verifies that a listener detached and attached
// again receives each event once, not once per historical attach.
func TestRemountDoesNotDuplicate(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe("rt.", 10)
	unsub()
	ch, unsub2 := b.Subscribe("rt.", 10)
	defer unsub2()

	b.Emit(KindRTMessageReceived, nil)

	<-ch
	select {
	case evt := <-ch:
		t.Errorf("duplicate delivery: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	b.Publish(Event{Kind: "test.one"})
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
}

func TestNilBusPublish(t *testing.T) {
	var b *Bus
	b.Emit(KindMessagePending, nil)
}

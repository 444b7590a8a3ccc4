package realtime

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/rishta/internal/backend"
	"github.com/matheus3301/rishta/internal/bus"
	"github.com/matheus3301/rishta/internal/status"
)

func mustEnvelope(t *testing.T, event string, data any) backend.Envelope {
	t.Helper()
	env, err := backend.NewEnvelope(event, data)
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func next(t *testing.T, ch <-chan bus.Event) bus.Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return bus.Event{}
	}
}

func TestConnectedFromBooting(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := NewEventHandler(b, m, zap.NewNop())

	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	h.Dialing()
	h.Connected()

	if m.Current() != status.Syncing {
		t.Errorf("state = %s, want SYNCING", m.Current())
	}
	if evt := next(t, ch); evt.Kind != bus.KindSyncConnected {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.KindSyncConnected)
	}
}

func TestReconnectPath(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := NewEventHandler(b, m, zap.NewNop())

	if err := m.Walk(status.Connecting, status.Syncing, status.Ready); err != nil {
		t.Fatal(err)
	}

	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	h.Disconnected(errors.New("read: EOF"))
	if m.Current() != status.Reconnecting {
		t.Fatalf("state = %s, want RECONNECTING", m.Current())
	}
	if got := m.Snapshot().Reason; got != "read: EOF" {
		t.Errorf("reason = %q, want read: EOF", got)
	}
	evt := next(t, ch)
	if evt.Kind != bus.KindSyncDisconnected {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.KindSyncDisconnected)
	}

	h.Dialing()
	h.Connected()
	if m.Current() != status.Syncing {
		t.Errorf("state = %s, want SYNCING (reconnect path)", m.Current())
	}
}

func TestUnauthorizedRequiresAuth(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := NewEventHandler(b, m, zap.NewNop())

	h.Dialing()
	h.Unauthorized()

	if m.Current() != status.AuthRequired {
		t.Errorf("state = %s, want AUTH_REQUIRED", m.Current())
	}
}

func TestHandlePublishesRealtimeEvents(t *testing.T) {
	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	msg := backend.Message{ID: "m1", ClientID: "tmp-1", Sender: "bob", Receiver: "alice", Text: "hi", CreatedAt: at}

	tests := []struct {
		name  string
		event string
		data  any
		kind  string
		check func(t *testing.T, payload any)
	}{
		{
			name:  "msg-receive",
			event: backend.EventMsgReceive,
			data:  backend.MessageEnvelope{Message: msg},
			kind:  bus.KindRTMessageReceived,
			check: func(t *testing.T, payload any) {
				m, ok := payload.(backend.Message)
				if !ok || m.ID != "m1" || m.Text != "hi" {
					t.Errorf("payload = %#v", payload)
				}
			},
		},
		{
			name:  "msg-sent without clientId falls back to the message",
			event: backend.EventMsgSent,
			data:  backend.MessageSent{Message: msg},
			kind:  bus.KindRTMessageSent,
			check: func(t *testing.T, payload any) {
				p, ok := payload.(backend.MessageSent)
				if !ok || p.ClientID != "tmp-1" {
					t.Errorf("payload = %#v", payload)
				}
			},
		},
		{
			name:  "typing",
			event: backend.EventTyping,
			data:  backend.Pair{From: "bob", To: "alice"},
			kind:  bus.KindRTTyping,
		},
		{
			name:  "stop-typing",
			event: backend.EventStopTyping,
			data:  backend.Pair{From: "bob", To: "alice"},
			kind:  bus.KindRTStopTyping,
		},
		{
			name:  "delete-chat",
			event: backend.EventDeleteChat,
			data:  backend.Pair{From: "bob", To: "alice"},
			kind:  bus.KindRTChatDeleted,
		},
		{
			name:  "user-online",
			event: backend.EventUserOnline,
			data:  backend.PresenceEvent{UserID: "bob", At: at},
			kind:  bus.KindRTUserOnline,
			check: func(t *testing.T, payload any) {
				p, ok := payload.(backend.PresenceEvent)
				if !ok || p.UserID != "bob" || !p.At.Equal(at) {
					t.Errorf("payload = %#v", payload)
				}
			},
		},
		{
			name:  "user-offline",
			event: backend.EventUserOffline,
			data:  backend.PresenceEvent{UserID: "bob"},
			kind:  bus.KindRTUserOffline,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bus.New()
			h := NewEventHandler(b, status.NewMachine(b), zap.NewNop())
			ch, unsub := b.Subscribe("rt.", 10)
			defer unsub()

			h.Handle(mustEnvelope(t, tt.event, tt.data))

			evt := next(t, ch)
			if evt.Kind != tt.kind {
				t.Fatalf("event kind = %q, want %q", evt.Kind, tt.kind)
			}
			if tt.check != nil {
				tt.check(t, evt.Payload)
			}
		})
	}
}

func TestHandleDropsMalformedAndUnknown(t *testing.T) {
	b := bus.New()
	h := NewEventHandler(b, status.NewMachine(b), zap.NewNop())
	ch, unsub := b.Subscribe("rt.", 10)
	defer unsub()

	h.Handle(backend.Envelope{Event: backend.EventMsgReceive, Data: []byte(`{"message":`)})
	h.Handle(backend.Envelope{Event: "profile-viewed", Data: []byte(`{}`)})
	h.Handle(mustEnvelope(t, backend.EventUserOnline, backend.PresenceEvent{}))

	select {
	case evt := <-ch:
		t.Fatalf("unexpected event %q", evt.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

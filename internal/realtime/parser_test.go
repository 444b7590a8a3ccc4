package realtime

import (
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/rishta/internal/backend"
	"github.com/matheus3301/rishta/internal/chat"
)

func TestParseMessage(t *testing.T) {
	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	m := ParseMessage(backend.Message{
		ID:          "m1",
		ClientID:    "tmp-1",
		Sender:      "alice",
		Receiver:    "bob",
		Text:        "hello",
		ReplyTo:     "m0",
		CreatedAt:   at,
		Attachments: []backend.Attachment{{Name: "a.jpg", URL: "https://cdn/a.jpg", MIMEType: "image/jpeg", Size: 10}},
	})

	if m.ID != "m1" || m.TempID != "tmp-1" || m.State != chat.Confirmed {
		t.Errorf("ids/state = %q %q %q", m.ID, m.TempID, m.State)
	}
	if m.SenderID != "alice" || m.ReceiverID != "bob" || m.Text != "hello" || m.ReplyTo != "m0" {
		t.Errorf("message = %+v", m)
	}
	if !m.Timestamp.Equal(at) {
		t.Errorf("timestamp = %v, want %v", m.Timestamp, at)
	}
	if len(m.Attachments) != 1 || m.Attachments[0].URL != "https://cdn/a.jpg" || m.Attachments[0].Preview != "" {
		t.Errorf("attachments = %+v", m.Attachments)
	}
}

func TestToStoreMessageKeysByCounterpart(t *testing.T) {
	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		msg    backend.Message
		peer   string
		fromMe bool
	}{
		{"sent by viewer", backend.Message{ID: "m1", Sender: "alice", Receiver: "bob", CreatedAt: at}, "bob", true},
		{"received by viewer", backend.Message{ID: "m2", Sender: "bob", Receiver: "alice", CreatedAt: at}, "bob", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := ToStoreMessage(tt.msg, "alice")
			if sm.PeerID != tt.peer {
				t.Errorf("peer = %q, want %q", sm.PeerID, tt.peer)
			}
			if sm.FromMe != tt.fromMe {
				t.Errorf("from_me = %v, want %v", sm.FromMe, tt.fromMe)
			}
			if sm.Timestamp != at.UnixMilli() {
				t.Errorf("timestamp = %d, want %d", sm.Timestamp, at.UnixMilli())
			}
		})
	}
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name string
		msg  backend.Message
		want string
	}{
		{"text", backend.Message{Text: "hello"}, "hello"},
		{"file only", backend.Message{Attachments: []backend.Attachment{{Name: "bio.pdf"}}}, "[file] bio.pdf"},
		{"empty", backend.Message{}, ""},
		{"long text", backend.Message{Text: strings.Repeat("x", 100)}, strings.Repeat("x", 80)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Preview(tt.msg); got != tt.want {
				t.Errorf("Preview() = %q, want %q", got, tt.want)
			}
		})
	}
}

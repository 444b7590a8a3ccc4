package realtime

import (
	"github.com/matheus3301/rishta/internal/backend"
	"github.com/matheus3301/rishta/internal/chat"
	"github.com/matheus3301/rishta/internal/store"
)

// ParseMessage converts a backend message into a confirmed timeline entry.
func ParseMessage(m backend.Message) chat.Message {
	out := chat.Message{
		ID:         m.ID,
		TempID:     m.ClientID,
		SenderID:   m.Sender,
		ReceiverID: m.Receiver,
		Text:       m.Text,
		Timestamp:  m.CreatedAt,
		ReplyTo:    m.ReplyTo,
		State:      chat.Confirmed,
	}
	for _, a := range m.Attachments {
		out.Attachments = append(out.Attachments, chat.Attachment{
			Name: a.Name,
			URL:  a.URL,
			MIME: a.MIMEType,
			Size: a.Size,
		})
	}
	return out
}

// ParseHistory converts a fetched history page, oldest first.
func ParseHistory(msgs []backend.Message) []chat.Message {
	out := make([]chat.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ParseMessage(m))
	}
	return out
}

// ToStoreMessage converts a backend message into its cached row as seen by
// viewer. The conversation key is the counterpart.
func ToStoreMessage(m backend.Message, viewer string) *store.Message {
	fromMe := m.Sender == viewer
	peer := m.Sender
	if fromMe {
		peer = m.Receiver
	}
	sm := &store.Message{
		PeerID:      peer,
		MsgID:       m.ID,
		ClientMsgID: m.ClientID,
		SenderID:    m.Sender,
		ReceiverID:  m.Receiver,
		Body:        m.Text,
		ReplyTo:     m.ReplyTo,
		FromMe:      fromMe,
		Status:      store.StatusConfirmed,
		Timestamp:   m.CreatedAt.UnixMilli(),
	}
	for _, a := range m.Attachments {
		sm.Attachments = append(sm.Attachments, store.Attachment{
			Name: a.Name,
			URL:  a.URL,
			MIME: a.MIMEType,
			Size: a.Size,
		})
	}
	return sm
}

// Preview is the conversation-list preview of a message: its text, or the
// first attachment name for a file-only message.
func Preview(m backend.Message) string {
	if m.Text != "" {
		return store.Truncate(m.Text, 80)
	}
	if len(m.Attachments) > 0 {
		return "[file] " + m.Attachments[0].Name
	}
	return ""
}

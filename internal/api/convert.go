package api

import (
	"time"

	"github.com/matheus3301/rishta/internal/chat"
	"github.com/matheus3301/rishta/internal/rpc"
	"github.com/matheus3301/rishta/internal/store"
)

func messageToRPC(m chat.Message, viewer string) rpc.Message {
	out := rpc.Message{
		ID:         m.ID,
		ClientID:   m.TempID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Text:       m.Text,
		Timestamp:  m.Timestamp,
		ReplyTo:    m.ReplyTo,
		State:      string(m.State),
		Error:      m.Error,
		FromMe:     m.SenderID == viewer,
	}
	for _, a := range m.Attachments {
		out.Attachments = append(out.Attachments, rpc.Attachment{
			Name:    a.Name,
			URL:     a.URL,
			Preview: a.Preview,
			MIME:    a.MIME,
			Size:    a.Size,
		})
	}
	return out
}

func timelineToRPC(s chat.Snapshot) *rpc.Timeline {
	out := &rpc.Timeline{
		Viewer:   s.Viewer,
		Peer:     s.Peer,
		Epoch:    s.Epoch,
		Messages: make([]rpc.Message, 0, len(s.Messages)),
	}
	for _, m := range s.Messages {
		out.Messages = append(out.Messages, messageToRPC(m, s.Viewer))
	}
	return out
}

func conversationToRPC(c store.Conversation) rpc.Conversation {
	return rpc.Conversation{
		PeerID:             c.PeerID,
		Name:               c.Name,
		Avatar:             c.Avatar,
		UnreadCount:        c.UnreadCount,
		LastMessageAt:      fromMillis(c.LastMessageAt),
		LastMessagePreview: c.LastMessagePreview,
	}
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Package chat holds the visible message list of the open conversation and
// reconciles optimistic sends, socket deliveries and fetched history into it.
package chat

import (
	"slices"
	"time"
)

// State is the delivery state of a message in the timeline.
type State string

const (
	Pending   State = "pending"
	Confirmed State = "confirmed"
	Failed    State = "failed"
)

// Attachment is a file carried by a message. Preview is a local handle
// (preview://<uuid>) that is valid until revoked; URL is the remote copy.
type Attachment struct {
	Name    string
	URL     string
	Preview string
	MIME    string
	Size    int64
}

// Message is one entry of a timeline. ID is the server id and stays empty
// until the backend confirms the message; TempID is the client id assigned
// at send time.
type Message struct {
	ID          string
	TempID      string
	SenderID    string
	ReceiverID  string
	Text        string
	Timestamp   time.Time
	Attachments []Attachment
	ReplyTo     string
	State       State
	Error       string
}

// Key returns the server id, or the temporary id for unconfirmed entries.
func (m Message) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.TempID
}

// Counterpart returns the other participant from viewer's point of view.
func (m Message) Counterpart(viewer string) string {
	if m.SenderID == viewer {
		return m.ReceiverID
	}
	return m.SenderID
}

// PreviewHandles lists the local preview handles the message references.
func (m Message) PreviewHandles() []string {
	var out []string
	for _, a := range m.Attachments {
		if a.Preview != "" {
			out = append(out, a.Preview)
		}
	}
	return out
}

func (m Message) clone() Message {
	m.Attachments = slices.Clone(m.Attachments)
	return m
}

// Outcome reports what a reconciliation step did to the timeline.
type Outcome int

const (
	// Ignored: the message belongs to a conversation that is not open.
	Ignored Outcome = iota
	// Replaced: a pending entry was swapped in place for the server record.
	Replaced
	// Appended: the message was added at the end.
	Appended
	// Duplicate: the server id was already present; nothing changed.
	Duplicate
	// Rejected: the message failed the sender/receiver identity check.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Ignored:
		return "ignored"
	case Replaced:
		return "replaced"
	case Appended:
		return "appended"
	case Duplicate:
		return "duplicate"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Changed reports whether the outcome modified the timeline.
func (o Outcome) Changed() bool {
	return o == Replaced || o == Appended
}

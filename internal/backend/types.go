package backend

import (
	"encoding/json"
	"time"
)

// Attachment is a file stored by the backend.
type Attachment struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	MIMEType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Message is a chat message as the backend stores it.
type Message struct {
	ID          string       `json:"_id"`
	ClientID    string       `json:"clientId,omitempty"`
	Sender      string       `json:"sender"`
	Receiver    string       `json:"receiver"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ReplyTo     string       `json:"replyTo,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Contact is one entry of the chat contact list.
type Contact struct {
	ID            string    `json:"_id"`
	Name          string    `json:"name"`
	Avatar        string    `json:"avatar,omitempty"`
	LastMessage   string    `json:"lastMessage,omitempty"`
	LastMessageAt time.Time `json:"lastMessageAt,omitzero"`
	UnreadCount   int       `json:"unreadCount"`
	Online        bool      `json:"online"`
}

// Profile is a member profile.
type Profile struct {
	ID            string   `json:"_id"`
	Name          string   `json:"name"`
	Age           int      `json:"age,omitempty"`
	Gender        string   `json:"gender,omitempty"`
	Religion      string   `json:"religion,omitempty"`
	Community     string   `json:"community,omitempty"`
	Location      string   `json:"location,omitempty"`
	Profession    string   `json:"profession,omitempty"`
	Education     string   `json:"education,omitempty"`
	About         string   `json:"about,omitempty"`
	Avatar        string   `json:"avatar,omitempty"`
	Photos        []string `json:"photos,omitempty"`
	Liked         bool     `json:"liked,omitempty"`
	Shortlisted   bool     `json:"shortlisted,omitempty"`
	Blocked       bool     `json:"blocked,omitempty"`
	RequestStatus string   `json:"requestStatus,omitempty"`
}

// ProfileUpdate carries the editable profile fields; nil fields are left
// unchanged.
type ProfileUpdate struct {
	About      *string `json:"about,omitempty"`
	Location   *string `json:"location,omitempty"`
	Profession *string `json:"profession,omitempty"`
	Education  *string `json:"education,omitempty"`
}

// MatchPage is one page of a matches tab.
type MatchPage struct {
	Profiles []Profile `json:"profiles"`
	Page     int       `json:"page"`
	HasMore  bool      `json:"hasMore"`
}

// Request is a connection request between two members.
type Request struct {
	ID        string    `json:"_id"`
	From      Profile   `json:"from"`
	To        Profile   `json:"to"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// Request states as reported by the backend.
const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestRejected = "rejected"
	RequestDeleted  = "deleted"
)

// Presence is one user's presence as returned by the poll endpoint.
type Presence struct {
	UserID   string    `json:"userId"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen,omitzero"`
}

// Socket event names.
const (
	EventAddUser     = "add-user"
	EventSendMsg     = "send-msg"
	EventMsgSent     = "msg-sent"
	EventMsgReceive  = "msg-receive"
	EventTyping      = "typing"
	EventStopTyping  = "stop-typing"
	EventUserOnline  = "user-online"
	EventUserOffline = "user-offline"
	EventDeleteChat  = "delete-chat"
)

// Envelope frames every socket event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes data into an envelope for event.
func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

// AddUser registers the connection for a user.
type AddUser struct {
	UserID string `json:"userId"`
}

// MessageEnvelope carries a message on send-msg and msg-receive.
type MessageEnvelope struct {
	Message Message `json:"message"`
}

// MessageSent acknowledges delivery of a message sent by this user.
type MessageSent struct {
	ClientID string  `json:"clientId"`
	Message  Message `json:"message"`
}

// Pair names the two sides of typing and delete-chat events.
type Pair struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// PresenceEvent is the payload of user-online and user-offline.
type PresenceEvent struct {
	UserID string    `json:"userId"`
	At     time.Time `json:"at,omitzero"`
}

package rpc

import (
	"encoding/json"
	"time"

	"github.com/matheus3301/rishta/internal/backend"
)

// Empty is the request or response of calls that carry nothing.
type Empty struct{}

// Session service messages.

type StatusResponse struct {
	Session           string    `json:"session"`
	State             string    `json:"state"`
	Reason            string    `json:"reason,omitempty"`
	Since             time.Time `json:"since"`
	Viewer            string    `json:"viewer,omitempty"`
	LoggedIn          bool      `json:"loggedIn"`
	ExpiresAt         time.Time `json:"expiresAt,omitzero"`
	Connected         bool      `json:"connected"`
	UptimeMs          int64     `json:"uptimeMs"`
	ConversationCount int       `json:"conversationCount"`
	MessageCount      int       `json:"messageCount"`
	PreviewsLive      int       `json:"previewsLive"`
}

type LoginRequest struct {
	Token string `json:"token"`
}

type LoginResponse struct {
	Viewer    string    `json:"viewer"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

type WatchRequest struct {
	// Prefix filters events by kind, e.g. "message." or "" for everything.
	Prefix string `json:"prefix"`
}

// Event is a daemon event forwarded to a watcher.
type Event struct {
	Kind      string          `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Conversations service messages.

type Conversation struct {
	PeerID             string    `json:"peerId"`
	Name               string    `json:"name"`
	Avatar             string    `json:"avatar,omitempty"`
	UnreadCount        int       `json:"unreadCount"`
	LastMessageAt      time.Time `json:"lastMessageAt,omitzero"`
	LastMessagePreview string    `json:"lastMessagePreview,omitempty"`
	Online             bool      `json:"online"`
	Typing             bool      `json:"typing"`
}

type ListConversationsRequest struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
}

type PeerRequest struct {
	Peer string `json:"peer"`
}

type OpenResponse struct {
	Epoch  uint64 `json:"epoch"`
	Count  int    `json:"count"`
	Cached bool   `json:"cached"`
}

type PresenceResponse struct {
	Peer   string    `json:"peer"`
	Online bool      `json:"online"`
	Known  bool      `json:"known"`
	At     time.Time `json:"at,omitzero"`
	Source string    `json:"source,omitempty"`
	Typing bool      `json:"typing"`
}

// Messages service messages.

type Attachment struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	Preview string `json:"preview,omitempty"`
	MIME    string `json:"mime,omitempty"`
	Size    int64  `json:"size,omitempty"`
}

// Message is one timeline entry. ID is empty until the backend confirms
// the send; ClientID is assigned when the message is submitted.
type Message struct {
	ID          string       `json:"id,omitempty"`
	ClientID    string       `json:"clientId,omitempty"`
	SenderID    string       `json:"senderId"`
	ReceiverID  string       `json:"receiverId"`
	Text        string       `json:"text"`
	Timestamp   time.Time    `json:"timestamp,omitzero"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ReplyTo     string       `json:"replyTo,omitempty"`
	State       string       `json:"state"`
	Error       string       `json:"error,omitempty"`
	FromMe      bool         `json:"fromMe"`
}

type Timeline struct {
	Viewer   string    `json:"viewer"`
	Peer     string    `json:"peer"`
	Epoch    uint64    `json:"epoch"`
	Messages []Message `json:"messages"`
}

type SendRequest struct {
	Peer    string `json:"peer"`
	Text    string `json:"text"`
	ReplyTo string `json:"replyTo,omitempty"`
	// Attachments lists preview handles of staged files to send. Staged
	// files not listed are dropped from the draft.
	Attachments []string `json:"attachments,omitempty"`
}

type SendResponse struct {
	ClientID string `json:"clientId"`
}

type ClientIDRequest struct {
	ClientID string `json:"clientId"`
}

type IDRequest struct {
	ID string `json:"id"`
}

type SearchRequest struct {
	Query string `json:"query"`
	Peer  string `json:"peer,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type SearchResult struct {
	PeerID    string    `json:"peerId"`
	MessageID string    `json:"messageId"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	Snippet   string    `json:"snippet"`
	Timestamp time.Time `json:"timestamp"`
	FromMe    bool      `json:"fromMe"`
}

type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

type StageRequest struct {
	Peer string `json:"peer"`
	Path string `json:"path"`
}

type StagedFile struct {
	Handle string `json:"handle"`
	Name   string `json:"name"`
	MIME   string `json:"mime"`
	Size   int64  `json:"size"`
}

type HandleRequest struct {
	Handle string `json:"handle"`
}

type DraftResponse struct {
	Peer  string       `json:"peer"`
	Files []StagedFile `json:"files"`
}

// Discovery service messages reuse the backend's profile and request
// shapes.

type ProfileRequest struct {
	ID string `json:"id"`
}

type MatchesRequest struct {
	Tab   string `json:"tab"`
	Page  int    `json:"page,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type RequestsRequest struct {
	Box string `json:"box"`
}

type RequestsResponse struct {
	Requests []backend.Request `json:"requests"`
}

type ConnectRequest struct {
	To string `json:"to"`
}

type RequestActionRequest struct {
	ID string `json:"id"`
	// Action is accept, reject, restore or delete.
	Action string `json:"action"`
}

type RequestActionResponse struct {
	Request *backend.Request `json:"request,omitempty"`
}

type ToggleRequest struct {
	UserID string `json:"userId"`
	Undo   bool   `json:"undo"`
}

package store

// Conversation is a cached chat contact.
type Conversation struct {
	PeerID             string
	Name               string
	Avatar             string
	UnreadCount        int
	LastMessageAt      int64
	LastMessagePreview string
}

// Attachment is stored as JSON inside its message or outbox row.
type Attachment struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	Preview string `json:"preview,omitempty"`
	Path    string `json:"path,omitempty"`
	MIME    string `json:"mime,omitempty"`
	Size    int64  `json:"size,omitempty"`
}

// Message statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

// Message represents a cached message.
type Message struct {
	ID          int64
	PeerID      string
	MsgID       string
	ClientMsgID string
	SenderID    string
	ReceiverID  string
	Body        string
	ReplyTo     string
	Attachments []Attachment
	FromMe      bool
	Status      string
	Timestamp   int64
}

// Outbox statuses.
const (
	OutboxQueued  = "queued"
	OutboxSending = "sending"
	OutboxSent    = "sent"
	OutboxFailed  = "failed"
)

// OutboxEntry represents an outgoing message and its delivery state.
type OutboxEntry struct {
	ID           int64
	ClientMsgID  string
	PeerID       string
	Body         string
	ReplyTo      string
	Attachments  []Attachment
	Status       string // queued, sending, sent, failed
	ErrorMessage string
	ServerMsgID  string
	Attempts     int
	CreatedAt    int64
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}

package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. The prefix before the first dot is the namespace that
// subscribers filter on.
const (
	// Raw realtime events decoded from the platform socket.
	KindRTMessageReceived = "rt.message_received"
	KindRTMessageSent     = "rt.message_sent"
	KindRTTyping          = "rt.typing"
	KindRTStopTyping      = "rt.stop_typing"
	KindRTUserOnline      = "rt.user_online"
	KindRTUserOffline     = "rt.user_offline"
	KindRTChatDeleted     = "rt.chat_deleted"

	// Connection lifecycle of the socket.
	KindSyncConnected    = "sync.connected"
	KindSyncDisconnected = "sync.disconnected"
	KindSyncReconciled   = "sync.reconciled"

	// Timeline changes, consumed by the TUI through WatchEvents.
	KindMessagePending   = "message.pending"
	KindMessageConfirmed = "message.confirmed"
	KindMessageFailed    = "message.failed"
	KindMessageUpserted  = "message.upserted"
	KindMessageRemoved   = "message.removed"
	KindTimelineLoaded   = "message.timeline_loaded"

	KindConversationUpdated = "conversation.updated"
	KindConversationDeleted = "conversation.deleted"
	KindPresenceChanged     = "presence.changed"
	KindTypingChanged       = "typing.changed"

	KindSessionStatusChanged = "session.status_changed"
	KindSessionLoggedIn      = "session.logged_in"
	KindSessionLoggedOut     = "session.logged_out"
)

// Package realtime keeps the platform socket connected and turns its
// events into bus events for the sync engine.
package realtime

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/matheus3301/rishta/internal/backend"
	"github.com/matheus3301/rishta/internal/bus"
	"github.com/matheus3301/rishta/internal/metrics"
	"github.com/matheus3301/rishta/internal/status"
)

// EventHandler decodes socket envelopes, drives the state machine and
// publishes rt.* events on the bus. It does NOT touch the timeline; the
// sync engine subscribes to the bus independently.
type EventHandler struct {
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(b *bus.Bus, machine *status.Machine, logger *zap.Logger) *EventHandler {
	return &EventHandler{bus: b, machine: machine, logger: logger}
}

// Dialing is called before every connection attempt.
func (h *EventHandler) Dialing() {
	if err := h.machine.Walk(status.Connecting); err != nil {
		h.logger.Debug("state not moved to connecting", zap.Error(err))
	}
}

// Connected is called once add-user has been sent on a fresh connection.
func (h *EventHandler) Connected() {
	h.logger.Info("socket connected")
	if err := h.machine.Walk(status.Connecting, status.Syncing); err != nil {
		h.logger.Warn("unexpected state on connect", zap.Error(err))
	}
	h.bus.Emit(bus.KindSyncConnected, nil)
}

// Disconnected is called when a connection attempt or an open connection
// fails; reconnection follows.
func (h *EventHandler) Disconnected(err error) {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	h.logger.Warn("socket disconnected", zap.String("reason", reason))
	_ = h.machine.TransitionReason(status.Reconnecting, reason)
	h.bus.Emit(bus.KindSyncDisconnected, reason)
}

// Unauthorized is called when the backend rejects the bearer token. The
// socket stops until a new token is supplied.
func (h *EventHandler) Unauthorized() {
	h.logger.Warn("socket rejected the bearer token")
	_ = h.machine.TransitionReason(status.AuthRequired, "token rejected by backend")
}

// Handle decodes one envelope and publishes it.
func (h *EventHandler) Handle(env backend.Envelope) {
	metrics.SocketEvents.WithLabelValues("in", env.Event).Inc()

	switch env.Event {
	case backend.EventMsgReceive:
		var p backend.MessageEnvelope
		if h.decode(env, &p) {
			h.bus.Emit(bus.KindRTMessageReceived, p.Message)
		}
	case backend.EventMsgSent:
		var p backend.MessageSent
		if h.decode(env, &p) {
			if p.ClientID == "" {
				p.ClientID = p.Message.ClientID
			}
			h.bus.Emit(bus.KindRTMessageSent, p)
		}
	case backend.EventTyping, backend.EventStopTyping, backend.EventDeleteChat:
		var p backend.Pair
		if h.decode(env, &p) {
			h.bus.Emit(pairKinds[env.Event], p)
		}
	case backend.EventUserOnline, backend.EventUserOffline:
		var p backend.PresenceEvent
		if h.decode(env, &p) && p.UserID != "" {
			kind := bus.KindRTUserOnline
			if env.Event == backend.EventUserOffline {
				kind = bus.KindRTUserOffline
			}
			h.bus.Emit(kind, p)
		}
	default:
		h.logger.Debug("ignoring socket event", zap.String("event", env.Event))
	}
}

var pairKinds = map[string]string{
	backend.EventTyping:     bus.KindRTTyping,
	backend.EventStopTyping: bus.KindRTStopTyping,
	backend.EventDeleteChat: bus.KindRTChatDeleted,
}

func (h *EventHandler) decode(env backend.Envelope, v any) bool {
	if err := json.Unmarshal(env.Data, v); err != nil {
		h.logger.Warn("malformed socket event", zap.String("event", env.Event), zap.Error(err))
		return false
	}
	return true
}

package backendtest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/matheus3301/rishta/internal/backend"
)

func writeEnvelope(ctx context.Context, c *websocket.Conn, env backend.Envelope) error {
	return wsjson.Write(ctx, c, env)
}

// serveSocket authenticates the upgrade with the bearer token and runs the
// read loop. A connection is only addressable once it sent add-user.
func (s *Server) serveSocket(w http.ResponseWriter, r *http.Request) {
	user, err := verify(r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.sockets[c] = struct{}{}
	s.mu.Unlock()

	ctx := r.Context()
	registered := false
	defer func() {
		s.mu.Lock()
		delete(s.sockets, c)
		s.mu.Unlock()
		if registered {
			s.unregister(user, c)
		}
		_ = c.CloseNow()
	}()

	for {
		var env backend.Envelope
		if err := wsjson.Read(ctx, c, &env); err != nil {
			return
		}
		s.mu.Lock()
		s.inbound = append(s.inbound, Inbound{User: user, Event: env})
		s.mu.Unlock()

		switch env.Event {
		case backend.EventAddUser:
			if !registered {
				registered = true
				s.register(user, c)
			}
		case backend.EventSendMsg:
			s.relayMessage(user, env.Data)
		case backend.EventTyping, backend.EventStopTyping, backend.EventDeleteChat:
			var p backend.Pair
			if json.Unmarshal(env.Data, &p) != nil || p.To == "" {
				continue
			}
			p.From = user
			s.Push(p.To, env.Event, p)
		}
	}
}

// relayMessage forwards a message the client already posted over REST to
// the receiver, and acknowledges it on the sender's sockets.
func (s *Server) relayMessage(user string, data json.RawMessage) {
	var in backend.MessageEnvelope
	if json.Unmarshal(data, &in) != nil || in.Message.Receiver == "" {
		return
	}
	m := in.Message
	m.Sender = user

	s.mu.Lock()
	for _, stored := range s.messages {
		if stored.ID == m.ID && m.ID != "" {
			m = stored
			break
		}
	}
	mute := s.muteAcks
	s.mu.Unlock()

	s.Push(m.Receiver, backend.EventMsgReceive, backend.MessageEnvelope{Message: m})
	if !mute {
		s.Push(user, backend.EventMsgSent, backend.MessageSent{ClientID: in.Message.ClientID, Message: m})
	}
}

func (s *Server) register(user string, c *websocket.Conn) {
	s.mu.Lock()
	first := len(s.conns[user]) == 0
	if s.conns[user] == nil {
		s.conns[user] = make(map[*websocket.Conn]struct{})
	}
	s.conns[user][c] = struct{}{}
	s.mu.Unlock()
	if first {
		s.broadcast(user, backend.EventUserOnline, backend.PresenceEvent{UserID: user, At: time.Now().UTC()})
	}
}

func (s *Server) unregister(user string, c *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns[user], c)
	last := len(s.conns[user]) == 0
	if last {
		delete(s.conns, user)
	}
	s.mu.Unlock()
	if last {
		s.broadcast(user, backend.EventUserOffline, backend.PresenceEvent{UserID: user, At: time.Now().UTC()})
	}
}

// broadcast pushes an event to every registered user except about.
func (s *Server) broadcast(about, event string, data any) {
	s.mu.Lock()
	users := make([]string, 0, len(s.conns))
	for u := range s.conns {
		if u != about {
			users = append(users, u)
		}
	}
	s.mu.Unlock()
	for _, u := range users {
		s.Push(u, event, data)
	}
}

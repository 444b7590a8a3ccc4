// Package backendtest runs an in-process fake of the platform backend:
// the REST API on gorilla/mux and the realtime socket on coder/websocket.
package backendtest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"

	"github.com/matheus3301/rishta/internal/backend"
)

// Secret signs the tokens the fake accepts.
const Secret = "backendtest-secret"

// Claims is the token payload the fake issues and verifies.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Token mints a valid bearer token for userID.
func Token(userID string) string {
	return mint(userID, time.Now().Add(time.Hour))
}

// ExpiredToken mints a token that expired a minute ago.
func ExpiredToken(userID string) string {
	return mint(userID, time.Now().Add(-time.Minute))
}

func mint(userID string, exp time.Time) string {
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "backendtest",
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(Secret))
	if err != nil {
		panic(err)
	}
	return s
}

func verify(header string) (string, error) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", errors.New("authorization required")
	}
	token, err := jwt.ParseWithClaims(parts[1], &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(Secret), nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return "", errors.New("invalid token")
	}
	return claims.UserID, nil
}

// Inbound is a socket event the fake received from a client.
type Inbound struct {
	User  string
	Event backend.Envelope
}

// Upload is a file received with a message.
type Upload struct {
	MessageID string
	Name      string
	MIME      string
	Size      int64
}

type failure struct {
	remaining int
	status    int
	message   string
}

type presence struct {
	online   bool
	lastSeen time.Time
}

// Server is the fake backend. Its zero value is not usable; call New.
type Server struct {
	*httptest.Server

	epoch time.Time

	mu        sync.Mutex
	seq       int
	profiles  map[string]backend.Profile
	messages  []backend.Message
	requests  map[string]*backend.Request
	likes     map[[2]string]bool
	shortlist map[[2]string]bool
	blocks    map[[2]string]bool
	presence  map[string]presence
	conns     map[string]map[*websocket.Conn]struct{}
	inbound   []Inbound
	uploads   []Upload
	sendFail  failure
	muteAcks  bool
	served    []string
	sockets   map[*websocket.Conn]struct{}
}

// New starts a fake backend that is closed when the test ends.
func New(t testing.TB) *Server {
	s := &Server{
		epoch:     time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
		profiles:  make(map[string]backend.Profile),
		requests:  make(map[string]*backend.Request),
		likes:     make(map[[2]string]bool),
		shortlist: make(map[[2]string]bool),
		blocks:    make(map[[2]string]bool),
		presence:  make(map[string]presence),
		conns:     make(map[string]map[*websocket.Conn]struct{}),
		sockets:   make(map[*websocket.Conn]struct{}),
	}
	s.Server = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

// Close drops every socket and stops the server.
func (s *Server) Close() {
	s.DropConnections()
	s.Server.Close()
}

// SocketURL returns the ws:// URL of the realtime endpoint.
func (s *Server) SocketURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.serveSocket).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/profile/me", s.getMe).Methods(http.MethodGet)
	api.HandleFunc("/profile/me", s.updateMe).Methods(http.MethodPut)
	api.HandleFunc("/profiles/{id}", s.getProfile).Methods(http.MethodGet)
	api.HandleFunc("/matches", s.listMatches).Methods(http.MethodGet)
	api.HandleFunc("/requests", s.listRequests).Methods(http.MethodGet)
	api.HandleFunc("/requests", s.createRequest).Methods(http.MethodPost)
	api.HandleFunc("/requests/{id}/{action:accept|reject|restore}", s.actOnRequest).Methods(http.MethodPost)
	api.HandleFunc("/requests/{id}", s.deleteRequest).Methods(http.MethodDelete)
	api.HandleFunc("/likes/{userId}", s.toggle(s.likes)).Methods(http.MethodPost, http.MethodDelete)
	api.HandleFunc("/shortlist/{userId}", s.toggle(s.shortlist)).Methods(http.MethodPost, http.MethodDelete)
	api.HandleFunc("/blocks/{userId}", s.toggle(s.blocks)).Methods(http.MethodPost, http.MethodDelete)
	api.HandleFunc("/chat/contacts", s.listContacts).Methods(http.MethodGet)
	api.HandleFunc("/chat/messages/{peerId}", s.history).Methods(http.MethodGet)
	api.HandleFunc("/chat/messages", s.sendMessage).Methods(http.MethodPost)
	api.HandleFunc("/chat/messages/{id}", s.deleteMessage).Methods(http.MethodDelete)
	api.HandleFunc("/chat/conversations/{peerId}", s.deleteConversation).Methods(http.MethodDelete)
	api.HandleFunc("/presence", s.getPresence).Methods(http.MethodGet)

	r.Use(s.recordMiddleware)
	return r
}

// nextLocked returns a fresh id and a strictly increasing timestamp.
func (s *Server) nextLocked(prefix string) (string, time.Time) {
	s.seq++
	return fmt.Sprintf("%s%04d", prefix, s.seq), s.epoch.Add(time.Duration(s.seq) * time.Second)
}

// AddProfile registers a member.
func (s *Server) AddProfile(p backend.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
}

// AddMessage stores a message as if it had been sent earlier.
func (s *Server) AddMessage(from, to, text string) backend.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, at := s.nextLocked("m")
	m := backend.Message{ID: id, Sender: from, Receiver: to, Text: text, CreatedAt: at}
	s.messages = append(s.messages, m)
	return m
}

// Deliver stores a message from one member to another and pushes it to the
// receiver's sockets as msg-receive.
func (s *Server) Deliver(from, to, text string) backend.Message {
	m := s.AddMessage(from, to, text)
	s.Push(to, backend.EventMsgReceive, backend.MessageEnvelope{Message: m})
	return m
}

// Messages returns every stored message in creation order.
func (s *Server) Messages() []backend.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]backend.Message(nil), s.messages...)
}

// Uploads returns the files received with messages.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// FailSends makes the next n sends answer status with message.
func (s *Server) FailSends(n, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendFail = failure{remaining: n, status: status, message: message}
}

// MuteAcks stops msg-sent replies on the socket, so only the REST
// response acknowledges a send.
func (s *Server) MuteAcks(mute bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muteAcks = mute
}

// SetPresence overrides the polled presence of a user.
func (s *Server) SetPresence(userID string, online bool, lastSeen time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence[userID] = presence{online: online, lastSeen: lastSeen}
}

// Liked reports whether from has liked to.
func (s *Server) Liked(from, to string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.likes[[2]string{from, to}]
}

// Shortlisted reports whether from has shortlisted to.
func (s *Server) Shortlisted(from, to string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shortlist[[2]string{from, to}]
}

// Blocked reports whether from has blocked to.
func (s *Server) Blocked(from, to string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocks[[2]string{from, to}]
}

// Requests returns every connection request sorted by id.
func (s *Server) Requests() []backend.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]backend.Request, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Paths returns "METHOD /path" for every API request served, in order.
func (s *Server) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.served...)
}

// Inbound returns the socket events received from clients.
func (s *Server) Inbound() []Inbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Inbound(nil), s.inbound...)
}

// InboundEvents returns the inbound events named event.
func (s *Server) InboundEvents(event string) []Inbound {
	var out []Inbound
	for _, in := range s.Inbound() {
		if in.Event.Event == event {
			out = append(out, in)
		}
	}
	return out
}

// Connected returns the number of registered sockets of a user.
func (s *Server) Connected(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns[userID])
}

// Push sends an event to every socket registered for userID.
func (s *Server) Push(userID, event string, data any) {
	env, err := backend.NewEnvelope(event, data)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	targets := make([]*websocket.Conn, 0, len(s.conns[userID]))
	for c := range s.conns[userID] {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	for _, c := range targets {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = writeEnvelope(ctx, c, env)
		cancel()
	}
}

// DropConnections closes every socket, as a backend restart would.
func (s *Server) DropConnections() {
	s.mu.Lock()
	all := make([]*websocket.Conn, 0, len(s.sockets))
	for c := range s.sockets {
		all = append(all, c)
	}
	s.mu.Unlock()
	for _, c := range all {
		_ = c.Close(websocket.StatusGoingAway, "restart")
	}
}

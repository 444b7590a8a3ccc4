package api

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/matheus3301/rishta/internal/attach"
	"github.com/matheus3301/rishta/internal/bus"
	"github.com/matheus3301/rishta/internal/rpc"
	"github.com/matheus3301/rishta/internal/session"
	"github.com/matheus3301/rishta/internal/status"
	"github.com/matheus3301/rishta/internal/store"
)

// Auth applies a login or a logout to the running daemon.
type Auth interface {
	Login(ctx context.Context, token string) (*session.Credentials, error)
	Logout(ctx context.Context) error
}

// Connectivity reports whether the realtime socket is up.
type Connectivity interface {
	Connected() bool
}

// SessionService implements the Session gRPC service.
type SessionService struct {
	sess      *session.Session
	startedAt time.Time
	machine   *status.Machine
	auth      Auth
	socket    Connectivity
	previews  *attach.Registry
	bus       *bus.Bus
	db        *store.DB
	logger    *zap.Logger
}

// NewSessionService creates a new session service.
func NewSessionService(sess *session.Session, machine *status.Machine, auth Auth, socket Connectivity, previews *attach.Registry, b *bus.Bus, db *store.DB, logger *zap.Logger) *SessionService {
	return &SessionService{
		sess:      sess,
		startedAt: time.Now(),
		machine:   machine,
		auth:      auth,
		socket:    socket,
		previews:  previews,
		bus:       b,
		db:        db,
		logger:    logger,
	}
}

func (s *SessionService) GetStatus(_ context.Context, _ *rpc.Empty) (*rpc.StatusResponse, error) {
	snap := s.machine.Snapshot()
	resp := &rpc.StatusResponse{
		Session:  s.sess.Name(),
		State:    string(snap.State),
		Reason:   snap.Reason,
		Since:    snap.Since,
		UptimeMs: time.Since(s.startedAt).Milliseconds(),
	}
	if creds, err := s.sess.Credentials(); err == nil {
		resp.LoggedIn = true
		resp.Viewer = creds.ViewerID
		resp.ExpiresAt = creds.ExpiresAt
	}
	if s.socket != nil {
		resp.Connected = s.socket.Connected()
	}
	if s.previews != nil {
		resp.PreviewsLive = s.previews.Count()
	}

	// Populate counts from store.
	if s.db != nil {
		if convs, msgs, err := s.db.Counts(); err == nil {
			resp.ConversationCount = convs
			resp.MessageCount = msgs
		}
	}
	return resp, nil
}

func (s *SessionService) Login(ctx context.Context, req *rpc.LoginRequest) (*rpc.LoginResponse, error) {
	if err := required("token", strings.TrimSpace(req.Token)); err != nil {
		return nil, err
	}
	creds, err := s.auth.Login(ctx, req.Token)
	if err != nil {
		return nil, toStatus("login", err)
	}
	return &rpc.LoginResponse{Viewer: creds.ViewerID, ExpiresAt: creds.ExpiresAt}, nil
}

func (s *SessionService) Logout(ctx context.Context, _ *rpc.Empty) (*rpc.Empty, error) {
	if err := s.auth.Logout(ctx); err != nil {
		return nil, toStatus("logout", err)
	}
	return &rpc.Empty{}, nil
}

// WatchEvents forwards bus events whose kind starts with the requested
// prefix until the client goes away.
func (s *SessionService) WatchEvents(req *rpc.WatchRequest, stream grpc.ServerStreamingServer[rpc.Event]) error {
	ch, unsub := s.bus.Subscribe(req.Prefix, 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			out := &rpc.Event{Kind: evt.Kind, Timestamp: evt.Timestamp}
			if evt.Payload != nil {
				raw, err := json.Marshal(evt.Payload)
				if err != nil {
					s.logger.Warn("event payload not encodable", zap.String("kind", evt.Kind), zap.Error(err))
				} else {
					out.Payload = raw
				}
			}
			if err := stream.Send(out); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/matheus3301/rishta/internal/attach"
	"github.com/matheus3301/rishta/internal/bus"
	"github.com/matheus3301/rishta/internal/chat"
	"github.com/matheus3301/rishta/internal/presence"
	"github.com/matheus3301/rishta/internal/realtime"
	"github.com/matheus3301/rishta/internal/session"
	"github.com/matheus3301/rishta/internal/status"
	"github.com/matheus3301/rishta/internal/store"
)

// Runtime owns the parts of the daemon that follow the login state: the
// realtime socket, the presence poller and the session cache. It applies
// logins and logouts coming from the Session service.
type Runtime struct {
	sess     *session.Session
	db       *store.DB
	timeline *chat.Timeline
	previews *attach.Registry
	presence *presence.Cache
	socket   *realtime.Socket
	poller   *presence.Poller
	machine  *status.Machine
	bus      *bus.Bus
	logger   *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	running bool
}

// NewRuntime creates the runtime. Nothing runs until Start.
func NewRuntime(sess *session.Session, db *store.DB, timeline *chat.Timeline, previews *attach.Registry, p *presence.Cache, socket *realtime.Socket, poller *presence.Poller, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *Runtime {
	return &Runtime{
		sess:     sess,
		db:       db,
		timeline: timeline,
		previews: previews,
		presence: p,
		socket:   socket,
		poller:   poller,
		machine:  machine,
		bus:      b,
		logger:   logger,
		ctx:      context.Background(),
	}
}

// Start connects when stored credentials are usable and otherwise waits
// in AUTH_REQUIRED for a login.
func (r *Runtime) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctx = ctx

	if _, err := r.sess.Credentials(); err != nil {
		reason := "no credentials"
		if errors.Is(err, session.ErrTokenExpired) {
			reason = "stored token expired"
		}
		r.logger.Info("auth required", zap.String("reason", reason))
		r.requireAuth(reason)
		return
	}
	r.connectLocked()
}

// Stop disconnects without touching credentials or the cache.
func (r *Runtime) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnectLocked()
}

func (r *Runtime) connectLocked() {
	if r.running {
		return
	}
	r.socket.Start(r.ctx)
	r.poller.Start(r.ctx)
	r.running = true
}

func (r *Runtime) disconnectLocked() {
	if !r.running {
		return
	}
	r.socket.Stop()
	r.poller.Stop()
	r.running = false
}

// Login stores the token and reconnects as its user. Logging in as a
// different user than the cached one drops the cache first.
func (r *Runtime) Login(_ context.Context, token string) (*session.Credentials, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.sess.StoredViewerID()
	creds, err := r.sess.Login(token)
	if err != nil {
		return nil, err
	}
	r.disconnectLocked()
	switch {
	case prev != creds.ViewerID:
		if err := r.resetLocked(creds.ViewerID); err != nil {
			return nil, err
		}
	case r.timeline.Viewer() != creds.ViewerID:
		// Same user back after an expired token: keep the cache.
		r.previews.RevokeMany(r.timeline.SetViewer(creds.ViewerID))
	}
	r.logger.Info("logged in", zap.String("viewer", creds.ViewerID))
	r.bus.Emit(bus.KindSessionLoggedIn, creds.ViewerID)
	r.connectLocked()
	return creds, nil
}

// Logout disconnects, forgets the token and purges the session cache so no
// chat data outlives the session.
func (r *Runtime) Logout(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.disconnectLocked()
	if err := r.sess.Logout(); err != nil {
		return fmt.Errorf("remove credentials: %w", err)
	}
	if err := r.resetLocked(""); err != nil {
		return err
	}
	r.requireAuth("logged out")
	r.logger.Info("logged out")
	r.bus.Emit(bus.KindSessionLoggedOut, nil)
	return nil
}

// resetLocked drops everything cached for the previous viewer.
func (r *Runtime) resetLocked(viewer string) error {
	if err := r.db.Purge(); err != nil {
		return fmt.Errorf("purge cache: %w", err)
	}
	r.previews.RevokeMany(r.timeline.SetViewer(viewer))
	r.previews.RevokeAll()
	r.presence.Reset()
	r.bus.Emit(bus.KindConversationUpdated, "")
	return nil
}

func (r *Runtime) requireAuth(reason string) {
	if r.machine.Current() == status.AuthRequired {
		return
	}
	if err := r.machine.TransitionReason(status.AuthRequired, reason); err != nil {
		r.logger.Warn("state not moved to auth required", zap.Error(err))
	}
}

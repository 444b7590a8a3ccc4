package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/matheus3301/rishta/internal/backend"
	"github.com/matheus3301/rishta/internal/metrics"
)

var (
	// ErrNotConnected is returned by Emit while the socket is down.
	ErrNotConnected = errors.New("socket not connected")
	// ErrQueueFull is returned by Emit when the write queue is saturated.
	ErrQueueFull = errors.New("socket write queue full")

	errUnauthorized = errors.New("bearer token rejected")
)

// Config configures a Socket.
type Config struct {
	URL        string
	MinBackoff time.Duration
	MaxBackoff time.Duration
	QueueSize  int
}

func (c *Config) defaults() {
	if c.MinBackoff <= 0 {
		c.MinBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.MaxBackoff < c.MinBackoff {
		c.MaxBackoff = c.MinBackoff
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
}

// Socket is the single realtime connection of a session. It reconnects
// with capped exponential backoff and re-registers with add-user on every
// connection.
type Socket struct {
	cfg     Config
	token   backend.TokenFunc
	viewer  func() string
	handler *EventHandler
	logger  *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	queue  chan backend.Envelope
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSocket creates a socket. token and viewer are read on every dial so
// a new login takes effect on the next connection.
func NewSocket(cfg Config, token backend.TokenFunc, viewer func() string, h *EventHandler, logger *zap.Logger) *Socket {
	cfg.defaults()
	return &Socket{
		cfg:     cfg,
		token:   token,
		viewer:  viewer,
		handler: h,
		logger:  logger,
	}
}

// Start runs the connect loop until Stop or until the token is rejected.
// Calling Start on a running socket is a no-op.
func (s *Socket) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		select {
		case <-s.done:
		default:
			return
		}
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop closes the connection and waits for the loop to exit.
func (s *Socket) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Connected reports whether a connection is currently open.
func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Emit queues an outgoing event without blocking. Events emitted while the
// socket is down are dropped with ErrNotConnected.
func (s *Socket) Emit(event string, data any) error {
	env, err := backend.NewEnvelope(event, data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	select {
	case s.queue <- env:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Socket) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	backoff := s.cfg.MinBackoff
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			metrics.SocketReconnects.Inc()
		}
		s.handler.Dialing()
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, errUnauthorized) {
			s.handler.Unauthorized()
			return
		}
		s.handler.Disconnected(err)
		if connected {
			backoff = s.cfg.MinBackoff
		}

		s.logger.Info("reconnecting", zap.Duration("backoff", backoff))
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		backoff = min(backoff*2, s.cfg.MaxBackoff)
	}
}

// session runs one connection from dial to close. connected reports
// whether the dial succeeded.
func (s *Socket) session(ctx context.Context) (connected bool, err error) {
	token := s.token()
	if token == "" {
		return false, errUnauthorized
	}

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, resp, err := websocket.Dial(dialCtx, s.cfg.URL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + token}},
	})
	cancel()
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return false, errUnauthorized
		}
		return false, fmt.Errorf("dial: %w", err)
	}
	conn.SetReadLimit(1 << 20)
	defer func() { _ = conn.CloseNow() }()

	connCtx, stop := context.WithCancel(ctx)
	defer stop()

	if err := s.write(connCtx, conn, backend.EventAddUser, backend.AddUser{UserID: s.viewer()}); err != nil {
		return true, err
	}

	queue := make(chan backend.Envelope, s.cfg.QueueSize)
	s.mu.Lock()
	s.conn = conn
	s.queue = queue
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.queue = nil
		s.mu.Unlock()
	}()

	s.handler.Connected()

	writeErr := make(chan error, 1)
	go func() {
		for {
			select {
			case <-connCtx.Done():
				return
			case env := <-queue:
				if err := s.writeEnvelope(connCtx, conn, env); err != nil {
					writeErr <- err
					stop()
					return
				}
			}
		}
	}()

	for {
		var env backend.Envelope
		if err := wsjson.Read(connCtx, conn, &env); err != nil {
			select {
			case werr := <-writeErr:
				return true, fmt.Errorf("write: %w", werr)
			default:
			}
			return true, fmt.Errorf("read: %w", err)
		}
		s.handler.Handle(env)
	}
}

func (s *Socket) write(ctx context.Context, conn *websocket.Conn, event string, data any) error {
	env, err := backend.NewEnvelope(event, data)
	if err != nil {
		return err
	}
	return s.writeEnvelope(ctx, conn, env)
}

func (s *Socket) writeEnvelope(ctx context.Context, conn *websocket.Conn, env backend.Envelope) error {
	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := wsjson.Write(wctx, conn, env); err != nil {
		return err
	}
	metrics.SocketEvents.WithLabelValues("out", env.Event).Inc()
	return nil
}

package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/rishta/internal/api"
	"github.com/matheus3301/rishta/internal/attach"
	"github.com/matheus3301/rishta/internal/backend"
	"github.com/matheus3301/rishta/internal/bus"
	"github.com/matheus3301/rishta/internal/chat"
	"github.com/matheus3301/rishta/internal/config"
	"github.com/matheus3301/rishta/internal/lock"
	"github.com/matheus3301/rishta/internal/logging"
	"github.com/matheus3301/rishta/internal/metrics"
	"github.com/matheus3301/rishta/internal/outbox"
	"github.com/matheus3301/rishta/internal/presence"
	"github.com/matheus3301/rishta/internal/realtime"
	"github.com/matheus3301/rishta/internal/session"
	"github.com/matheus3301/rishta/internal/status"
	"github.com/matheus3301/rishta/internal/store"
	intsync "github.com/matheus3301/rishta/internal/sync"
	"github.com/matheus3301/rishta/internal/typing"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string         // optional override for testing; empty = use default
	Config      *config.Config // nil = resolve from config.toml and the environment
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideSession,
			providePreviews,
			provideTimeline,
			provideBackend,
			providePresence,
			provideTypingIndicator,
			provideSocket,
			provideTypingEmitter,
			provideSender,
			provideSyncEngine,
			providePoller,
			NewRuntime,
			provideSessionService,
			provideConversationService,
			provideMessageService,
			provideDiscoveryService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, nil
	}
	return config.Resolve(session.ConfigPath())
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName, cfg.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is never opened by a
// second daemon.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.AppDBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideSession(p Params) (*session.Session, error) {
	return session.Open(p.SessionName)
}

func providePreviews(cfg *config.Config, logger *zap.Logger) *attach.Registry {
	return attach.NewRegistry(cfg.MaxAttachmentBytes, logger.Named("attach"))
}

func provideTimeline(sess *session.Session, previews *attach.Registry) *chat.Timeline {
	return chat.NewTimeline(sess.ViewerID(), previews)
}

func provideBackend(cfg *config.Config, sess *session.Session, logger *zap.Logger) *backend.Client {
	return backend.New(backend.Config{
		BaseURL:           cfg.APIURL,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, sess.Token, logger.Named("backend"))
}

func providePresence(b *bus.Bus) *presence.Cache {
	return presence.NewCache(b)
}

func provideTypingIndicator(cfg *config.Config, b *bus.Bus) *typing.Indicator {
	return typing.NewIndicator(cfg.TypingTTL.Duration, func(peer string, on bool) {
		b.Emit(bus.KindTypingChanged, typing.Change{Peer: peer, Typing: on})
	})
}

func provideSocket(cfg *config.Config, sess *session.Session, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *realtime.Socket {
	l := logger.Named("socket")
	handler := realtime.NewEventHandler(b, machine, l)
	return realtime.NewSocket(realtime.Config{URL: cfg.SocketURL}, sess.Token, sess.ViewerID, handler, l)
}

// provideTypingEmitter sends the local typing signal over the socket. A
// signal emitted while the socket is down is dropped.
func provideTypingEmitter(cfg *config.Config, sess *session.Session, socket *realtime.Socket, logger *zap.Logger) *typing.Emitter {
	return typing.NewEmitter(cfg.TypingIdle.Duration, func(peer string, on bool) {
		event := backend.EventStopTyping
		if on {
			event = backend.EventTyping
		}
		if err := socket.Emit(event, backend.Pair{From: sess.ViewerID(), To: peer}); err != nil {
			logger.Debug("typing signal dropped", zap.String("event", event), zap.Error(err))
		}
	})
}

func provideSender(db *store.DB, client *backend.Client, socket *realtime.Socket, timeline *chat.Timeline, previews *attach.Registry, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, client, socket, timeline, previews, b, logger.Named("outbox"))
}

func provideSyncEngine(db *store.DB, client *backend.Client, timeline *chat.Timeline, previews *attach.Registry, sender *outbox.Sender, socket *realtime.Socket, p *presence.Cache, t *typing.Indicator, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(intsync.Deps{
		DB:       db,
		API:      client,
		Timeline: timeline,
		Previews: previews,
		Outbox:   sender,
		Socket:   socket,
		Presence: p,
		Typing:   t,
		Machine:  machine,
		Bus:      b,
		Logger:   logger.Named("sync"),
	})
}

func providePoller(cfg *config.Config, cache *presence.Cache, client *backend.Client, db *store.DB, logger *zap.Logger) *presence.Poller {
	return presence.NewPoller(cache, client, db, cfg.PresencePoll.Duration, logger.Named("presence"))
}

func provideSessionService(sess *session.Session, m *status.Machine, rt *Runtime, socket *realtime.Socket, previews *attach.Registry, b *bus.Bus, db *store.DB, logger *zap.Logger) *api.SessionService {
	return api.NewSessionService(sess, m, rt, socket, previews, b, db, logger)
}

func provideConversationService(db *store.DB, engine *intsync.Engine, p *presence.Cache, t *typing.Indicator) *api.ConversationService {
	return api.NewConversationService(db, engine, p, t)
}

func provideMessageService(db *store.DB, timeline *chat.Timeline, sender *outbox.Sender, engine *intsync.Engine, previews *attach.Registry, t *typing.Emitter) *api.MessageService {
	return api.NewMessageService(db, timeline, sender, engine, previews, t)
}

func provideDiscoveryService(client *backend.Client) *api.DiscoveryService {
	return api.NewDiscoveryService(client)
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, srv *Server, lk *lock.Lock, db *store.DB, rt *Runtime, engine *intsync.Engine, sender *outbox.Sender, previews *attach.Registry, indicator *typing.Indicator, emitter *typing.Emitter, logger *zap.Logger) {
	var ms *metrics.Server
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Subscribe before the socket can publish anything.
			engine.Start(ctx)
			sender.Start(ctx)

			if cfg.MetricsAddr != "" {
				ms = metrics.NewServer(cfg.MetricsAddr, logger)
				if err := ms.Start(); err != nil {
					return err
				}
			}

			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			rt.Start(ctx)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			rt.Stop()
			srv.Stop(stopCtx)
			sender.Stop()
			engine.Stop()
			cancel()
			emitter.Close()
			indicator.Close()
			if n := previews.RevokeAll(); n > 0 {
				logger.Info("preview handles revoked", zap.Int("count", n))
			}
			if ms != nil {
				if err := ms.Stop(stopCtx); err != nil {
					logger.Warn("metrics server shutdown", zap.Error(err))
				}
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}

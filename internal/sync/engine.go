// Package sync merges the realtime socket, REST history and local sends
// into the open timeline and the session cache.
package sync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/rishta/internal/attach"
	"github.com/matheus3301/rishta/internal/backend"
	"github.com/matheus3301/rishta/internal/bus"
	"github.com/matheus3301/rishta/internal/chat"
	"github.com/matheus3301/rishta/internal/metrics"
	"github.com/matheus3301/rishta/internal/presence"
	"github.com/matheus3301/rishta/internal/realtime"
	"github.com/matheus3301/rishta/internal/status"
	"github.com/matheus3301/rishta/internal/store"
	"github.com/matheus3301/rishta/internal/typing"
)

// API is the part of the backend client the engine needs.
type API interface {
	Contacts(ctx context.Context) ([]backend.Contact, error)
	History(ctx context.Context, peer string) ([]backend.Message, error)
	DeleteMessage(ctx context.Context, id string) error
	DeleteConversation(ctx context.Context, peer string) error
}

// Outbox reconciles acknowledgements and restores undelivered sends.
type Outbox interface {
	Confirm(tempID string, m backend.Message) chat.Outcome
	Restore(peer string) error
}

// Emitter writes an event on the realtime socket.
type Emitter interface {
	Emit(event string, data any) error
}

// Deps groups the engine's collaborators.
type Deps struct {
	DB       *store.DB
	API      API
	Timeline *chat.Timeline
	Previews *attach.Registry
	Outbox   Outbox
	Socket   Emitter
	Presence *presence.Cache
	Typing   *typing.Indicator
	Machine  *status.Machine
	Bus      *bus.Bus
	Logger   *zap.Logger
}

// Engine handles idempotent ingestion of realtime events and history.
// It subscribes to "rt." and "sync." events on the bus.
type Engine struct {
	Deps
	recon *Reconciler

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Result describes a conversation load.
type Result struct {
	Epoch  uint64
	Count  int
	Cached bool // served from the session cache because the fetch failed
}

// NewEngine creates a new sync engine.
func NewEngine(d Deps) *Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Engine{Deps: d, recon: NewReconciler(d.DB, d.Logger), ctx: context.Background()}
}

// Reconciler returns the checkpoint store.
func (e *Engine) Reconciler() *Reconciler { return e.recon }

// Start subscribes to realtime and connection events on the bus.
func (e *Engine) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	rt, unsubRT := e.Bus.Subscribe("rt.", 256)
	conn, unsubConn := e.Bus.Subscribe("sync.connected", 4)

	go func() {
		defer close(e.done)
		defer unsubRT()
		defer unsubConn()
		for {
			select {
			case evt := <-rt:
				e.handleEvent(evt)
			case <-conn:
				go e.reconcile(e.ctx)
			case <-e.ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch p := evt.Payload.(type) {
	case backend.Message:
		if err := e.IngestMessage(p); err != nil {
			e.Logger.Error("failed to ingest message", zap.Error(err), zap.String("msg_id", p.ID))
		}
	case backend.MessageSent:
		e.Outbox.Confirm(p.ClientID, p.Message)
	case backend.Pair:
		e.handlePair(evt.Kind, p)
	case backend.PresenceEvent:
		online := evt.Kind == bus.KindRTUserOnline
		e.Presence.Apply(p.UserID, online, p.At, presence.SourcePush)
	}
}

func (e *Engine) handlePair(kind string, p backend.Pair) {
	viewer := e.Timeline.Viewer()
	if p.To != viewer || p.From == "" {
		return
	}
	switch kind {
	case bus.KindRTTyping:
		e.Typing.Set(p.From, true)
	case bus.KindRTStopTyping:
		e.Typing.Set(p.From, false)
	case bus.KindRTChatDeleted:
		if err := e.dropConversation(p.From); err != nil {
			e.Logger.Error("failed to drop deleted conversation", zap.Error(err), zap.String("peer", p.From))
		}
	}
}

// IngestMessage merges a message pushed by the socket into the cache and,
// when its conversation is open, into the timeline.
func (e *Engine) IngestMessage(m backend.Message) error {
	viewer := e.Timeline.Viewer()
	switch viewer {
	case m.Receiver:
	case m.Sender:
		// Our own message echoed from another device: it reconciles
		// through the acknowledgement path, never as an incoming one.
		e.Outbox.Confirm(m.ClientID, m)
		return nil
	default:
		return fmt.Errorf("message %s is not addressed to %s", m.ID, viewer)
	}

	metrics.MessagesReceived.Inc()
	sm := realtime.ToStoreMessage(m, viewer)
	if err := e.DB.UpsertMessage(sm); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}
	open := e.Timeline.Peer() == m.Sender
	if err := e.DB.TouchConversation(m.Sender, realtime.Preview(m), sm.Timestamp, !open); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	// A message ends the sender's typing burst.
	e.Typing.Set(m.Sender, false)

	parsed := realtime.ParseMessage(m)
	switch outcome := e.Timeline.Receive(parsed); outcome {
	case chat.Appended:
		e.Bus.Emit(bus.KindMessageUpserted, chat.Update{Peer: m.Sender, ID: m.ID, Message: &parsed, Outcome: outcome.String()})
	case chat.Duplicate:
		metrics.DuplicatesSuppressed.WithLabelValues("receive").Inc()
	}
	e.Bus.Emit(bus.KindConversationUpdated, m.Sender)
	return nil
}

// SyncContacts replaces the cached conversation list with the backend's
// contact list and feeds its online flags to the presence cache.
func (e *Engine) SyncContacts(ctx context.Context) (int, error) {
	contacts, err := e.API.Contacts(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch contacts: %w", err)
	}
	convs := make([]store.Conversation, 0, len(contacts))
	for _, c := range contacts {
		conv := store.Conversation{
			PeerID:             c.ID,
			Name:               c.Name,
			Avatar:             c.Avatar,
			UnreadCount:        c.UnreadCount,
			LastMessagePreview: store.Truncate(c.LastMessage, 100),
		}
		if !c.LastMessageAt.IsZero() {
			conv.LastMessageAt = c.LastMessageAt.UnixMilli()
		}
		convs = append(convs, conv)
		e.Presence.Apply(c.ID, c.Online, time.Time{}, presence.SourcePoll)
	}
	if err := e.DB.ReplaceConversations(convs); err != nil {
		return 0, fmt.Errorf("store contacts: %w", err)
	}
	if err := e.recon.UpdateCheckpoint(CheckpointContacts, time.Now().UTC().Format(time.RFC3339)); err != nil {
		e.Logger.Warn("failed to update checkpoint", zap.Error(err))
	}
	e.Bus.Emit(bus.KindConversationUpdated, "")
	return len(convs), nil
}

// OpenConversation switches the timeline to peer and replaces it with the
// fetched history. The previous conversation's previews are revoked. When
// the fetch fails the cached history is shown instead and Cached is set;
// an unauthorized fetch is returned as an error.
func (e *Engine) OpenConversation(ctx context.Context, peer string) (Result, error) {
	prev := e.Timeline.Peer()
	epoch, released := e.Timeline.Open(peer)
	e.Previews.RevokeMany(released)
	if prev != "" && prev != peer {
		e.Previews.RevokeDraft(prev)
	}
	if err := e.DB.MarkRead(peer); err != nil {
		e.Logger.Warn("failed to mark conversation read", zap.Error(err), zap.String("peer", peer))
	}

	res := Result{Epoch: epoch}
	history, err := e.fetchHistory(ctx, peer)
	if err != nil {
		if backend.IsUnauthorized(err) || errors.Is(err, backend.ErrNoToken) {
			return res, err
		}
		e.Logger.Warn("history fetch failed, showing cache", zap.Error(err), zap.String("peer", peer))
		history, err = e.cachedHistory(peer)
		if err != nil {
			return res, err
		}
		res.Cached = true
	}

	if err := e.Timeline.Load(epoch, history); err != nil {
		if errors.Is(err, chat.ErrStale) {
			metrics.StaleDropped.WithLabelValues("history").Inc()
			e.Logger.Debug("dropped stale history", zap.String("peer", peer), zap.Uint64("epoch", epoch))
		}
		return res, err
	}
	if err := e.Outbox.Restore(peer); err != nil {
		e.Logger.Warn("failed to restore undelivered sends", zap.Error(err), zap.String("peer", peer))
	}
	res.Count = len(history)
	e.Bus.Emit(bus.KindTimelineLoaded, chat.Update{Peer: peer})
	return res, nil
}

// RefreshActive re-fetches the open conversation without clearing it, so
// entries that arrived or were sent meanwhile survive the load.
func (e *Engine) RefreshActive(ctx context.Context) error {
	peer, epoch := e.Timeline.Current()
	if peer == "" {
		return nil
	}
	history, err := e.fetchHistory(ctx, peer)
	if err != nil {
		return err
	}
	if err := e.Timeline.Load(epoch, history); err != nil {
		if errors.Is(err, chat.ErrStale) {
			metrics.StaleDropped.WithLabelValues("history").Inc()
			return nil
		}
		return err
	}
	e.Bus.Emit(bus.KindTimelineLoaded, chat.Update{Peer: peer})
	return nil
}

// fetchHistory loads peer's history over REST and caches it.
func (e *Engine) fetchHistory(ctx context.Context, peer string) ([]chat.Message, error) {
	msgs, err := e.API.History(ctx, peer)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	viewer := e.Timeline.Viewer()
	rows := make([]store.Message, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, *realtime.ToStoreMessage(m, viewer))
	}
	if err := e.DB.UpsertMessages(rows); err != nil {
		e.Logger.Warn("failed to cache history", zap.Error(err), zap.String("peer", peer))
	}
	return realtime.ParseHistory(msgs), nil
}

func (e *Engine) cachedHistory(peer string) ([]chat.Message, error) {
	rows, err := e.DB.ListMessages(peer, 0, 200)
	if err != nil {
		return nil, fmt.Errorf("read cached history: %w", err)
	}
	slices.Reverse(rows)
	out := make([]chat.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromStore(r))
	}
	return out, nil
}

// CloseConversation leaves the open conversation and releases its previews.
func (e *Engine) CloseConversation() {
	peer := e.Timeline.Peer()
	e.Previews.RevokeMany(e.Timeline.Close())
	if peer != "" {
		e.Previews.RevokeDraft(peer)
	}
}

// DeleteMessage removes a message locally, then on the server. A server
// failure is returned but the local removal stands.
func (e *Engine) DeleteMessage(ctx context.Context, id string) error {
	peer := ""
	if row, err := e.DB.GetMessage(id); err == nil && row != nil {
		peer = row.PeerID
	}
	m, inTimeline := e.Timeline.Remove(id)
	if inTimeline {
		e.Previews.RevokeMany(m.PreviewHandles())
		peer = m.Counterpart(e.Timeline.Viewer())
	}
	stored, err := e.DB.DeleteMessage(id)
	if err != nil {
		return fmt.Errorf("delete cached message: %w", err)
	}
	if !inTimeline && !stored {
		return chat.ErrNotFound
	}
	e.Bus.Emit(bus.KindMessageRemoved, chat.Update{Peer: peer, ID: id})

	if err := e.API.DeleteMessage(ctx, id); err != nil {
		e.Logger.Warn("server delete failed; removed locally", zap.Error(err), zap.String("msg_id", id))
		return fmt.Errorf("server delete: %w", err)
	}
	return nil
}

// DeleteConversation removes a conversation locally, tells the peer over
// the socket and deletes it on the server. A server failure is returned
// but the local removal stands.
func (e *Engine) DeleteConversation(ctx context.Context, peer string) error {
	if err := e.dropConversation(peer); err != nil {
		return err
	}
	if e.Socket != nil {
		if err := e.Socket.Emit(backend.EventDeleteChat, backend.Pair{From: e.Timeline.Viewer(), To: peer}); err != nil {
			e.Logger.Debug("delete-chat not relayed", zap.Error(err))
		}
	}
	if err := e.API.DeleteConversation(ctx, peer); err != nil {
		e.Logger.Warn("server delete failed; removed locally", zap.Error(err), zap.String("peer", peer))
		return fmt.Errorf("server delete: %w", err)
	}
	return nil
}

func (e *Engine) dropConversation(peer string) error {
	if err := e.DB.DeleteConversation(peer); err != nil {
		return fmt.Errorf("delete cached conversation: %w", err)
	}
	if e.Timeline.Peer() == peer {
		e.CloseConversation()
	}
	e.Typing.Set(peer, false)
	e.Bus.Emit(bus.KindConversationDeleted, peer)
	return nil
}

// Reconcile brings the cache and the open timeline up to date after a
// (re)connect and moves the daemon to READY, or DEGRADED on failure.
func (e *Engine) Reconcile(ctx context.Context) error {
	_, err := e.SyncContacts(ctx)
	if err == nil {
		err = e.RefreshActive(ctx)
	}
	switch {
	case err == nil:
		if werr := e.Machine.Walk(status.Ready); werr != nil {
			e.Logger.Debug("state not moved to ready", zap.Error(werr))
		}
		e.Bus.Emit(bus.KindSyncReconciled, nil)
	case backend.IsUnauthorized(err):
		_ = e.Machine.TransitionReason(status.AuthRequired, "token rejected by backend")
	default:
		_ = e.Machine.TransitionReason(status.Degraded, err.Error())
	}
	return err
}

func (e *Engine) reconcile(ctx context.Context) {
	start := time.Now()
	if err := e.Reconcile(ctx); err != nil {
		if ctx.Err() == nil {
			e.Logger.Warn("reconciliation failed", zap.Error(err))
		}
		return
	}
	e.Logger.Info("reconciled", zap.Duration("took", time.Since(start)))
}

func fromStore(r store.Message) chat.Message {
	m := chat.Message{
		ID:         r.MsgID,
		TempID:     r.ClientMsgID,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Text:       r.Body,
		Timestamp:  time.UnixMilli(r.Timestamp),
		ReplyTo:    r.ReplyTo,
		State:      chat.Confirmed,
	}
	for _, a := range r.Attachments {
		m.Attachments = append(m.Attachments, chat.Attachment{Name: a.Name, URL: a.URL, MIME: a.MIME, Size: a.Size})
	}
	return m
}

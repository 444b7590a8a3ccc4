// Package outbox owns optimistic sending: a message shows up pending at
// once, is posted over REST in the background and is then reconciled with
// the server record or marked failed.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/rishta/internal/attach"
	"github.com/matheus3301/rishta/internal/backend"
	"github.com/matheus3301/rishta/internal/bus"
	"github.com/matheus3301/rishta/internal/chat"
	"github.com/matheus3301/rishta/internal/metrics"
	"github.com/matheus3301/rishta/internal/realtime"
	"github.com/matheus3301/rishta/internal/store"
)

// ErrEmpty is returned for a draft with neither text nor attachments.
var ErrEmpty = errors.New("message has no text and no attachments")

// MessageSender posts a message to the backend.
type MessageSender interface {
	Send(ctx context.Context, m backend.Outgoing) (*backend.Message, error)
}

// Emitter writes an event on the realtime socket.
type Emitter interface {
	Emit(event string, data any) error
}

// Draft is a message the user asked to send.
type Draft struct {
	Peer        string
	Text        string
	ReplyTo     string
	Attachments []string // preview handles from the peer's draft
}

// Sender drains the outbox and sends messages through the REST API.
type Sender struct {
	db       *store.DB
	api      MessageSender
	socket   Emitter
	timeline *chat.Timeline
	previews *attach.Registry
	bus      *bus.Bus
	logger   *zap.Logger
	interval time.Duration

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSender creates a new outbox sender. socket may be nil.
func NewSender(db *store.DB, api MessageSender, socket Emitter, timeline *chat.Timeline, previews *attach.Registry, b *bus.Bus, logger *zap.Logger) *Sender {
	return &Sender{
		db:       db,
		api:      api,
		socket:   socket,
		timeline: timeline,
		previews: previews,
		bus:      b,
		logger:   logger,
		interval: 500 * time.Millisecond,
		wake:     make(chan struct{}, 1),
	}
}

// Start fails the sends a previous run left half done, then begins
// draining the outbox.
func (s *Sender) Start(ctx context.Context) {
	if n, err := s.db.ResetInterruptedOutbox(); err != nil {
		s.logger.Error("failed to reset interrupted sends", zap.Error(err))
	} else if n > 0 {
		s.logger.Warn("marked interrupted sends as failed", zap.Int64("count", n))
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop stops the sender loop and waits for an in-flight send to finish.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Sender) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-s.wake:
		case <-ctx.Done():
			return
		}
		s.processPending(ctx)
	}
}

func (s *Sender) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Submit queues a draft and shows it as pending in the open conversation.
// The returned message carries the temporary id.
func (s *Sender) Submit(d Draft) (chat.Message, error) {
	viewer := s.timeline.Viewer()
	if viewer == "" {
		return chat.Message{}, fmt.Errorf("submit: no logged-in viewer")
	}
	if strings.TrimSpace(d.Text) == "" && len(d.Attachments) == 0 {
		return chat.Message{}, ErrEmpty
	}

	staged := make([]attach.Staged, 0, len(d.Attachments))
	for _, h := range d.Attachments {
		st, err := s.previews.Get(h)
		if err != nil {
			return chat.Message{}, fmt.Errorf("attachment %s: %w", h, err)
		}
		staged = append(staged, st)
	}
	// Sending consumes the draft: the chosen handles now belong to the
	// message and the rest are released.
	for _, st := range s.previews.Take(d.Peer) {
		if !slices.Contains(d.Attachments, st.Handle) {
			s.previews.Revoke(st.Handle)
		}
	}

	var rows []store.Attachment
	var atts []chat.Attachment
	for _, st := range staged {
		rows = append(rows, store.Attachment{Name: st.Name, Preview: st.Handle, Path: st.Path, MIME: st.MIME, Size: st.Size})
		atts = append(atts, chat.Attachment{Name: st.Name, Preview: st.Handle, MIME: st.MIME, Size: st.Size})
	}

	entry := &store.OutboxEntry{
		ClientMsgID: uuid.NewString(),
		PeerID:      d.Peer,
		Body:        d.Text,
		ReplyTo:     d.ReplyTo,
		Attachments: rows,
	}
	if err := s.db.QueueOutbox(entry); err != nil {
		return chat.Message{}, fmt.Errorf("queue outbox: %w", err)
	}

	msg := chat.Message{
		TempID:      entry.ClientMsgID,
		SenderID:    viewer,
		ReceiverID:  d.Peer,
		Text:        d.Text,
		Timestamp:   time.Now(),
		Attachments: atts,
		ReplyTo:     d.ReplyTo,
		State:       chat.Pending,
	}
	if err := s.timeline.AddPending(msg); err != nil && !errors.Is(err, chat.ErrNotActive) {
		return chat.Message{}, err
	}
	s.bus.Emit(bus.KindMessagePending, chat.Update{Peer: d.Peer, TempID: msg.TempID, Message: &msg})
	s.kick()
	return msg, nil
}

// Retry puts a failed message back in the queue.
func (s *Sender) Retry(clientMsgID string) error {
	ok, err := s.db.RequeueOutbox(clientMsgID)
	if err != nil {
		return err
	}
	if !ok {
		return chat.ErrNotFailed
	}
	entry, err := s.db.GetOutbox(clientMsgID)
	if err != nil || entry == nil {
		return fmt.Errorf("reload outbox entry: %w", err)
	}

	msg, err := s.timeline.Retry(clientMsgID)
	switch {
	case errors.Is(err, chat.ErrNotFound):
		// Not on screen, e.g. after a restart: show it again if its
		// conversation is open.
		msg = pendingFromEntry(entry, s.timeline.Viewer())
		_ = s.timeline.AddPending(msg)
	case err != nil:
		return err
	}
	s.bus.Emit(bus.KindMessagePending, chat.Update{Peer: entry.PeerID, TempID: clientMsgID, Message: &msg})
	s.kick()
	return nil
}

// Discard drops a failed message and releases its previews.
func (s *Sender) Discard(clientMsgID string) error {
	entry, err := s.db.GetOutbox(clientMsgID)
	if err != nil {
		return err
	}
	if entry == nil {
		return chat.ErrNotFound
	}
	if entry.Status != store.OutboxFailed {
		return chat.ErrNotFailed
	}
	if err := s.db.DeleteOutbox(clientMsgID); err != nil {
		return err
	}
	s.timeline.Remove(clientMsgID)
	s.previews.RevokeMany(previewHandles(entry))
	s.bus.Emit(bus.KindMessageRemoved, chat.Update{Peer: entry.PeerID, TempID: clientMsgID})
	return nil
}

// Restore shows the undelivered messages of peer in the open timeline, so
// pending and failed sends survive a conversation switch or a restart. An
// entry the server already stored, as seen in the loaded history or the
// message cache, is settled as sent instead of shown again.
func (s *Sender) Restore(peer string) error {
	entries, err := s.db.UndeliveredOutbox(peer)
	if err != nil {
		return err
	}
	viewer := s.timeline.Viewer()
	for i := range entries {
		e := &entries[i]
		if serverID, ok := s.storedByServer(e.ClientMsgID); ok {
			if err := s.db.MarkOutboxSent(e.ClientMsgID, serverID); err != nil {
				return err
			}
			s.previews.RevokeMany(previewHandles(e))
			s.logger.Info("outbox entry already delivered", zap.String("client_msg_id", e.ClientMsgID), zap.String("server_msg_id", serverID))
			continue
		}
		if _, ok := s.timeline.Get(e.ClientMsgID); ok {
			continue
		}
		msg := pendingFromEntry(e, viewer)
		if err := s.timeline.AddPending(msg); err != nil {
			return err
		}
		if e.Status == store.OutboxFailed {
			s.timeline.Fail(e.ClientMsgID, e.ErrorMessage)
		}
	}
	return nil
}

func (s *Sender) storedByServer(clientMsgID string) (string, bool) {
	if m, ok := s.timeline.ConfirmedByTemp(clientMsgID); ok {
		return m.ID, true
	}
	m, err := s.db.GetMessageByClientID(clientMsgID)
	if err != nil {
		s.logger.Error("failed to look up message", zap.Error(err), zap.String("client_msg_id", clientMsgID))
		return "", false
	}
	if m == nil {
		return "", false
	}
	return m.MsgID, true
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}
	for i := range pending {
		if ctx.Err() != nil {
			return
		}
		s.send(ctx, &pending[i])
	}
}

func (s *Sender) send(ctx context.Context, entry *store.OutboxEntry) {
	if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
		s.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		return
	}

	msg, err := s.post(ctx, entry)
	if err != nil {
		if ctx.Err() != nil {
			// Shutting down: the next start reports it as interrupted.
			return
		}
		s.fail(entry, err)
		return
	}
	if msg.ClientID == "" {
		msg.ClientID = entry.ClientMsgID
	}

	metrics.MessagesSent.Inc()
	s.logger.Info("message sent", zap.String("client_msg_id", entry.ClientMsgID), zap.String("server_msg_id", msg.ID))
	s.Confirm(entry.ClientMsgID, *msg)

	if s.socket != nil {
		if err := s.socket.Emit(backend.EventSendMsg, backend.MessageEnvelope{Message: *msg}); err != nil {
			s.logger.Debug("send-msg not relayed", zap.Error(err), zap.String("server_msg_id", msg.ID))
		}
	}
}

func (s *Sender) post(ctx context.Context, entry *store.OutboxEntry) (*backend.Message, error) {
	out := backend.Outgoing{
		To:       entry.PeerID,
		Text:     entry.Body,
		ClientID: entry.ClientMsgID,
		ReplyTo:  entry.ReplyTo,
	}
	var files []io.Closer
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()
	for _, a := range entry.Attachments {
		f, err := s.previews.Open(a.Path)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
		out.Files = append(out.Files, backend.File{Name: a.Name, MIME: a.MIME, Reader: f})
	}
	return s.api.Send(ctx, out)
}

func (s *Sender) fail(entry *store.OutboxEntry, err error) {
	reason := err.Error()
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		reason = apiErr.Message
	}
	changed, merr := s.db.MarkOutboxFailed(entry.ClientMsgID, reason)
	if merr != nil {
		s.logger.Error("failed to mark failed", zap.Error(merr), zap.String("client_msg_id", entry.ClientMsgID))
	} else if !changed {
		// The socket acknowledged it while the request was failing.
		s.logger.Debug("send error after acknowledgement", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		return
	}
	s.logger.Error("failed to send message", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
	metrics.MessagesFailed.Inc()
	s.timeline.Fail(entry.ClientMsgID, reason)
	s.bus.Emit(bus.KindMessageFailed, chat.Update{Peer: entry.PeerID, TempID: entry.ClientMsgID, Error: reason})
}

// Confirm reconciles a server acknowledgement with the optimistic entry
// tempID. It is reached from the REST response and from the socket's
// msg-sent, so it must be idempotent: the second call finds the server id
// already shown and reports Duplicate.
func (s *Sender) Confirm(tempID string, m backend.Message) chat.Outcome {
	viewer := s.timeline.Viewer()
	sm := realtime.ToStoreMessage(m, viewer)
	if err := s.db.UpsertMessage(sm); err != nil {
		s.logger.Error("failed to store confirmed message", zap.Error(err), zap.String("server_msg_id", m.ID))
	}
	if err := s.db.TouchConversation(sm.PeerID, realtime.Preview(m), sm.Timestamp, false); err != nil {
		s.logger.Error("failed to touch conversation", zap.Error(err), zap.String("peer", sm.PeerID))
	}

	if tempID != "" {
		entry, err := s.db.GetOutbox(tempID)
		if err != nil {
			s.logger.Error("failed to read outbox", zap.Error(err), zap.String("client_msg_id", tempID))
		}
		if entry != nil {
			if entry.Status != store.OutboxSent {
				_ = s.db.MarkOutboxSent(tempID, m.ID)
			}
			s.previews.RevokeMany(previewHandles(entry))
		}
	}

	parsed := realtime.ParseMessage(m)
	outcome := s.timeline.Confirm(tempID, parsed)
	switch outcome {
	case chat.Duplicate:
		metrics.DuplicatesSuppressed.WithLabelValues("ack").Inc()
	case chat.Ignored:
		metrics.StaleDropped.WithLabelValues("ack").Inc()
	}
	if outcome != chat.Duplicate {
		s.bus.Emit(bus.KindMessageConfirmed, chat.Update{
			Peer:    sm.PeerID,
			TempID:  tempID,
			ID:      m.ID,
			Message: &parsed,
			Outcome: outcome.String(),
		})
	}
	return outcome
}

func pendingFromEntry(e *store.OutboxEntry, viewer string) chat.Message {
	msg := chat.Message{
		TempID:     e.ClientMsgID,
		SenderID:   viewer,
		ReceiverID: e.PeerID,
		Text:       e.Body,
		Timestamp:  time.UnixMilli(e.CreatedAt),
		ReplyTo:    e.ReplyTo,
		State:      chat.Pending,
	}
	for _, a := range e.Attachments {
		msg.Attachments = append(msg.Attachments, chat.Attachment{Name: a.Name, Preview: a.Preview, MIME: a.MIME, Size: a.Size})
	}
	return msg
}

func previewHandles(e *store.OutboxEntry) []string {
	var out []string
	for _, a := range e.Attachments {
		if a.Preview != "" {
			out = append(out, a.Preview)
		}
	}
	return out
}

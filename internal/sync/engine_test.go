package sync

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/rishta/internal/attach"
	"github.com/matheus3301/rishta/internal/backend"
	"github.com/matheus3301/rishta/internal/backend/backendtest"
	"github.com/matheus3301/rishta/internal/bus"
	"github.com/matheus3301/rishta/internal/chat"
	"github.com/matheus3301/rishta/internal/outbox"
	"github.com/matheus3301/rishta/internal/presence"
	"github.com/matheus3301/rishta/internal/status"
	"github.com/matheus3301/rishta/internal/store"
	"github.com/matheus3301/rishta/internal/typing"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// fakeAPI wraps the real client so tests can hold or fail requests.
type fakeAPI struct {
	*backend.Client

	mu          gosync.Mutex
	gates       map[string]chan struct{}
	historyErr  error
	contactsErr error
}

func (f *fakeAPI) hold(peer string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[peer] = ch
	return ch
}

func (f *fakeAPI) History(ctx context.Context, peer string) ([]backend.Message, error) {
	f.mu.Lock()
	gate, err := f.gates[peer], f.historyErr
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return f.Client.History(ctx, peer)
}

func (f *fakeAPI) Contacts(ctx context.Context) ([]backend.Contact, error) {
	f.mu.Lock()
	err := f.contactsErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Client.Contacts(ctx)
}

type fixture struct {
	srv      *backendtest.Server
	api      *fakeAPI
	db       *store.DB
	bus      *bus.Bus
	timeline *chat.Timeline
	previews *attach.Registry
	presence *presence.Cache
	typing   *typing.Indicator
	machine  *status.Machine
	engine   *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := backendtest.New(t)
	for _, id := range []string{"alice", "bob", "carol"} {
		srv.AddProfile(backend.Profile{ID: id, Name: id})
	}
	token := backendtest.Token("alice")
	client := backend.New(backend.Config{BaseURL: srv.URL}, func() string { return token }, zap.NewNop())

	f := &fixture{
		srv:      srv,
		api:      &fakeAPI{Client: client, gates: make(map[string]chan struct{})},
		db:       testDB(t),
		bus:      bus.New(),
		previews: attach.NewRegistry(0, zap.NewNop()),
	}
	f.timeline = chat.NewTimeline("alice", f.previews)
	f.presence = presence.NewCache(f.bus)
	f.typing = typing.NewIndicator(time.Minute, nil)
	t.Cleanup(f.typing.Close)
	f.machine = status.NewMachine(f.bus)
	sender := outbox.NewSender(f.db, client, nil, f.timeline, f.previews, f.bus, zap.NewNop())
	f.engine = NewEngine(Deps{
		DB:       f.db,
		API:      f.api,
		Timeline: f.timeline,
		Previews: f.previews,
		Outbox:   sender,
		Presence: f.presence,
		Typing:   f.typing,
		Machine:  f.machine,
		Bus:      f.bus,
		Logger:   zap.NewNop(),
	})
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	f.engine.Start(context.Background())
	t.Cleanup(f.engine.Stop)
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func incoming(id, from, text string) backend.Message {
	return backend.Message{ID: id, Sender: from, Receiver: "alice", Text: text, CreatedAt: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)}
}

func TestIngestMessageIdempotent(t *testing.T) {
	f := newFixture(t)
	f.timeline.Open("bob")

	ch, unsub := f.bus.Subscribe("message.", 10)
	defer unsub()

	msg := incoming("m1", "bob", "hello")
	if err := f.engine.IngestMessage(msg); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.IngestMessage(msg); err != nil {
		t.Fatal(err)
	}

	if n := f.timeline.Len(); n != 1 {
		t.Fatalf("got %d entries, want 1", n)
	}
	msgs, err := f.db.ListMessages("bob", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Body != "hello" || msgs[0].FromMe {
		t.Errorf("stored = %+v", msgs)
	}
	conv, _ := f.db.GetConversation("bob")
	if conv == nil || conv.UnreadCount != 0 {
		t.Errorf("open conversation = %+v, want unread 0", conv)
	}

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindMessageUpserted {
			t.Errorf("event kind = %q, want %s", evt.Kind, bus.KindMessageUpserted)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message.upserted event")
	}
	select {
	case evt := <-ch:
		t.Errorf("duplicate produced event %q", evt.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestIngestMessageForOtherConversation(t *testing.T) {
	f := newFixture(t)
	f.timeline.Open("bob")

	if err := f.engine.IngestMessage(incoming("m1", "carol", "hi")); err != nil {
		t.Fatal(err)
	}
	if n := f.timeline.Len(); n != 0 {
		t.Errorf("carol's message leaked into bob's timeline")
	}
	conv, _ := f.db.GetConversation("carol")
	if conv == nil || conv.UnreadCount != 1 || conv.LastMessagePreview != "hi" {
		t.Errorf("conversation = %+v, want unread 1", conv)
	}

	err := f.engine.IngestMessage(backend.Message{ID: "m2", Sender: "bob", Receiver: "carol"})
	if err == nil {
		t.Error("message between other users accepted")
	}
}

func TestOwnEchoReconcilesWithPending(t *testing.T) {
	f := newFixture(t)
	f.timeline.Open("bob")
	if err := f.timeline.AddPending(chat.Message{TempID: "t1", SenderID: "alice", ReceiverID: "bob", Text: "hello"}); err != nil {
		t.Fatal(err)
	}

	echo := backend.Message{ID: "s1", ClientID: "t1", Sender: "alice", Receiver: "bob", Text: "hello"}
	if err := f.engine.IngestMessage(echo); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.IngestMessage(echo); err != nil {
		t.Fatal(err)
	}

	snap := f.timeline.Snapshot()
	if len(snap.Messages) != 1 {
		t.Fatalf("got %d entries, want 1", len(snap.Messages))
	}
	if m := snap.Messages[0]; m.ID != "s1" || m.TempID != "t1" || m.State != chat.Confirmed {
		t.Errorf("entry = %+v", m)
	}
}

func TestOpenConversationReplacesList(t *testing.T) {
	f := newFixture(t)
	f.srv.AddMessage("bob", "alice", "from bob 1")
	f.srv.AddMessage("alice", "bob", "to bob")
	f.srv.AddMessage("carol", "alice", "from carol")
	ctx := context.Background()

	res, err := f.engine.OpenConversation(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 2 || res.Cached {
		t.Errorf("result = %+v", res)
	}
	snap := f.timeline.Snapshot()
	if snap.Peer != "bob" || len(snap.Messages) != 2 || snap.Messages[0].Text != "from bob 1" {
		t.Fatalf("bob's timeline = %+v", snap)
	}

	if _, err := f.engine.OpenConversation(ctx, "carol"); err != nil {
		t.Fatal(err)
	}
	snap = f.timeline.Snapshot()
	if snap.Peer != "carol" || len(snap.Messages) != 1 || snap.Messages[0].Text != "from carol" {
		t.Errorf("carol's timeline = %+v", snap)
	}
}

func TestLateHistoryForAbandonedConversation(t *testing.T) {
	f := newFixture(t)
	f.srv.AddMessage("bob", "alice", "slow")
	f.srv.AddMessage("carol", "alice", "fast")
	ctx := context.Background()

	gate := f.api.hold("bob")
	errc := make(chan error, 1)
	go func() {
		_, err := f.engine.OpenConversation(ctx, "bob")
		errc <- err
	}()
	eventually(t, func() bool { return f.timeline.Peer() == "bob" }, "bob never opened")

	if _, err := f.engine.OpenConversation(ctx, "carol"); err != nil {
		t.Fatal(err)
	}
	close(gate)

	if err := <-errc; !errors.Is(err, chat.ErrStale) {
		t.Errorf("late load err = %v, want ErrStale", err)
	}
	snap := f.timeline.Snapshot()
	if snap.Peer != "carol" || len(snap.Messages) != 1 || snap.Messages[0].Text != "fast" {
		t.Errorf("timeline = %+v, want only carol's history", snap)
	}
}

func TestOpenConversationFallsBackToCache(t *testing.T) {
	f := newFixture(t)
	if err := f.db.UpsertMessage(&store.Message{PeerID: "bob", MsgID: "m1", SenderID: "bob", ReceiverID: "alice", Body: "cached", Timestamp: 1000}); err != nil {
		t.Fatal(err)
	}
	f.api.historyErr = errors.New("connection refused")

	res, err := f.engine.OpenConversation(context.Background(), "bob")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Cached || res.Count != 1 {
		t.Errorf("result = %+v, want cached with 1 message", res)
	}
	if m, ok := f.timeline.Get("m1"); !ok || m.Text != "cached" {
		t.Errorf("entry = %+v (found %v)", m, ok)
	}

	f.api.historyErr = &backend.APIError{Status: http.StatusUnauthorized}
	if _, err := f.engine.OpenConversation(context.Background(), "bob"); !backend.IsUnauthorized(err) {
		t.Errorf("err = %v, want unauthorized", err)
	}
}

func TestOpenConversationRestoresUndelivered(t *testing.T) {
	f := newFixture(t)
	if err := f.db.QueueOutbox(&store.OutboxEntry{ClientMsgID: "c1", PeerID: "bob", Body: "offline note"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.OpenConversation(context.Background(), "bob"); err != nil {
		t.Fatal(err)
	}
	m, ok := f.timeline.Get("c1")
	if !ok || m.State != chat.Pending || m.Text != "offline note" {
		t.Errorf("entry = %+v (found %v)", m, ok)
	}
}

func TestRestoreSkipsSendStoredByServer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.db.QueueOutbox(&store.OutboxEntry{ClientMsgID: "client-x", PeerID: "bob", Body: "hi"}); err != nil {
		t.Fatal(err)
	}
	if err := f.db.MarkOutboxSending("client-x"); err != nil {
		t.Fatal(err)
	}
	// The server stores the message but the daemon dies before the reply.
	if _, err := f.api.Client.Send(ctx, backend.Outgoing{To: "bob", Text: "hi", ClientID: "client-x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.db.ResetInterruptedOutbox(); err != nil {
		t.Fatal(err)
	}

	if _, err := f.engine.OpenConversation(ctx, "bob"); err != nil {
		t.Fatal(err)
	}
	var found []chat.Message
	for _, m := range f.timeline.Snapshot().Messages {
		if m.TempID == "client-x" {
			found = append(found, m)
		}
	}
	if len(found) != 1 || found[0].State != chat.Confirmed {
		t.Fatalf("entries for client-x = %+v, want one confirmed", found)
	}
	e, _ := f.db.GetOutbox("client-x")
	if e == nil || e.Status != store.OutboxSent || e.ServerMsgID != found[0].ID {
		t.Errorf("outbox entry = %+v, want sent as %s", e, found[0].ID)
	}
}

func TestRestoreSettlesFromMessageCache(t *testing.T) {
	f := newFixture(t)
	if err := f.db.QueueOutbox(&store.OutboxEntry{ClientMsgID: "client-y", PeerID: "bob", Body: "cached"}); err != nil {
		t.Fatal(err)
	}
	_ = f.db.MarkOutboxSending("client-y")
	_, _ = f.db.ResetInterruptedOutbox()
	if err := f.db.UpsertMessage(&store.Message{PeerID: "bob", MsgID: "m9", ClientMsgID: "client-y", SenderID: "alice", ReceiverID: "bob", FromMe: true, Body: "cached", Timestamp: 1000}); err != nil {
		t.Fatal(err)
	}
	f.api.historyErr = errors.New("connection refused")

	if _, err := f.engine.OpenConversation(context.Background(), "bob"); err != nil {
		t.Fatal(err)
	}
	if f.timeline.Len() != 1 {
		t.Fatalf("timeline = %+v, want only the cached copy", f.timeline.Snapshot().Messages)
	}
	if m, ok := f.timeline.Get("m9"); !ok || m.State != chat.Confirmed {
		t.Errorf("entry = %+v (found %v)", m, ok)
	}
	if e, _ := f.db.GetOutbox("client-y"); e == nil || e.Status != store.OutboxSent || e.ServerMsgID != "m9" {
		t.Errorf("outbox entry = %+v", e)
	}
}

func TestRefreshActiveAfterSwitch(t *testing.T) {
	f := newFixture(t)
	f.srv.AddMessage("bob", "alice", "from bob")
	f.srv.AddMessage("carol", "alice", "from carol")
	ctx := context.Background()

	if _, err := f.engine.OpenConversation(ctx, "bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.OpenConversation(ctx, "carol"); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.RefreshActive(ctx); err != nil {
		t.Fatal(err)
	}
	snap := f.timeline.Snapshot()
	if snap.Peer != "carol" || len(snap.Messages) != 1 || snap.Messages[0].Text != "from carol" {
		t.Errorf("timeline = %+v, want only carol's history", snap)
	}
}

func TestSwitchRevokesPreviews(t *testing.T) {
	f := newFixture(t)
	f.timeline.Open("bob")
	path := filepath.Join(t.TempDir(), "draft.txt")
	if err := os.WriteFile(path, []byte("draft"), 0o600); err != nil {
		t.Fatal(err)
	}
	st, err := f.previews.Stage("bob", path)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.engine.OpenConversation(context.Background(), "carol"); err != nil {
		t.Fatal(err)
	}
	if f.previews.Live(st.Handle) {
		t.Error("draft preview of the previous conversation still live")
	}
}

func TestReconcileOnConnect(t *testing.T) {
	f := newFixture(t)
	f.srv.AddMessage("bob", "alice", "hello")
	f.srv.SetPresence("bob", true, time.Now())
	if err := f.machine.Walk(status.Connecting, status.Syncing); err != nil {
		t.Fatal(err)
	}
	ch, unsub := f.bus.Subscribe(bus.KindSyncReconciled, 1)
	defer unsub()

	f.start(t)
	f.bus.Emit(bus.KindSyncConnected, nil)

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for sync.reconciled")
	}
	if got := f.machine.Current(); got != status.Ready {
		t.Errorf("state = %s, want READY", got)
	}
	convs, err := f.db.ListConversations(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 1 || convs[0].PeerID != "bob" || convs[0].UnreadCount != 1 {
		t.Errorf("conversations = %+v", convs)
	}
	if _, ok := f.engine.Reconciler().LastContactSync(); !ok {
		t.Error("contacts checkpoint not recorded")
	}
}

func TestReconcileFailureDegrades(t *testing.T) {
	f := newFixture(t)
	if err := f.machine.Walk(status.Connecting, status.Syncing); err != nil {
		t.Fatal(err)
	}
	f.api.contactsErr = errors.New("gateway timeout")

	if err := f.engine.Reconcile(context.Background()); err == nil {
		t.Fatal("want error")
	}
	snap := f.machine.Snapshot()
	if snap.State != status.Degraded {
		t.Errorf("state = %s, want DEGRADED", snap.State)
	}

	f.api.contactsErr = nil
	if err := f.engine.Reconcile(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := f.machine.Current(); got != status.Ready {
		t.Errorf("state = %s, want READY after recovery", got)
	}
}

func TestRealtimeSignals(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	f.bus.Emit(bus.KindRTTyping, backend.Pair{From: "bob", To: "alice"})
	eventually(t, func() bool { return f.typing.Typing("bob") }, "bob not shown typing")

	f.bus.Emit(bus.KindRTStopTyping, backend.Pair{From: "bob", To: "alice"})
	eventually(t, func() bool { return !f.typing.Typing("bob") }, "bob still typing")

	at := time.Now()
	f.bus.Emit(bus.KindRTUserOnline, backend.PresenceEvent{UserID: "bob", At: at})
	eventually(t, func() bool { return f.presence.Online("bob") }, "bob not online")

	// An older offline event must not win.
	f.bus.Emit(bus.KindRTUserOffline, backend.PresenceEvent{UserID: "bob", At: at.Add(-time.Minute)})
	f.bus.Emit(bus.KindRTTyping, backend.Pair{From: "carol", To: "alice"})
	eventually(t, func() bool { return f.typing.Typing("carol") }, "carol not shown typing")
	if !f.presence.Online("bob") {
		t.Error("stale offline event overwrote newer presence")
	}
}

func TestSocketAckConfirmsPending(t *testing.T) {
	f := newFixture(t)
	f.timeline.Open("bob")
	_ = f.timeline.AddPending(chat.Message{TempID: "t1", SenderID: "alice", ReceiverID: "bob", Text: "hi"})
	f.start(t)

	f.bus.Emit(bus.KindRTMessageSent, backend.MessageSent{
		ClientID: "t1",
		Message:  backend.Message{ID: "s1", Sender: "alice", Receiver: "bob", Text: "hi"},
	})
	eventually(t, func() bool {
		m, ok := f.timeline.Get("s1")
		return ok && m.State == chat.Confirmed
	}, "pending entry not confirmed")
	if n := f.timeline.Len(); n != 1 {
		t.Errorf("got %d entries, want 1", n)
	}
}

func TestPeerDeletedChat(t *testing.T) {
	f := newFixture(t)
	f.timeline.Open("bob")
	if err := f.engine.IngestMessage(incoming("m1", "bob", "bye")); err != nil {
		t.Fatal(err)
	}
	f.start(t)

	f.bus.Emit(bus.KindRTChatDeleted, backend.Pair{From: "bob", To: "alice"})
	eventually(t, func() bool { return f.timeline.Peer() == "" }, "timeline still open")
	conv, _ := f.db.GetConversation("bob")
	if conv != nil {
		t.Errorf("conversation still cached: %+v", conv)
	}
}

func TestDeleteMessageLocalFirst(t *testing.T) {
	f := newFixture(t)
	theirs := f.srv.AddMessage("bob", "alice", "theirs")
	mine := f.srv.AddMessage("alice", "bob", "mine")
	ctx := context.Background()
	if _, err := f.engine.OpenConversation(ctx, "bob"); err != nil {
		t.Fatal(err)
	}

	// The server refuses to delete someone else's message; the local
	// removal stands anyway.
	err := f.engine.DeleteMessage(ctx, theirs.ID)
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden {
		t.Errorf("err = %v, want forbidden", err)
	}
	if _, ok := f.timeline.Get(theirs.ID); ok {
		t.Error("message still shown after failed server delete")
	}

	if err := f.engine.DeleteMessage(ctx, mine.ID); err != nil {
		t.Fatal(err)
	}
	if n := len(f.srv.Messages()); n != 1 {
		t.Errorf("server has %d messages, want 1", n)
	}
	if err := f.engine.DeleteMessage(ctx, "nope"); !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteConversation(t *testing.T) {
	f := newFixture(t)
	f.srv.AddMessage("bob", "alice", "hello")
	ctx := context.Background()
	if _, err := f.engine.OpenConversation(ctx, "bob"); err != nil {
		t.Fatal(err)
	}

	if err := f.engine.DeleteConversation(ctx, "bob"); err != nil {
		t.Fatal(err)
	}
	if f.timeline.Peer() != "" {
		t.Error("timeline still open")
	}
	if n := len(f.srv.Messages()); n != 0 {
		t.Errorf("server still has %d messages", n)
	}
}

func TestCheckpoints(t *testing.T) {
	db := testDB(t)
	r := NewReconciler(db, zap.NewNop())

	v, err := r.GetCheckpoint("missing")
	if err != nil || v != "" {
		t.Errorf("missing checkpoint = %q, %v", v, err)
	}
	if err := r.UpdateCheckpoint("k", "1"); err != nil {
		t.Fatal(err)
	}
	if err := r.UpdateCheckpoint("k", "2"); err != nil {
		t.Fatal(err)
	}
	if v, _ := r.GetCheckpoint("k"); v != "2" {
		t.Errorf("checkpoint = %q, want 2", v)
	}
	if _, ok := r.LastContactSync(); ok {
		t.Error("contact sync reported before any sync")
	}
}


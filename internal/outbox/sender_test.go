package outbox

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/rishta/internal/attach"
	"github.com/matheus3301/rishta/internal/backend"
	"github.com/matheus3301/rishta/internal/bus"
	"github.com/matheus3301/rishta/internal/chat"
	"github.com/matheus3301/rishta/internal/store"
)

// mockAPI records sends and returns configurable results.
type mockAPI struct {
	mu    sync.Mutex
	calls []backend.Outgoing
	files map[string]string
	err   error
	delay time.Duration
}

func (m *mockAPI) Send(ctx context.Context, out backend.Outgoing) (*backend.Message, error) {
	m.mu.Lock()
	m.calls = append(m.calls, out)
	if m.files == nil {
		m.files = make(map[string]string)
	}
	for _, f := range out.Files {
		b, _ := io.ReadAll(f.Reader)
		m.files[f.Name] = string(b)
	}
	err, delay := m.err, m.delay
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	msg := &backend.Message{
		ID:        "srv-" + out.ClientID,
		Sender:    "alice",
		Receiver:  out.To,
		Text:      out.Text,
		CreatedAt: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
	}
	for _, f := range out.Files {
		msg.Attachments = append(msg.Attachments, backend.Attachment{Name: f.Name, URL: "https://cdn/" + f.Name, MIMEType: f.MIME})
	}
	return msg, nil
}

func (m *mockAPI) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *mockAPI) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockSocket struct {
	mu     sync.Mutex
	events []string
}

func (m *mockSocket) Emit(event string, _ any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockSocket) emitted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

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

type fixture struct {
	db       *store.DB
	api      *mockAPI
	socket   *mockSocket
	bus      *bus.Bus
	timeline *chat.Timeline
	previews *attach.Registry
	sender   *Sender
}

func newFixture(t *testing.T, open string) *fixture {
	t.Helper()
	f := &fixture{
		db:       testDB(t),
		api:      &mockAPI{},
		socket:   &mockSocket{},
		bus:      bus.New(),
		previews: attach.NewRegistry(0, zap.NewNop()),
	}
	f.timeline = chat.NewTimeline("alice", f.previews)
	if open != "" {
		f.timeline.Open(open)
	}
	f.sender = NewSender(f.db, f.api, f.socket, f.timeline, f.previews, f.bus, zap.NewNop())
	f.sender.interval = 20 * time.Millisecond
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	f.sender.Start(context.Background())
	t.Cleanup(f.sender.Stop)
}

func waitFor(t *testing.T, ch <-chan bus.Event, kind string) chat.Update {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Kind == kind {
				u, _ := evt.Payload.(chat.Update)
				return u
			}
		case <-timeout:
			t.Fatalf("timeout waiting for %s", kind)
			return chat.Update{}
		}
	}
}

// Scenario: alice sends "hello" to bob. One pending entry appears with a
// temporary id; after the ack there is still exactly one entry, now
// carrying the server id.
func TestSendHelloReconciles(t *testing.T) {
	f := newFixture(t, "bob")
	ch, unsub := f.bus.Subscribe("message.", 10)
	defer unsub()

	pending, err := f.sender.Submit(Draft{Peer: "bob", Text: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	snap := f.timeline.Snapshot()
	if len(snap.Messages) != 1 {
		t.Fatalf("got %d entries, want 1 pending", len(snap.Messages))
	}
	if m := snap.Messages[0]; m.ID != "" || m.TempID != pending.TempID || m.State != chat.Pending || m.Text != "hello" {
		t.Errorf("pending entry = %+v", m)
	}

	f.start(t)
	u := waitFor(t, ch, bus.KindMessageConfirmed)
	if u.Outcome != "replaced" {
		t.Errorf("outcome = %q, want replaced", u.Outcome)
	}

	snap = f.timeline.Snapshot()
	if len(snap.Messages) != 1 {
		t.Fatalf("got %d entries after ack, want 1", len(snap.Messages))
	}
	m := snap.Messages[0]
	if m.ID != "srv-"+pending.TempID || m.TempID != pending.TempID || m.State != chat.Confirmed || m.Text != "hello" {
		t.Errorf("confirmed entry = %+v", m)
	}

	stored, err := f.db.GetMessage(m.ID)
	if err != nil || stored == nil {
		t.Fatalf("stored message = %v, err = %v", stored, err)
	}
	if stored.PeerID != "bob" || !stored.FromMe {
		t.Errorf("stored = %+v", stored)
	}
	entry, err := f.db.GetOutbox(pending.TempID)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != store.OutboxSent || entry.ServerMsgID != m.ID {
		t.Errorf("outbox = %+v", entry)
	}

	deadline := time.Now().Add(time.Second)
	for len(f.socket.emitted()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := f.socket.emitted(); len(got) != 1 || got[0] != backend.EventSendMsg {
		t.Errorf("socket events = %v, want [send-msg]", got)
	}
}

func TestSecondAckIsDuplicate(t *testing.T) {
	f := newFixture(t, "bob")
	ch, unsub := f.bus.Subscribe("message.", 10)
	defer unsub()

	pending, err := f.sender.Submit(Draft{Peer: "bob", Text: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	f.start(t)
	u := waitFor(t, ch, bus.KindMessageConfirmed)

	// The socket's msg-sent for the same message arrives after the REST
	// response.
	outcome := f.sender.Confirm(pending.TempID, backend.Message{
		ID: u.ID, ClientID: pending.TempID, Sender: "alice", Receiver: "bob", Text: "hello",
	})
	if outcome != chat.Duplicate {
		t.Errorf("outcome = %v, want duplicate", outcome)
	}
	if n := f.timeline.Len(); n != 1 {
		t.Errorf("got %d entries, want 1", n)
	}
}

func TestSendFailureStaysVisible(t *testing.T) {
	f := newFixture(t, "bob")
	f.api.setErr(&backend.APIError{Status: http.StatusServiceUnavailable, Message: "chat is down", Method: "POST", Path: "/api/chat/messages"})
	ch, unsub := f.bus.Subscribe("message.", 10)
	defer unsub()

	pending, err := f.sender.Submit(Draft{Peer: "bob", Text: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	f.start(t)
	u := waitFor(t, ch, bus.KindMessageFailed)
	if u.Error != "chat is down" {
		t.Errorf("error = %q, want the server's message", u.Error)
	}

	m, ok := f.timeline.Get(pending.TempID)
	if !ok || m.State != chat.Failed || m.Error != "chat is down" {
		t.Errorf("entry = %+v (found %v), want failed with reason", m, ok)
	}

	// No automatic retry.
	time.Sleep(200 * time.Millisecond)
	if n := f.api.count(); n != 1 {
		t.Errorf("got %d send calls, want 1", n)
	}
	entry, _ := f.db.GetOutbox(pending.TempID)
	if entry.Status != store.OutboxFailed || entry.ErrorMessage != "chat is down" {
		t.Errorf("outbox = %+v", entry)
	}
}

func TestRetryAfterFailure(t *testing.T) {
	f := newFixture(t, "bob")
	f.api.setErr(errors.New("network unreachable"))
	ch, unsub := f.bus.Subscribe("message.", 10)
	defer unsub()

	pending, err := f.sender.Submit(Draft{Peer: "bob", Text: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	f.start(t)
	waitFor(t, ch, bus.KindMessageFailed)

	f.api.setErr(nil)
	if err := f.sender.Retry(pending.TempID); err != nil {
		t.Fatal(err)
	}
	waitFor(t, ch, bus.KindMessageConfirmed)

	if n := f.timeline.Len(); n != 1 {
		t.Fatalf("got %d entries, want 1", n)
	}
	if m, _ := f.timeline.Get(pending.TempID); m.State != chat.Confirmed {
		t.Errorf("state = %s, want confirmed", m.State)
	}
	if err := f.sender.Retry(pending.TempID); !errors.Is(err, chat.ErrNotFailed) {
		t.Errorf("retry of a sent message: err = %v, want ErrNotFailed", err)
	}
}

func TestDiscardFailed(t *testing.T) {
	f := newFixture(t, "bob")
	f.api.setErr(errors.New("boom"))
	ch, unsub := f.bus.Subscribe("message.", 10)
	defer unsub()

	path := filepath.Join(t.TempDir(), "photo.txt")
	if err := os.WriteFile(path, []byte("pixels"), 0o600); err != nil {
		t.Fatal(err)
	}
	st, err := f.previews.Stage("bob", path)
	if err != nil {
		t.Fatal(err)
	}

	pending, err := f.sender.Submit(Draft{Peer: "bob", Text: "look", Attachments: []string{st.Handle}})
	if err != nil {
		t.Fatal(err)
	}
	f.start(t)
	waitFor(t, ch, bus.KindMessageFailed)

	if !f.previews.Live(st.Handle) {
		t.Fatal("preview revoked while the message is still failed")
	}
	if err := f.sender.Discard(pending.TempID); err != nil {
		t.Fatal(err)
	}
	if n := f.timeline.Len(); n != 0 {
		t.Errorf("got %d entries, want 0", n)
	}
	if f.previews.Live(st.Handle) {
		t.Error("preview still live after discard")
	}
	if e, _ := f.db.GetOutbox(pending.TempID); e != nil {
		t.Errorf("outbox entry still present: %+v", e)
	}
}

func TestAttachmentUploadedAndPreviewRevoked(t *testing.T) {
	f := newFixture(t, "bob")
	ch, unsub := f.bus.Subscribe("message.", 10)
	defer unsub()

	dir := t.TempDir()
	keep := filepath.Join(dir, "kundli.txt")
	drop := filepath.Join(dir, "draft.txt")
	for _, p := range []string{keep, drop} {
		if err := os.WriteFile(p, []byte("stars align"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	kept, err := f.previews.Stage("bob", keep)
	if err != nil {
		t.Fatal(err)
	}
	dropped, err := f.previews.Stage("bob", drop)
	if err != nil {
		t.Fatal(err)
	}

	pending, err := f.sender.Submit(Draft{Peer: "bob", Attachments: []string{kept.Handle}})
	if err != nil {
		t.Fatal(err)
	}
	if f.previews.Live(dropped.Handle) {
		t.Error("unselected draft file still live after submit")
	}
	if !f.previews.Live(kept.Handle) {
		t.Error("sent file's preview revoked before confirmation")
	}
	if snap := f.timeline.Snapshot(); snap.Messages[0].Attachments[0].Preview != kept.Handle {
		t.Errorf("pending attachments = %+v", snap.Messages[0].Attachments)
	}

	f.start(t)
	waitFor(t, ch, bus.KindMessageConfirmed)

	if f.previews.Live(kept.Handle) {
		t.Error("preview still live after confirmation")
	}
	f.api.mu.Lock()
	content := f.api.files["kundli.txt"]
	f.api.mu.Unlock()
	if content != "stars align" {
		t.Errorf("uploaded content = %q", content)
	}
	m, _ := f.timeline.Get(pending.TempID)
	if len(m.Attachments) != 1 || m.Attachments[0].URL != "https://cdn/kundli.txt" || m.Attachments[0].Preview != "" {
		t.Errorf("confirmed attachments = %+v", m.Attachments)
	}
}

func TestSubmitRejectsEmpty(t *testing.T) {
	f := newFixture(t, "bob")
	if _, err := f.sender.Submit(Draft{Peer: "bob", Text: "   "}); !errors.Is(err, ErrEmpty) {
		t.Errorf("err = %v, want ErrEmpty", err)
	}
	if _, err := f.sender.Submit(Draft{Peer: "bob", Attachments: []string{"preview://gone"}}); !errors.Is(err, attach.ErrRevoked) {
		t.Errorf("err = %v, want ErrRevoked", err)
	}
}

func TestAckForClosedConversationIsIgnored(t *testing.T) {
	f := newFixture(t, "carol")
	ch, unsub := f.bus.Subscribe("message.", 10)
	defer unsub()

	if _, err := f.sender.Submit(Draft{Peer: "bob", Text: "sent from the list"}); err != nil {
		t.Fatal(err)
	}
	if n := f.timeline.Len(); n != 0 {
		t.Fatalf("got %d entries in carol's timeline, want 0", n)
	}

	f.start(t)
	u := waitFor(t, ch, bus.KindMessageConfirmed)
	if u.Outcome != "ignored" {
		t.Errorf("outcome = %q, want ignored", u.Outcome)
	}
	if n := f.timeline.Len(); n != 0 {
		t.Errorf("stale ack inserted into carol's timeline")
	}
	conv, err := f.db.GetConversation("bob")
	if err != nil || conv == nil || conv.LastMessagePreview != "sent from the list" {
		t.Errorf("conversation = %+v, err = %v", conv, err)
	}
}

func TestStartFailsInterruptedSends(t *testing.T) {
	f := newFixture(t, "bob")
	if err := f.db.QueueOutbox(&store.OutboxEntry{ClientMsgID: "c1", PeerID: "bob", Body: "hello"}); err != nil {
		t.Fatal(err)
	}
	if err := f.db.MarkOutboxSending("c1"); err != nil {
		t.Fatal(err)
	}

	f.start(t)
	time.Sleep(100 * time.Millisecond)

	if n := f.api.count(); n != 0 {
		t.Errorf("interrupted send was resent %d times", n)
	}
	entry, _ := f.db.GetOutbox("c1")
	if entry.Status != store.OutboxFailed {
		t.Errorf("status = %q, want failed", entry.Status)
	}

	if err := f.sender.Restore("bob"); err != nil {
		t.Fatal(err)
	}
	m, ok := f.timeline.Get("c1")
	if !ok || m.State != chat.Failed || m.Error != "interrupted by daemon restart" {
		t.Errorf("restored entry = %+v (found %v)", m, ok)
	}
}

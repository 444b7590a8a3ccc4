package chat

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	viewer = "me"
	peerB  = "bob"
	peerC  = "carol"
)

type fakePreviews map[string]bool

func (f fakePreviews) Live(h string) bool { return f[h] }

func outgoing(tempID, to, text string) Message {
	return Message{TempID: tempID, SenderID: viewer, ReceiverID: to, Text: text, Timestamp: time.Now()}
}

func serverCopy(id, tempID, to, text string) Message {
	return Message{ID: id, TempID: tempID, SenderID: viewer, ReceiverID: to, Text: text, Timestamp: time.Now()}
}

func incoming(id, from, text string) Message {
	return Message{ID: id, SenderID: from, ReceiverID: viewer, Text: text, Timestamp: time.Now()}
}

func openWith(t *testing.T, tl *Timeline, peer string, history ...Message) uint64 {
	t.Helper()
	epoch, _ := tl.Open(peer)
	require.NoError(t, tl.Load(epoch, history))
	return epoch
}

func keys(tl *Timeline) []string {
	var out []string
	for _, m := range tl.Snapshot().Messages {
		out = append(out, m.Key())
	}
	return out
}

func assertUniqueServerIDs(t *testing.T, tl *Timeline) {
	t.Helper()
	seen := map[string]bool{}
	for _, m := range tl.Snapshot().Messages {
		if m.ID == "" {
			continue
		}
		assert.False(t, seen[m.ID], "server id %s appears twice", m.ID)
		seen[m.ID] = true
	}
}

func TestSendThenAckKeepsOneEntry(t *testing.T) {
	tl := NewTimeline(viewer, nil)
	openWith(t, tl, peerB)

	require.NoError(t, tl.AddPending(outgoing("tmp-1", peerB, "hello")))
	snap := tl.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "tmp-1", snap.Messages[0].Key())
	assert.Equal(t, "hello", snap.Messages[0].Text)
	assert.Equal(t, Pending, snap.Messages[0].State)

	out := tl.Confirm("tmp-1", serverCopy("srv-1", "", peerB, "hello"))
	assert.Equal(t, Replaced, out)

	snap = tl.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "srv-1", snap.Messages[0].ID)
	assert.Equal(t, "tmp-1", snap.Messages[0].TempID)
	assert.Equal(t, "hello", snap.Messages[0].Text)
	assert.Equal(t, Confirmed, snap.Messages[0].State)
}

func TestConfirmPreservesPosition(t *testing.T) {
	tl := NewTimeline(viewer, nil)
	openWith(t, tl, peerB, incoming("h1", peerB, "hi"))

	require.NoError(t, tl.AddPending(outgoing("tmp-1", peerB, "one")))
	assert.Equal(t, Appended, tl.Receive(incoming("r1", peerB, "meanwhile")))
	require.NoError(t, tl.AddPending(outgoing("tmp-2", peerB, "two")))

	tl.Confirm("tmp-1", serverCopy("s1", "", peerB, "one"))
	assert.Equal(t, []string{"h1", "s1", "r1", "tmp-2"}, keys(tl))
}

func TestConfirmIsIdempotent(t *testing.T) {
	tl := NewTimeline(viewer, nil)
	openWith(t, tl, peerB)
	require.NoError(t, tl.AddPending(outgoing("tmp-1", peerB, "x")))

	// REST response and socket msg-sent both acknowledge the same send.
	assert.Equal(t, Replaced, tl.Confirm("tmp-1", serverCopy("s1", "", peerB, "x")))
	assert.Equal(t, Duplicate, tl.Confirm("tmp-1", serverCopy("s1", "", peerB, "x")))
	assert.Equal(t, 1, tl.Len())
	assertUniqueServerIDs(t, tl)
}

func TestConfirmWithoutPendingAppendsOnce(t *testing.T) {
	tl := NewTimeline(viewer, nil)
	openWith(t, tl, peerB)

	// Sent from another device: no temp entry here.
	assert.Equal(t, Appended, tl.Confirm("other-device", serverCopy("s1", "", peerB, "x")))
	assert.Equal(t, Duplicate, tl.Confirm("other-device", serverCopy("s1", "", peerB, "x")))
	assert.Equal(t, 1, tl.Len())
}

func TestConfirmRemovesDuplicateAlreadyLoaded(t *testing.T) {
	tl := NewTimeline(viewer, nil)
	epoch, _ := tl.Open(peerB)
	require.NoError(t, tl.AddPending(outgoing("tmp-1", peerB, "x")))
	// History raced ahead of the ack and does not echo the client id.
	require.NoError(t, tl.Load(epoch, []Message{serverCopy("s1", "", peerB, "x")}))
	assert.Equal(t, []string{"s1", "tmp-1"}, keys(tl))

	assert.Equal(t, Replaced, tl.Confirm("tmp-1", serverCopy("s1", "", peerB, "x")))
	assert.Equal(t, []string{"s1"}, keys(tl))
	assertUniqueServerIDs(t, tl)
}

func TestStaleAckIsIgnored(t *testing.T) {
	tl := NewTimeline(viewer, nil)
	openWith(t, tl, peerB)
	require.NoError(t, tl.AddPending(outgoing("tmp-1", peerB, "for bob")))

	openWith(t, tl, peerC)
	out := tl.Confirm("tmp-1", serverCopy("s1", "", peerB, "for bob"))
	assert.Equal(t, Ignored, out)
	assert.Empty(t, tl.Snapshot().Messages)
}

func TestAckBeforeAnyConversationIsIgnored(t *testing.T) {
	tl := NewTimeline(viewer, nil)
	assert.Equal(t, Ignored, tl.Confirm("tmp-1", serverCopy("s1", "", peerB, "x")))
}

func TestAddPendingRequiresActivePeer(t *testing.T) {
	tl := NewTimeline(viewer, nil)
	assert.ErrorIs(t, tl.AddPending(outgoing("tmp-1", peerB, "x")), ErrNotActive)

	openWith(t, tl, peerB)
	assert.ErrorIs(t, tl.AddPending(outgoing("tmp-2", peerC, "x")), ErrNotActive)
	assert.NoError(t, tl.AddPending(outgoing("tmp-3", peerB, "x")))
}

func TestAddPendingSameTempIDReplaces(t *testing.T) {
	tl := NewTimeline(viewer, nil)
	openWith(t, tl, peerB)
	require.NoError(t, tl.AddPending(outgoing("tmp-1", peerB, "a")))
	require.NoError(t, tl.AddPending(outgoing("tmp-1", peerB, "a")))
	assert.Equal(t, 1, tl.Len())
}

func TestFailAndRetry(t *testing.T) {
	tl := NewTimeline(viewer, nil)
	openWith(t, tl, peerB)
	require.NoError(t, tl.AddPending(outgoing("tmp-1", peerB, "x")))

	_, err := tl.Retry("tmp-1")
	assert.ErrorIs(t, err, ErrNotFailed)

	assert.True(t, tl.Fail("tmp-1", "413: attachment too large"))
	m, ok := tl.Get("tmp-1")
	require.True(t, ok)
	assert.Equal(t, Failed, m.State)
	assert.Equal(t, "413: attachment too large", m.Error)

	m, err = tl.Retry("tmp-1")
	require.NoError(t, err)
	assert.Equal(t, Pending, m.State)
	assert.Empty(t, m.Error)

	_, err = tl.Retry("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, tl.Fail("missing", "x"))
}

func TestFailedEntryCanStillBeConfirmed(t *testing.T) {
	tl := NewTimeline(viewer, nil)
	openWith(t, tl, peerB)
	require.NoError(t, tl.AddPending(outgoing("tmp-1", peerB, "x")))
	tl.Fail("tmp-1", "timeout")

	// The backend stored it after all and the socket says so.
	assert.Equal(t, Replaced, tl.Confirm("tmp-1", serverCopy("s1", "", peerB, "x")))
	m, _ := tl.Get("s1")
	assert.Equal(t, Confirmed, m.State)
	assert.Empty(t, m.Error)
}

func TestReceiveIdentityChecks(t *testing.T) {
	tl := NewTimeline(viewer, nil)
	openWith(t, tl, peerB)

	tests := []struct {
		name string
		msg  Message
		want Outcome
	}{
		{"from open peer", incoming("r1", peerB, "hi"), Appended},
		{"same id again", incoming("r1", peerB, "hi"), Duplicate},
		{"own message echoed", serverCopy("s9", "", peerB, "mine"), Rejected},
		{"from other peer", incoming("r2", peerC, "psst"), Rejected},
		{"addressed to someone else", Message{ID: "r3", SenderID: peerB, ReceiverID: peerC}, Rejected},
		{"missing server id", incoming("", peerB, "?"), Rejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tl.Receive(tt.msg))
		})
	}
	assert.Equal(t, []string{"r1"}, keys(tl))
}

func TestReceiveWithNoOpenConversation(t *testing.T) {
	tl := NewTimeline(viewer, nil)
	assert.Equal(t, Rejected, tl.Receive(incoming("r1", peerB, "hi")))
}

func TestOpenReplacesListWholesale(t *testing.T) {
	tl := NewTimeline(viewer, nil)
	openWith(t, tl, peerB, incoming("b1", peerB, "old"))
	require.NoError(t, tl.AddPending(outgoing("tmp-b", peerB, "unsent")))
	tl.Fail("tmp-b", "offline")

	openWith(t, tl, peerC, incoming("c1", peerC, "new"), incoming("c2", peerC, "newer"))
	snap := tl.Snapshot()
	assert.Equal(t, peerC, snap.Peer)
	assert.Equal(t, []string{"c1", "c2"}, keys(tl))
	for _, m := range snap.Messages {
		assert.NotEqual(t, peerB, m.Counterpart(viewer))
	}
}

func TestLateHistoryIsRejected(t *testing.T) {
	tl := NewTimeline(viewer, nil)
	epochB, _ := tl.Open(peerB)
	epochC, _ := tl.Open(peerC)
	require.NotEqual(t, epochB, epochC)

	err := tl.Load(epochB, []Message{incoming("b1", peerB, "late")})
	assert.ErrorIs(t, err, ErrStale)
	assert.Empty(t, tl.Snapshot().Messages)

	require.NoError(t, tl.Load(epochC, []Message{incoming("c1", peerC, "ok")}))
	assert.Equal(t, []string{"c1"}, keys(tl))
}

func TestLoadKeepsUnsentAndLiveTail(t *testing.T) {
	tl := NewTimeline(viewer, nil)
	epoch, _ := tl.Open(peerB)

	// While the fetch is in flight: a send and a socket delivery.
	require.NoError(t, tl.AddPending(outgoing("tmp-1", peerB, "pending")))
	require.NoError(t, tl.AddPending(outgoing("tmp-2", peerB, "failed")))
	tl.Fail("tmp-2", "boom")
	tl.Receive(incoming("live-1", peerB, "arrived during fetch"))
	tl.Receive(incoming("h2", peerB, "also in history"))

	history := []Message{incoming("h1", peerB, "a"), incoming("h2", peerB, "b"), incoming("h2", peerB, "b")}
	require.NoError(t, tl.Load(epoch, history))

	assert.Equal(t, []string{"h1", "h2", "tmp-1", "tmp-2", "live-1"}, keys(tl))
	assertUniqueServerIDs(t, tl)
	m, _ := tl.Get("tmp-2")
	assert.Equal(t, Failed, m.State)
}

func TestLoadDropsPendingStoredByServer(t *testing.T) {
	tl := NewTimeline(viewer, nil)
	epoch, _ := tl.Open(peerB)
	require.NoError(t, tl.AddPending(outgoing("tmp-1", peerB, "x")))

	// The ack was lost but history echoes the client id.
	require.NoError(t, tl.Load(epoch, []Message{serverCopy("s1", "tmp-1", peerB, "x")}))
	assert.Equal(t, []string{"s1"}, keys(tl))

	// The late ack is now a duplicate, not a second entry.
	assert.Equal(t, Duplicate, tl.Confirm("tmp-1", serverCopy("s1", "", peerB, "x")))
	assert.Equal(t, 1, tl.Len())
}

func TestLoadSkipsHistoryOfOtherConversations(t *testing.T) {
	tl := NewTimeline(viewer, nil)
	epoch, _ := tl.Open(peerC)

	history := []Message{incoming("b1", peerB, "wrong chat"), incoming("c1", peerC, "right chat"), serverCopy("b2", "", peerB, "mine to bob")}
	require.NoError(t, tl.Load(epoch, history))
	assert.Equal(t, []string{"c1"}, keys(tl))
}

func TestCurrentPairsPeerAndEpoch(t *testing.T) {
	tl := NewTimeline(viewer, nil)
	peer, epoch := tl.Current()
	assert.Empty(t, peer)
	assert.Zero(t, epoch)

	epochB, _ := tl.Open(peerB)
	peer, epoch = tl.Current()
	assert.Equal(t, peerB, peer)
	assert.Equal(t, epochB, epoch)

	epochC, _ := tl.Open(peerC)
	peer, epoch = tl.Current()
	assert.Equal(t, peerC, peer)
	assert.Equal(t, epochC, epoch)
}

func TestConfirmedByTemp(t *testing.T) {
	tl := NewTimeline(viewer, nil)
	openWith(t, tl, peerB)
	require.NoError(t, tl.AddPending(outgoing("tmp-1", peerB, "x")))

	_, ok := tl.ConfirmedByTemp("tmp-1")
	assert.False(t, ok, "pending entry reported as confirmed")

	tl.Confirm("tmp-1", serverCopy("s1", "", peerB, "x"))
	m, ok := tl.ConfirmedByTemp("tmp-1")
	require.True(t, ok)
	assert.Equal(t, "s1", m.ID)

	_, ok = tl.ConfirmedByTemp("")
	assert.False(t, ok)
}

func TestRemove(t *testing.T) {
	tl := NewTimeline(viewer, nil)
	openWith(t, tl, peerB, incoming("h1", peerB, "a"))
	require.NoError(t, tl.AddPending(outgoing("tmp-1", peerB, "b")))

	m, ok := tl.Remove("h1")
	require.True(t, ok)
	assert.Equal(t, "a", m.Text)
	_, ok = tl.Remove("tmp-1")
	require.True(t, ok)
	_, ok = tl.Remove("tmp-1")
	assert.False(t, ok)
	assert.Zero(t, tl.Len())
}

func TestOpenReleasesPreviewHandles(t *testing.T) {
	tl := NewTimeline(viewer, nil)
	openWith(t, tl, peerB)
	msg := outgoing("tmp-1", peerB, "pic")
	msg.Attachments = []Attachment{{Name: "a.jpg", Preview: "preview://1"}, {Name: "b.jpg", URL: "https://cdn/b.jpg"}}
	require.NoError(t, tl.AddPending(msg))

	_, released := tl.Open(peerC)
	assert.Equal(t, []string{"preview://1"}, released)
	assert.Empty(t, tl.Close())
}

func TestSnapshotStripsRevokedPreviews(t *testing.T) {
	live := fakePreviews{"preview://live": true}
	tl := NewTimeline(viewer, live)
	openWith(t, tl, peerB)

	msg := outgoing("tmp-1", peerB, "pics")
	msg.Attachments = []Attachment{
		{Name: "a.jpg", Preview: "preview://live"},
		{Name: "b.jpg", Preview: "preview://revoked"},
	}
	require.NoError(t, tl.AddPending(msg))

	snap := tl.Snapshot()
	require.Len(t, snap.Messages[0].Attachments, 2)
	assert.Equal(t, "preview://live", snap.Messages[0].Attachments[0].Preview)
	assert.Empty(t, snap.Messages[0].Attachments[1].Preview)
	assert.Equal(t, "b.jpg", snap.Messages[0].Attachments[1].Name)

	// Revoking after the fact is reflected in the next snapshot.
	delete(live, "preview://live")
	for _, m := range tl.Snapshot().Messages {
		for _, a := range m.Attachments {
			assert.Empty(t, a.Preview)
		}
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	tl := NewTimeline(viewer, nil)
	openWith(t, tl, peerB)
	msg := outgoing("tmp-1", peerB, "x")
	msg.Attachments = []Attachment{{Name: "a"}}
	require.NoError(t, tl.AddPending(msg))

	snap := tl.Snapshot()
	snap.Messages[0].Text = "mutated"
	snap.Messages[0].Attachments[0].Name = "mutated"
	m, _ := tl.Get("tmp-1")
	assert.Equal(t, "x", m.Text)
	assert.Equal(t, "a", m.Attachments[0].Name)
}

func TestSetViewerResets(t *testing.T) {
	tl := NewTimeline(viewer, nil)
	epoch := openWith(t, tl, peerB, incoming("h1", peerB, "a"))
	tl.SetViewer("someone-else")

	assert.Equal(t, "someone-else", tl.Viewer())
	assert.Empty(t, tl.Peer())
	assert.Zero(t, tl.Len())
	assert.ErrorIs(t, tl.Load(epoch, nil), ErrStale)
}

func TestConcurrentReconciliationKeepsIDsUnique(t *testing.T) {
	tl := NewTimeline(viewer, nil)
	openWith(t, tl, peerB)

	const n = 50
	var wg sync.WaitGroup
	for i := range n {
		tempID := fmt.Sprintf("tmp-%d", i)
		require.NoError(t, tl.AddPending(outgoing(tempID, peerB, "x")))
		srv := serverCopy(fmt.Sprintf("s-%d", i), "", peerB, "x")
		wg.Add(3)
		go func() { defer wg.Done(); tl.Confirm(tempID, srv) }()
		go func() { defer wg.Done(); tl.Confirm(tempID, srv) }()
		go func() { defer wg.Done(); tl.Receive(incoming(fmt.Sprintf("r-%d", i%10), peerB, "y")) }()
	}
	wg.Wait()

	assertUniqueServerIDs(t, tl)
	assert.Equal(t, n+10, tl.Len())
	for _, m := range tl.Snapshot().Messages {
		assert.Equal(t, Confirmed, m.State)
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "replaced", Replaced.String())
	assert.True(t, Appended.Changed())
	assert.False(t, Duplicate.Changed())
}

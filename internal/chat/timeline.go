package chat

import (
	"errors"
	"slices"
	"sync"
)

var (
	// ErrStale is returned when a history load arrives for a conversation
	// that has been switched away from.
	ErrStale = errors.New("stale timeline epoch")
	// ErrNotActive is returned when a message targets a peer whose
	// conversation is not open.
	ErrNotActive = errors.New("conversation not open")
	ErrNotFound  = errors.New("message not in timeline")
	ErrNotFailed = errors.New("message is not in failed state")
)

// PreviewChecker answers whether a preview handle may still be rendered.
type PreviewChecker interface {
	Live(handle string) bool
}

// Snapshot is a point-in-time copy of a timeline.
type Snapshot struct {
	Viewer   string
	Peer     string
	Epoch    uint64
	Messages []Message
}

// Timeline is the ordered message list of the one open conversation.
// Order is append order. All methods are safe for concurrent use.
type Timeline struct {
	mu       sync.RWMutex
	viewer   string
	peer     string
	epoch    uint64
	msgs     []Message
	previews PreviewChecker
}

// NewTimeline returns an empty timeline for viewer. previews may be nil,
// in which case preview handles are never stripped from snapshots.
func NewTimeline(viewer string, previews PreviewChecker) *Timeline {
	return &Timeline{viewer: viewer, previews: previews}
}

// SetViewer switches the logged-in identity. Everything is dropped and the
// epoch advances, as on Open. It returns the released preview handles.
func (t *Timeline) SetViewer(viewer string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.viewer = viewer
	_, released := t.resetLocked("")
	return released
}

// Viewer returns the logged-in user id.
func (t *Timeline) Viewer() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.viewer
}

// Peer returns the counterpart of the open conversation, or "".
func (t *Timeline) Peer() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.peer
}

// Epoch returns the current epoch.
func (t *Timeline) Epoch() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.epoch
}

// Current returns the open peer and the epoch as one consistent pair.
func (t *Timeline) Current() (string, uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.peer, t.epoch
}

// Open switches to the conversation with peer. The list is cleared so no
// entry of the previous conversation bleeds through, and the epoch
// advances so that in-flight loads for the old conversation are rejected.
// It returns the new epoch and the preview handles of the dropped entries.
func (t *Timeline) Open(peer string) (uint64, []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resetLocked(peer)
}

// Close leaves the open conversation.
func (t *Timeline) Close() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, released := t.resetLocked("")
	return released
}

func (t *Timeline) resetLocked(peer string) (uint64, []string) {
	var released []string
	for _, m := range t.msgs {
		released = append(released, m.PreviewHandles()...)
	}
	t.peer = peer
	t.msgs = nil
	t.epoch++
	return t.epoch, released
}

// Load replaces the list with fetched history. The load must carry the
// epoch returned by the Open that requested it.
//
// Entries that the history cannot know about survive at the tail in their
// current order: pending and failed sends, and confirmed entries that
// arrived over the socket while the fetch was in flight. A pending entry
// whose temporary id the history already carries is dropped in favour of
// the stored record. Duplicate server ids in the history are collapsed, and
// history entries that do not belong to the open conversation are skipped.
func (t *Timeline) Load(epoch uint64, history []Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if epoch != t.epoch {
		return ErrStale
	}

	seen := make(map[string]struct{}, len(history))
	seenTemp := make(map[string]struct{})
	next := make([]Message, 0, len(history)+len(t.msgs))
	for _, m := range history {
		if m.ID == "" {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		if t.peer != "" && m.Counterpart(t.viewer) != t.peer {
			continue
		}
		seen[m.ID] = struct{}{}
		if m.TempID != "" {
			seenTemp[m.TempID] = struct{}{}
		}
		m = m.clone()
		m.State = Confirmed
		m.Error = ""
		next = append(next, m)
	}

	for _, m := range t.msgs {
		if m.State != Confirmed {
			if _, stored := seenTemp[m.TempID]; stored {
				continue
			}
			next = append(next, m)
			continue
		}
		if _, known := seen[m.ID]; known {
			continue
		}
		seen[m.ID] = struct{}{}
		next = append(next, m)
	}
	t.msgs = next
	return nil
}

// AddPending appends an optimistic entry for a message being sent. The
// message must target the open conversation and carry a TempID.
func (t *Timeline) AddPending(m Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.peer == "" || m.ReceiverID != t.peer || m.SenderID != t.viewer {
		return ErrNotActive
	}
	m = m.clone()
	m.ID = ""
	m.State = Pending
	m.Error = ""
	if i := t.indexTempLocked(m.TempID); i >= 0 {
		t.msgs[i] = m
		return nil
	}
	t.msgs = append(t.msgs, m)
	return nil
}

// Confirm reconciles the server acknowledgement of the send with temporary
// id tempID. An acknowledgement for a conversation that is not open is
// ignored. If the pending entry is present it is replaced in place;
// otherwise the server record is appended unless its id is already shown.
func (t *Timeline) Confirm(tempID string, server Message) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.peer == "" || server.Counterpart(t.viewer) != t.peer {
		return Ignored
	}

	server = server.clone()
	server.TempID = tempID
	server.State = Confirmed
	server.Error = ""

	i := t.indexTempLocked(tempID)
	j := t.indexIDLocked(server.ID)
	switch {
	case i >= 0:
		t.msgs[i] = server
		if j >= 0 && j != i {
			t.msgs = slices.Delete(t.msgs, j, j+1)
		}
		return Replaced
	case j >= 0:
		return Duplicate
	default:
		t.msgs = append(t.msgs, server)
		return Appended
	}
}

// Fail marks the pending entry tempID as failed with reason. It reports
// whether the entry was found.
func (t *Timeline) Fail(tempID, reason string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexTempLocked(tempID)
	if i < 0 || t.msgs[i].State == Confirmed {
		return false
	}
	t.msgs[i].State = Failed
	t.msgs[i].Error = reason
	return true
}

// Retry moves a failed entry back to pending and returns it.
func (t *Timeline) Retry(tempID string) (Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexTempLocked(tempID)
	if i < 0 {
		return Message{}, ErrNotFound
	}
	if t.msgs[i].State != Failed {
		return Message{}, ErrNotFailed
	}
	t.msgs[i].State = Pending
	t.msgs[i].Error = ""
	return t.msgs[i].clone(), nil
}

// Receive merges a message delivered by the counterpart. It is accepted
// only when it is addressed to the viewer and sent by the open peer, which
// also keeps the viewer's own messages out of this path.
func (t *Timeline) Receive(m Message) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.peer == "" || m.ID == "" || m.ReceiverID != t.viewer || m.SenderID != t.peer {
		return Rejected
	}
	if t.indexIDLocked(m.ID) >= 0 {
		return Duplicate
	}
	m = m.clone()
	m.State = Confirmed
	m.Error = ""
	t.msgs = append(t.msgs, m)
	return Appended
}

// Remove deletes the entry whose server id or temporary id is id.
func (t *Timeline) Remove(id string) (Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexIDLocked(id)
	if i < 0 {
		i = t.indexTempLocked(id)
	}
	if i < 0 {
		return Message{}, false
	}
	m := t.msgs[i]
	t.msgs = slices.Delete(t.msgs, i, i+1)
	return m, true
}

// Get returns the entry whose server id or temporary id is id.
func (t *Timeline) Get(id string) (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i := t.indexIDLocked(id)
	if i < 0 {
		i = t.indexTempLocked(id)
	}
	if i < 0 {
		return Message{}, false
	}
	return t.msgs[i].clone(), true
}

// ConfirmedByTemp returns the confirmed entry that was sent with temporary
// id tempID.
func (t *Timeline) ConfirmedByTemp(tempID string) (Message, bool) {
	if tempID == "" {
		return Message{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	i := slices.IndexFunc(t.msgs, func(m Message) bool { return m.TempID == tempID && m.State == Confirmed })
	if i < 0 {
		return Message{}, false
	}
	return t.msgs[i].clone(), true
}

// Len returns the number of entries.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.msgs)
}

// Snapshot returns a copy of the timeline. Preview handles that are no
// longer live are cleared so a revoked preview is never rendered.
func (t *Timeline) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap := Snapshot{
		Viewer:   t.viewer,
		Peer:     t.peer,
		Epoch:    t.epoch,
		Messages: make([]Message, len(t.msgs)),
	}
	for i, m := range t.msgs {
		m = m.clone()
		for k := range m.Attachments {
			if h := m.Attachments[k].Preview; h != "" && t.previews != nil && !t.previews.Live(h) {
				m.Attachments[k].Preview = ""
			}
		}
		snap.Messages[i] = m
	}
	return snap
}

func (t *Timeline) indexTempLocked(tempID string) int {
	if tempID == "" {
		return -1
	}
	return slices.IndexFunc(t.msgs, func(m Message) bool { return m.TempID == tempID && m.State != Confirmed })
}

func (t *Timeline) indexIDLocked(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(t.msgs, func(m Message) bool { return m.ID == id })
}

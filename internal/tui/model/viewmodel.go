// Package model caches daemon state for the TUI views.
package model

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/matheus3301/rishta/internal/backend"
	"github.com/matheus3301/rishta/internal/rpc"
	"github.com/matheus3301/rishta/internal/tui/client"
	"github.com/matheus3301/rishta/internal/tui/ui"
)

// Refresh tells which cached state an event invalidates.
type Refresh uint8

const (
	RefreshStatus Refresh = 1 << iota
	RefreshConversations
	RefreshTimeline
)

// Scope maps a daemon event kind to the state it invalidates.
func Scope(kind string) Refresh {
	switch {
	case strings.HasPrefix(kind, "message."):
		return RefreshTimeline | RefreshConversations
	case strings.HasPrefix(kind, "conversation."):
		return RefreshConversations | RefreshTimeline
	case strings.HasPrefix(kind, "presence."), strings.HasPrefix(kind, "typing."):
		return RefreshConversations
	case strings.HasPrefix(kind, "sync."):
		return RefreshStatus | RefreshConversations | RefreshTimeline
	case strings.HasPrefix(kind, "session."):
		return RefreshStatus | RefreshConversations | RefreshTimeline
	default:
		return 0
	}
}

// ViewModel caches what the views render and wraps the daemon calls they
// trigger.
type ViewModel struct {
	mu sync.RWMutex

	client        *client.Client
	status        *rpc.StatusResponse
	conversations []rpc.Conversation
	timeline      *rpc.Timeline
	draft         []rpc.StagedFile

	Flash *ui.FlashModel
}

// NewViewModel creates a new view model connected to the daemon client.
func NewViewModel(c *client.Client) *ViewModel {
	return &ViewModel{
		client: c,
		Flash:  ui.NewFlashModel(),
	}
}

// Watch streams daemon events to fn until ctx ends or the stream breaks.
func (vm *ViewModel) Watch(ctx context.Context, fn func(rpc.Event)) error {
	stream, err := vm.client.Session.WatchEvents(ctx, &rpc.WatchRequest{})
	if err != nil {
		return err
	}
	for {
		evt, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fn(*evt)
	}
}

// Reload refreshes the parts of the cache selected by r.
func (vm *ViewModel) Reload(ctx context.Context, r Refresh) error {
	var errs []error
	if r&RefreshStatus != 0 {
		errs = append(errs, vm.LoadStatus(ctx))
	}
	if r&RefreshConversations != 0 {
		errs = append(errs, vm.LoadConversations(ctx))
	}
	if r&RefreshTimeline != 0 {
		errs = append(errs, vm.LoadTimeline(ctx))
	}
	return errors.Join(errs...)
}

// LoadStatus fetches the daemon status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	resp, err := vm.client.Session.GetStatus(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = resp
	vm.mu.Unlock()
	return nil
}

// Status returns the last fetched status, or nil.
func (vm *ViewModel) Status() *rpc.StatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// LoggedIn reports whether the daemon holds credentials.
func (vm *ViewModel) LoggedIn() bool {
	st := vm.Status()
	return st != nil && st.LoggedIn
}

// Login hands a bearer token to the daemon.
func (vm *ViewModel) Login(ctx context.Context, token string) (*rpc.LoginResponse, error) {
	resp, err := vm.client.Session.Login(ctx, &rpc.LoginRequest{Token: strings.TrimSpace(token)})
	if err != nil {
		return nil, err
	}
	return resp, vm.LoadStatus(ctx)
}

// Logout ends the session and drops everything cached here.
func (vm *ViewModel) Logout(ctx context.Context) error {
	if err := vm.client.Session.Logout(ctx); err != nil {
		return err
	}
	vm.mu.Lock()
	vm.conversations = nil
	vm.timeline = nil
	vm.draft = nil
	vm.mu.Unlock()
	return vm.LoadStatus(ctx)
}

// LoadConversations fetches the conversation list.
func (vm *ViewModel) LoadConversations(ctx context.Context) error {
	resp, err := vm.client.Conversations.List(ctx, &rpc.ListConversationsRequest{Limit: 200})
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.conversations = resp.Conversations
	vm.mu.Unlock()
	return nil
}

// Conversations returns the cached conversation list.
func (vm *ViewModel) Conversations() []rpc.Conversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.conversations
}

// Conversation returns the cached conversation with peer.
func (vm *ViewModel) Conversation(peer string) (rpc.Conversation, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, c := range vm.conversations {
		if c.PeerID == peer {
			return c, true
		}
	}
	return rpc.Conversation{}, false
}

// DisplayName returns the contact name of peer, or the id.
func (vm *ViewModel) DisplayName(peer string) string {
	if c, ok := vm.Conversation(peer); ok && c.Name != "" {
		return c.Name
	}
	return peer
}

// Open switches the daemon's timeline to peer and loads it.
func (vm *ViewModel) Open(ctx context.Context, peer string) (*rpc.OpenResponse, error) {
	resp, err := vm.client.Conversations.Open(ctx, peer)
	if err != nil {
		return nil, err
	}
	vm.mu.Lock()
	vm.draft = nil
	vm.mu.Unlock()
	if err := vm.LoadTimeline(ctx); err != nil {
		return resp, err
	}
	return resp, vm.loadDraft(ctx, peer)
}

// Close leaves the open conversation.
func (vm *ViewModel) Close(ctx context.Context) error {
	if err := vm.client.Conversations.Close(ctx); err != nil {
		return err
	}
	vm.mu.Lock()
	vm.timeline = nil
	vm.draft = nil
	vm.mu.Unlock()
	return nil
}

// DeleteConversation deletes the conversation with peer.
func (vm *ViewModel) DeleteConversation(ctx context.Context, peer string) error {
	if err := vm.client.Conversations.Delete(ctx, peer); err != nil {
		return err
	}
	return vm.LoadConversations(ctx)
}

// Presence fetches the presence of peer.
func (vm *ViewModel) Presence(ctx context.Context, peer string) (*rpc.PresenceResponse, error) {
	return vm.client.Conversations.Presence(ctx, peer)
}

// Sync asks the daemon to reconcile with the backend now.
func (vm *ViewModel) Sync(ctx context.Context) error {
	return vm.client.Conversations.Sync(ctx)
}

// LoadTimeline fetches the open conversation's timeline.
func (vm *ViewModel) LoadTimeline(ctx context.Context) error {
	resp, err := vm.client.Messages.List(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.timeline = resp
	vm.mu.Unlock()
	return nil
}

// Timeline returns the cached timeline, or nil when none is open.
func (vm *ViewModel) Timeline() *rpc.Timeline {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.timeline
}

// ActivePeer returns the peer of the open conversation, or "".
func (vm *ViewModel) ActivePeer() string {
	if tl := vm.Timeline(); tl != nil {
		return tl.Peer
	}
	return ""
}

// LastFailed returns the newest failed send of the timeline.
func (vm *ViewModel) LastFailed() (rpc.Message, bool) {
	return LastFailed(vm.Timeline())
}

// LastFailed returns the newest failed entry of tl.
func LastFailed(tl *rpc.Timeline) (rpc.Message, bool) {
	if tl == nil {
		return rpc.Message{}, false
	}
	for i := len(tl.Messages) - 1; i >= 0; i-- {
		if m := tl.Messages[i]; m.State == "failed" {
			return m, true
		}
	}
	return rpc.Message{}, false
}

// Send sends text and the staged draft files to the open conversation.
func (vm *ViewModel) Send(ctx context.Context, text string) error {
	peer := vm.ActivePeer()
	if peer == "" {
		return errors.New("no conversation open")
	}
	var handles []string
	for _, f := range vm.Draft() {
		handles = append(handles, f.Handle)
	}
	if _, err := vm.client.Messages.Send(ctx, &rpc.SendRequest{Peer: peer, Text: text, Attachments: handles}); err != nil {
		return err
	}
	vm.mu.Lock()
	vm.draft = nil
	vm.mu.Unlock()
	return vm.LoadTimeline(ctx)
}

// Typing reports a keystroke in the composer.
func (vm *ViewModel) Typing(ctx context.Context) error {
	peer := vm.ActivePeer()
	if peer == "" {
		return nil
	}
	return vm.client.Messages.Typing(ctx, peer)
}

// Retry resends a failed message.
func (vm *ViewModel) Retry(ctx context.Context, clientID string) error {
	if err := vm.client.Messages.Retry(ctx, clientID); err != nil {
		return err
	}
	return vm.LoadTimeline(ctx)
}

// Discard drops a failed message.
func (vm *ViewModel) Discard(ctx context.Context, clientID string) error {
	if err := vm.client.Messages.Discard(ctx, clientID); err != nil {
		return err
	}
	return vm.LoadTimeline(ctx)
}

// DeleteMessage deletes a message by server or client id.
func (vm *ViewModel) DeleteMessage(ctx context.Context, id string) error {
	if err := vm.client.Messages.Delete(ctx, id); err != nil {
		return err
	}
	return vm.LoadTimeline(ctx)
}

// Attach stages a local file for the open conversation's draft.
func (vm *ViewModel) Attach(ctx context.Context, path string) (*rpc.StagedFile, error) {
	peer := vm.ActivePeer()
	if peer == "" {
		return nil, errors.New("no conversation open")
	}
	f, err := vm.client.Messages.StageAttachment(ctx, peer, path)
	if err != nil {
		return nil, err
	}
	return f, vm.loadDraft(ctx, peer)
}

// Detach removes a staged file from the draft.
func (vm *ViewModel) Detach(ctx context.Context, handle string) error {
	if err := vm.client.Messages.RemoveAttachment(ctx, handle); err != nil {
		return err
	}
	return vm.loadDraft(ctx, vm.ActivePeer())
}

func (vm *ViewModel) loadDraft(ctx context.Context, peer string) error {
	if peer == "" {
		return nil
	}
	resp, err := vm.client.Messages.Draft(ctx, peer)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.draft = resp.Files
	vm.mu.Unlock()
	return nil
}

// Draft returns the staged files of the open conversation.
func (vm *ViewModel) Draft() []rpc.StagedFile {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.draft
}

// Search runs a full-text search over cached messages.
func (vm *ViewModel) Search(ctx context.Context, query string) ([]rpc.SearchResult, error) {
	resp, err := vm.client.Messages.Search(ctx, &rpc.SearchRequest{Query: query, Limit: 50})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Profile fetches a member profile; an empty id means the viewer.
func (vm *ViewModel) Profile(ctx context.Context, id string) (*backend.Profile, error) {
	if id == "" {
		return vm.client.Discovery.Me(ctx)
	}
	return vm.client.Discovery.Profile(ctx, id)
}

// Matches fetches one page of a matches tab.
func (vm *ViewModel) Matches(ctx context.Context, tab string, page int) (*backend.MatchPage, error) {
	return vm.client.Discovery.Matches(ctx, &rpc.MatchesRequest{Tab: tab, Page: page})
}

// Like likes or unlikes a member.
func (vm *ViewModel) Like(ctx context.Context, id string, undo bool) error {
	return vm.client.Discovery.Like(ctx, id, undo)
}

// Shortlist adds or removes a member from the shortlist.
func (vm *ViewModel) Shortlist(ctx context.Context, id string, undo bool) error {
	return vm.client.Discovery.Shortlist(ctx, id, undo)
}

// Connect sends a connection request.
func (vm *ViewModel) Connect(ctx context.Context, id string) error {
	_, err := vm.client.Discovery.Connect(ctx, id)
	return err
}

// Requests lists a requests box.
func (vm *ViewModel) Requests(ctx context.Context, box string) ([]backend.Request, error) {
	return vm.client.Discovery.Requests(ctx, box)
}

// RequestAction accepts, rejects, restores or deletes a request.
func (vm *ViewModel) RequestAction(ctx context.Context, id, action string) error {
	_, err := vm.client.Discovery.RequestAction(ctx, id, action)
	return err
}

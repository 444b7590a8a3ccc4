package api

import (
	"context"
	"strings"

	"github.com/matheus3301/rishta/internal/attach"
	"github.com/matheus3301/rishta/internal/chat"
	"github.com/matheus3301/rishta/internal/outbox"
	"github.com/matheus3301/rishta/internal/rpc"
	"github.com/matheus3301/rishta/internal/store"
	intsync "github.com/matheus3301/rishta/internal/sync"
	"github.com/matheus3301/rishta/internal/typing"
)

// MessageService implements the Messages gRPC service.
type MessageService struct {
	db       *store.DB
	timeline *chat.Timeline
	sender   *outbox.Sender
	engine   *intsync.Engine
	previews *attach.Registry
	typing   *typing.Emitter
}

// NewMessageService creates a new message service.
func NewMessageService(db *store.DB, timeline *chat.Timeline, sender *outbox.Sender, engine *intsync.Engine, previews *attach.Registry, t *typing.Emitter) *MessageService {
	return &MessageService{db: db, timeline: timeline, sender: sender, engine: engine, previews: previews, typing: t}
}

func (s *MessageService) List(_ context.Context, _ *rpc.Empty) (*rpc.Timeline, error) {
	return timelineToRPC(s.timeline.Snapshot()), nil
}

func (s *MessageService) Send(_ context.Context, req *rpc.SendRequest) (*rpc.SendResponse, error) {
	if err := required("peer", req.Peer); err != nil {
		return nil, err
	}
	msg, err := s.sender.Submit(outbox.Draft{
		Peer:        req.Peer,
		Text:        req.Text,
		ReplyTo:     req.ReplyTo,
		Attachments: req.Attachments,
	})
	if err != nil {
		return nil, toStatus("send", err)
	}
	// Sending ends the typing burst.
	s.typing.Sent(req.Peer)
	return &rpc.SendResponse{ClientID: msg.TempID}, nil
}

func (s *MessageService) Retry(_ context.Context, req *rpc.ClientIDRequest) (*rpc.Empty, error) {
	if err := required("client id", req.ClientID); err != nil {
		return nil, err
	}
	if err := s.sender.Retry(req.ClientID); err != nil {
		return nil, toStatus("retry", err)
	}
	return &rpc.Empty{}, nil
}

func (s *MessageService) Discard(_ context.Context, req *rpc.ClientIDRequest) (*rpc.Empty, error) {
	if err := required("client id", req.ClientID); err != nil {
		return nil, err
	}
	if err := s.sender.Discard(req.ClientID); err != nil {
		return nil, toStatus("discard", err)
	}
	return &rpc.Empty{}, nil
}

// Delete removes a confirmed message by server id. A failed send, which
// only has a client id, is discarded instead, and the client id of a sent
// message resolves to its server id.
func (s *MessageService) Delete(ctx context.Context, req *rpc.IDRequest) (*rpc.Empty, error) {
	if err := required("id", req.ID); err != nil {
		return nil, err
	}
	entry, err := s.db.GetOutbox(req.ID)
	if err != nil {
		return nil, toStatus("delete", err)
	}
	id := req.ID
	switch {
	case entry == nil:
	case entry.Status != store.OutboxSent:
		if err := s.sender.Discard(req.ID); err != nil {
			return nil, toStatus("delete", err)
		}
		return &rpc.Empty{}, nil
	case entry.ServerMsgID != "":
		id = entry.ServerMsgID
	}
	if err := s.engine.DeleteMessage(ctx, id); err != nil {
		return nil, toStatus("delete", err)
	}
	return &rpc.Empty{}, nil
}

func (s *MessageService) Search(_ context.Context, req *rpc.SearchRequest) (*rpc.SearchResponse, error) {
	query := strings.TrimSpace(req.Query)
	if err := required("query", query); err != nil {
		return nil, err
	}
	results, err := s.db.SearchMessages(query, req.Peer, req.Limit)
	if err != nil {
		return nil, toStatus("search", err)
	}

	out := make([]rpc.SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, rpc.SearchResult{
			PeerID:    r.Message.PeerID,
			MessageID: r.Message.MsgID,
			SenderID:  r.Message.SenderID,
			Text:      r.Message.Body,
			Snippet:   r.Snippet,
			Timestamp: fromMillis(r.Message.Timestamp),
			FromMe:    r.Message.FromMe,
		})
	}
	return &rpc.SearchResponse{Results: out}, nil
}

func (s *MessageService) StageAttachment(_ context.Context, req *rpc.StageRequest) (*rpc.StagedFile, error) {
	if err := required("peer", req.Peer); err != nil {
		return nil, err
	}
	if err := required("path", req.Path); err != nil {
		return nil, err
	}
	st, err := s.previews.Stage(req.Peer, req.Path)
	if err != nil {
		return nil, toStatus("stage attachment", err)
	}
	return stagedToRPC(st), nil
}

func (s *MessageService) RemoveAttachment(_ context.Context, req *rpc.HandleRequest) (*rpc.Empty, error) {
	if err := required("handle", req.Handle); err != nil {
		return nil, err
	}
	if !s.previews.Revoke(req.Handle) {
		return nil, toStatus("remove attachment", attach.ErrRevoked)
	}
	return &rpc.Empty{}, nil
}

func (s *MessageService) Draft(_ context.Context, req *rpc.PeerRequest) (*rpc.DraftResponse, error) {
	if err := required("peer", req.Peer); err != nil {
		return nil, err
	}
	resp := &rpc.DraftResponse{Peer: req.Peer, Files: []rpc.StagedFile{}}
	for _, st := range s.previews.Draft(req.Peer) {
		resp.Files = append(resp.Files, *stagedToRPC(st))
	}
	return resp, nil
}

func (s *MessageService) Typing(_ context.Context, req *rpc.PeerRequest) (*rpc.Empty, error) {
	if err := required("peer", req.Peer); err != nil {
		return nil, err
	}
	s.typing.Keystroke(req.Peer)
	return &rpc.Empty{}, nil
}

func stagedToRPC(st attach.Staged) *rpc.StagedFile {
	return &rpc.StagedFile{Handle: st.Handle, Name: st.Name, MIME: st.MIME, Size: st.Size}
}

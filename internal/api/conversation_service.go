package api

import (
	"context"

	"github.com/matheus3301/rishta/internal/presence"
	"github.com/matheus3301/rishta/internal/rpc"
	"github.com/matheus3301/rishta/internal/store"
	intsync "github.com/matheus3301/rishta/internal/sync"
	"github.com/matheus3301/rishta/internal/typing"
)

// ConversationService implements the Conversations gRPC service.
type ConversationService struct {
	db       *store.DB
	engine   *intsync.Engine
	presence *presence.Cache
	typing   *typing.Indicator
}

// NewConversationService creates a new conversation service backed by the store.
func NewConversationService(db *store.DB, engine *intsync.Engine, p *presence.Cache, t *typing.Indicator) *ConversationService {
	return &ConversationService{db: db, engine: engine, presence: p, typing: t}
}

func (s *ConversationService) List(_ context.Context, req *rpc.ListConversationsRequest) (*rpc.ListConversationsResponse, error) {
	limit := 50
	if req.Limit > 0 {
		limit = req.Limit
	}
	convs, err := s.db.ListConversations(limit, req.Offset)
	if err != nil {
		return nil, toStatus("list conversations", err)
	}

	out := make([]rpc.Conversation, 0, len(convs))
	for _, c := range convs {
		rc := conversationToRPC(c)
		rc.Online = s.presence.Online(c.PeerID)
		rc.Typing = s.typing.Typing(c.PeerID)
		out = append(out, rc)
	}
	return &rpc.ListConversationsResponse{Conversations: out}, nil
}

func (s *ConversationService) Open(ctx context.Context, req *rpc.PeerRequest) (*rpc.OpenResponse, error) {
	if err := required("peer", req.Peer); err != nil {
		return nil, err
	}
	res, err := s.engine.OpenConversation(ctx, req.Peer)
	if err != nil {
		return nil, toStatus("open conversation", err)
	}
	return &rpc.OpenResponse{Epoch: res.Epoch, Count: res.Count, Cached: res.Cached}, nil
}

func (s *ConversationService) Close(_ context.Context, _ *rpc.Empty) (*rpc.Empty, error) {
	s.engine.CloseConversation()
	return &rpc.Empty{}, nil
}

func (s *ConversationService) Delete(ctx context.Context, req *rpc.PeerRequest) (*rpc.Empty, error) {
	if err := required("peer", req.Peer); err != nil {
		return nil, err
	}
	if err := s.engine.DeleteConversation(ctx, req.Peer); err != nil {
		return nil, toStatus("delete conversation", err)
	}
	return &rpc.Empty{}, nil
}

func (s *ConversationService) Presence(_ context.Context, req *rpc.PeerRequest) (*rpc.PresenceResponse, error) {
	if err := required("peer", req.Peer); err != nil {
		return nil, err
	}
	resp := &rpc.PresenceResponse{Peer: req.Peer, Typing: s.typing.Typing(req.Peer)}
	if st, ok := s.presence.Get(req.Peer); ok {
		resp.Known = true
		resp.Online = st.Online
		resp.At = st.At
		resp.Source = string(st.Source)
	}
	return resp, nil
}

func (s *ConversationService) Sync(ctx context.Context, _ *rpc.Empty) (*rpc.Empty, error) {
	if err := s.engine.Reconcile(ctx); err != nil {
		return nil, toStatus("sync", err)
	}
	return &rpc.Empty{}, nil
}

package api

import (
	"context"
	"slices"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/rishta/internal/backend"
	"github.com/matheus3301/rishta/internal/rpc"
)

// DiscoveryService implements the Discovery gRPC service by passing calls
// through to the platform. Nothing here is cached; the client renders
// and re-fetches.
type DiscoveryService struct {
	client *backend.Client
}

// NewDiscoveryService creates a new discovery service.
func NewDiscoveryService(client *backend.Client) *DiscoveryService {
	return &DiscoveryService{client: client}
}

func (s *DiscoveryService) Me(ctx context.Context, _ *rpc.Empty) (*backend.Profile, error) {
	p, err := s.client.Me(ctx)
	if err != nil {
		return nil, toStatus("me", err)
	}
	return p, nil
}

func (s *DiscoveryService) UpdateMe(ctx context.Context, req *backend.ProfileUpdate) (*backend.Profile, error) {
	p, err := s.client.UpdateMe(ctx, *req)
	if err != nil {
		return nil, toStatus("update profile", err)
	}
	return p, nil
}

func (s *DiscoveryService) Profile(ctx context.Context, req *rpc.ProfileRequest) (*backend.Profile, error) {
	if err := required("id", req.ID); err != nil {
		return nil, err
	}
	p, err := s.client.Profile(ctx, req.ID)
	if err != nil {
		return nil, toStatus("profile", err)
	}
	return p, nil
}

func (s *DiscoveryService) Matches(ctx context.Context, req *rpc.MatchesRequest) (*backend.MatchPage, error) {
	tab := req.Tab
	if tab == "" {
		tab = backend.MatchTabs[0]
	}
	if !slices.Contains(backend.MatchTabs, tab) {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "unknown matches tab %q", tab)
	}
	page, err := s.client.Matches(ctx, tab, req.Page, req.Limit)
	if err != nil {
		return nil, toStatus("matches", err)
	}
	return page, nil
}

func (s *DiscoveryService) Requests(ctx context.Context, req *rpc.RequestsRequest) (*rpc.RequestsResponse, error) {
	box := req.Box
	if box == "" {
		box = backend.RequestBoxes[0]
	}
	if !slices.Contains(backend.RequestBoxes, box) {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "unknown requests box %q", box)
	}
	reqs, err := s.client.Requests(ctx, box)
	if err != nil {
		return nil, toStatus("requests", err)
	}
	return &rpc.RequestsResponse{Requests: reqs}, nil
}

func (s *DiscoveryService) Connect(ctx context.Context, req *rpc.ConnectRequest) (*backend.Request, error) {
	if err := required("to", req.To); err != nil {
		return nil, err
	}
	r, err := s.client.SendRequest(ctx, req.To)
	if err != nil {
		return nil, toStatus("send request", err)
	}
	return r, nil
}

func (s *DiscoveryService) RequestAction(ctx context.Context, req *rpc.RequestActionRequest) (*rpc.RequestActionResponse, error) {
	if err := required("id", req.ID); err != nil {
		return nil, err
	}
	if req.Action == "delete" {
		if err := s.client.DeleteRequest(ctx, req.ID); err != nil {
			return nil, toStatus("delete request", err)
		}
		return &rpc.RequestActionResponse{}, nil
	}
	if !slices.Contains(backend.RequestActions, req.Action) {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "unknown request action %q", req.Action)
	}
	r, err := s.client.ActOnRequest(ctx, req.ID, req.Action)
	if err != nil {
		return nil, toStatus(req.Action+" request", err)
	}
	return &rpc.RequestActionResponse{Request: r}, nil
}

func (s *DiscoveryService) Like(ctx context.Context, req *rpc.ToggleRequest) (*rpc.Empty, error) {
	return s.toggle(ctx, "like", req, s.client.Like)
}

func (s *DiscoveryService) Shortlist(ctx context.Context, req *rpc.ToggleRequest) (*rpc.Empty, error) {
	return s.toggle(ctx, "shortlist", req, s.client.Shortlist)
}

func (s *DiscoveryService) Block(ctx context.Context, req *rpc.ToggleRequest) (*rpc.Empty, error) {
	return s.toggle(ctx, "block", req, s.client.Block)
}

func (s *DiscoveryService) toggle(ctx context.Context, op string, req *rpc.ToggleRequest, call func(context.Context, string, bool) error) (*rpc.Empty, error) {
	if err := required("user id", req.UserID); err != nil {
		return nil, err
	}
	if err := call(ctx, req.UserID, req.Undo); err != nil {
		return nil, toStatus(op, err)
	}
	return &rpc.Empty{}, nil
}

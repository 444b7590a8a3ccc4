package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/matheus3301/rishta/internal/backend"
)

const discoveryService = "rishta.v1.Discovery"

// DiscoveryServer is the server API of the Discovery service: profiles,
// matches, connection requests and the like/shortlist/block toggles.
type DiscoveryServer interface {
	Me(context.Context, *Empty) (*backend.Profile, error)
	UpdateMe(context.Context, *backend.ProfileUpdate) (*backend.Profile, error)
	Profile(context.Context, *ProfileRequest) (*backend.Profile, error)
	Matches(context.Context, *MatchesRequest) (*backend.MatchPage, error)
	Requests(context.Context, *RequestsRequest) (*RequestsResponse, error)
	Connect(context.Context, *ConnectRequest) (*backend.Request, error)
	RequestAction(context.Context, *RequestActionRequest) (*RequestActionResponse, error)
	Like(context.Context, *ToggleRequest) (*Empty, error)
	Shortlist(context.Context, *ToggleRequest) (*Empty, error)
	Block(context.Context, *ToggleRequest) (*Empty, error)
}

var DiscoveryServiceDesc = grpc.ServiceDesc{
	ServiceName: discoveryService,
	HandlerType: (*DiscoveryServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(discoveryService, "Me", DiscoveryServer.Me),
		unary(discoveryService, "UpdateMe", DiscoveryServer.UpdateMe),
		unary(discoveryService, "Profile", DiscoveryServer.Profile),
		unary(discoveryService, "Matches", DiscoveryServer.Matches),
		unary(discoveryService, "Requests", DiscoveryServer.Requests),
		unary(discoveryService, "Connect", DiscoveryServer.Connect),
		unary(discoveryService, "RequestAction", DiscoveryServer.RequestAction),
		unary(discoveryService, "Like", DiscoveryServer.Like),
		unary(discoveryService, "Shortlist", DiscoveryServer.Shortlist),
		unary(discoveryService, "Block", DiscoveryServer.Block),
	},
}

func RegisterDiscoveryServer(s grpc.ServiceRegistrar, srv DiscoveryServer) {
	s.RegisterService(&DiscoveryServiceDesc, srv)
}

type DiscoveryClient struct {
	cc grpc.ClientConnInterface
}

func NewDiscoveryClient(cc grpc.ClientConnInterface) *DiscoveryClient {
	return &DiscoveryClient{cc: cc}
}

func (c *DiscoveryClient) method(name string) string {
	return "/" + discoveryService + "/" + name
}

func (c *DiscoveryClient) Me(ctx context.Context, opts ...grpc.CallOption) (*backend.Profile, error) {
	return invoke[backend.Profile](ctx, c.cc, c.method("Me"), &Empty{}, opts)
}

func (c *DiscoveryClient) UpdateMe(ctx context.Context, in *backend.ProfileUpdate, opts ...grpc.CallOption) (*backend.Profile, error) {
	return invoke[backend.Profile](ctx, c.cc, c.method("UpdateMe"), in, opts)
}

func (c *DiscoveryClient) Profile(ctx context.Context, id string, opts ...grpc.CallOption) (*backend.Profile, error) {
	return invoke[backend.Profile](ctx, c.cc, c.method("Profile"), &ProfileRequest{ID: id}, opts)
}

func (c *DiscoveryClient) Matches(ctx context.Context, in *MatchesRequest, opts ...grpc.CallOption) (*backend.MatchPage, error) {
	return invoke[backend.MatchPage](ctx, c.cc, c.method("Matches"), in, opts)
}

func (c *DiscoveryClient) Requests(ctx context.Context, box string, opts ...grpc.CallOption) ([]backend.Request, error) {
	out, err := invoke[RequestsResponse](ctx, c.cc, c.method("Requests"), &RequestsRequest{Box: box}, opts)
	if err != nil {
		return nil, err
	}
	return out.Requests, nil
}

func (c *DiscoveryClient) Connect(ctx context.Context, to string, opts ...grpc.CallOption) (*backend.Request, error) {
	return invoke[backend.Request](ctx, c.cc, c.method("Connect"), &ConnectRequest{To: to}, opts)
}

func (c *DiscoveryClient) RequestAction(ctx context.Context, id, action string, opts ...grpc.CallOption) (*RequestActionResponse, error) {
	return invoke[RequestActionResponse](ctx, c.cc, c.method("RequestAction"), &RequestActionRequest{ID: id, Action: action}, opts)
}

func (c *DiscoveryClient) Like(ctx context.Context, userID string, undo bool, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, c.method("Like"), &ToggleRequest{UserID: userID, Undo: undo}, opts)
	return err
}

func (c *DiscoveryClient) Shortlist(ctx context.Context, userID string, undo bool, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, c.method("Shortlist"), &ToggleRequest{UserID: userID, Undo: undo}, opts)
	return err
}

func (c *DiscoveryClient) Block(ctx context.Context, userID string, undo bool, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, c.method("Block"), &ToggleRequest{UserID: userID, Undo: undo}, opts)
	return err
}

package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const conversationsService = "rishta.v1.Conversations"

// ConversationsServer is the server API of the Conversations service.
type ConversationsServer interface {
	List(context.Context, *ListConversationsRequest) (*ListConversationsResponse, error)
	Open(context.Context, *PeerRequest) (*OpenResponse, error)
	Close(context.Context, *Empty) (*Empty, error)
	Delete(context.Context, *PeerRequest) (*Empty, error)
	Presence(context.Context, *PeerRequest) (*PresenceResponse, error)
	Sync(context.Context, *Empty) (*Empty, error)
}

var ConversationsServiceDesc = grpc.ServiceDesc{
	ServiceName: conversationsService,
	HandlerType: (*ConversationsServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(conversationsService, "List", ConversationsServer.List),
		unary(conversationsService, "Open", ConversationsServer.Open),
		unary(conversationsService, "Close", ConversationsServer.Close),
		unary(conversationsService, "Delete", ConversationsServer.Delete),
		unary(conversationsService, "Presence", ConversationsServer.Presence),
		unary(conversationsService, "Sync", ConversationsServer.Sync),
	},
}

func RegisterConversationsServer(s grpc.ServiceRegistrar, srv ConversationsServer) {
	s.RegisterService(&ConversationsServiceDesc, srv)
}

type ConversationsClient struct {
	cc grpc.ClientConnInterface
}

func NewConversationsClient(cc grpc.ClientConnInterface) *ConversationsClient {
	return &ConversationsClient{cc: cc}
}

func (c *ConversationsClient) method(name string) string {
	return "/" + conversationsService + "/" + name
}

func (c *ConversationsClient) List(ctx context.Context, in *ListConversationsRequest, opts ...grpc.CallOption) (*ListConversationsResponse, error) {
	return invoke[ListConversationsResponse](ctx, c.cc, c.method("List"), in, opts)
}

// Open switches the daemon's timeline to peer and loads its history.
func (c *ConversationsClient) Open(ctx context.Context, peer string, opts ...grpc.CallOption) (*OpenResponse, error) {
	return invoke[OpenResponse](ctx, c.cc, c.method("Open"), &PeerRequest{Peer: peer}, opts)
}

func (c *ConversationsClient) Close(ctx context.Context, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, c.method("Close"), &Empty{}, opts)
	return err
}

func (c *ConversationsClient) Delete(ctx context.Context, peer string, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, c.method("Delete"), &PeerRequest{Peer: peer}, opts)
	return err
}

func (c *ConversationsClient) Presence(ctx context.Context, peer string, opts ...grpc.CallOption) (*PresenceResponse, error) {
	return invoke[PresenceResponse](ctx, c.cc, c.method("Presence"), &PeerRequest{Peer: peer}, opts)
}

// Sync reconciles the contact list and the open conversation now.
func (c *ConversationsClient) Sync(ctx context.Context, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, c.method("Sync"), &Empty{}, opts)
	return err
}

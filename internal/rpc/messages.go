package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const messagesService = "rishta.v1.Messages"

// MessagesServer is the server API of the Messages service.
type MessagesServer interface {
	List(context.Context, *Empty) (*Timeline, error)
	Send(context.Context, *SendRequest) (*SendResponse, error)
	Retry(context.Context, *ClientIDRequest) (*Empty, error)
	Discard(context.Context, *ClientIDRequest) (*Empty, error)
	Delete(context.Context, *IDRequest) (*Empty, error)
	Search(context.Context, *SearchRequest) (*SearchResponse, error)
	StageAttachment(context.Context, *StageRequest) (*StagedFile, error)
	RemoveAttachment(context.Context, *HandleRequest) (*Empty, error)
	Draft(context.Context, *PeerRequest) (*DraftResponse, error)
	Typing(context.Context, *PeerRequest) (*Empty, error)
}

var MessagesServiceDesc = grpc.ServiceDesc{
	ServiceName: messagesService,
	HandlerType: (*MessagesServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(messagesService, "List", MessagesServer.List),
		unary(messagesService, "Send", MessagesServer.Send),
		unary(messagesService, "Retry", MessagesServer.Retry),
		unary(messagesService, "Discard", MessagesServer.Discard),
		unary(messagesService, "Delete", MessagesServer.Delete),
		unary(messagesService, "Search", MessagesServer.Search),
		unary(messagesService, "StageAttachment", MessagesServer.StageAttachment),
		unary(messagesService, "RemoveAttachment", MessagesServer.RemoveAttachment),
		unary(messagesService, "Draft", MessagesServer.Draft),
		unary(messagesService, "Typing", MessagesServer.Typing),
	},
}

func RegisterMessagesServer(s grpc.ServiceRegistrar, srv MessagesServer) {
	s.RegisterService(&MessagesServiceDesc, srv)
}

type MessagesClient struct {
	cc grpc.ClientConnInterface
}

func NewMessagesClient(cc grpc.ClientConnInterface) *MessagesClient {
	return &MessagesClient{cc: cc}
}

func (c *MessagesClient) method(name string) string {
	return "/" + messagesService + "/" + name
}

// List returns a snapshot of the open conversation's timeline.
func (c *MessagesClient) List(ctx context.Context, opts ...grpc.CallOption) (*Timeline, error) {
	return invoke[Timeline](ctx, c.cc, c.method("List"), &Empty{}, opts)
}

func (c *MessagesClient) Send(ctx context.Context, in *SendRequest, opts ...grpc.CallOption) (*SendResponse, error) {
	return invoke[SendResponse](ctx, c.cc, c.method("Send"), in, opts)
}

func (c *MessagesClient) Retry(ctx context.Context, clientID string, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, c.method("Retry"), &ClientIDRequest{ClientID: clientID}, opts)
	return err
}

func (c *MessagesClient) Discard(ctx context.Context, clientID string, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, c.method("Discard"), &ClientIDRequest{ClientID: clientID}, opts)
	return err
}

func (c *MessagesClient) Delete(ctx context.Context, id string, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, c.method("Delete"), &IDRequest{ID: id}, opts)
	return err
}

func (c *MessagesClient) Search(ctx context.Context, in *SearchRequest, opts ...grpc.CallOption) (*SearchResponse, error) {
	return invoke[SearchResponse](ctx, c.cc, c.method("Search"), in, opts)
}

func (c *MessagesClient) StageAttachment(ctx context.Context, peer, path string, opts ...grpc.CallOption) (*StagedFile, error) {
	return invoke[StagedFile](ctx, c.cc, c.method("StageAttachment"), &StageRequest{Peer: peer, Path: path}, opts)
}

func (c *MessagesClient) RemoveAttachment(ctx context.Context, handle string, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, c.method("RemoveAttachment"), &HandleRequest{Handle: handle}, opts)
	return err
}

func (c *MessagesClient) Draft(ctx context.Context, peer string, opts ...grpc.CallOption) (*DraftResponse, error) {
	return invoke[DraftResponse](ctx, c.cc, c.method("Draft"), &PeerRequest{Peer: peer}, opts)
}

// Typing reports a keystroke in the composer for peer.
func (c *MessagesClient) Typing(ctx context.Context, peer string, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, c.method("Typing"), &PeerRequest{Peer: peer}, opts)
	return err
}

package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const sessionService = "rishta.v1.Session"

// SessionServer is the server API of the Session service.
type SessionServer interface {
	GetStatus(context.Context, *Empty) (*StatusResponse, error)
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	Logout(context.Context, *Empty) (*Empty, error)
	WatchEvents(*WatchRequest, grpc.ServerStreamingServer[Event]) error
}

// SessionServiceDesc describes the Session service.
var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: sessionService,
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(sessionService, "GetStatus", SessionServer.GetStatus),
		unary(sessionService, "Login", SessionServer.Login),
		unary(sessionService, "Logout", SessionServer.Logout),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			Handler:       watchEventsHandler,
			ServerStreams: true,
		},
	},
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(SessionServer).WatchEvents(in, &grpc.GenericServerStream[WatchRequest, Event]{ServerStream: stream})
}

// RegisterSessionServer registers srv on s.
func RegisterSessionServer(s grpc.ServiceRegistrar, srv SessionServer) {
	s.RegisterService(&SessionServiceDesc, srv)
}

// SessionClient is the client API of the Session service.
type SessionClient struct {
	cc grpc.ClientConnInterface
}

func NewSessionClient(cc grpc.ClientConnInterface) *SessionClient {
	return &SessionClient{cc: cc}
}

func (c *SessionClient) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c.cc, "/"+sessionService+"/GetStatus", &Empty{}, opts)
}

func (c *SessionClient) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error) {
	return invoke[LoginResponse](ctx, c.cc, "/"+sessionService+"/Login", in, opts)
}

func (c *SessionClient) Logout(ctx context.Context, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, "/"+sessionService+"/Logout", &Empty{}, opts)
	return err
}

// WatchEvents streams daemon events whose kind starts with in.Prefix
// until ctx is cancelled.
func (c *SessionClient) WatchEvents(ctx context.Context, in *WatchRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[Event], error) {
	opts = append(opts, CallOption())
	stream, err := c.cc.NewStream(ctx, &SessionServiceDesc.Streams[0], "/"+sessionService+"/WatchEvents", opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[WatchRequest, Event]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// Package client dials the daemon socket for the TUI and rishtactl.
package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/matheus3301/rishta/internal/rpc"
)

// Client wraps gRPC connections to the daemon.
type Client struct {
	conn          *grpc.ClientConn
	Session       *rpc.SessionClient
	Conversations *rpc.ConversationsClient
	Messages      *rpc.MessagesClient
	Discovery     *rpc.DiscoveryClient
	health        healthpb.HealthClient
}

// New dials the daemon's Unix domain socket and returns typed service clients.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}

	return &Client{
		conn:          conn,
		Session:       rpc.NewSessionClient(conn),
		Conversations: rpc.NewConversationsClient(conn),
		Messages:      rpc.NewMessagesClient(conn),
		Discovery:     rpc.NewDiscoveryClient(conn),
		health:        healthpb.NewHealthClient(conn),
	}, nil
}

// Ping reports whether the daemon answers its health check.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("daemon not reachable: %w", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("daemon not serving: %s", resp.Status)
	}
	return nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/security-zone/internal/api/grpc/health"
	"github.com/oshokin/security-zone/internal/config"
	"github.com/oshokin/security-zone/internal/version"
)

// Client wraps the gRPC health client of the supervisor.
type Client struct {
	// conn is the underlying gRPC connection to the supervisor.
	conn *grpc.ClientConn
	// api is the generated health client.
	api healthpb.HealthClient

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
	// actor is reported in the user agent when set.
	actor *Actor
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithActor reports the actor in the user agent of every call.
func WithActor(actor *Actor) Option {
	return func(c *Client) {
		c.actor = actor
	}
}

// errAddressRequired is returned when a required address value is missing.
var errAddressRequired = errors.New("address must be provided")

// Dial creates a client of the supervisor health service.
// Note: this uses insecure transport credentials; deploy on a trusted network
// or terminate TLS in a proxy until native TLS is added.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	client := &Client{
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	conn, err := grpc.NewClient(address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUserAgent(client.userAgent()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial supervisor: %w", err)
	}

	client.conn = conn
	client.api = healthpb.NewHealthClient(conn)

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// Supervisor returns the overall status of the supervisor.
func (c *Client) Supervisor(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
	return c.check(ctx, "")
}

// Zone returns the status of one zone: SERVING while quiet, NOT_SERVING while alarming.
func (c *Client) Zone(ctx context.Context, zoneID string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	return c.check(ctx, health.ServiceName(zoneID))
}

func (c *Client) check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.Check(callCtx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("check %q: %w", service, err)
	}

	return resp.GetStatus(), nil
}

func (c *Client) userAgent() string {
	agent := "security-zone/" + version.Short()
	if c.actor != nil {
		agent += " (" + c.actor.String() + ")"
	}

	return agent
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}

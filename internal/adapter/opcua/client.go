// Package opcua wraps github.com/gopcua/opcua's Client behind the narrow
// collaborator interfaces internal/executor and internal/subscription
// depend on, serializing calls per client exactly as edge_opcua_client.c
// serializes service calls on a single UA_Client handle. Adapted from the
// teacher's internal/adapter/opcua/subscription.go connection-management
// patterns.
package opcua

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/monitor"
	"github.com/gopcua/opcua/ua"
	"github.com/rs/zerolog"

	"github.com/nexus-edge/opcua-edge-adapter/internal/domain"
)

// Config tunes a Client's connection to one endpoint.
type Config struct {
	Endpoint          string
	SecurityPolicy    string
	SecurityMode      string
	Username          string
	Password          string
	CertificatePath   string
	PrivateKeyPath    string
	SessionTimeout    time.Duration
	RequestTimeout    time.Duration
}

// Client wraps *opcua.Client with a mutex that serializes every service
// call, matching the source's single-threaded UA_Client access discipline
// (spec §5 "operations against a single client are serialized").
type Client struct {
	cfg    Config
	logger zerolog.Logger

	mu        sync.Mutex
	raw       *opcua.Client
	nodeMon   *monitor.NodeMonitor
	connected bool
}

// New constructs a Client for cfg.Endpoint without connecting.
func New(cfg Config, logger zerolog.Logger) *Client {
	return &Client{cfg: cfg, logger: logger.With().Str("component", "opcua.Client").Str("endpoint", cfg.Endpoint).Logger()}
}

func (c *Client) options() []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityPolicy(c.cfg.SecurityPolicy),
		opcua.SecurityModeString(c.cfg.SecurityMode),
	}
	if c.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(c.cfg.Username, c.cfg.Password))
	}
	if c.cfg.CertificatePath != "" {
		opts = append(opts, opcua.CertificateFile(c.cfg.CertificatePath), opcua.PrivateKeyFile(c.cfg.PrivateKeyPath))
	}
	if c.cfg.SessionTimeout > 0 {
		opts = append(opts, opcua.SessionTimeout(c.cfg.SessionTimeout))
	}
	if c.cfg.RequestTimeout > 0 {
		opts = append(opts, opcua.RequestTimeout(c.cfg.RequestTimeout))
	}
	return opts
}

// Connect dials and opens a session against the endpoint. Matches
// edge_opcua_client.c's connect-and-create-session sequence.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	raw, err := opcua.NewClient(c.cfg.Endpoint, c.options()...)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err)
	}
	if err := raw.Connect(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err)
	}
	mon, err := monitor.NewNodeMonitor(raw)
	if err != nil {
		raw.Close(ctx)
		return fmt.Errorf("%w: node monitor: %v", domain.ErrConnectionFailed, err)
	}

	c.raw = raw
	c.nodeMon = mon
	c.connected = true
	c.logger.Info().Msg("connected")
	return nil
}

// Close disconnects the underlying session. Idempotent.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	err := c.raw.Close(ctx)
	c.connected = false
	c.raw = nil
	c.nodeMon = nil
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConnectionClosed, err)
	}
	c.logger.Info().Msg("closed")
	return nil
}

// IsConnected reports whether Connect has succeeded and Close has not since
// been called.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) rawClient() (*opcua.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, domain.ErrConnectionClosed
	}
	return c.raw, nil
}

// Read performs a synchronous Read service call.
func (c *Client) Read(ctx context.Context, req *ua.ReadRequest) (*ua.ReadResponse, error) {
	raw, err := c.rawClient()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return raw.Read(ctx, req)
}

// Write performs a synchronous Write service call.
func (c *Client) Write(ctx context.Context, req *ua.WriteRequest) (*ua.WriteResponse, error) {
	raw, err := c.rawClient()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return raw.Write(ctx, req)
}

// Call performs a synchronous Call (Method) service call.
func (c *Client) Call(ctx context.Context, req *ua.CallMethodRequest) (*ua.CallMethodResult, error) {
	raw, err := c.rawClient()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return raw.Call(ctx, req)
}

// Browse performs a synchronous Browse service call.
func (c *Client) Browse(ctx context.Context, req *ua.BrowseRequest) (*ua.BrowseResponse, error) {
	raw, err := c.rawClient()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return raw.Browse(ctx, req)
}

// BrowseNext performs a synchronous BrowseNext service call.
func (c *Client) BrowseNext(ctx context.Context, req *ua.BrowseNextRequest) (*ua.BrowseNextResponse, error) {
	raw, err := c.rawClient()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return raw.BrowseNext(ctx, req)
}

// Subscribe creates a server-side subscription and returns its handle plus
// the notification channel it will publish to, matching the teacher's
// createOPCSubscription call shape.
func (c *Client) Subscribe(ctx context.Context, params *opcua.SubscriptionParameters, notifyCh chan<- *opcua.PublishNotificationData) (*opcua.Subscription, error) {
	raw, err := c.rawClient()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return raw.Subscribe(ctx, params, notifyCh)
}

// ModifySubscription revises a subscription's publishing parameters.
func (c *Client) ModifySubscription(ctx context.Context, req *ua.ModifySubscriptionRequest) (*ua.ModifySubscriptionResponse, error) {
	raw, err := c.rawClient()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return raw.ModifySubscription(ctx, req)
}

// SetPublishingMode enables or disables publishing for the given
// subscriptions.
func (c *Client) SetPublishingMode(ctx context.Context, req *ua.SetPublishingModeRequest) (*ua.SetPublishingModeResponse, error) {
	raw, err := c.rawClient()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return raw.SetPublishingMode(ctx, req)
}

// Republish requests retransmission of a previously sent notification
// message.
func (c *Client) Republish(ctx context.Context, req *ua.RepublishRequest) (*ua.RepublishResponse, error) {
	raw, err := c.rawClient()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return raw.Republish(ctx, req)
}

// GetEndpoints retrieves the endpoint descriptions advertised by the server
// at endpoint, without an established session (spec §4.6.1).
func GetEndpoints(ctx context.Context, endpoint string) ([]*ua.EndpointDescription, error) {
	c, err := opcua.NewClient(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err)
	}
	if err := c.Dial(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err)
	}
	defer c.Close(ctx)

	res, err := c.GetEndpoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err)
	}
	return res.Endpoints, nil
}

// FindServers retrieves the ApplicationDescription of every server a
// discovery endpoint knows about (spec §4.6.2).
func FindServers(ctx context.Context, discoveryEndpoint string) ([]*ua.ApplicationDescription, error) {
	c, err := opcua.NewClient(discoveryEndpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err)
	}
	if err := c.Dial(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err)
	}
	defer c.Close(ctx)

	res, err := c.FindServers(ctx, &ua.FindServersRequest{EndpointURL: discoveryEndpoint})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err)
	}
	return res.Servers, nil
}

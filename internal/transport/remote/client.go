package remote

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/rmacdonaldsmith/rcl-go/internal/transport/intraprocess"
	"github.com/rmacdonaldsmith/rcl-go/pkg/transport"
)

// Identifier is stamped on every handle issued through the bridge client.
const Identifier = "rcl_remote"

var (
	// ErrRemote wraps failures reported by the bridge server
	ErrRemote = errors.New("bridge call failed")
	// ErrClientClosed is returned by every call after Close
	ErrClientClosed = errors.New("bridge client is closed")
	// ErrForeignHandle is returned for handles issued by another adapter
	ErrForeignHandle = errors.New("handle was issued by another transport")
	// ErrStatusType is returned when a status argument does not match the event
	ErrStatusType = errors.New("status type does not match event")
)

// Client is a transport.Transport whose entities live on a bridge server.
// It is safe for concurrent use.
type Client struct {
	config ClientConfig
	conn   *grpc.ClientConn

	mu     sync.RWMutex
	token  string
	events map[uuid.UUID]transport.EventType
	closed bool
}

// NewClient creates a client for the server at config.ServerAddress. The
// connection is established lazily on the first call. Extra dial options,
// such as a custom dialer, are appended to the defaults.
func NewClient(config ClientConfig, opts ...grpc.DialOption) (*Client, error) {
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config: config,
		token:  config.Token,
		events: make(map[uuid.UUID]transport.EventType),
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithPerRPCCredentials(tokenCredentials{client: c}),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)

	conn, err := grpc.NewClient(config.ServerAddress, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bridge connection: %w", err)
	}
	c.conn = conn
	return c, nil
}

// Identifier returns the adapter name.
func (c *Client) Identifier() string {
	return Identifier
}

// Token returns the bearer token attached to calls.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Authenticate logs in with the configured client ID and stores the token.
func (c *Client) Authenticate(ctx context.Context) error {
	var reply loginReply
	if err := c.invoke(ctx, methodLogin, &loginRequest{ClientID: c.config.ClientID}, &reply); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	c.mu.Lock()
	c.token = reply.Token
	c.mu.Unlock()
	return nil
}

// Close tears down the connection. Calling Close more than once is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// CheckHealth asks the server's health service about the bridge. Health
// messages are protobuf, so the call overrides the default CBOR subtype.
func (c *Client) CheckHealth(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
	if c.isClosed() {
		return healthpb.HealthCheckResponse_UNKNOWN, ErrClientClosed
	}
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx,
		&healthpb.HealthCheckRequest{Service: serviceName},
		grpc.CallContentSubtype("proto"))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fromStatus(err)
	}
	return resp.GetStatus(), nil
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// invoke performs a unary call bounded by the configured timeout.
func (c *Client) invoke(ctx context.Context, method string, req, reply any) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	return c.call(ctx, method, req, reply)
}

func (c *Client) call(ctx context.Context, method string, req, reply any) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	if err := c.conn.Invoke(ctx, method, req, reply); err != nil {
		return fromStatus(err)
	}
	return nil
}

// fromStatus maps a gRPC failure back onto transport errors.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", ErrRemote, err)
	}
	if st.Code() == codes.Canceled {
		return fmt.Errorf("%w: %s", transport.ErrShutdown, st.Message())
	}
	return fmt.Errorf("%w: %s: %s", ErrRemote, st.Code(), st.Message())
}

func checkHandle(h transport.Handle) error {
	if h.IsZero() {
		return fmt.Errorf("%w: zero handle", ErrForeignHandle)
	}
	if h.Implementation != Identifier {
		return fmt.Errorf("%w: %s", ErrForeignHandle, h)
	}
	return nil
}

// CreateEvent creates an event on the bridge for the remote entity.
func (c *Client) CreateEvent(entity transport.Handle, eventType transport.EventType) (transport.Handle, error) {
	if err := checkHandle(entity); err != nil {
		return transport.Handle{}, err
	}

	var reply entityReply
	err := c.invoke(context.Background(), methodCreateEvent, &createEventRequest{Entity: entity.ID, Type: eventType}, &reply)
	if err != nil {
		return transport.Handle{}, err
	}

	c.mu.Lock()
	c.events[reply.ID] = eventType
	c.mu.Unlock()
	return transport.Handle{Implementation: Identifier, ID: reply.ID}, nil
}

// DestroyEvent releases an event on the bridge.
func (c *Client) DestroyEvent(event transport.Handle) error {
	if err := checkHandle(event); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.events, event.ID)
	c.mu.Unlock()

	return c.invoke(context.Background(), methodDestroyEvent, &entityRequest{ID: event.ID}, &empty{})
}

// PollEvent fetches the pending status of event into dst.
func (c *Client) PollEvent(event transport.Handle, dst any) (bool, error) {
	if err := checkHandle(event); err != nil {
		return false, err
	}

	c.mu.RLock()
	eventType, known := c.events[event.ID]
	c.mu.RUnlock()
	if known {
		want := reflect.TypeOf(transport.NewStatus(eventType))
		v := reflect.ValueOf(dst)
		if !v.IsValid() || v.Type() != want || v.IsNil() {
			return false, fmt.Errorf("%w: %s event cannot fill %T", ErrStatusType, eventType, dst)
		}
	}

	var reply pollEventReply
	if err := c.invoke(context.Background(), methodPollEvent, &entityRequest{ID: event.ID}, &reply); err != nil {
		return false, err
	}
	if !reply.Taken {
		return false, nil
	}
	if err := codec.Unmarshal(reply.Status, dst); err != nil {
		return false, fmt.Errorf("failed to decode status: %w", err)
	}
	return true, nil
}

// Wait blocks on the bridge until an entity is ready, the timeout expires
// or ctx is done.
func (c *Client) Wait(ctx context.Context, entities *transport.WaitEntities, timeout time.Duration) error {
	if entities == nil {
		return intraprocess.ErrNilEntities
	}
	for _, group := range [][]transport.Handle{
		entities.Subscriptions, entities.GuardConditions, entities.Services,
		entities.Clients, entities.Events,
	} {
		for _, h := range group {
			if !h.IsZero() && h.Implementation != Identifier {
				return fmt.Errorf("%w: %s", ErrForeignHandle, h)
			}
		}
	}

	if ctx.Err() != nil {
		return transport.ErrShutdown
	}

	var reply waitReply
	err := c.call(ctx, methodWait, &waitRequest{Entities: encodeWaitSet(entities), Timeout: timeout}, &reply)
	if err != nil {
		if ctx.Err() != nil {
			return transport.ErrShutdown
		}
		return err
	}

	applyReady(entities.Subscriptions, reply.Entities.Subscriptions)
	applyReady(entities.GuardConditions, reply.Entities.GuardConditions)
	applyReady(entities.Services, reply.Entities.Services)
	applyReady(entities.Clients, reply.Entities.Clients)
	applyReady(entities.Events, reply.Entities.Events)

	if reply.TimedOut {
		return transport.ErrTimeout
	}
	return nil
}

// PublishersInfoByTopic lists the publishers on topic hosted by the bridge.
func (c *Client) PublishersInfoByTopic(topic string) ([]transport.EndpointInfo, error) {
	return c.infoByTopic(methodPublishersInfoByTopic, topic)
}

// SubscriptionsInfoByTopic lists the subscriptions on topic hosted by the
// bridge.
func (c *Client) SubscriptionsInfoByTopic(topic string) ([]transport.EndpointInfo, error) {
	return c.infoByTopic(methodSubscriptionsInfoByTopic, topic)
}

func (c *Client) infoByTopic(method, topic string) ([]transport.EndpointInfo, error) {
	if topic == "" {
		return nil, fmt.Errorf("%w: topic", intraprocess.ErrEmptyName)
	}

	var reply endpointsReply
	if err := c.invoke(context.Background(), method, &topicQueryRequest{Topic: topic}, &reply); err != nil {
		return nil, err
	}
	return decodeEndpoints(Identifier, topic, reply.Endpoints), nil
}

// Verify that Client implements the transport capabilities at compile time
var (
	_ transport.Transport    = (*Client)(nil)
	_ transport.GraphQuerier = (*Client)(nil)
)

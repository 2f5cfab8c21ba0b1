package remote

import (
	"context"
	"fmt"
	"sync"

	"github.com/rmacdonaldsmith/rcl-go/internal/transport/intraprocess"
	"github.com/rmacdonaldsmith/rcl-go/pkg/rcl"
	"github.com/rmacdonaldsmith/rcl-go/pkg/transport"
)

// entity is the client-side stub of an object living on the bridge.
type entity struct {
	client *Client

	mu     sync.Mutex
	handle transport.Handle
}

func newEntity(c *Client, reply *entityReply) entity {
	return entity{
		client: c,
		handle: transport.Handle{Implementation: Identifier, ID: reply.ID},
	}
}

func (e *entity) transportHandle() transport.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handle
}

func (e *entity) live() (transport.Handle, error) {
	h := e.transportHandle()
	if h.IsZero() {
		return h, fmt.Errorf("%w: entity destroyed", intraprocess.ErrUnknownHandle)
	}
	return h, nil
}

func (e *entity) destroy(ctx context.Context) error {
	h, err := e.live()
	if err != nil {
		return err
	}
	if err := e.client.invoke(ctx, methodDestroyEntity, &entityRequest{ID: h.ID}, &empty{}); err != nil {
		return err
	}
	e.mu.Lock()
	e.handle = transport.Handle{}
	e.mu.Unlock()
	return nil
}

func topicRequest(topic string, qos intraprocess.QoS) *createTopicEntityRequest {
	return &createTopicEntityRequest{
		Topic:                   topic,
		Depth:                   qos.Depth,
		Deadline:                qos.Deadline,
		LivelinessLeaseDuration: qos.LivelinessLeaseDuration,
	}
}

// Publisher is a publisher hosted on the bridge server.
type Publisher struct {
	entity
	topic string
}

// CreatePublisher creates a publisher on the server.
func (c *Client) CreatePublisher(ctx context.Context, topic string, qos intraprocess.QoS) (*Publisher, error) {
	var reply entityReply
	if err := c.invoke(ctx, methodCreatePublisher, topicRequest(topic, qos), &reply); err != nil {
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}
	return &Publisher{entity: newEntity(c, &reply), topic: topic}, nil
}

// Kind reports rcl.KindPublisher.
func (p *Publisher) Kind() rcl.EntityKind { return rcl.KindPublisher }

// TransportHandle returns the handle, or the zero Handle once destroyed.
func (p *Publisher) TransportHandle() transport.Handle {
	if p == nil {
		return transport.Handle{}
	}
	return p.transportHandle()
}

// Transport returns the bridge client.
func (p *Publisher) Transport() transport.Transport {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client
}

// Topic returns the topic name.
func (p *Publisher) Topic() string { return p.topic }

// Publish sends data to the subscriptions matched on the server.
func (p *Publisher) Publish(ctx context.Context, data []byte) error {
	h, err := p.live()
	if err != nil {
		return err
	}
	return p.client.invoke(ctx, methodPublish, &publishRequest{ID: h.ID, Data: data}, &empty{})
}

// AssertLiveliness renews the publisher's liveliness lease.
func (p *Publisher) AssertLiveliness(ctx context.Context) error {
	h, err := p.live()
	if err != nil {
		return err
	}
	return p.client.invoke(ctx, methodAssertLiveliness, &entityRequest{ID: h.ID}, &empty{})
}

// Destroy removes the publisher from the server.
func (p *Publisher) Destroy(ctx context.Context) error {
	return p.destroy(ctx)
}

// Subscription is a subscription hosted on the bridge server.
type Subscription struct {
	entity
	topic string
}

// CreateSubscription creates a subscription on the server.
func (c *Client) CreateSubscription(ctx context.Context, topic string, qos intraprocess.QoS) (*Subscription, error) {
	var reply entityReply
	if err := c.invoke(ctx, methodCreateSubscription, topicRequest(topic, qos), &reply); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	return &Subscription{entity: newEntity(c, &reply), topic: topic}, nil
}

// Kind reports rcl.KindSubscription.
func (s *Subscription) Kind() rcl.EntityKind { return rcl.KindSubscription }

// TransportHandle returns the handle, or the zero Handle once destroyed.
func (s *Subscription) TransportHandle() transport.Handle {
	if s == nil {
		return transport.Handle{}
	}
	return s.transportHandle()
}

// Transport returns the bridge client.
func (s *Subscription) Transport() transport.Transport {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client
}

// Topic returns the topic name.
func (s *Subscription) Topic() string { return s.topic }

// Take removes the oldest queued payload on the server.
func (s *Subscription) Take(ctx context.Context) ([]byte, bool, error) {
	h, err := s.live()
	if err != nil {
		return nil, false, err
	}
	var reply takeReply
	if err := s.client.invoke(ctx, methodTake, &entityRequest{ID: h.ID}, &reply); err != nil {
		return nil, false, err
	}
	return reply.Data, reply.OK, nil
}

// Destroy removes the subscription from the server.
func (s *Subscription) Destroy(ctx context.Context) error {
	return s.destroy(ctx)
}

// GuardCondition is a guard condition hosted on the bridge server.
type GuardCondition struct {
	entity
}

// CreateGuardCondition creates a guard condition on the server.
func (c *Client) CreateGuardCondition(ctx context.Context) (*GuardCondition, error) {
	var reply entityReply
	if err := c.invoke(ctx, methodCreateGuard, &empty{}, &reply); err != nil {
		return nil, fmt.Errorf("failed to create guard condition: %w", err)
	}
	return &GuardCondition{entity: newEntity(c, &reply)}, nil
}

// Kind reports rcl.KindGuardCondition.
func (g *GuardCondition) Kind() rcl.EntityKind { return rcl.KindGuardCondition }

// TransportHandle returns the handle, or the zero Handle once destroyed.
func (g *GuardCondition) TransportHandle() transport.Handle {
	if g == nil {
		return transport.Handle{}
	}
	return g.transportHandle()
}

// Transport returns the bridge client.
func (g *GuardCondition) Transport() transport.Transport {
	if g == nil || g.client == nil {
		return nil
	}
	return g.client
}

// Trigger wakes waits on the guard condition.
func (g *GuardCondition) Trigger(ctx context.Context) error {
	h, err := g.live()
	if err != nil {
		return err
	}
	return g.client.invoke(ctx, methodTrigger, &entityRequest{ID: h.ID}, &empty{})
}

// Destroy removes the guard condition from the server.
func (g *GuardCondition) Destroy(ctx context.Context) error {
	return g.destroy(ctx)
}

// Verify that the stubs implement rcl.Entity at compile time
var (
	_ rcl.Entity = (*Publisher)(nil)
	_ rcl.Entity = (*Subscription)(nil)
	_ rcl.Entity = (*GuardCondition)(nil)
)

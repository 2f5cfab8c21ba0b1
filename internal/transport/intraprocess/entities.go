package intraprocess

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/rmacdonaldsmith/rcl-go/pkg/rcl"
	"github.com/rmacdonaldsmith/rcl-go/pkg/transport"
)

// entity carries what every intraprocess entity shares. The handle is
// cleared on Destroy, which makes TransportHandle report the zero Handle.
type entity struct {
	t      *Transport
	handle transport.Handle
}

func (e *entity) transportHandle() transport.Handle {
	if e == nil || e.t == nil {
		return transport.Handle{}
	}
	e.t.mu.Lock()
	defer e.t.mu.Unlock()
	return e.handle
}

func (e *entity) owner() transport.Transport {
	if e == nil || e.t == nil {
		return nil
	}
	return e.t
}

// id returns the live entity id. The caller must hold e.t.mu.
func (e *entity) id() (uuid.UUID, error) {
	if e.t.closed {
		return uuid.Nil, ErrClosed
	}
	if e.handle.IsZero() {
		return uuid.Nil, fmt.Errorf("%w: entity destroyed", ErrUnknownHandle)
	}
	return e.handle.ID, nil
}

// Publisher sends payloads to every subscription on its topic.
type Publisher struct {
	entity
	topic string
}

// CreatePublisher creates a publisher on topic. Matched subscriptions see
// it as alive.
func (t *Transport) CreatePublisher(topic string, qos QoS) (*Publisher, error) {
	if topic == "" {
		return nil, fmt.Errorf("%w: topic", ErrEmptyName)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}

	now := t.clock()
	handle := transport.NewHandle(Identifier)
	state := &publisherState{
		id:         handle.ID,
		seq:        t.nextSeq(),
		topic:      topic,
		qos:        qos.withDefaults(t.defaultDepth),
		deadline:   newDeadlineTracker(qos.Deadline, now),
		lastAssert: now,
		alive:      true,
	}
	t.publishers[state.id] = state
	t.graph.addPublisher(state)

	for _, s := range t.graph.subscriptions(topic) {
		s.aliveCount++
		s.livelinessEpoch++
	}
	t.notify()

	t.logger.Debug("publisher created", "topic", topic, "handle", handle.String())
	return &Publisher{entity: entity{t: t, handle: handle}, topic: topic}, nil
}

// Kind reports rcl.KindPublisher.
func (p *Publisher) Kind() rcl.EntityKind { return rcl.KindPublisher }

// TransportHandle returns the publisher's handle, or the zero Handle once
// destroyed.
func (p *Publisher) TransportHandle() transport.Handle {
	if p == nil {
		return transport.Handle{}
	}
	return p.transportHandle()
}

// Transport returns the owning adapter.
func (p *Publisher) Transport() transport.Transport {
	if p == nil {
		return nil
	}
	return p.owner()
}

// Topic returns the topic name.
func (p *Publisher) Topic() string { return p.topic }

// Publish delivers a copy of data to every matched subscription. Publishing
// asserts liveliness and restarts the deadline period.
func (p *Publisher) Publish(data []byte) error {
	t := p.t
	t.mu.Lock()
	defer t.mu.Unlock()

	id, err := p.id()
	if err != nil {
		return err
	}
	state := t.publishers[id]
	now := t.clock()

	t.assertLiveliness(state, now)
	state.deadline.activity(now)

	for _, s := range t.graph.subscriptions(p.topic) {
		msg := append([]byte(nil), data...)
		s.queue = append(s.queue, msg)
		if over := len(s.queue) - s.qos.Depth; over > 0 {
			clear(s.queue[:over])
			s.queue = s.queue[over:]
		}
		s.deadline.activity(now)
	}
	t.notify()
	return nil
}

// AssertLiveliness renews the publisher's liveliness lease.
func (p *Publisher) AssertLiveliness() error {
	t := p.t
	t.mu.Lock()
	defer t.mu.Unlock()

	id, err := p.id()
	if err != nil {
		return err
	}
	t.assertLiveliness(t.publishers[id], t.clock())
	t.notify()
	return nil
}

// Destroy removes the publisher. Matched subscriptions see it leave.
func (p *Publisher) Destroy() error {
	t := p.t
	t.mu.Lock()
	defer t.mu.Unlock()

	id, err := p.id()
	if err != nil {
		return err
	}
	state := t.publishers[id]
	t.evaluatePublisher(state, t.clock())

	for _, s := range t.graph.subscriptions(p.topic) {
		if state.alive {
			s.aliveCount--
		} else {
			s.notAliveCount--
		}
		s.livelinessEpoch++
	}
	t.graph.removePublisher(state)
	delete(t.publishers, id)
	p.handle = transport.Handle{}
	t.notify()
	return nil
}

// Subscription receives payloads published on its topic.
type Subscription struct {
	entity
	topic string
}

// CreateSubscription creates a subscription on topic and matches it with
// the publishers already there.
func (t *Transport) CreateSubscription(topic string, qos QoS) (*Subscription, error) {
	if topic == "" {
		return nil, fmt.Errorf("%w: topic", ErrEmptyName)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}

	now := t.clock()
	handle := transport.NewHandle(Identifier)
	state := &subscriptionState{
		id:       handle.ID,
		seq:      t.nextSeq(),
		topic:    topic,
		qos:      qos.withDefaults(t.defaultDepth),
		deadline: newDeadlineTracker(qos.Deadline, now),
	}
	for _, p := range t.graph.publishers(topic) {
		t.evaluatePublisher(p, now)
		if p.alive {
			state.aliveCount++
		} else {
			state.notAliveCount++
		}
		state.livelinessEpoch++
	}
	t.subscriptions[state.id] = state
	t.graph.addSubscription(state)

	t.logger.Debug("subscription created", "topic", topic, "handle", handle.String())
	return &Subscription{entity: entity{t: t, handle: handle}, topic: topic}, nil
}

// Kind reports rcl.KindSubscription.
func (s *Subscription) Kind() rcl.EntityKind { return rcl.KindSubscription }

// TransportHandle returns the subscription's handle, or the zero Handle once
// destroyed.
func (s *Subscription) TransportHandle() transport.Handle {
	if s == nil {
		return transport.Handle{}
	}
	return s.transportHandle()
}

// Transport returns the owning adapter.
func (s *Subscription) Transport() transport.Transport {
	if s == nil {
		return nil
	}
	return s.owner()
}

// Topic returns the topic name.
func (s *Subscription) Topic() string { return s.topic }

// Take removes the oldest queued payload. ok is false when the queue is
// empty.
func (s *Subscription) Take() (data []byte, ok bool, err error) {
	t := s.t
	t.mu.Lock()
	defer t.mu.Unlock()

	id, err := s.id()
	if err != nil {
		return nil, false, err
	}
	state := t.subscriptions[id]
	if len(state.queue) == 0 {
		return nil, false, nil
	}
	data = state.queue[0]
	state.queue[0] = nil
	state.queue = state.queue[1:]
	return data, true, nil
}

// Destroy removes the subscription and drops its queue.
func (s *Subscription) Destroy() error {
	t := s.t
	t.mu.Lock()
	defer t.mu.Unlock()

	id, err := s.id()
	if err != nil {
		return err
	}
	t.graph.removeSubscription(t.subscriptions[id])
	delete(t.subscriptions, id)
	s.handle = transport.Handle{}
	t.notify()
	return nil
}

// GuardCondition is a manually triggered waitable.
type GuardCondition struct {
	entity
}

// CreateGuardCondition creates an untriggered guard condition.
func (t *Transport) CreateGuardCondition() (*GuardCondition, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}
	handle := transport.NewHandle(Identifier)
	t.guards[handle.ID] = &guardConditionState{id: handle.ID}
	return &GuardCondition{entity: entity{t: t, handle: handle}}, nil
}

// Kind reports rcl.KindGuardCondition.
func (g *GuardCondition) Kind() rcl.EntityKind { return rcl.KindGuardCondition }

// TransportHandle returns the guard condition's handle, or the zero Handle
// once destroyed.
func (g *GuardCondition) TransportHandle() transport.Handle {
	if g == nil {
		return transport.Handle{}
	}
	return g.transportHandle()
}

// Transport returns the owning adapter.
func (g *GuardCondition) Transport() transport.Transport {
	if g == nil {
		return nil
	}
	return g.owner()
}

// Trigger marks the guard condition ready and wakes pending waits. The next
// wait that reports it resets it.
func (g *GuardCondition) Trigger() error {
	t := g.t
	t.mu.Lock()
	defer t.mu.Unlock()

	id, err := g.id()
	if err != nil {
		return err
	}
	t.guards[id].triggered = true
	t.notify()
	return nil
}

// Destroy removes the guard condition.
func (g *GuardCondition) Destroy() error {
	t := g.t
	t.mu.Lock()
	defer t.mu.Unlock()

	id, err := g.id()
	if err != nil {
		return err
	}
	delete(t.guards, id)
	g.handle = transport.Handle{}
	return nil
}

// Service receives requests sent to its name.
type Service struct {
	entity
	name string
}

// CreateService registers a service under name.
func (t *Transport) CreateService(name string) (*Service, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: service", ErrEmptyName)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}
	handle := transport.NewHandle(Identifier)
	state := &serviceState{id: handle.ID, name: name}
	if !t.graph.addService(state) {
		return nil, fmt.Errorf("%w: %s", ErrServiceExists, name)
	}
	t.services[state.id] = state

	t.logger.Debug("service created", "service", name, "handle", handle.String())
	return &Service{entity: entity{t: t, handle: handle}, name: name}, nil
}

// Kind reports rcl.KindService.
func (s *Service) Kind() rcl.EntityKind { return rcl.KindService }

// TransportHandle returns the service's handle, or the zero Handle once
// destroyed.
func (s *Service) TransportHandle() transport.Handle {
	if s == nil {
		return transport.Handle{}
	}
	return s.transportHandle()
}

// Transport returns the owning adapter.
func (s *Service) Transport() transport.Transport {
	if s == nil {
		return nil
	}
	return s.owner()
}

// Name returns the service name.
func (s *Service) Name() string { return s.name }

// TakeRequest removes the oldest pending request.
func (s *Service) TakeRequest() (Request, bool, error) {
	t := s.t
	t.mu.Lock()
	defer t.mu.Unlock()

	id, err := s.id()
	if err != nil {
		return Request{}, false, err
	}
	state := t.services[id]
	if len(state.requests) == 0 {
		return Request{}, false, nil
	}
	req := state.requests[0]
	state.requests = state.requests[1:]
	return req, true, nil
}

// SendResponse answers req. The response is queued on the requesting
// client.
func (s *Service) SendResponse(req Request, payload []byte) error {
	t := s.t
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := s.id(); err != nil {
		return err
	}
	client := t.clients[req.Client]
	if client == nil {
		return fmt.Errorf("%w: client %s", ErrUnknownHandle, req.Client)
	}
	client.responses = append(client.responses, Response{
		Sequence: req.Sequence,
		Payload:  append([]byte(nil), payload...),
	})
	t.notify()
	return nil
}

// Destroy removes the service. Pending requests are dropped.
func (s *Service) Destroy() error {
	t := s.t
	t.mu.Lock()
	defer t.mu.Unlock()

	id, err := s.id()
	if err != nil {
		return err
	}
	t.graph.removeService(t.services[id])
	delete(t.services, id)
	s.handle = transport.Handle{}
	return nil
}

// Client sends requests to a named service.
type Client struct {
	entity
	service string
}

// CreateClient creates a client for the service called name. The service
// does not need to exist yet.
func (t *Transport) CreateClient(name string) (*Client, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: service", ErrEmptyName)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}
	handle := transport.NewHandle(Identifier)
	t.clients[handle.ID] = &clientState{id: handle.ID, service: name}
	return &Client{entity: entity{t: t, handle: handle}, service: name}, nil
}

// Kind reports rcl.KindClient.
func (c *Client) Kind() rcl.EntityKind { return rcl.KindClient }

// TransportHandle returns the client's handle, or the zero Handle once
// destroyed.
func (c *Client) TransportHandle() transport.Handle {
	if c == nil {
		return transport.Handle{}
	}
	return c.transportHandle()
}

// Transport returns the owning adapter.
func (c *Client) Transport() transport.Transport {
	if c == nil {
		return nil
	}
	return c.owner()
}

// ServiceAvailable reports whether the client's service exists.
func (c *Client) ServiceAvailable() bool {
	t := c.t
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.graph.service(c.service) != nil
}

// SendRequest queues payload on the service and returns the request's
// sequence number.
func (c *Client) SendRequest(payload []byte) (int64, error) {
	t := c.t
	t.mu.Lock()
	defer t.mu.Unlock()

	id, err := c.id()
	if err != nil {
		return 0, err
	}
	svc := t.graph.service(c.service)
	if svc == nil {
		return 0, fmt.Errorf("%w: %s", ErrServiceUnavailable, c.service)
	}
	state := t.clients[id]
	state.nextSequence++
	svc.requests = append(svc.requests, Request{
		Client:   id,
		Sequence: state.nextSequence,
		Payload:  append([]byte(nil), payload...),
	})
	t.notify()
	return state.nextSequence, nil
}

// TakeResponse removes the oldest pending response.
func (c *Client) TakeResponse() (Response, bool, error) {
	t := c.t
	t.mu.Lock()
	defer t.mu.Unlock()

	id, err := c.id()
	if err != nil {
		return Response{}, false, err
	}
	state := t.clients[id]
	if len(state.responses) == 0 {
		return Response{}, false, nil
	}
	resp := state.responses[0]
	state.responses = state.responses[1:]
	return resp, true, nil
}

// Destroy removes the client. Pending responses are dropped.
func (c *Client) Destroy() error {
	t := c.t
	t.mu.Lock()
	defer t.mu.Unlock()

	id, err := c.id()
	if err != nil {
		return err
	}
	delete(t.clients, id)
	c.handle = transport.Handle{}
	return nil
}

// CountPublishers returns the number of publishers on topic.
func (t *Transport) CountPublishers(topic string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, _ := t.graph.counts(topic)
	return n
}

// CountSubscribers returns the number of subscriptions on topic.
func (t *Transport) CountSubscribers(topic string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, n := t.graph.counts(topic)
	return n
}

// PublishersInfoByTopic lists the publishers on topic in creation order.
func (t *Transport) PublishersInfoByTopic(topic string) ([]transport.EndpointInfo, error) {
	if topic == "" {
		return nil, fmt.Errorf("%w: topic", ErrEmptyName)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}
	return t.graph.publisherInfos(topic), nil
}

// SubscriptionsInfoByTopic lists the subscriptions on topic in creation
// order.
func (t *Transport) SubscriptionsInfoByTopic(topic string) ([]transport.EndpointInfo, error) {
	if topic == "" {
		return nil, fmt.Errorf("%w: topic", ErrEmptyName)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}
	return t.graph.subscriptionInfos(topic), nil
}

// Verify that Transport can answer topic queries at compile time
var _ transport.GraphQuerier = (*Transport)(nil)

// Verify that the entities implement rcl.Entity at compile time
var (
	_ rcl.Entity = (*Publisher)(nil)
	_ rcl.Entity = (*Subscription)(nil)
	_ rcl.Entity = (*GuardCondition)(nil)
	_ rcl.Entity = (*Service)(nil)
	_ rcl.Entity = (*Client)(nil)
)

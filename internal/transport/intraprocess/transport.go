// Package intraprocess implements the transport capability inside a single
// process. Publishers, subscriptions, guard conditions, services and clients
// live in one Transport and exchange opaque byte payloads through it.
//
// Deadline and liveliness QoS are tracked against the Transport's clock, so
// tests can drive them deterministically with WithClock.
package intraprocess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rmacdonaldsmith/rcl-go/pkg/transport"
)

// Identifier is stamped on every handle issued by this adapter.
const Identifier = "rcl_intraprocess"

var (
	// ErrClosed is returned by every operation after Close
	ErrClosed = errors.New("intraprocess transport is closed")
	// ErrForeignHandle is returned for handles issued by another adapter
	ErrForeignHandle = errors.New("handle was issued by another transport")
	// ErrUnknownHandle is returned for handles that were never issued or were destroyed
	ErrUnknownHandle = errors.New("unknown handle")
	// ErrUnsupportedEvent is returned when an entity cannot produce an event type
	ErrUnsupportedEvent = errors.New("event type not supported by entity")
	// ErrStatusType is returned when a status argument does not match the event
	ErrStatusType = errors.New("status type does not match event")
	// ErrServiceExists is returned when a service name is already taken
	ErrServiceExists = errors.New("service name already in use")
	// ErrServiceUnavailable is returned when a client's service does not exist
	ErrServiceUnavailable = errors.New("service not available")
	// ErrNilEntities is returned by Wait when no entity set is given
	ErrNilEntities = errors.New("wait entities cannot be nil")
	// ErrEmptyName is returned when a topic or service name is empty
	ErrEmptyName = errors.New("name cannot be empty")
)

// Option configures a Transport.
type Option func(*Transport)

// WithClock replaces the clock QoS tracking is evaluated against.
func WithClock(clock func() time.Time) Option {
	return func(t *Transport) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithLogger sets the logger used for entity lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithDefaultDepth sets the queue depth of entities created without one.
func WithDefaultDepth(depth int) Option {
	return func(t *Transport) {
		if depth > 0 {
			t.defaultDepth = depth
		}
	}
}

// Transport is an in-process implementation of transport.Transport.
// It is safe for concurrent use.
type Transport struct {
	mu     sync.Mutex
	clock  func() time.Time
	logger *slog.Logger
	closed bool

	defaultDepth int

	// seq orders publishers and subscriptions by creation.
	seq uint64

	// changed is closed and replaced whenever readiness may have changed.
	changed chan struct{}

	graph         *graph
	publishers    map[uuid.UUID]*publisherState
	subscriptions map[uuid.UUID]*subscriptionState
	guards        map[uuid.UUID]*guardConditionState
	services      map[uuid.UUID]*serviceState
	clients       map[uuid.UUID]*clientState
	events        map[uuid.UUID]*eventState
}

// New creates an empty Transport.
func New(opts ...Option) *Transport {
	t := &Transport{
		clock:         time.Now,
		logger:        slog.Default(),
		defaultDepth:  DefaultDepth,
		changed:       make(chan struct{}),
		graph:         newGraph(),
		publishers:    make(map[uuid.UUID]*publisherState),
		subscriptions: make(map[uuid.UUID]*subscriptionState),
		guards:        make(map[uuid.UUID]*guardConditionState),
		services:      make(map[uuid.UUID]*serviceState),
		clients:       make(map[uuid.UUID]*clientState),
		events:        make(map[uuid.UUID]*eventState),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Identifier returns the adapter name.
func (t *Transport) Identifier() string {
	return Identifier
}

// nextSeq returns the next creation sequence number. The caller must hold
// t.mu.
func (t *Transport) nextSeq() uint64 {
	t.seq++
	return t.seq
}

// notify wakes every pending Wait. The caller must hold t.mu.
func (t *Transport) notify() {
	close(t.changed)
	t.changed = make(chan struct{})
}

// Notify wakes every pending Wait so it re-evaluates readiness. Callers that
// advance an injected clock use it to make lapsed QoS visible immediately.
func (t *Transport) Notify() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.notify()
	}
}

func checkHandle(h transport.Handle) error {
	if h.IsZero() {
		return fmt.Errorf("%w: zero handle", ErrUnknownHandle)
	}
	if h.Implementation != Identifier {
		return fmt.Errorf("%w: %s", ErrForeignHandle, h)
	}
	return nil
}

// CreateEvent creates an event handle on the publisher or subscription
// identified by entity.
func (t *Transport) CreateEvent(entity transport.Handle, eventType transport.EventType) (transport.Handle, error) {
	if err := checkHandle(entity); err != nil {
		return transport.Handle{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return transport.Handle{}, ErrClosed
	}

	switch eventType {
	case transport.EventOfferedDeadlineMissed, transport.EventLivelinessLost:
		if _, ok := t.publishers[entity.ID]; !ok {
			return transport.Handle{}, t.unsupported(entity, eventType)
		}
	case transport.EventRequestedDeadlineMissed, transport.EventLivelinessChanged:
		if _, ok := t.subscriptions[entity.ID]; !ok {
			return transport.Handle{}, t.unsupported(entity, eventType)
		}
	default:
		return transport.Handle{}, fmt.Errorf("%w: %s", ErrUnsupportedEvent, eventType)
	}

	handle := transport.NewHandle(Identifier)
	t.events[handle.ID] = &eventState{
		id:        handle.ID,
		entity:    entity.ID,
		eventType: eventType,
	}
	t.logger.Debug("event created", "event", handle.String(), "type", eventType.String())
	return handle, nil
}

func (t *Transport) unsupported(entity transport.Handle, eventType transport.EventType) error {
	if t.knownEntity(entity.ID) {
		return fmt.Errorf("%w: %s on %s", ErrUnsupportedEvent, eventType, entity)
	}
	return fmt.Errorf("%w: %s", ErrUnknownHandle, entity)
}

func (t *Transport) knownEntity(id uuid.UUID) bool {
	if _, ok := t.publishers[id]; ok {
		return true
	}
	if _, ok := t.subscriptions[id]; ok {
		return true
	}
	if _, ok := t.guards[id]; ok {
		return true
	}
	if _, ok := t.services[id]; ok {
		return true
	}
	_, ok := t.clients[id]
	return ok
}

// DestroyEvent releases an event handle.
func (t *Transport) DestroyEvent(event transport.Handle) error {
	if err := checkHandle(event); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if _, ok := t.events[event.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, event)
	}
	delete(t.events, event.ID)
	return nil
}

// PollEvent fills status with the event's current counts and the changes
// since the previous successful poll. taken is false when nothing changed.
func (t *Transport) PollEvent(event transport.Handle, status any) (bool, error) {
	if err := checkHandle(event); err != nil {
		return false, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false, ErrClosed
	}
	ev, ok := t.events[event.ID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownHandle, event)
	}

	t.evaluateAll(t.clock())

	switch ev.eventType {
	case transport.EventOfferedDeadlineMissed:
		s, ok := status.(*transport.OfferedDeadlineMissedStatus)
		if !ok || s == nil {
			return false, statusTypeError(ev, status)
		}
		p := t.publishers[ev.entity]
		if p == nil {
			return false, fmt.Errorf("%w: publisher of event %s", ErrUnknownHandle, event)
		}
		if p.deadline.total == ev.takenTotal {
			return false, nil
		}
		s.TotalCount = p.deadline.total
		s.TotalCountChange = p.deadline.total - ev.takenTotal
		ev.takenTotal = p.deadline.total

	case transport.EventLivelinessLost:
		s, ok := status.(*transport.LivelinessLostStatus)
		if !ok || s == nil {
			return false, statusTypeError(ev, status)
		}
		p := t.publishers[ev.entity]
		if p == nil {
			return false, fmt.Errorf("%w: publisher of event %s", ErrUnknownHandle, event)
		}
		if p.livelinessLost == ev.takenTotal {
			return false, nil
		}
		s.TotalCount = p.livelinessLost
		s.TotalCountChange = p.livelinessLost - ev.takenTotal
		ev.takenTotal = p.livelinessLost

	case transport.EventRequestedDeadlineMissed:
		s, ok := status.(*transport.RequestedDeadlineMissedStatus)
		if !ok || s == nil {
			return false, statusTypeError(ev, status)
		}
		sub := t.subscriptions[ev.entity]
		if sub == nil {
			return false, fmt.Errorf("%w: subscription of event %s", ErrUnknownHandle, event)
		}
		if sub.deadline.total == ev.takenTotal {
			return false, nil
		}
		s.TotalCount = sub.deadline.total
		s.TotalCountChange = sub.deadline.total - ev.takenTotal
		ev.takenTotal = sub.deadline.total

	case transport.EventLivelinessChanged:
		s, ok := status.(*transport.LivelinessChangedStatus)
		if !ok || s == nil {
			return false, statusTypeError(ev, status)
		}
		sub := t.subscriptions[ev.entity]
		if sub == nil {
			return false, fmt.Errorf("%w: subscription of event %s", ErrUnknownHandle, event)
		}
		if sub.livelinessEpoch == ev.takenEpoch {
			return false, nil
		}
		s.AliveCount = sub.aliveCount
		s.NotAliveCount = sub.notAliveCount
		s.AliveCountChange = sub.aliveCount - ev.takenAlive
		s.NotAliveCountChange = sub.notAliveCount - ev.takenNotAlive
		ev.takenAlive = sub.aliveCount
		ev.takenNotAlive = sub.notAliveCount
		ev.takenEpoch = sub.livelinessEpoch
	}
	return true, nil
}

func statusTypeError(ev *eventState, status any) error {
	return fmt.Errorf("%w: %s event cannot fill %T", ErrStatusType, ev.eventType, status)
}

// Wait blocks until at least one of entities is ready, the timeout expires
// or ctx is done. Handles of entities that are not ready are overwritten
// with the zero Handle. Guard conditions reported ready are reset.
// A handle this Transport did not issue fails with ErrUnknownHandle.
func (t *Transport) Wait(ctx context.Context, entities *transport.WaitEntities, timeout time.Duration) error {
	if entities == nil {
		return ErrNilEntities
	}
	if err := checkWaitHandles(entities); err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	err := t.checkIssued(entities)
	t.mu.Unlock()
	if err != nil {
		return err
	}

	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		if ctx.Err() != nil {
			return transport.ErrShutdown
		}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return ErrClosed
		}
		now := t.clock()
		t.evaluateAll(now)
		if t.ready(entities, false) > 0 {
			t.ready(entities, true)
			t.mu.Unlock()
			return nil
		}
		changed := t.changed
		wake := t.nextExpiry()
		t.mu.Unlock()

		sleep := time.Duration(-1)
		if timeout >= 0 {
			sleep = time.Until(deadline)
			if sleep <= 0 {
				clearAll(entities)
				return transport.ErrTimeout
			}
		}
		if !wake.IsZero() {
			untilWake := max(wake.Sub(now), 0)
			if sleep < 0 || untilWake < sleep {
				sleep = untilWake
			}
		}

		var timer *time.Timer
		var fired <-chan time.Time
		if sleep >= 0 {
			timer = time.NewTimer(sleep)
			fired = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return transport.ErrShutdown
		case <-changed:
		case <-fired:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

func checkWaitHandles(entities *transport.WaitEntities) error {
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
	return nil
}

// checkIssued fails for a non-zero handle that this Transport never issued
// or has already destroyed. The caller must hold t.mu.
func (t *Transport) checkIssued(entities *transport.WaitEntities) error {
	if err := issued(entities.Subscriptions, t.subscriptions, "subscription"); err != nil {
		return err
	}
	if err := issued(entities.GuardConditions, t.guards, "guard condition"); err != nil {
		return err
	}
	if err := issued(entities.Services, t.services, "service"); err != nil {
		return err
	}
	if err := issued(entities.Clients, t.clients, "client"); err != nil {
		return err
	}
	return issued(entities.Events, t.events, "event")
}

func issued[V any](handles []transport.Handle, known map[uuid.UUID]V, kind string) error {
	for _, h := range handles {
		if h.IsZero() {
			continue
		}
		if _, ok := known[h.ID]; !ok {
			return fmt.Errorf("%w: %s %s", ErrUnknownHandle, kind, h)
		}
	}
	return nil
}

// ready counts the ready entities. With apply set it also zeroes the
// handles of entities that are not ready and resets reported guard
// conditions. The caller must hold t.mu.
func (t *Transport) ready(entities *transport.WaitEntities, apply bool) int {
	count := 0
	mark := func(handles []transport.Handle, isReady func(uuid.UUID) bool) {
		for i, h := range handles {
			if h.IsZero() {
				continue
			}
			if isReady(h.ID) {
				count++
				continue
			}
			if apply {
				handles[i] = transport.Handle{}
			}
		}
	}

	mark(entities.Subscriptions, func(id uuid.UUID) bool {
		s := t.subscriptions[id]
		return s != nil && len(s.queue) > 0
	})
	mark(entities.GuardConditions, func(id uuid.UUID) bool {
		g := t.guards[id]
		if g == nil || !g.triggered {
			return false
		}
		if apply {
			g.triggered = false
		}
		return true
	})
	mark(entities.Services, func(id uuid.UUID) bool {
		s := t.services[id]
		return s != nil && len(s.requests) > 0
	})
	mark(entities.Clients, func(id uuid.UUID) bool {
		c := t.clients[id]
		return c != nil && len(c.responses) > 0
	})
	mark(entities.Events, func(id uuid.UUID) bool {
		ev := t.events[id]
		return ev != nil && t.eventPending(ev)
	})
	return count
}

func clearAll(entities *transport.WaitEntities) {
	for _, group := range [][]transport.Handle{
		entities.Subscriptions, entities.GuardConditions, entities.Services,
		entities.Clients, entities.Events,
	} {
		clear(group)
	}
}

// Close releases every entity and fails pending and future waits with
// ErrClosed. Calling Close more than once is a no-op.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	t.notify()

	t.graph = newGraph()
	clear(t.publishers)
	clear(t.subscriptions)
	clear(t.guards)
	clear(t.services)
	clear(t.clients)
	clear(t.events)
	return nil
}

// Verify that Transport implements the transport capability at compile time
var _ transport.Transport = (*Transport)(nil)

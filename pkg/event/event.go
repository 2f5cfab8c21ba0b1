package event

import (
	"errors"

	"github.com/rmacdonaldsmith/rcl-go/pkg/allocator"
	"github.com/rmacdonaldsmith/rcl-go/pkg/rcl"
	"github.com/rmacdonaldsmith/rcl-go/pkg/transport"
)

// Type is the QoS event category requested by the application.
type Type int

const (
	PublisherOfferedDeadlineMissed Type = iota + 1
	PublisherLivelinessLost
	SubscriptionRequestedDeadlineMissed
	SubscriptionLivelinessChanged
)

func (t Type) String() string {
	switch t {
	case PublisherOfferedDeadlineMissed:
		return "publisher_offered_deadline_missed"
	case PublisherLivelinessLost:
		return "publisher_liveliness_lost"
	case SubscriptionRequestedDeadlineMissed:
		return "subscription_requested_deadline_missed"
	case SubscriptionLivelinessChanged:
		return "subscription_liveliness_changed"
	default:
		return "unknown"
	}
}

// implRecordSize is the number of bytes requested from the allocator for
// the implementation record of one Event.
const implRecordSize = 64

// Event is a handle on one transport QoS event.
type Event struct {
	impl *eventImpl
}

type eventImpl struct {
	handle    transport.Handle
	transport transport.Transport
	allocator allocator.Allocator
	record    []byte
	owner     rcl.EntityKind
	eventType Type
}

// TransportType maps an event type on an owner of the given kind to the
// transport category. Combinations that make no sense map to
// transport.EventInvalid.
func TransportType(owner rcl.EntityKind, t Type) transport.EventType {
	switch owner {
	case rcl.KindPublisher:
		switch t {
		case PublisherOfferedDeadlineMissed:
			return transport.EventOfferedDeadlineMissed
		case PublisherLivelinessLost:
			return transport.EventLivelinessLost
		}
	case rcl.KindSubscription:
		switch t {
		case SubscriptionRequestedDeadlineMissed:
			return transport.EventRequestedDeadlineMissed
		case SubscriptionLivelinessChanged:
			return transport.EventLivelinessChanged
		}
	}
	return transport.EventInvalid
}

// Init binds the event to owner. owner must be a valid publisher or
// subscription and t must be a category of that role.
func (e *Event) Init(owner rcl.Entity, t Type, alloc allocator.Allocator) error {
	if e == nil {
		return rcl.InvalidArgumentf("event cannot be nil")
	}
	// Check the allocator first so it can be used for everything after.
	if !allocator.Valid(alloc) {
		return rcl.InvalidArgumentf("invalid allocator")
	}
	if e.impl != nil {
		return rcl.InvalidArgumentf("event already initialized")
	}
	if !rcl.EntityValid(owner) {
		return rcl.InvalidArgumentf("owner is not a valid entity")
	}
	tr := owner.Transport()
	if tr == nil {
		return rcl.InvalidArgumentf("owner has no transport")
	}

	transportType := TransportType(owner.Kind(), t)
	if transportType == transport.EventInvalid {
		return rcl.InvalidArgumentf("event type %s is not valid for a %s", t, owner.Kind())
	}

	record := alloc.Allocate(implRecordSize)
	if record == nil {
		return rcl.ErrOutOfMemory
	}

	handle, err := tr.CreateEvent(owner.TransportHandle(), transportType)
	if err != nil {
		alloc.Deallocate(record)
		return rcl.NewTransportError("create_event", err)
	}
	if handle.IsZero() {
		alloc.Deallocate(record)
		return rcl.NewTransportError("create_event", errors.New("transport returned no handle"))
	}

	e.impl = &eventImpl{
		handle:    handle,
		transport: tr,
		allocator: alloc,
		record:    record,
		owner:     owner.Kind(),
		eventType: t,
	}
	return nil
}

// InitPublisherEvent is Init restricted to publisher owners.
func (e *Event) InitPublisherEvent(pub rcl.Entity, t Type, alloc allocator.Allocator) error {
	if pub != nil && pub.Kind() != rcl.KindPublisher {
		return rcl.InvalidArgumentf("owner is a %s, not a publisher", pub.Kind())
	}
	return e.Init(pub, t, alloc)
}

// InitSubscriptionEvent is Init restricted to subscription owners.
func (e *Event) InitSubscriptionEvent(sub rcl.Entity, t Type, alloc allocator.Allocator) error {
	if sub != nil && sub.Kind() != rcl.KindSubscription {
		return rcl.InvalidArgumentf("owner is a %s, not a subscription", sub.Kind())
	}
	return e.Init(sub, t, alloc)
}

// Take copies the pending status into status, a pointer to the status type
// matching the event (for example *transport.LivelinessChangedStatus).
// It returns rcl.ErrEventTakeFailed when nothing was pending.
func (e *Event) Take(status any) error {
	if e == nil || e.impl == nil {
		return rcl.InvalidArgumentf("event is not initialized")
	}
	if status == nil {
		return rcl.InvalidArgumentf("status cannot be nil")
	}

	taken, err := e.impl.transport.PollEvent(e.impl.handle, status)
	if err != nil {
		return rcl.NewTransportError("poll_event", err)
	}

	rcl.Logger().Debug("event take request succeeded",
		"event", e.impl.eventType.String(),
		"taken", taken)

	if !taken {
		return rcl.ErrEventTakeFailed
	}
	return nil
}

// Fini destroys the transport handle and releases the implementation
// record. Cleanup happens even when the transport reports a failure, which
// is returned afterwards.
func (e *Event) Fini() error {
	if e == nil || e.impl == nil {
		return rcl.InvalidArgumentf("event is not initialized")
	}

	impl := e.impl
	err := impl.transport.DestroyEvent(impl.handle)

	impl.allocator.Deallocate(impl.record)
	e.impl = nil

	if err != nil {
		return rcl.NewTransportError("destroy_event", err)
	}
	return nil
}

// RawHandle returns the transport handle, or the zero Handle for a nil or
// uninitialized event.
func (e *Event) RawHandle() transport.Handle {
	if e == nil || e.impl == nil {
		return transport.Handle{}
	}
	return e.impl.handle
}

// Transport returns the adapter that issued the event's handle, or nil for
// an uninitialized event.
func (e *Event) Transport() transport.Transport {
	if e == nil || e.impl == nil {
		return nil
	}
	return e.impl.transport
}

// IsValid reports whether the event is initialized.
func (e *Event) IsValid() bool {
	return e != nil && e.impl != nil
}

// Type returns the event's category, or 0 when uninitialized.
func (e *Event) Type() Type {
	if e == nil || e.impl == nil {
		return 0
	}
	return e.impl.eventType
}

// OwnerKind returns the kind of entity the event is bound to.
func (e *Event) OwnerKind() rcl.EntityKind {
	if e == nil || e.impl == nil {
		return rcl.KindUnknown
	}
	return e.impl.owner
}

package rcl

import (
	"time"

	"github.com/rmacdonaldsmith/rcl-go/pkg/transport"
)

// EntityKind identifies the role of a waitable entity.
type EntityKind int

const (
	KindUnknown EntityKind = iota
	KindPublisher
	KindSubscription
	KindGuardCondition
	KindService
	KindClient
)

func (k EntityKind) String() string {
	switch k {
	case KindPublisher:
		return "publisher"
	case KindSubscription:
		return "subscription"
	case KindGuardCondition:
		return "guard_condition"
	case KindService:
		return "service"
	case KindClient:
		return "client"
	default:
		return "unknown"
	}
}

// Entity is a transport-backed object the core can reference: publishers,
// subscriptions, guard conditions, services and clients. Entities are owned
// by the application; the core only observes them.
//
// Implementations must tolerate calls on a nil receiver and report the zero
// Handle for entities that are not (or no longer) valid.
type Entity interface {
	// Kind reports the entity's role.
	Kind() EntityKind

	// TransportHandle returns the transport handle, or the zero Handle.
	TransportHandle() transport.Handle

	// Transport returns the adapter that owns the entity.
	Transport() transport.Transport
}

// Timer is a waitable evaluated by the wait set itself rather than by the
// transport.
type Timer interface {
	// IsCanceled reports whether the timer has been canceled.
	IsCanceled() bool

	// IsReady reports whether the timer's period has elapsed.
	IsReady() (bool, error)

	// TimeUntilNextCall returns the time left until the timer is ready,
	// negative when it is overdue.
	TimeUntilNextCall() (time.Duration, error)
}

// EntityValid reports whether e is non-nil and has a transport handle.
func EntityValid(e Entity) bool {
	return e != nil && !e.TransportHandle().IsZero()
}

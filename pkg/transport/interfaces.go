package transport

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned by Wait when nothing became ready in time
	ErrTimeout = errors.New("wait timed out")
	// ErrShutdown is returned by Wait when its context was cancelled
	ErrShutdown = errors.New("wait interrupted by shutdown")
)

// EventType is the transport-level QoS event category.
type EventType int

const (
	// EventInvalid is the sink for unsupported combinations
	EventInvalid EventType = iota
	EventLivelinessChanged
	EventRequestedDeadlineMissed
	EventLivelinessLost
	EventOfferedDeadlineMissed
)

func (t EventType) String() string {
	switch t {
	case EventLivelinessChanged:
		return "liveliness_changed"
	case EventRequestedDeadlineMissed:
		return "requested_deadline_missed"
	case EventLivelinessLost:
		return "liveliness_lost"
	case EventOfferedDeadlineMissed:
		return "offered_deadline_missed"
	default:
		return "invalid"
	}
}

// WaitEntities groups the handles of one wait call by kind. Wait overwrites
// the handle of every entity that is not ready with the zero Handle; slice
// lengths are left untouched.
type WaitEntities struct {
	Subscriptions   []Handle
	GuardConditions []Handle
	Services        []Handle
	Clients         []Handle
	Events          []Handle
}

// Len returns the total number of handles across all kinds.
func (w *WaitEntities) Len() int {
	return len(w.Subscriptions) + len(w.GuardConditions) + len(w.Services) +
		len(w.Clients) + len(w.Events)
}

// Transport is the capability a middleware adapter provides to the core.
// Implementations must tolerate Wait being called concurrently from several
// goroutines on overlapping handle sets.
type Transport interface {
	// Identifier names the adapter; it is stamped on every issued Handle.
	Identifier() string

	// CreateEvent creates a QoS event handle on the publisher or
	// subscription identified by entity.
	CreateEvent(entity Handle, eventType EventType) (Handle, error)

	// DestroyEvent releases an event handle.
	DestroyEvent(event Handle) error

	// PollEvent copies the pending status of event into status, which must
	// be a pointer to the status type matching the event. taken is false
	// when nothing was pending.
	PollEvent(event Handle, status any) (taken bool, err error)

	// Wait blocks until at least one entity is ready, the timeout expires
	// (ErrTimeout) or ctx is cancelled (ErrShutdown). A negative timeout
	// blocks indefinitely, zero polls.
	Wait(ctx context.Context, entities *WaitEntities, timeout time.Duration) error
}

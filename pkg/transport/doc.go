// Package transport defines the capability interface through which the core
// reaches the underlying middleware.
//
// The core never implements event delivery or blocking multiplexed waiting
// itself. Each middleware vendor provides an adapter implementing Transport:
//   - CreateEvent / DestroyEvent manage the transport-level QoS event handle
//   - PollEvent copies a pending status into a caller-supplied buffer
//   - Wait blocks on a set of handles and reports readiness in place
//
// The interfaces use Go idioms:
//   - context.Context carries the owning context's shutdown signal into Wait
//   - Handles are small comparable values, the zero Handle means "none"
//   - Explicit error returns; ErrTimeout and ErrShutdown are expected outcomes
//
// Example usage:
//
//	entities := &transport.WaitEntities{
//		Subscriptions: []transport.Handle{sub},
//		Events:        []transport.Handle{deadlineEvent},
//	}
//	err := t.Wait(ctx, entities, 100*time.Millisecond)
//	switch {
//	case errors.Is(err, transport.ErrTimeout):
//		// nothing became ready, try again
//	case err != nil:
//		return err
//	}
//	if !entities.Subscriptions[0].IsZero() {
//		// subscription has data
//	}
//
// Status payloads (OfferedDeadlineMissedStatus, LivelinessChangedStatus, ...)
// are owned by this package; the core hands them through without looking
// inside.
package transport

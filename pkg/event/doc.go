// Package event provides QoS event handles.
//
// An Event represents one category of quality-of-service occurrence tied to
// a publisher or a subscription:
//   - PublisherOfferedDeadlineMissed and PublisherLivelinessLost on publishers
//   - SubscriptionRequestedDeadlineMissed and SubscriptionLivelinessChanged
//     on subscriptions
//
// Events are registered with a wait set; once the wait reports one ready,
// Take copies and clears the pending status:
//
//	var ev event.Event
//	if err := ev.InitSubscriptionEvent(sub, event.SubscriptionLivelinessChanged, allocator.Default()); err != nil {
//		return err
//	}
//	defer ev.Fini()
//
//	var status transport.LivelinessChangedStatus
//	err := ev.Take(&status)
//	if errors.Is(err, rcl.ErrEventTakeFailed) {
//		// nothing pending yet
//	}
//
// The zero Event is uninitialized. An Event is not safe for concurrent use;
// callers serialize access to a given Event.
package event

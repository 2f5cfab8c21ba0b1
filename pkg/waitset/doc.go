// Package waitset multiplexes readiness of many waitable entities into one
// blocking call.
//
// A WaitSet holds fixed-capacity slots for subscriptions, guard conditions,
// timers, clients, services and QoS events. Each cycle the caller clears the
// set, adds entities and calls Wait. On return a slot still holding its
// entity is ready; a nil slot is not:
//
//	var ws waitset.WaitSet
//	err := ws.Init(waitset.Counts{Subscriptions: 1, Events: 2}, ctx, allocator.Default())
//	if err != nil {
//		return err
//	}
//	defer ws.Fini()
//
//	for {
//		ws.Clear()
//		ws.AddSubscription(sub)
//		ws.AddEvent(&deadlineEvent)
//		ws.AddEvent(&livelinessEvent)
//
//		err := ws.Wait(time.Second)
//		if errors.Is(err, rcl.ErrTimeout) {
//			continue
//		}
//		if err != nil {
//			return err
//		}
//		for _, ev := range ws.Events() {
//			if ev != nil {
//				// ev is ready, call ev.Take
//			}
//		}
//	}
//
// Slot storage and the handle arrays passed to the transport are sized at
// Init, so the wait loop itself does not allocate. A WaitSet is driven by one
// goroutine at a time; several wait sets may observe the same entities.
package waitset

package transport

// OfferedDeadlineMissedStatus reports publisher-side deadline misses.
type OfferedDeadlineMissedStatus struct {
	TotalCount       int32 `cbor:"1,keyasint"`
	TotalCountChange int32 `cbor:"2,keyasint"`
}

// RequestedDeadlineMissedStatus reports subscription-side deadline misses.
type RequestedDeadlineMissedStatus struct {
	TotalCount       int32 `cbor:"1,keyasint"`
	TotalCountChange int32 `cbor:"2,keyasint"`
}

// LivelinessLostStatus reports how often a publisher failed to assert
// liveliness within its lease duration.
type LivelinessLostStatus struct {
	TotalCount       int32 `cbor:"1,keyasint"`
	TotalCountChange int32 `cbor:"2,keyasint"`
}

// LivelinessChangedStatus reports changes in the liveliness of the
// publishers matched by a subscription.
type LivelinessChangedStatus struct {
	AliveCount          int32 `cbor:"1,keyasint"`
	NotAliveCount       int32 `cbor:"2,keyasint"`
	AliveCountChange    int32 `cbor:"3,keyasint"`
	NotAliveCountChange int32 `cbor:"4,keyasint"`
}

// NewStatus returns a pointer to a zero status of the type produced by
// events of type t, or nil for EventInvalid.
func NewStatus(t EventType) any {
	switch t {
	case EventLivelinessChanged:
		return &LivelinessChangedStatus{}
	case EventRequestedDeadlineMissed:
		return &RequestedDeadlineMissedStatus{}
	case EventLivelinessLost:
		return &LivelinessLostStatus{}
	case EventOfferedDeadlineMissed:
		return &OfferedDeadlineMissedStatus{}
	default:
		return nil
	}
}

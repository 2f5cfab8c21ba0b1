package remote

import (
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/rmacdonaldsmith/rcl-go/pkg/transport"
)

// Wire messages of the bridge service. Entity and event identities travel
// as the bare UUID; the adapter name is implied by the side of the bridge.

type empty struct{}

type loginRequest struct {
	ClientID string `cbor:"1,keyasint"`
}

type loginReply struct {
	Token     string    `cbor:"1,keyasint"`
	ExpiresAt time.Time `cbor:"2,keyasint"`
}

type createTopicEntityRequest struct {
	Topic                   string        `cbor:"1,keyasint"`
	Depth                   int           `cbor:"2,keyasint,omitempty"`
	Deadline                time.Duration `cbor:"3,keyasint,omitempty"`
	LivelinessLeaseDuration time.Duration `cbor:"4,keyasint,omitempty"`
}

type entityRequest struct {
	ID uuid.UUID `cbor:"1,keyasint"`
}

type entityReply struct {
	ID uuid.UUID `cbor:"1,keyasint"`
}

type publishRequest struct {
	ID   uuid.UUID `cbor:"1,keyasint"`
	Data []byte    `cbor:"2,keyasint"`
}

type takeReply struct {
	Data []byte `cbor:"1,keyasint"`
	OK   bool   `cbor:"2,keyasint"`
}

type createEventRequest struct {
	Entity uuid.UUID           `cbor:"1,keyasint"`
	Type   transport.EventType `cbor:"2,keyasint"`
}

type pollEventReply struct {
	Taken  bool            `cbor:"1,keyasint"`
	Status cbor.RawMessage `cbor:"2,keyasint,omitempty"`
}

type topicQueryRequest struct {
	Topic string `cbor:"1,keyasint"`
}

type endpointInfo struct {
	ID                      uuid.UUID     `cbor:"1,keyasint"`
	Depth                   int           `cbor:"2,keyasint,omitempty"`
	Deadline                time.Duration `cbor:"3,keyasint,omitempty"`
	LivelinessLeaseDuration time.Duration `cbor:"4,keyasint,omitempty"`
}

type endpointsReply struct {
	Endpoints []endpointInfo `cbor:"1,keyasint"`
}

func encodeEndpoints(infos []transport.EndpointInfo) *endpointsReply {
	reply := &endpointsReply{Endpoints: make([]endpointInfo, len(infos))}
	for i, info := range infos {
		reply.Endpoints[i] = endpointInfo{
			ID:                      info.Handle.ID,
			Depth:                   info.QoS.Depth,
			Deadline:                info.QoS.Deadline,
			LivelinessLeaseDuration: info.QoS.LivelinessLeaseDuration,
		}
	}
	return reply
}

func decodeEndpoints(implementation, topic string, endpoints []endpointInfo) []transport.EndpointInfo {
	infos := make([]transport.EndpointInfo, len(endpoints))
	for i, e := range endpoints {
		infos[i] = transport.EndpointInfo{
			Topic:  topic,
			Handle: transport.Handle{Implementation: implementation, ID: e.ID},
			QoS: transport.EndpointQoS{
				Depth:                   e.Depth,
				Deadline:                e.Deadline,
				LivelinessLeaseDuration: e.LivelinessLeaseDuration,
			},
		}
	}
	return infos
}

// waitSet carries one uuid per wait slot; uuid.Nil marks an empty or
// not-ready slot.
type waitSet struct {
	Subscriptions   []uuid.UUID `cbor:"1,keyasint"`
	GuardConditions []uuid.UUID `cbor:"2,keyasint"`
	Services        []uuid.UUID `cbor:"3,keyasint"`
	Clients         []uuid.UUID `cbor:"4,keyasint"`
	Events          []uuid.UUID `cbor:"5,keyasint"`
}

type waitRequest struct {
	Entities waitSet       `cbor:"1,keyasint"`
	Timeout  time.Duration `cbor:"2,keyasint"`
}

type waitReply struct {
	Entities waitSet `cbor:"1,keyasint"`
	TimedOut bool    `cbor:"2,keyasint"`
}

func toIDs(handles []transport.Handle) []uuid.UUID {
	ids := make([]uuid.UUID, len(handles))
	for i, h := range handles {
		ids[i] = h.ID
	}
	return ids
}

func toHandles(implementation string, ids []uuid.UUID) []transport.Handle {
	handles := make([]transport.Handle, len(ids))
	for i, id := range ids {
		if id != uuid.Nil {
			handles[i] = transport.Handle{Implementation: implementation, ID: id}
		}
	}
	return handles
}

func encodeWaitSet(w *transport.WaitEntities) waitSet {
	return waitSet{
		Subscriptions:   toIDs(w.Subscriptions),
		GuardConditions: toIDs(w.GuardConditions),
		Services:        toIDs(w.Services),
		Clients:         toIDs(w.Clients),
		Events:          toIDs(w.Events),
	}
}

func decodeWaitSet(implementation string, w waitSet) *transport.WaitEntities {
	return &transport.WaitEntities{
		Subscriptions:   toHandles(implementation, w.Subscriptions),
		GuardConditions: toHandles(implementation, w.GuardConditions),
		Services:        toHandles(implementation, w.Services),
		Clients:         toHandles(implementation, w.Clients),
		Events:          toHandles(implementation, w.Events),
	}
}

// applyReady zeroes every handle in dst whose reply slot is not ready.
func applyReady(dst []transport.Handle, ready []uuid.UUID) {
	for i := range dst {
		if i >= len(ready) || ready[i] == uuid.Nil {
			dst[i] = transport.Handle{}
		}
	}
}

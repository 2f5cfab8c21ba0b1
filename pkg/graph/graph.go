package graph

import (
	"github.com/rmacdonaldsmith/rcl-go/pkg/allocator"
	"github.com/rmacdonaldsmith/rcl-go/pkg/rcl"
	"github.com/rmacdonaldsmith/rcl-go/pkg/transport"
)

// infoRecordSize is the number of bytes requested from the allocator per
// returned endpoint.
const infoRecordSize = 96

// Endpoints holds the result of one topic query.
type Endpoints struct {
	impl *endpointsImpl
}

type endpointsImpl struct {
	allocator allocator.Allocator
	block     []byte
	infos     []transport.EndpointInfo
}

// PublishersInfoByTopic fills out with the publishers on topic.
func PublishersInfoByTopic(ctx *rcl.Context, alloc allocator.Allocator, topic string, out *Endpoints) error {
	return query(ctx, alloc, topic, out, "publishers_info_by_topic", transport.GraphQuerier.PublishersInfoByTopic)
}

// SubscriptionsInfoByTopic fills out with the subscriptions on topic.
func SubscriptionsInfoByTopic(ctx *rcl.Context, alloc allocator.Allocator, topic string, out *Endpoints) error {
	return query(ctx, alloc, topic, out, "subscriptions_info_by_topic", transport.GraphQuerier.SubscriptionsInfoByTopic)
}

func query(ctx *rcl.Context, alloc allocator.Allocator, topic string, out *Endpoints, op string,
	list func(transport.GraphQuerier, string) ([]transport.EndpointInfo, error)) error {
	if !ctx.IsValid() {
		return rcl.InvalidArgumentf("context is not valid")
	}
	if !allocator.Valid(alloc) {
		return rcl.InvalidArgumentf("invalid allocator")
	}
	if topic == "" {
		return rcl.InvalidArgumentf("topic name cannot be empty")
	}
	if out == nil {
		return rcl.InvalidArgumentf("endpoints cannot be nil")
	}
	if out.impl != nil {
		return rcl.InvalidArgumentf("endpoints already initialized")
	}

	querier, ok := ctx.Transport().(transport.GraphQuerier)
	if !ok {
		return rcl.NewTransportError(op, rcl.ErrUnsupported)
	}

	infos, err := list(querier, topic)
	if err != nil {
		return rcl.NewTransportError(op, err)
	}

	var block []byte
	if len(infos) > 0 {
		block = alloc.Allocate(len(infos) * infoRecordSize)
		if block == nil {
			return rcl.ErrOutOfMemory
		}
	}

	out.impl = &endpointsImpl{
		allocator: alloc,
		block:     block,
		infos:     infos,
	}

	rcl.Logger().Debug("topic query succeeded", "op", op, "topic", topic, "endpoints", len(infos))
	return nil
}

// Len returns the number of endpoints, zero when uninitialized.
func (e *Endpoints) Len() int {
	if e == nil || e.impl == nil {
		return 0
	}
	return len(e.impl.infos)
}

// Infos returns the endpoints in creation order. The slice must not be
// modified.
func (e *Endpoints) Infos() []transport.EndpointInfo {
	if e == nil || e.impl == nil {
		return nil
	}
	return e.impl.infos
}

// IsValid reports whether the endpoints hold a query result.
func (e *Endpoints) IsValid() bool {
	return e != nil && e.impl != nil
}

// Fini releases the result. The Endpoints return to the zero state.
func (e *Endpoints) Fini() error {
	if e == nil || e.impl == nil {
		return rcl.InvalidArgumentf("endpoints are not initialized")
	}
	if e.impl.block != nil {
		e.impl.allocator.Deallocate(e.impl.block)
	}
	e.impl = nil
	return nil
}

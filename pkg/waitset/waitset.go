package waitset

import (
	"errors"
	"log/slog"
	"time"

	"github.com/rmacdonaldsmith/rcl-go/pkg/allocator"
	"github.com/rmacdonaldsmith/rcl-go/pkg/event"
	"github.com/rmacdonaldsmith/rcl-go/pkg/rcl"
	"github.com/rmacdonaldsmith/rcl-go/pkg/transport"
)

// slotSize is the number of bytes requested from the allocator per slot.
const slotSize = 32

// Counts declares the capacity of each entity kind.
type Counts struct {
	Subscriptions   int
	GuardConditions int
	Timers          int
	Clients         int
	Services        int
	Events          int
}

// Total returns the sum of all capacities.
func (c Counts) Total() int {
	return c.Subscriptions + c.GuardConditions + c.Timers + c.Clients + c.Services + c.Events
}

func (c Counts) validate() error {
	if c.Subscriptions < 0 || c.GuardConditions < 0 || c.Timers < 0 ||
		c.Clients < 0 || c.Services < 0 || c.Events < 0 {
		return rcl.InvalidArgumentf("wait set counts cannot be negative")
	}
	return nil
}

// WaitSet multiplexes readiness of subscriptions, guard conditions, timers,
// clients, services and events. The zero WaitSet is uninitialized.
type WaitSet struct {
	impl *waitSetImpl
}

type waitSetImpl struct {
	context   *rcl.Context
	allocator allocator.Allocator
	blocks    [][]byte

	subscriptions   slots[rcl.Entity]
	guardConditions slots[rcl.Entity]
	timers          slots[rcl.Timer]
	clients         slots[rcl.Entity]
	services        slots[rcl.Entity]
	events          slots[*event.Event]

	// Handle arrays handed to the transport, preallocated to capacity.
	subscriptionHandles   []transport.Handle
	guardConditionHandles []transport.Handle
	clientHandles         []transport.Handle
	serviceHandles        []transport.Handle
	eventHandles          []transport.Handle
	request               transport.WaitEntities
}

// Init allocates slot storage for counts and binds the wait set to ctx.
func (w *WaitSet) Init(counts Counts, ctx *rcl.Context, alloc allocator.Allocator) error {
	if w == nil {
		return rcl.InvalidArgumentf("wait set cannot be nil")
	}
	if !allocator.Valid(alloc) {
		return rcl.InvalidArgumentf("invalid allocator")
	}
	if w.impl != nil {
		return rcl.InvalidArgumentf("wait set already initialized")
	}
	if !ctx.IsValid() {
		return rcl.InvalidArgumentf("context is not valid")
	}
	if err := counts.validate(); err != nil {
		return err
	}

	impl := &waitSetImpl{
		context:   ctx,
		allocator: alloc,
	}
	if err := impl.allocate(counts); err != nil {
		return err
	}

	w.impl = impl
	return nil
}

// allocate reserves storage for counts through the allocator and builds the
// slot arrays. On failure every block obtained so far is released.
func (impl *waitSetImpl) allocate(counts Counts) error {
	sizes := []int{
		counts.Subscriptions, counts.GuardConditions, counts.Timers,
		counts.Clients, counts.Services, counts.Events,
	}

	blocks := make([][]byte, 0, len(sizes))
	for _, n := range sizes {
		if n == 0 {
			continue
		}
		block := impl.allocator.Allocate(n * slotSize)
		if block == nil {
			for _, b := range blocks {
				impl.allocator.Deallocate(b)
			}
			return rcl.ErrOutOfMemory
		}
		blocks = append(blocks, block)
	}

	impl.release()
	impl.blocks = blocks

	impl.subscriptions = newSlots[rcl.Entity](counts.Subscriptions)
	impl.guardConditions = newSlots[rcl.Entity](counts.GuardConditions)
	impl.timers = newSlots[rcl.Timer](counts.Timers)
	impl.clients = newSlots[rcl.Entity](counts.Clients)
	impl.services = newSlots[rcl.Entity](counts.Services)
	impl.events = newSlots[*event.Event](counts.Events)

	impl.subscriptionHandles = make([]transport.Handle, counts.Subscriptions)
	impl.guardConditionHandles = make([]transport.Handle, counts.GuardConditions)
	impl.clientHandles = make([]transport.Handle, counts.Clients)
	impl.serviceHandles = make([]transport.Handle, counts.Services)
	impl.eventHandles = make([]transport.Handle, counts.Events)
	return nil
}

func (impl *waitSetImpl) release() {
	for _, b := range impl.blocks {
		impl.allocator.Deallocate(b)
	}
	impl.blocks = nil
}

// Fini releases slot storage. The wait set returns to the zero state.
func (w *WaitSet) Fini() error {
	if w == nil || w.impl == nil {
		return rcl.InvalidArgumentf("wait set is not initialized")
	}
	w.impl.release()
	w.impl = nil
	return nil
}

// IsValid reports whether the wait set is initialized and its context valid.
func (w *WaitSet) IsValid() bool {
	return w != nil && w.impl != nil && w.impl.context.IsValid()
}

// Resize changes the capacities. Slots are cleared; on failure the previous
// storage is kept.
func (w *WaitSet) Resize(counts Counts) error {
	if w == nil || w.impl == nil {
		return rcl.InvalidArgumentf("wait set is not initialized")
	}
	if err := counts.validate(); err != nil {
		return err
	}
	return w.impl.allocate(counts)
}

// Clear empties every slot without releasing capacity.
func (w *WaitSet) Clear() error {
	if w == nil || w.impl == nil {
		return rcl.InvalidArgumentf("wait set is not initialized")
	}
	impl := w.impl
	impl.subscriptions.clear()
	impl.guardConditions.clear()
	impl.timers.clear()
	impl.clients.clear()
	impl.services.clear()
	impl.events.clear()
	return nil
}

// Capacity returns the per-kind capacities.
func (w *WaitSet) Capacity() Counts {
	if w == nil || w.impl == nil {
		return Counts{}
	}
	impl := w.impl
	return Counts{
		Subscriptions:   len(impl.subscriptions.items),
		GuardConditions: len(impl.guardConditions.items),
		Timers:          len(impl.timers.items),
		Clients:         len(impl.clients.items),
		Services:        len(impl.services.items),
		Events:          len(impl.events.items),
	}
}

// Size returns the number of entities currently added per kind.
func (w *WaitSet) Size() Counts {
	if w == nil || w.impl == nil {
		return Counts{}
	}
	impl := w.impl
	return Counts{
		Subscriptions:   impl.subscriptions.size,
		GuardConditions: impl.guardConditions.size,
		Timers:          impl.timers.size,
		Clients:         impl.clients.size,
		Services:        impl.services.size,
		Events:          impl.events.size,
	}
}

func (w *WaitSet) checkEntity(e rcl.Entity, kind rcl.EntityKind) error {
	if w == nil || w.impl == nil {
		return rcl.InvalidArgumentf("wait set is not initialized")
	}
	if e == nil {
		return rcl.InvalidArgumentf("%s cannot be nil", kind)
	}
	if e.Kind() != kind {
		return rcl.InvalidArgumentf("entity is a %s, not a %s", e.Kind(), kind)
	}
	return w.checkHandle(e.TransportHandle(), e.Transport(), kind.String())
}

// checkHandle accepts h only when it was issued by the transport of the
// wait set's context. Adapters of the same kind share an identifier, so the
// owning instance is compared as well.
func (w *WaitSet) checkHandle(h transport.Handle, owner transport.Transport, what string) error {
	if h.IsZero() {
		return rcl.InvalidArgumentf("%s has no transport handle", what)
	}
	tr := w.impl.context.Transport()
	if id := tr.Identifier(); h.Implementation != id {
		return rcl.InvalidArgumentf("%s belongs to transport %q, wait set uses %q", what, h.Implementation, id)
	}
	if owner != tr {
		return rcl.InvalidArgumentf("%s belongs to another %q transport instance", what, h.Implementation)
	}
	return nil
}

// AddSubscription appends sub and returns its slot index.
func (w *WaitSet) AddSubscription(sub rcl.Entity) (int, error) {
	if err := w.checkEntity(sub, rcl.KindSubscription); err != nil {
		return 0, err
	}
	return w.impl.subscriptions.add(sub)
}

// AddGuardCondition appends gc and returns its slot index.
func (w *WaitSet) AddGuardCondition(gc rcl.Entity) (int, error) {
	if err := w.checkEntity(gc, rcl.KindGuardCondition); err != nil {
		return 0, err
	}
	return w.impl.guardConditions.add(gc)
}

// AddClient appends client and returns its slot index.
func (w *WaitSet) AddClient(client rcl.Entity) (int, error) {
	if err := w.checkEntity(client, rcl.KindClient); err != nil {
		return 0, err
	}
	return w.impl.clients.add(client)
}

// AddService appends service and returns its slot index.
func (w *WaitSet) AddService(service rcl.Entity) (int, error) {
	if err := w.checkEntity(service, rcl.KindService); err != nil {
		return 0, err
	}
	return w.impl.services.add(service)
}

// AddTimer appends t and returns its slot index.
func (w *WaitSet) AddTimer(t rcl.Timer) (int, error) {
	if w == nil || w.impl == nil {
		return 0, rcl.InvalidArgumentf("wait set is not initialized")
	}
	if t == nil {
		return 0, rcl.InvalidArgumentf("timer cannot be nil")
	}
	return w.impl.timers.add(t)
}

// AddEvent appends ev, which must be initialized, and returns its slot index.
func (w *WaitSet) AddEvent(ev *event.Event) (int, error) {
	if w == nil || w.impl == nil {
		return 0, rcl.InvalidArgumentf("wait set is not initialized")
	}
	if ev == nil {
		return 0, rcl.InvalidArgumentf("event cannot be nil")
	}
	if err := w.checkHandle(ev.RawHandle(), ev.Transport(), "event"); err != nil {
		return 0, err
	}
	return w.impl.events.add(ev)
}

// Subscriptions returns the subscription slots; nil entries are not ready.
func (w *WaitSet) Subscriptions() []rcl.Entity {
	if w == nil || w.impl == nil {
		return nil
	}
	return w.impl.subscriptions.active()
}

// GuardConditions returns the guard condition slots.
func (w *WaitSet) GuardConditions() []rcl.Entity {
	if w == nil || w.impl == nil {
		return nil
	}
	return w.impl.guardConditions.active()
}

// Timers returns the timer slots.
func (w *WaitSet) Timers() []rcl.Timer {
	if w == nil || w.impl == nil {
		return nil
	}
	return w.impl.timers.active()
}

// Clients returns the client slots.
func (w *WaitSet) Clients() []rcl.Entity {
	if w == nil || w.impl == nil {
		return nil
	}
	return w.impl.clients.active()
}

// Services returns the service slots.
func (w *WaitSet) Services() []rcl.Entity {
	if w == nil || w.impl == nil {
		return nil
	}
	return w.impl.services.active()
}

// Events returns the event slots.
func (w *WaitSet) Events() []*event.Event {
	if w == nil || w.impl == nil {
		return nil
	}
	return w.impl.events.active()
}

func entityHandle(e rcl.Entity) transport.Handle {
	return e.TransportHandle()
}

func eventHandle(ev *event.Event) transport.Handle {
	return ev.RawHandle()
}

// Wait blocks until at least one added entity is ready, the timeout expires
// or the owning context shuts down.
//
// A negative timeout blocks indefinitely and zero polls. The outcome is
// nil when something is ready, rcl.ErrTimeout when nothing is, and
// rcl.ErrShutdown when the context shut down. After nil or rcl.ErrTimeout
// every slot holds either its original entity (ready) or nil (not ready).
// After any other error slot contents are unspecified; clear and repopulate
// before retrying.
func (w *WaitSet) Wait(timeout time.Duration) error {
	if w == nil || w.impl == nil {
		return rcl.InvalidArgumentf("wait set is not initialized")
	}
	impl := w.impl
	if !impl.context.IsValid() {
		return rcl.ErrShutdown
	}

	size := w.Size()
	if size.Total() == 0 {
		return rcl.InvalidArgumentf("wait set is empty")
	}

	req := &impl.request
	req.Subscriptions = stage(&impl.subscriptions, impl.subscriptionHandles, entityHandle)
	req.GuardConditions = stage(&impl.guardConditions, impl.guardConditionHandles, entityHandle)
	req.Clients = stage(&impl.clients, impl.clientHandles, entityHandle)
	req.Services = stage(&impl.services, impl.serviceHandles, entityHandle)
	req.Events = stage(&impl.events, impl.eventHandles, eventHandle)

	// Timers are evaluated here: shorten the timeout to the next deadline.
	effective := timeout
	for i, t := range impl.timers.active() {
		if t == nil {
			continue
		}
		if t.IsCanceled() {
			impl.timers.items[i] = nil
			continue
		}
		left, err := t.TimeUntilNextCall()
		if err != nil {
			return err
		}
		if left < 0 {
			left = 0
		}
		if effective < 0 || left < effective {
			effective = left
		}
	}

	err := impl.context.Transport().Wait(impl.context.WaitContext(), req, effective)
	timedOut := false
	switch {
	case err == nil:
	case errors.Is(err, transport.ErrTimeout):
		timedOut = true
	case errors.Is(err, transport.ErrShutdown):
		return rcl.ErrShutdown
	default:
		return rcl.NewTransportError("wait", err)
	}

	ready := collect(&impl.subscriptions, req.Subscriptions, timedOut)
	ready += collect(&impl.guardConditions, req.GuardConditions, timedOut)
	ready += collect(&impl.clients, req.Clients, timedOut)
	ready += collect(&impl.services, req.Services, timedOut)
	ready += collect(&impl.events, req.Events, timedOut)

	for i, t := range impl.timers.active() {
		if t == nil {
			continue
		}
		isReady, err := t.IsReady()
		if err != nil {
			return err
		}
		if !isReady {
			impl.timers.items[i] = nil
			continue
		}
		ready++
	}

	if logger := rcl.Logger(); logger.Enabled(impl.context.WaitContext(), slog.LevelDebug) {
		logger.Debug("wait finished", "timeout", timeout, "effective_timeout", effective, "ready", ready)
	}

	// No ready slot is reported as a timeout, spurious wakeups included.
	if ready == 0 {
		return rcl.ErrTimeout
	}
	return nil
}

package intraprocess

import (
	"time"

	"github.com/google/uuid"

	"github.com/rmacdonaldsmith/rcl-go/pkg/transport"
)

// DefaultDepth is the queue depth used when QoS.Depth is not positive and
// the transport was not given another default.
const DefaultDepth = 10

// QoS holds the quality-of-service settings of a publisher or subscription.
type QoS struct {
	// Depth bounds the message queue of a subscription; older messages are
	// dropped first.
	Depth int

	// Deadline is the maximum expected period between messages. Zero
	// disables deadline tracking.
	Deadline time.Duration

	// LivelinessLeaseDuration is how long a publisher stays alive without
	// publishing or asserting liveliness. Zero means forever.
	LivelinessLeaseDuration time.Duration
}

func (q QoS) withDefaults(depth int) QoS {
	if q.Depth <= 0 {
		q.Depth = depth
	}
	return q
}

// deadlineTracker counts deadline periods that elapsed without activity.
type deadlineTracker struct {
	period    time.Duration
	reference time.Time
	counted   int64
	total     int32
}

func newDeadlineTracker(period time.Duration, now time.Time) deadlineTracker {
	return deadlineTracker{period: period, reference: now}
}

// evaluate accounts for every full period elapsed since the last activity.
func (d *deadlineTracker) evaluate(now time.Time) {
	if d.period <= 0 {
		return
	}
	missed := int64(now.Sub(d.reference) / d.period)
	if missed > d.counted {
		d.total += int32(missed - d.counted)
		d.counted = missed
	}
}

// activity restarts the deadline period at now.
func (d *deadlineTracker) activity(now time.Time) {
	d.evaluate(now)
	d.reference = now
	d.counted = 0
}

// next returns when the next period expires, or the zero time.
func (d *deadlineTracker) next() time.Time {
	if d.period <= 0 {
		return time.Time{}
	}
	return d.reference.Add(time.Duration(d.counted+1) * d.period)
}

type publisherState struct {
	id       uuid.UUID
	seq      uint64
	topic    string
	qos      QoS
	deadline deadlineTracker

	lastAssert     time.Time
	alive          bool
	livelinessLost int32
}

type subscriptionState struct {
	id       uuid.UUID
	seq      uint64
	topic    string
	qos      QoS
	deadline deadlineTracker
	queue    [][]byte

	aliveCount      int32
	notAliveCount   int32
	livelinessEpoch int64
}

type guardConditionState struct {
	id        uuid.UUID
	triggered bool
}

// Request is a service request as seen by the service.
type Request struct {
	// Client identifies the requesting client
	Client uuid.UUID
	// Sequence is the client-assigned sequence number
	Sequence int64
	// Payload is the request body
	Payload []byte
}

// Response is a service response as seen by the client.
type Response struct {
	Sequence int64
	Payload  []byte
}

type serviceState struct {
	id       uuid.UUID
	name     string
	requests []Request
}

type clientState struct {
	id           uuid.UUID
	service      string
	nextSequence int64
	responses    []Response
}

// eventState remembers what the last successful poll reported.
type eventState struct {
	id        uuid.UUID
	entity    uuid.UUID
	eventType transport.EventType

	takenTotal    int32
	takenAlive    int32
	takenNotAlive int32
	takenEpoch    int64
}

// evaluatePublisher applies elapsed time to the publisher's deadline and
// liveliness lease. Matched subscriptions are updated when the publisher
// loses liveliness.
func (t *Transport) evaluatePublisher(p *publisherState, now time.Time) {
	p.deadline.evaluate(now)

	lease := p.qos.LivelinessLeaseDuration
	if lease <= 0 || !p.alive {
		return
	}
	if now.Sub(p.lastAssert) > lease {
		p.alive = false
		p.livelinessLost++
		for _, s := range t.graph.subscriptions(p.topic) {
			s.aliveCount--
			s.notAliveCount++
			s.livelinessEpoch++
		}
	}
}

// assertLiveliness marks p alive at now, reviving it if its lease lapsed.
func (t *Transport) assertLiveliness(p *publisherState, now time.Time) {
	t.evaluatePublisher(p, now)
	p.lastAssert = now
	if p.alive {
		return
	}
	p.alive = true
	for _, s := range t.graph.subscriptions(p.topic) {
		s.notAliveCount--
		s.aliveCount++
		s.livelinessEpoch++
	}
}

// evaluateAll brings every tracked entity up to now.
func (t *Transport) evaluateAll(now time.Time) {
	for _, p := range t.publishers {
		t.evaluatePublisher(p, now)
	}
	for _, s := range t.subscriptions {
		s.deadline.evaluate(now)
	}
}

// nextExpiry returns the earliest future time at which a deadline or lease
// expires, or the zero time when nothing is pending.
func (t *Transport) nextExpiry() time.Time {
	var next time.Time
	consider := func(at time.Time) {
		if at.IsZero() {
			return
		}
		if next.IsZero() || at.Before(next) {
			next = at
		}
	}
	for _, p := range t.publishers {
		consider(p.deadline.next())
		if p.alive && p.qos.LivelinessLeaseDuration > 0 {
			// Lapses strictly after the lease, so wake just past it.
			consider(p.lastAssert.Add(p.qos.LivelinessLeaseDuration + time.Nanosecond))
		}
	}
	for _, s := range t.subscriptions {
		consider(s.deadline.next())
	}
	return next
}

// eventPending reports whether ev has a status that was not yet taken.
func (t *Transport) eventPending(ev *eventState) bool {
	switch ev.eventType {
	case transport.EventOfferedDeadlineMissed:
		if p := t.publishers[ev.entity]; p != nil {
			return p.deadline.total != ev.takenTotal
		}
	case transport.EventLivelinessLost:
		if p := t.publishers[ev.entity]; p != nil {
			return p.livelinessLost != ev.takenTotal
		}
	case transport.EventRequestedDeadlineMissed:
		if s := t.subscriptions[ev.entity]; s != nil {
			return s.deadline.total != ev.takenTotal
		}
	case transport.EventLivelinessChanged:
		if s := t.subscriptions[ev.entity]; s != nil {
			return s.livelinessEpoch != ev.takenEpoch
		}
	}
	return false
}

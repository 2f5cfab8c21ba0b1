package intraprocess

import (
	"cmp"
	"slices"

	"github.com/google/uuid"

	"github.com/rmacdonaldsmith/rcl-go/pkg/transport"
)

// graph maps topic and service names to the entities attached to them.
// Matching is exact on fully qualified names. It is guarded by the owning
// Transport's mutex.
type graph struct {
	publishersByTopic    map[string]map[uuid.UUID]*publisherState
	subscriptionsByTopic map[string]map[uuid.UUID]*subscriptionState
	servicesByName       map[string]*serviceState
}

func newGraph() *graph {
	return &graph{
		publishersByTopic:    make(map[string]map[uuid.UUID]*publisherState),
		subscriptionsByTopic: make(map[string]map[uuid.UUID]*subscriptionState),
		servicesByName:       make(map[string]*serviceState),
	}
}

func (g *graph) addPublisher(p *publisherState) {
	set := g.publishersByTopic[p.topic]
	if set == nil {
		set = make(map[uuid.UUID]*publisherState)
		g.publishersByTopic[p.topic] = set
	}
	set[p.id] = p
}

func (g *graph) removePublisher(p *publisherState) {
	set := g.publishersByTopic[p.topic]
	delete(set, p.id)
	if len(set) == 0 {
		delete(g.publishersByTopic, p.topic)
	}
}

func (g *graph) addSubscription(s *subscriptionState) {
	set := g.subscriptionsByTopic[s.topic]
	if set == nil {
		set = make(map[uuid.UUID]*subscriptionState)
		g.subscriptionsByTopic[s.topic] = set
	}
	set[s.id] = s
}

func (g *graph) removeSubscription(s *subscriptionState) {
	set := g.subscriptionsByTopic[s.topic]
	delete(set, s.id)
	if len(set) == 0 {
		delete(g.subscriptionsByTopic, s.topic)
	}
}

// publishers returns the publishers on topic. The map must not be modified.
func (g *graph) publishers(topic string) map[uuid.UUID]*publisherState {
	return g.publishersByTopic[topic]
}

// subscriptions returns the subscriptions on topic. The map must not be
// modified.
func (g *graph) subscriptions(topic string) map[uuid.UUID]*subscriptionState {
	return g.subscriptionsByTopic[topic]
}

func (g *graph) addService(s *serviceState) bool {
	if _, exists := g.servicesByName[s.name]; exists {
		return false
	}
	g.servicesByName[s.name] = s
	return true
}

func (g *graph) removeService(s *serviceState) {
	if g.servicesByName[s.name] == s {
		delete(g.servicesByName, s.name)
	}
}

func (g *graph) service(name string) *serviceState {
	return g.servicesByName[name]
}

// counts returns the number of publishers and subscriptions on topic.
func (g *graph) counts(topic string) (publishers, subscriptions int) {
	return len(g.publishersByTopic[topic]), len(g.subscriptionsByTopic[topic])
}

// publisherInfos describes the publishers on topic in creation order.
func (g *graph) publisherInfos(topic string) []transport.EndpointInfo {
	set := g.publishersByTopic[topic]
	states := make([]*publisherState, 0, len(set))
	for _, p := range set {
		states = append(states, p)
	}
	slices.SortFunc(states, func(a, b *publisherState) int { return cmp.Compare(a.seq, b.seq) })

	infos := make([]transport.EndpointInfo, len(states))
	for i, p := range states {
		infos[i] = endpointInfo(topic, p.id, p.qos)
	}
	return infos
}

// subscriptionInfos describes the subscriptions on topic in creation order.
func (g *graph) subscriptionInfos(topic string) []transport.EndpointInfo {
	set := g.subscriptionsByTopic[topic]
	states := make([]*subscriptionState, 0, len(set))
	for _, s := range set {
		states = append(states, s)
	}
	slices.SortFunc(states, func(a, b *subscriptionState) int { return cmp.Compare(a.seq, b.seq) })

	infos := make([]transport.EndpointInfo, len(states))
	for i, s := range states {
		infos[i] = endpointInfo(topic, s.id, s.qos)
	}
	return infos
}

func endpointInfo(topic string, id uuid.UUID, qos QoS) transport.EndpointInfo {
	return transport.EndpointInfo{
		Topic:  topic,
		Handle: transport.Handle{Implementation: Identifier, ID: id},
		QoS: transport.EndpointQoS{
			Depth:                   qos.Depth,
			Deadline:                qos.Deadline,
			LivelinessLeaseDuration: qos.LivelinessLeaseDuration,
		},
	}
}

package transport

import "time"

// EndpointQoS is the quality of service an endpoint was created with.
type EndpointQoS struct {
	Depth                   int
	Deadline                time.Duration
	LivelinessLeaseDuration time.Duration
}

// EndpointInfo describes one publisher or subscription attached to a topic.
type EndpointInfo struct {
	Topic  string
	Handle Handle
	QoS    EndpointQoS
}

// GraphQuerier is implemented by adapters that can list the endpoints on a
// topic. It is optional; adapters without a graph leave it out.
type GraphQuerier interface {
	// PublishersInfoByTopic lists the publishers on topic, oldest first.
	PublishersInfoByTopic(topic string) ([]EndpointInfo, error)

	// SubscriptionsInfoByTopic lists the subscriptions on topic, oldest
	// first.
	SubscriptionsInfoByTopic(topic string) ([]EndpointInfo, error)
}

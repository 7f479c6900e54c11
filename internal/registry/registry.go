// Package registry implements the in-memory topic registry used to fan
// messages out to live connections.
//
// Delivery policy: Broadcast snapshots the member set under the lock, then
// delivers outside it through each subscriber's bounded outbound buffer. A
// subscriber whose buffer is full at delivery time has the frame dropped and
// is disconnected; a stalled receiver must never hold up the rest of a
// topic.
package registry

import (
	"sync"

	"go.uber.org/zap"
)

// Subscriber is one live connection's delivery endpoint.
type Subscriber interface {
	// SubscriberID uniquely identifies the connection for logging.
	SubscriberID() string
	// Deliver queues a frame for the connection without blocking. It
	// returns false when the outbound buffer is full or the connection is
	// closed.
	Deliver(msg []byte) bool
	// CloseSlow tears the connection down after a failed delivery.
	CloseSlow()
}

// Registry maps topic names to their current member sets. All methods are
// safe for concurrent use; the mutex guards only membership bookkeeping,
// never delivery.
type Registry struct {
	mu          sync.Mutex
	topics      map[string]map[Subscriber]struct{}
	memberships map[Subscriber]map[string]struct{}
	logger      *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Registry{
		topics:      make(map[string]map[Subscriber]struct{}),
		memberships: make(map[Subscriber]map[string]struct{}),
		logger:      logger.With(zap.String("component", "registry")),
	}
}

// Subscribe adds the subscriber to the topic. Subscribing twice is a no-op,
// never a duplicate delivery.
func (r *Registry) Subscribe(topic string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.topics[topic]
	if !ok {
		members = make(map[Subscriber]struct{})
		r.topics[topic] = members
	}
	if _, already := members[sub]; already {
		return
	}
	members[sub] = struct{}{}

	joined, ok := r.memberships[sub]
	if !ok {
		joined = make(map[string]struct{})
		r.memberships[sub] = joined
	}
	joined[topic] = struct{}{}

	r.logger.Debug("Subscribed",
		zap.String("topic", topic),
		zap.String("subscriber", sub.SubscriberID()),
		zap.Int("members", len(members)))
}

// Unsubscribe removes the subscriber from the topic. Removing a non-member
// is a no-op.
func (r *Registry) Unsubscribe(topic string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(topic, sub)
}

// DropConnection removes the subscriber from every topic it joined. It must
// be called exactly once during connection teardown; calling it for an
// unknown subscriber is a no-op.
func (r *Registry) DropConnection(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for topic := range r.memberships[sub] {
		r.removeLocked(topic, sub)
	}
}

// removeLocked removes one membership edge. Caller holds the mutex.
func (r *Registry) removeLocked(topic string, sub Subscriber) {
	if members, ok := r.topics[topic]; ok {
		delete(members, sub)
		if len(members) == 0 {
			delete(r.topics, topic)
		}
	}
	if joined, ok := r.memberships[sub]; ok {
		delete(joined, topic)
		if len(joined) == 0 {
			delete(r.memberships, sub)
		}
	}
}

// Broadcast delivers msg to every current member of the topic. Members whose
// outbound buffer is full are dropped from all topics and closed.
func (r *Registry) Broadcast(topic string, msg []byte) {
	r.BroadcastTopics([]string{topic}, msg)
}

// BroadcastTopics delivers msg once to every connection that is a member of
// at least one of the topics. A connection subscribed to both the global and
// a region feed receives a single copy.
func (r *Registry) BroadcastTopics(topics []string, msg []byte) {
	r.mu.Lock()
	seen := make(map[Subscriber]struct{})
	var snapshot []Subscriber
	for _, topic := range topics {
		for sub := range r.topics[topic] {
			if _, dup := seen[sub]; dup {
				continue
			}
			seen[sub] = struct{}{}
			snapshot = append(snapshot, sub)
		}
	}
	r.mu.Unlock()

	for _, sub := range snapshot {
		if sub.Deliver(msg) {
			continue
		}
		r.logger.Warn("Dropping slow subscriber",
			zap.Strings("topics", topics),
			zap.String("subscriber", sub.SubscriberID()))
		r.DropConnection(sub)
		sub.CloseSlow()
	}
}

// MemberCount returns the topic's current membership size.
func (r *Registry) MemberCount(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.topics[topic])
}

// MembershipCount returns how many topics the subscriber belongs to.
func (r *Registry) MembershipCount(sub Subscriber) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.memberships[sub])
}

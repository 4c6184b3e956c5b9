// Package pubsub is an in-process, typed publish/subscribe transport. A Topic never blocks its
// publisher: every subscriber owns a small keep-last queue and the oldest message is dropped
// when a slow subscriber falls behind.
package pubsub

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// Message is implemented by anything that can travel on a Topic. Publishers may reuse their
// message buffers between publications, so a topic keeps only clones.
type Message[T any] interface {
	Clone() T
}

// TopicOption configures a Topic.
type TopicOption func(*topicOptions)

type topicOptions struct {
	latched bool
}

// WithLatching makes the topic remember its last message and hand it to late subscribers.
func WithLatching() TopicOption {
	return func(opts *topicOptions) {
		opts.latched = true
	}
}

// SubscribeOption configures a Subscription.
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	depth int
}

// WithDepth sets how many unread messages a subscription keeps. The default is 1.
func WithDepth(depth int) SubscribeOption {
	return func(opts *subscribeOptions) {
		if depth > 0 {
			opts.depth = depth
		}
	}
}

// Topic is a named channel of messages of type T.
type Topic[T Message[T]] struct {
	name    string
	latched bool

	mu          sync.Mutex
	subscribers map[uuid.UUID]*Subscription[T]
	last        T
	hasLast     bool

	published *atomic.Uint64
	dropped   *atomic.Uint64
}

// NewTopic returns an empty topic.
func NewTopic[T Message[T]](name string, opts ...TopicOption) *Topic[T] {
	var options topicOptions
	for _, opt := range opts {
		opt(&options)
	}
	return &Topic[T]{
		name:        name,
		latched:     options.latched,
		subscribers: map[uuid.UUID]*Subscription[T]{},
		published:   atomic.NewUint64(0),
		dropped:     atomic.NewUint64(0),
	}
}

// Name returns the name of the topic.
func (topic *Topic[T]) Name() string {
	return topic.name
}

// ActiveConsumerCount returns the number of open subscriptions.
func (topic *Topic[T]) ActiveConsumerCount() uint {
	topic.mu.Lock()
	defer topic.mu.Unlock()
	return uint(len(topic.subscribers))
}

// Stats returns how many messages were published and how many were dropped by slow subscribers.
func (topic *Topic[T]) Stats() (published, dropped uint64) {
	return topic.published.Load(), topic.dropped.Load()
}

// Publish hands a copy of msg to every subscriber. It never blocks and msg may be reused by the
// caller as soon as Publish returns.
func (topic *Topic[T]) Publish(ctx context.Context, msg T) {
	topic.mu.Lock()
	defer topic.mu.Unlock()

	topic.published.Inc()
	if len(topic.subscribers) == 0 && !topic.latched {
		return
	}
	cp := msg.Clone()
	if topic.latched {
		topic.last = cp
		topic.hasLast = true
	}
	for _, sub := range topic.subscribers {
		if sub.offer(cp) {
			topic.dropped.Inc()
		}
	}
}

// Subscribe opens a subscription. On a latched topic that already carries a message, that
// message is immediately available.
func (topic *Topic[T]) Subscribe(opts ...SubscribeOption) *Subscription[T] {
	options := subscribeOptions{depth: 1}
	for _, opt := range opts {
		opt(&options)
	}

	sub := &Subscription[T]{
		id:    uuid.New(),
		topic: topic,
		ch:    make(chan T, options.depth),
	}

	topic.mu.Lock()
	defer topic.mu.Unlock()
	topic.subscribers[sub.id] = sub
	if topic.latched && topic.hasLast {
		sub.offer(topic.last)
	}
	return sub
}

func (topic *Topic[T]) unsubscribe(id uuid.UUID) bool {
	topic.mu.Lock()
	defer topic.mu.Unlock()
	if _, ok := topic.subscribers[id]; !ok {
		return false
	}
	delete(topic.subscribers, id)
	return true
}

// Subscription receives the messages of a Topic until it is closed.
type Subscription[T Message[T]] struct {
	id    uuid.UUID
	topic *Topic[T]
	ch    chan T
}

// ID returns the unique id of the subscription.
func (sub *Subscription[T]) ID() uuid.UUID {
	return sub.id
}

// C returns the channel messages are delivered on. It is never closed. Delivered messages are
// shared between subscribers and must be treated as read-only.
func (sub *Subscription[T]) C() <-chan T {
	return sub.ch
}

// Next waits for the next message or for ctx to be done.
func (sub *Subscription[T]) Next(ctx context.Context) (T, error) {
	select {
	case msg := <-sub.ch:
		return msg, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Close stops the subscription. It is safe to call more than once.
func (sub *Subscription[T]) Close() {
	sub.topic.unsubscribe(sub.id)
}

// offer queues msg, evicting the oldest queued message when full. It reports whether a message
// was dropped. Callers hold the topic lock, which makes the evict-then-send sequence atomic with
// respect to other publishers.
func (sub *Subscription[T]) offer(msg T) bool {
	select {
	case sub.ch <- msg:
		return false
	default:
	}
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- msg:
	default:
	}
	return true
}

// Package eventbus is the client's in-process topic pub/sub. Server push
// notifications and session changes travel through it, so modules can
// react without holding references to each other.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gobwas/glob"
)

// EventBus errors
var (
	ErrEventBusNotStarted      = errors.New("event bus not started")
	ErrEventBusShutdownTimeout = errors.New("event bus shutdown timed out")
	ErrEventHandlerNil         = errors.New("event handler cannot be nil")
	ErrInvalidSubscriptionType = errors.New("invalid subscription type")
	ErrInvalidDeliveryMode     = errors.New("invalid delivery mode")
	ErrInvalidConfigType       = errors.New("eventbus: invalid config type")
	ErrInvalidTopicPattern     = errors.New("invalid topic pattern")
)

// Event represents a message in the event bus.
type Event struct {
	// Topic routes the event. Topics are dotted, e.g. "notification.route_saved".
	Topic string `json:"topic"`

	Payload any `json:"payload"`

	// Metadata is optional context such as the originating request ID.
	Metadata map[string]any `json:"metadata,omitempty"`

	// CreatedAt is set by Publish.
	CreatedAt time.Time `json:"createdAt"`
}

// EventHandler handles one event. The context is cancelled when the bus
// stops.
type EventHandler func(ctx context.Context, event Event) error

// Subscription represents a subscription to a topic.
type Subscription interface {
	// Topic returns the subscribed pattern, possibly ending in '*'.
	Topic() string
	ID() string
	IsAsync() bool

	// Cancel stops delivery. Idempotent.
	Cancel() error
}

// EventBus defines the interface for an event bus implementation.
type EventBus interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// Publish delivers event to every subscription whose pattern matches
	// its topic.
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a handler whose events are processed one at a
	// time, in publish order.
	Subscribe(ctx context.Context, topic string, handler EventHandler) (Subscription, error)

	// SubscribeAsync registers a handler run on the shared worker pool.
	SubscribeAsync(ctx context.Context, topic string, handler EventHandler) (Subscription, error)

	Unsubscribe(ctx context.Context, subscription Subscription) error

	// Topics returns the patterns with at least one subscriber.
	Topics() []string
	SubscriberCount(topic string) int
}

// compileTopic compiles a subscription pattern. Topics are matched per
// dot-separated segment: '*' matches within one segment and '**' across
// segments, so "notification.*" matches "notification.route_saved" but
// not "notification.route.saved".
func compileTopic(pattern string) (glob.Glob, error) {
	g, err := glob.Compile(pattern, '.')
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidTopicPattern, pattern, err)
	}
	return g, nil
}

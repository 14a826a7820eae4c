// Package messaging defines the broker abstraction BloomWatch services use to
// announce prediction outcomes and the CLI uses to follow them.
package messaging

import (
	"context"
	"time"
)

// Message is a payload received from or sent to the broker.
type Message struct {
	Subject   string
	Data      []byte
	Metadata  map[string]string
	Timestamp time.Time
}

// MessageHandler processes a received message.
type MessageHandler func(ctx context.Context, msg *Message) error

// Subscription is an active subscription to a subject.
type Subscription interface {
	Unsubscribe() error
	Subject() string
	IsValid() bool
}

// Publisher publishes messages to subjects.
type Publisher interface {
	// Publish is fire-and-forget.
	Publish(ctx context.Context, subject string, data []byte, opts ...PublishOption) error
	Close() error
}

// Subscriber receives messages on subjects. Wildcards follow the broker's
// own syntax.
type Subscriber interface {
	Subscribe(subject string, handler MessageHandler) (Subscription, error)
	Close() error
}

// Client combines Publisher and Subscriber with connection state.
type Client interface {
	Publisher
	Subscriber

	// Ping round-trips to the broker.
	Ping(ctx context.Context) error
	IsConnected() bool
	Drain() error
}

// PublishOption configures a single publish.
type PublishOption func(*PublishOptions)

// PublishOptions is the resolved set of options for a publish.
type PublishOptions struct {
	Headers map[string]string
}

// WithHeader adds a header to the published message.
func WithHeader(key, value string) PublishOption {
	return func(o *PublishOptions) {
		if value == "" {
			return
		}
		if o.Headers == nil {
			o.Headers = make(map[string]string)
		}
		o.Headers[key] = value
	}
}

// ApplyPublishOptions resolves opts in order.
func ApplyPublishOptions(opts ...PublishOption) PublishOptions {
	var o PublishOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Package bus carries keyed messages between this service and the shared
// event stream.
package bus

import "context"

// Message is one inbound record.
type Message struct {
	ID    string
	Key   string
	Value []byte
	// Deliveries counts delivery attempts, 1 on first delivery.
	Deliveries int64
}

// Handler processes one message. Returning nil means the message was either
// handled or is not for this handler.
type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Dispatcher delivers a message to every interested handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// Publisher sends a keyed record to the outbound stream.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

package events

import "context"

// Handler is the function the worker logic implements.
// Return nil to Acknowledge (remove from queue); return an error to Nack
// (retry later).
type Handler func(ctx context.Context, payload []byte) error

type Subscription struct {
	Unsubscribe func() error
}

type Bus interface {
	Subscribe(subject string, group string, handler Handler) (Subscription, error)
	Close() error
}

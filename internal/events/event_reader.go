package events

import (
	"context"
	"encoding/json"
	"log/slog"
)

// All daemon instances share one queue group so each event is handled once.
const queue = "searchsync"

// EventReader fans bus messages out to typed handlers.
type EventReader struct {
	bus    Bus
	config *EventConfig
	log    *slog.Logger
}

func NewEventReader(bus Bus, config *EventConfig, logger *slog.Logger) *EventReader {
	return &EventReader{bus: bus, config: config, log: logger}
}

func (r *EventReader) SubscribeToReindexEvents(handler func(ctx context.Context, event ReindexItemEvent) error) (Subscription, error) {
	return r.bus.Subscribe(r.config.ReindexItem, queue, func(ctx context.Context, payload []byte) error {
		var event ReindexItemEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			// Malformed payloads can never succeed; ack them away.
			r.log.Error("Discarding malformed reindex event", "error", err)
			return nil
		}
		return handler(ctx, event)
	})
}

func (r *EventReader) SubscribeToDeindexEvents(handler func(ctx context.Context, event DeindexItemEvent) error) (Subscription, error) {
	return r.bus.Subscribe(r.config.DeindexItem, queue, func(ctx context.Context, payload []byte) error {
		var event DeindexItemEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			r.log.Error("Discarding malformed deindex event", "error", err)
			return nil
		}
		return handler(ctx, event)
	})
}

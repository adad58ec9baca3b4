package events

import "os"

// ReindexItemEvent asks the daemon to rebuild one item's index document
// from the system of record. Upstream services publish it after a write
// they could not index themselves, or to heal drift.
type ReindexItemEvent struct {
	TypeName string `json:"type_name"`
	ID       string `json:"id"`
}

// DeindexItemEvent asks the daemon to remove one item's index document
// without touching the relational record.
type DeindexItemEvent struct {
	TypeName string `json:"type_name"`
	ID       string `json:"id"`
}

type EventConfig struct {
	ReindexItem string
	DeindexItem string
}

func NewEventConfig() *EventConfig {
	get := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}
	return &EventConfig{
		ReindexItem: get("EVENT_REINDEX_ITEM", "searchsync.reindex_item"),
		DeindexItem: get("EVENT_DEINDEX_ITEM", "searchsync.deindex_item"),
	}
}

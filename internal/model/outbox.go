package model

import "time"

// Outbox ops.
const (
	OutboxUpsert = "UPSERT"
	OutboxDelete = "DELETE"
)

// MaxOutboxAttempts is how many failed passes an event gets before it is
// dead-lettered: skipped by FetchPending until requeued.
const MaxOutboxAttempts = 10

// OutboxEvent records that an entity changed and the search index needs
// to catch up. Rows are written next to the change and drained by the
// search worker.
type OutboxEvent struct {
	ID         int64     `json:"id"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	Op         string    `json:"op"`
	CreatedAt  time.Time `json:"createdAt"`
	Processed  bool      `json:"processed"`
	Attempts   int       `json:"attempts"`
}

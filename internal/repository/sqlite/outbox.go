package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/opsdash/internal/model"
)

func (db *DB) Enqueue(ctx context.Context, event *model.OutboxEvent) error {
	event.CreatedAt = time.Now().UTC()
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO profile_outbox (entity_type, entity_id, op, created_at) VALUES (?, ?, ?, ?)`,
		event.EntityType, event.EntityID, event.Op, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: enqueueing outbox event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading outbox id: %w", err)
	}
	event.ID = id
	return nil
}

// FetchPending returns live events, retries behind fresh ones. SQLite has
// a single writer, so there is no row locking to do here.
func (db *DB) FetchPending(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, entity_type, entity_id, op, processed, attempts, created_at
		 FROM profile_outbox WHERE processed = 0 AND attempts < ?
		 ORDER BY attempts, id LIMIT ?`, model.MaxOutboxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: fetching outbox batch: %w", err)
	}
	defer rows.Close()

	events := []model.OutboxEvent{}
	for rows.Next() {
		var e model.OutboxEvent
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Op, &e.Processed, &e.Attempts, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning outbox row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating outbox rows: %w", err)
	}
	return events, nil
}

func (db *DB) MarkProcessed(ctx context.Context, ids []int64) error {
	if err := db.updateOutbox(ctx, `SET processed = 1`, ids); err != nil {
		return fmt.Errorf("sqlite: marking outbox events processed: %w", err)
	}
	return nil
}

func (db *DB) MarkFailed(ctx context.Context, ids []int64) error {
	if err := db.updateOutbox(ctx, `SET attempts = attempts + 1`, ids); err != nil {
		return fmt.Errorf("sqlite: recording outbox failures: %w", err)
	}
	return nil
}

func (db *DB) RequeueDead(ctx context.Context) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE profile_outbox SET attempts = 0 WHERE processed = 0 AND attempts >= ?`, model.MaxOutboxAttempts)
	if err != nil {
		return 0, fmt.Errorf("sqlite: requeueing dead outbox events: %w", err)
	}
	return res.RowsAffected()
}

// updateOutbox applies set to the rows in ids.
func (db *DB) updateOutbox(ctx context.Context, set string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := db.conn.ExecContext(ctx,
		`UPDATE profile_outbox `+set+` WHERE id IN (`+placeholders+`)`, args...)
	return err
}

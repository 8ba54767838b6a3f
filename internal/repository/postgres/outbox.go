package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sakif/opsdash/internal/model"
)

func (db *DB) Enqueue(ctx context.Context, event *model.OutboxEvent) error {
	event.CreatedAt = time.Now().UTC()
	row := outboxRow{EntityType: event.EntityType, EntityID: event.EntityID, Op: event.Op, CreatedAt: event.CreatedAt}
	if err := db.gorm.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("postgres: enqueueing outbox event: %w", err)
	}
	event.ID = row.ID
	return nil
}

// FetchPending reads without claiming rows. One search worker runs per
// process; rows are marked processed only after the index accepted them.
func (db *DB) FetchPending(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var rows []outboxRow
	err := db.gorm.WithContext(ctx).
		Where("processed = ? AND attempts < ?", false, model.MaxOutboxAttempts).
		Order("attempts ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("postgres: fetching outbox batch: %w", err)
	}
	events := make([]model.OutboxEvent, len(rows))
	for i, r := range rows {
		events[i] = r.toModel()
	}
	return events, nil
}

func (db *DB) MarkProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	err := db.gorm.WithContext(ctx).Model(&outboxRow{}).Where("id IN ?", ids).Update("processed", true).Error
	if err != nil {
		return fmt.Errorf("postgres: marking outbox events processed: %w", err)
	}
	return nil
}

func (db *DB) MarkFailed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	err := db.gorm.WithContext(ctx).Model(&outboxRow{}).Where("id IN ?", ids).
		Update("attempts", gorm.Expr("attempts + 1")).Error
	if err != nil {
		return fmt.Errorf("postgres: recording outbox failures: %w", err)
	}
	return nil
}

func (db *DB) RequeueDead(ctx context.Context) (int64, error) {
	tx := db.gorm.WithContext(ctx).Model(&outboxRow{}).
		Where("processed = ? AND attempts >= ?", false, model.MaxOutboxAttempts).
		Update("attempts", 0)
	if tx.Error != nil {
		return 0, fmt.Errorf("postgres: requeueing dead outbox events: %w", tx.Error)
	}
	return tx.RowsAffected, nil
}

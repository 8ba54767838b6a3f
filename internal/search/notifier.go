package search

import (
	"context"
	"fmt"

	"github.com/sakif/opsdash/internal/model"
	"github.com/sakif/opsdash/internal/repository"
)

const entityProfile = "profile"

// OutboxNotifier queues a reindex for every changed profile.
type OutboxNotifier struct {
	outbox repository.OutboxRepository
}

func NewOutboxNotifier(outbox repository.OutboxRepository) *OutboxNotifier {
	return &OutboxNotifier{outbox: outbox}
}

func (n *OutboxNotifier) ProfileChanged(ctx context.Context, userID string) error {
	ev := &model.OutboxEvent{EntityType: entityProfile, EntityID: userID, Op: model.OutboxUpsert}
	if err := n.outbox.Enqueue(ctx, ev); err != nil {
		return fmt.Errorf("search: enqueueing profile %s: %w", userID, err)
	}
	return nil
}

package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/opsdash/internal/model"
)

func TestOutbox_EnqueueFetchMark(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"u1", "u2", "u3"} {
		require.NoError(t, db.Enqueue(ctx, &model.OutboxEvent{EntityType: "profile", EntityID: id, Op: model.OutboxUpsert}))
	}

	batch, err := db.FetchPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "u1", batch[0].EntityID)
	assert.Equal(t, "u2", batch[1].EntityID)

	require.NoError(t, db.MarkProcessed(ctx, []int64{batch[0].ID, batch[1].ID}))

	rest, err := db.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "u3", rest[0].EntityID)

	assert.NoError(t, db.MarkProcessed(ctx, nil))
}

func TestOutbox_RetriesQueueBehindFreshEvents(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	stuck := &model.OutboxEvent{EntityType: "profile", EntityID: "u1", Op: model.OutboxUpsert}
	require.NoError(t, db.Enqueue(ctx, stuck))
	require.NoError(t, db.MarkFailed(ctx, []int64{stuck.ID}))
	require.NoError(t, db.Enqueue(ctx, &model.OutboxEvent{EntityType: "profile", EntityID: "u2", Op: model.OutboxUpsert}))

	batch, err := db.FetchPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "u2", batch[0].EntityID)

	batch, err = db.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "u1", batch[1].EntityID)
	assert.Equal(t, 1, batch[1].Attempts)

	assert.NoError(t, db.MarkFailed(ctx, nil))
}

func TestOutbox_DeadLetterAndRequeue(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	e := &model.OutboxEvent{EntityType: "profile", EntityID: "u1", Op: model.OutboxUpsert}
	require.NoError(t, db.Enqueue(ctx, e))
	for i := 0; i < model.MaxOutboxAttempts; i++ {
		require.NoError(t, db.MarkFailed(ctx, []int64{e.ID}))
	}

	batch, err := db.FetchPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, batch)

	n, err := db.RequeueDead(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	batch, err = db.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, 0, batch[0].Attempts)
}

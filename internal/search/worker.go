package search

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"

	"github.com/sakif/opsdash/internal/apperror"
	"github.com/sakif/opsdash/internal/metrics"
	"github.com/sakif/opsdash/internal/model"
	"github.com/sakif/opsdash/internal/repository"
)

const (
	defaultInterval  = time.Second
	defaultBatchSize = 200
)

// Source is where documents are built from.
type Source interface {
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	ListUserSkills(ctx context.Context, userID string) ([]model.Skill, error)
}

// Worker drains the outbox into the index on a ticker. Events whose
// document fails to index stay unprocessed with one more attempt counted.
// FetchPending serves them after fresh events, and after
// model.MaxOutboxAttempts failures they are dead-lettered until an operator
// requeues them.
type Worker struct {
	outbox    repository.OutboxRepository
	source    Source
	es        *es.Client
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

func NewWorker(outbox repository.OutboxRepository, source Source, client *es.Client, logger *slog.Logger) *Worker {
	return &Worker{
		outbox:    outbox,
		source:    source,
		es:        client,
		logger:    logger,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
	}
}

// Run blocks until ctx is cancelled. The index is created on the first
// tick that can reach the cluster.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	ready := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !ready {
				if err := EnsureIndex(ctx, w.es); err != nil {
					w.logger.Warn("search index not ready", slog.String("error", err.Error()))
					continue
				}
				ready = true
			}
			if _, err := w.ProcessOnce(ctx); err != nil {
				w.logger.Error("search worker pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ProcessOnce indexes one batch and returns how many events it marked
// processed.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	events, err := w.outbox.FetchPending(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("search: fetching outbox: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	// Several events for one profile need only one document.
	byEntity := make(map[string][]int64)
	attempts := make(map[int64]int, len(events))
	var order []string
	var done, failed []int64
	for _, e := range events {
		attempts[e.ID] = e.Attempts
		if e.EntityType != entityProfile {
			w.logger.Warn("skipping outbox event", slog.Int64("id", e.ID), slog.String("entityType", e.EntityType))
			done = append(done, e.ID)
			continue
		}
		if _, ok := byEntity[e.EntityID]; !ok {
			order = append(order, e.EntityID)
		}
		byEntity[e.EntityID] = append(byEntity[e.EntityID], e.ID)
	}

	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:     w.es,
		FlushBytes: 5 << 20,
		NumWorkers: 2,
	})
	if err != nil {
		return 0, fmt.Errorf("search: creating bulk indexer: %w", err)
	}

	var mu sync.Mutex
	fail := func(ids []int64) {
		mu.Lock()
		failed = append(failed, ids...)
		mu.Unlock()
		metrics.FailedIndexEvents.Add(float64(len(ids)))
	}
	for _, userID := range order {
		ids := byEntity[userID]
		action, body, err := w.document(ctx, userID)
		if err != nil {
			fail(ids)
			w.logger.Error("building profile document failed",
				slog.String("userID", userID),
				slog.String("error", err.Error()),
			)
			continue
		}

		item := esutil.BulkIndexerItem{
			Action:     action,
			Index:      ProfilesIndex,
			DocumentID: userID,
			OnSuccess: func(context.Context, esutil.BulkIndexerItem, esutil.BulkIndexerResponseItem) {
				mu.Lock()
				done = append(done, ids...)
				mu.Unlock()
				metrics.IndexedEvents.Add(float64(len(ids)))
			},
			OnFailure: func(_ context.Context, _ esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				// Deleting a document that was never indexed is fine.
				if err == nil && action == "delete" && res.Status == 404 {
					mu.Lock()
					done = append(done, ids...)
					mu.Unlock()
					return
				}
				fail(ids)
				w.logger.Error("indexing profile failed",
					slog.String("userID", userID),
					slog.String("error", failureMessage(res, err)),
				)
			},
		}
		if body != nil {
			item.Body = bytes.NewReader(body)
		}
		if err := bi.Add(ctx, item); err != nil {
			fail(ids)
			w.logger.Error("queueing profile document failed", slog.String("userID", userID), slog.String("error", err.Error()))
		}
	}

	if err := bi.Close(ctx); err != nil {
		return 0, fmt.Errorf("search: flushing bulk indexer: %w", err)
	}
	stats := bi.Stats()
	w.logger.Debug("search bulk pass",
		slog.Uint64("flushed", stats.NumFlushed),
		slog.Uint64("failed", stats.NumFailed),
	)

	if err := w.outbox.MarkProcessed(ctx, done); err != nil {
		return 0, fmt.Errorf("search: marking outbox processed: %w", err)
	}
	if err := w.outbox.MarkFailed(ctx, failed); err != nil {
		return len(done), fmt.Errorf("search: recording outbox failures: %w", err)
	}
	var dead []int64
	for _, id := range failed {
		if attempts[id]+1 >= model.MaxOutboxAttempts {
			dead = append(dead, id)
		}
	}
	if len(dead) > 0 {
		metrics.DeadLetteredEvents.Add(float64(len(dead)))
		w.logger.Warn("outbox events dead-lettered",
			slog.Any("ids", dead),
			slog.Int("attempts", model.MaxOutboxAttempts),
		)
	}
	return len(done), nil
}

// document returns the bulk action for a user: index their profile, or
// delete the document when the profile is gone.
func (w *Worker) document(ctx context.Context, userID string) (string, []byte, error) {
	profile, err := w.source.GetProfile(ctx, userID)
	if err != nil {
		if apperror.Is(err, apperror.ErrNotFound) {
			return "delete", nil, nil
		}
		return "", nil, err
	}
	skills, err := w.source.ListUserSkills(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	body, err := BuildProfileDoc(*profile, skills)
	if err != nil {
		return "", nil, err
	}
	return "index", body, nil
}

func failureMessage(res esutil.BulkIndexerResponseItem, err error) string {
	switch {
	case err != nil:
		return err.Error()
	case res.Error.Reason != "":
		return fmt.Sprintf("%s: %s", res.Error.Type, res.Error.Reason)
	default:
		return fmt.Sprintf("status=%d failed to index", res.Status)
	}
}

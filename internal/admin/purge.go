// Package admin holds one-shot maintenance operations run from the CLI.
package admin

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/cristianoliveira/freshshell/internal/logging"
)

// TeamsCollection is the collection purged by PurgeTeams.
const TeamsCollection = "teams"

// DefaultConcurrency bounds in-flight deletes.
const DefaultConcurrency = 8

// DocumentStore lists and deletes documents by id.
type DocumentStore interface {
	ListIDs(ctx context.Context, collection string) ([]string, error)
	Delete(ctx context.Context, collection, id string) error
}

// PurgeResult reports what a purge did.
type PurgeResult struct {
	Listed  int
	Deleted int
}

// Purge deletes every document of collection concurrently. The first delete
// failure cancels the remaining deletes and is returned.
func Purge(ctx context.Context, store DocumentStore, collection string, concurrency int, logger logging.Logger) (PurgeResult, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	ids, err := store.ListIDs(ctx, collection)
	if err != nil {
		return PurgeResult{}, fmt.Errorf("list %s: %w", collection, err)
	}
	logger.Info("purging collection", "collection", collection, "documents", len(ids))

	var deleted atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := store.Delete(gctx, collection, id); err != nil {
				return fmt.Errorf("delete %s/%s: %w", collection, id, err)
			}
			deleted.Add(1)
			return nil
		})
	}
	err = g.Wait()

	res := PurgeResult{Listed: len(ids), Deleted: int(deleted.Load())}
	if err != nil {
		logger.Error("purge failed", "collection", collection, "deleted", res.Deleted, "error", err)
		return res, err
	}
	logger.Info("purge complete", "collection", collection, "deleted", res.Deleted)
	return res, nil
}

// PurgeTeams deletes every document of the teams collection.
func PurgeTeams(ctx context.Context, store DocumentStore, logger logging.Logger) (PurgeResult, error) {
	return Purge(ctx, store, TeamsCollection, DefaultConcurrency, logger)
}

// Package queue exposes the records waiting for upload.
//
// There is no queue table: pending work is exactly the set of capture records
// whose synced flag is clear, read back from the store on every call. Records
// are grouped by session because the server accepts one batch per session.
package queue

import (
	"context"
	"fmt"

	"github.com/fieldcount/countsync/internal/schema"
)

// Store is the subset of the local store the queue reads.
type Store interface {
	PendingInventory(ctx context.Context) ([]schema.InventoryRecord, error)
	PendingAssets(ctx context.Context) ([]schema.AssetRecord, error)
	PendingNotFound(ctx context.Context) ([]schema.NotFoundRecord, error)
	PendingTransfers(ctx context.Context) ([]schema.TransferRecord, error)
	PendingCounts(ctx context.Context) (map[schema.RecordKind]int, error)
}

// Group is the pending records of one session.
type Group[T any] struct {
	SessionID int64
	Records   []T
}

// GroupBySession splits records into per-session groups, ordered by first
// appearance. Records keep their relative order within a group.
func GroupBySession[T any](records []T, sessionOf func(*T) int64) []Group[T] {
	var groups []Group[T]
	index := make(map[int64]int)
	for i := range records {
		sid := sessionOf(&records[i])
		gi, ok := index[sid]
		if !ok {
			gi = len(groups)
			index[sid] = gi
			groups = append(groups, Group[T]{SessionID: sid})
		}
		groups[gi].Records = append(groups[gi].Records, records[i])
	}
	return groups
}

// Queue is a read-only view of pending work.
type Queue struct {
	store Store
}

// New creates a queue view over the store.
func New(store Store) *Queue {
	return &Queue{store: store}
}

func load[T any](ctx context.Context, kind schema.RecordKind, fetch func(context.Context) ([]T, error), sessionOf func(*T) int64) ([]Group[T], error) {
	records, err := fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending %s records: %w", kind, err)
	}
	return GroupBySession(records, sessionOf), nil
}

// Inventory returns pending inventory records grouped by session.
func (q *Queue) Inventory(ctx context.Context) ([]Group[schema.InventoryRecord], error) {
	return load(ctx, schema.KindInventory, q.store.PendingInventory,
		func(r *schema.InventoryRecord) int64 { return r.SessionID })
}

// Assets returns pending asset records grouped by session.
func (q *Queue) Assets(ctx context.Context) ([]Group[schema.AssetRecord], error) {
	return load(ctx, schema.KindAsset, q.store.PendingAssets,
		func(r *schema.AssetRecord) int64 { return r.SessionID })
}

// NotFound returns pending not-found records grouped by session.
func (q *Queue) NotFound(ctx context.Context) ([]Group[schema.NotFoundRecord], error) {
	return load(ctx, schema.KindNotFound, q.store.PendingNotFound,
		func(r *schema.NotFoundRecord) int64 { return r.SessionID })
}

// Transfers returns pending transfer records grouped by session.
func (q *Queue) Transfers(ctx context.Context) ([]Group[schema.TransferRecord], error) {
	return load(ctx, schema.KindTransfer, q.store.PendingTransfers,
		func(r *schema.TransferRecord) int64 { return r.SessionID })
}

// Counts returns the number of pending records per kind.
func (q *Queue) Counts(ctx context.Context) (map[schema.RecordKind]int, error) {
	counts, err := q.store.PendingCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending records: %w", err)
	}
	return counts, nil
}

// Total sums a Counts result.
func Total(counts map[schema.RecordKind]int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}

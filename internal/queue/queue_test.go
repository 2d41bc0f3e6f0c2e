package queue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldcount/countsync/internal/schema"
	"github.com/fieldcount/countsync/internal/store"
)

func TestGroupBySession(t *testing.T) {
	type rec struct {
		session int64
		name    string
	}
	records := []rec{{2, "a"}, {1, "b"}, {2, "c"}, {3, "d"}, {1, "e"}}

	groups := GroupBySession(records, func(r *rec) int64 { return r.session })

	require.Len(t, groups, 3)
	assert.Equal(t, int64(2), groups[0].SessionID)
	assert.Equal(t, []rec{{2, "a"}, {2, "c"}}, groups[0].Records)
	assert.Equal(t, int64(1), groups[1].SessionID)
	assert.Equal(t, []rec{{1, "b"}, {1, "e"}}, groups[1].Records)
	assert.Equal(t, int64(3), groups[2].SessionID)
	assert.Len(t, groups[2].Records, 1)

	assert.Empty(t, GroupBySession(nil, func(r *rec) int64 { return r.session }))
}

func TestQueue_GroupsNeverMixSessions(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())

	ctx := context.Background()
	for _, sid := range []int64{10, 20, 10, 30, 20} {
		require.NoError(t, db.InsertAssetRecord(ctx, &schema.AssetRecord{Meta: schema.Meta{SessionID: sid}, Barcode: "A"}))
	}
	require.NoError(t, db.InsertNotFound(ctx, &schema.NotFoundRecord{Meta: schema.Meta{SessionID: 10}, Barcode: "NF"}))

	q := New(db)
	groups, err := q.Assets(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 3)
	for _, g := range groups {
		for _, r := range g.Records {
			assert.Equal(t, g.SessionID, r.SessionID)
		}
	}
	assert.Len(t, groups[0].Records, 2)

	inv, err := q.Inventory(ctx)
	require.NoError(t, err)
	assert.Empty(t, inv)

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, counts[schema.KindAsset])
	assert.Equal(t, 1, counts[schema.KindNotFound])
	assert.Equal(t, 6, Total(counts))
}

type failingStore struct{ Store }

func (failingStore) PendingTransfers(context.Context) ([]schema.TransferRecord, error) {
	return nil, errors.New("disk I/O error")
}

func TestQueue_StoreFailure(t *testing.T) {
	_, err := New(failingStore{}).Transfers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pending transfer records")
}

package rfid

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldcount/countsync/internal/schema"
	"github.com/fieldcount/countsync/internal/store"
)

func setupStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "rfid.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())

	require.NoError(t, db.ReplaceProducts(context.Background(), 2, []schema.Product{
		{ID: 40, CompanyID: 2, Barcode: "E2801160600002", Description: "Laptop"},
	}))
	return db
}

func TestProcess_IdempotentUpsert(t *testing.T) {
	db := setupStore(t)
	m := NewMatcher(db, nil)
	ctx := context.Background()

	first, err := m.Process(ctx, Read{SessionID: 1, EPC: "AAA1", RSSI: -70})
	require.NoError(t, err)
	assert.Equal(t, 1, first.ReadCount)

	second, err := m.Process(ctx, Read{SessionID: 1, EPC: "aaa1", RSSI: -50})
	require.NoError(t, err)
	assert.Equal(t, 2, second.ReadCount)
	assert.Equal(t, first.ID, second.ID)

	_, err = m.Process(ctx, Read{SessionID: 1, EPC: "BBB2"})
	require.NoError(t, err)

	reads, err := db.ListTagReads(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, reads, 2)

	// Same EPC in another session is a separate row.
	other, err := m.Process(ctx, Read{SessionID: 2, EPC: "AAA1"})
	require.NoError(t, err)
	assert.Equal(t, 1, other.ReadCount)

	stats := m.Stats()
	assert.Equal(t, int64(4), stats.Reads)
	assert.Equal(t, int64(3), stats.Inserted)
}

func TestProcess_MatchesAnyCompany(t *testing.T) {
	db := setupStore(t)
	m := NewMatcher(db, nil)
	ctx := context.Background()

	tag, err := m.Process(ctx, Read{SessionID: 9, EPC: " e2801160600002 "})
	require.NoError(t, err)
	assert.True(t, tag.Matched)
	require.NotNil(t, tag.MatchedProductID)
	assert.Equal(t, int64(40), *tag.MatchedProductID)

	unmatched, err := m.Process(ctx, Read{SessionID: 9, EPC: "FFFF"})
	require.NoError(t, err, "an unmatched read is still recorded")
	assert.False(t, unmatched.Matched)

	assert.Equal(t, int64(1), m.Stats().Matched)
}

func TestProcess_MatchesLowercaseCatalogBarcode(t *testing.T) {
	db := setupStore(t)
	ctx := context.Background()
	require.NoError(t, db.ReplaceProducts(ctx, 3, []schema.Product{
		{ID: 77, CompanyID: 3, Barcode: "e2801160600099", Description: "Pallet"},
	}))
	m := NewMatcher(db, nil)

	tag, err := m.Process(ctx, Read{SessionID: 4, EPC: "e2801160600099"})
	require.NoError(t, err)
	assert.Equal(t, "E2801160600099", tag.EPC)
	assert.True(t, tag.Matched)
	require.NotNil(t, tag.MatchedProductID)
	assert.Equal(t, int64(77), *tag.MatchedProductID)
}

type brokenLookup struct{ *store.DB }

func (brokenLookup) FindProductAnyCompany(context.Context, string) (*schema.Product, error) {
	return nil, errors.New("database is locked")
}

func TestProcess_LookupFailureDoesNotReject(t *testing.T) {
	db := setupStore(t)
	m := NewMatcher(brokenLookup{db}, nil)

	tag, err := m.Process(context.Background(), Read{SessionID: 1, EPC: "E2801160600002"})
	require.NoError(t, err)
	assert.False(t, tag.Matched)
}

func TestRun_ConsumesInOrder(t *testing.T) {
	db := setupStore(t)

	var mu sync.Mutex
	var seen []int
	done := make(chan struct{})
	m := NewMatcher(db, &Config{
		BufferSize: 8,
		OnRead: func(tag schema.TagRead) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, tag.ReadCount)
			if len(seen) == 5 {
				close(done)
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	for i := 0; i < 5; i++ {
		require.NoError(t, m.Submit(ctx, Read{SessionID: 1, EPC: "CAFE"}))
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reads")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3, 4, 5}, seen)
}

func TestTrySubmit_Full(t *testing.T) {
	m := NewMatcher(nil, &Config{BufferSize: 1})
	require.NoError(t, m.TrySubmit(Read{SessionID: 1, EPC: "A"}))
	assert.ErrorIs(t, m.TrySubmit(Read{SessionID: 1, EPC: "B"}), ErrBufferFull)
	assert.Equal(t, 1, m.Pending())
	assert.Equal(t, int64(1), m.Stats().Dropped)
}

func TestWebSocketSource(t *testing.T) {
	db := setupStore(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		for _, f := range []Frame{{EPC: "E2801160600002", RSSI: -40}, {EPC: ""}, {EPC: "DEAD", RSSI: -80}} {
			if err := wsjson.Write(r.Context(), conn, f); err != nil {
				return
			}
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	processed := make(chan schema.TagRead, 4)
	m := NewMatcher(db, &Config{OnRead: func(tag schema.TagRead) { processed <- tag }})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	src := NewWebSocketSource("ws"+strings.TrimPrefix(srv.URL, "http"), 3, m)
	src.ReconnectDelay = time.Hour
	go src.Run(ctx)

	var got []schema.TagRead
	for len(got) < 2 {
		select {
		case tag := <-processed:
			got = append(got, tag)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out, got %d reads", len(got))
		}
	}

	assert.Equal(t, "E2801160600002", got[0].EPC)
	assert.True(t, got[0].Matched)
	assert.Equal(t, "DEAD", got[1].EPC)
	assert.Equal(t, int64(3), got[1].SessionID)
}

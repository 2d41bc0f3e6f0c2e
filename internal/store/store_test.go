package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fieldcount/countsync/internal/schema"
)

// setupTestDB opens a fresh store with the schema applied.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return db
}

func products(companyID int64, n int, firstID int64) []schema.Product {
	out := make([]schema.Product, n)
	for i := range out {
		out[i] = schema.Product{
			ID:          firstID + int64(i),
			CompanyID:   companyID,
			Barcode:     fmt.Sprintf("75%07d", firstID+int64(i)),
			Description: fmt.Sprintf("Product %d", firstID+int64(i)),
		}
	}
	return out
}

func TestInitSchema_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	if err := db.InitSchema(); err != nil {
		t.Errorf("Second InitSchema() failed: %v", err)
	}

	tables := []string{
		"companies", "branches", "products", "lots", "sessions",
		"inventory_records", "asset_records", "asset_photos",
		"not_found_records", "transfer_records", "tag_reads", "settings",
	}
	for _, table := range tables {
		var count int
		err := db.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}
}

func TestReplaceProducts_ScopedToCompany(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.ReplaceProducts(ctx, 1, products(1, 5, 1)); err != nil {
		t.Fatalf("ReplaceProducts(1) failed: %v", err)
	}
	if err := db.ReplaceProducts(ctx, 2, products(2, 3, 100)); err != nil {
		t.Fatalf("ReplaceProducts(2) failed: %v", err)
	}

	// Replacing company 1 with a smaller set leaves company 2 alone.
	if err := db.ReplaceProducts(ctx, 1, products(1, 2, 10)); err != nil {
		t.Fatalf("ReplaceProducts(1) second call failed: %v", err)
	}

	got, err := db.ListProducts(ctx, 1)
	if err != nil {
		t.Fatalf("ListProducts() failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != 10 || got[1].ID != 11 {
		t.Errorf("company 1 products = %+v, want ids [10 11]", got)
	}

	n, err := db.CountProducts(ctx, 2)
	if err != nil {
		t.Fatalf("CountProducts() failed: %v", err)
	}
	if n != 3 {
		t.Errorf("company 2 count = %d, want 3", n)
	}
}

func TestReplaceProducts_AtomicOnFailure(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.ReplaceProducts(ctx, 1, products(1, 4, 1)); err != nil {
		t.Fatalf("ReplaceProducts() failed: %v", err)
	}

	tests := []struct {
		name string
		rows []schema.Product
	}{
		{
			name: "insert fails mid-way",
			rows: append(products(1, 3, 50), schema.Product{ID: 50, CompanyID: 1, Barcode: "dup"}),
		},
		{
			name: "invalid row mid-way",
			rows: append(products(1, 3, 60), schema.Product{ID: 70, CompanyID: 1, Barcode: ""}),
		},
		{
			name: "row from another company",
			rows: append(products(1, 2, 80), schema.Product{ID: 90, CompanyID: 2, Barcode: "x"}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := db.ReplaceProducts(ctx, 1, tt.rows); err == nil {
				t.Fatal("ReplaceProducts() expected error, got nil")
			}

			got, err := db.ListProducts(ctx, 1)
			if err != nil {
				t.Fatalf("ListProducts() failed: %v", err)
			}
			if len(got) != 4 {
				t.Fatalf("after failed replace got %d products, want the previous 4", len(got))
			}
			for i, p := range got {
				if p.ID != int64(i+1) {
					t.Errorf("product[%d].ID = %d, want %d", i, p.ID, i+1)
				}
			}
		})
	}
}

func TestReplaceBranches_FillsCompany(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	err := db.ReplaceBranches(ctx, 3, []schema.Branch{{ID: 1, Name: "Centro"}, {ID: 2, Name: "Norte"}})
	if err != nil {
		t.Fatalf("ReplaceBranches() failed: %v", err)
	}
	got, err := db.ListBranches(ctx, 3)
	if err != nil {
		t.Fatalf("ListBranches() failed: %v", err)
	}
	if len(got) != 2 || got[0].CompanyID != 3 {
		t.Errorf("branches = %+v, want 2 rows for company 3", got)
	}
}

func TestFindProduct_LowestIDWins(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	err := db.ReplaceProducts(ctx, 1, []schema.Product{
		{ID: 9, CompanyID: 1, Barcode: "750123456", Description: "newer"},
		{ID: 4, CompanyID: 1, Barcode: "750123456", Description: "older"},
	})
	if err != nil {
		t.Fatalf("ReplaceProducts() failed: %v", err)
	}

	p, err := db.FindProduct(ctx, 1, "750123456")
	if err != nil {
		t.Fatalf("FindProduct() failed: %v", err)
	}
	if p.ID != 4 {
		t.Errorf("FindProduct() id = %d, want 4", p.ID)
	}

	if _, err := db.FindProduct(ctx, 2, "750123456"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindProduct() other company error = %v, want ErrNotFound", err)
	}

	p, err = db.FindProductAnyCompany(ctx, "750123456")
	if err != nil || p.ID != 4 {
		t.Errorf("FindProductAnyCompany() = %+v, %v", p, err)
	}
}

func TestFindProductAnyCompany_IgnoresCase(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.ReplaceProducts(ctx, 3, []schema.Product{
		{ID: 5, CompanyID: 3, Barcode: "ab-1001", Description: "lower"},
		{ID: 8, CompanyID: 3, Barcode: "AB-1001", Description: "upper"},
	}); err != nil {
		t.Fatalf("ReplaceProducts() failed: %v", err)
	}

	tests := []struct {
		barcode string
		wantID  int64
	}{
		{"ab-1001", 5},
		{"AB-1001", 8},
		{"Ab-1001", 5}, // no exact match, lowest id
	}
	for _, tt := range tests {
		p, err := db.FindProductAnyCompany(ctx, tt.barcode)
		if err != nil {
			t.Fatalf("FindProductAnyCompany(%q) failed: %v", tt.barcode, err)
		}
		if p.ID != tt.wantID {
			t.Errorf("FindProductAnyCompany(%q) id = %d, want %d", tt.barcode, p.ID, tt.wantID)
		}
	}

	if err := db.ReplaceProducts(ctx, 3, []schema.Product{{ID: 5, CompanyID: 3, Barcode: "e2801160600099"}}); err != nil {
		t.Fatalf("ReplaceProducts() failed: %v", err)
	}
	p, err := db.FindProductAnyCompany(ctx, "E2801160600099")
	if err != nil || p.ID != 5 {
		t.Errorf("FindProductAnyCompany(upper) = %+v, %v, want lowercase product 5", p, err)
	}
}

func TestListLotsByBarcode(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	productID := int64(7)
	soon := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	later := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := db.ReplaceProducts(ctx, 1, []schema.Product{{ID: 7, CompanyID: 1, Barcode: "750123456"}}); err != nil {
		t.Fatalf("ReplaceProducts() failed: %v", err)
	}
	err := db.ReplaceLots(ctx, 1, []schema.Lot{
		{ID: 1, CompanyID: 1, Barcode: "750123456", Code: "L-LATE", Expiry: &later},
		{ID: 2, CompanyID: 1, ProductID: &productID, Code: "L-SOON", Expiry: &soon},
		{ID: 3, CompanyID: 1, Barcode: "999", Code: "L-OTHER"},
	})
	if err != nil {
		t.Fatalf("ReplaceLots() failed: %v", err)
	}

	lots, err := db.ListLotsByBarcode(ctx, 1, "750123456")
	if err != nil {
		t.Fatalf("ListLotsByBarcode() failed: %v", err)
	}
	if len(lots) != 2 {
		t.Fatalf("got %d lots, want 2", len(lots))
	}
	if lots[0].Code != "L-SOON" || lots[1].Code != "L-LATE" {
		t.Errorf("lots = %s, %s; want soonest expiry first", lots[0].Code, lots[1].Code)
	}
	if lots[0].Expiry == nil || !lots[0].Expiry.Equal(soon) {
		t.Errorf("expiry = %v, want %v", lots[0].Expiry, soon)
	}
}

func TestReplaceSessions_LeavesRecords(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	err := db.ReplaceSessions(ctx, schema.SessionInventory, []schema.Session{
		{ID: 1, CompanyID: 1, Name: "Q1"},
		{ID: 2, CompanyID: 1, Name: "Q2"},
	})
	if err != nil {
		t.Fatalf("ReplaceSessions() failed: %v", err)
	}
	if err := db.ReplaceSessions(ctx, schema.SessionAsset, []schema.Session{{ID: 1, CompanyID: 1, Name: "Assets"}}); err != nil {
		t.Fatalf("ReplaceSessions(asset) failed: %v", err)
	}

	rec := &schema.InventoryRecord{Meta: schema.Meta{SessionID: 1}, Barcode: "750123456", Quantity: 1}
	if err := db.InsertInventoryRecord(ctx, rec); err != nil {
		t.Fatalf("InsertInventoryRecord() failed: %v", err)
	}

	if err := db.ReplaceSessions(ctx, schema.SessionInventory, []schema.Session{{ID: 2, CompanyID: 1, Name: "Q2"}}); err != nil {
		t.Fatalf("ReplaceSessions() second call failed: %v", err)
	}

	inv, err := db.ListSessions(ctx, schema.SessionInventory)
	if err != nil {
		t.Fatalf("ListSessions() failed: %v", err)
	}
	if len(inv) != 1 || inv[0].ID != 2 {
		t.Errorf("inventory sessions = %+v, want only id 2", inv)
	}
	if _, err := db.GetSession(ctx, schema.SessionAsset, 1); err != nil {
		t.Errorf("asset session should survive inventory replace: %v", err)
	}
	if _, err := db.GetSession(ctx, schema.SessionInventory, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSession() error = %v, want ErrNotFound", err)
	}

	recs, err := db.ListInventoryRecords(ctx, 1)
	if err != nil {
		t.Fatalf("ListInventoryRecords() failed: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("records for replaced session = %d, want 1", len(recs))
	}
}

func TestInsertInventoryRecord_Pending(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	expiry := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	rec := &schema.InventoryRecord{
		Meta:       schema.Meta{SessionID: 5, UserID: "op-1"},
		Barcode:    "750123456",
		Quantity:   12,
		Lot:        "L-01",
		Expiry:     &expiry,
		Multiplier: 6,
	}
	if err := db.InsertInventoryRecord(ctx, rec); err != nil {
		t.Fatalf("InsertInventoryRecord() failed: %v", err)
	}
	if rec.LocalID == 0 || rec.ClientID == "" {
		t.Fatalf("insert should assign local and client ids, got %+v", rec.Meta)
	}

	got, err := db.GetInventoryRecord(ctx, rec.LocalID)
	if err != nil {
		t.Fatalf("GetInventoryRecord() failed: %v", err)
	}
	if got.Synced || got.ServerID != nil {
		t.Errorf("new record synced=%v server_id=%v, want unsynced without server id", got.Synced, got.ServerID)
	}
	if got.Quantity != 12 || got.Lot != "L-01" || got.Multiplier != 6 || got.UserID != "op-1" {
		t.Errorf("record round trip mismatch: %+v", got)
	}
	if got.Expiry == nil || !got.Expiry.Equal(expiry) {
		t.Errorf("Expiry = %v, want %v", got.Expiry, expiry)
	}

	pending, err := db.PendingInventory(ctx)
	if err != nil {
		t.Fatalf("PendingInventory() failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1", len(pending))
	}
}

func TestInsertInventoryRecord_RejectsInvalid(t *testing.T) {
	db := setupTestDB(t)
	rec := &schema.InventoryRecord{Meta: schema.Meta{SessionID: 1}, Barcode: " "}
	if err := db.InsertInventoryRecord(context.Background(), rec); err == nil {
		t.Fatal("InsertInventoryRecord() expected error for blank barcode")
	}
	n, _ := db.count(context.Background(), `SELECT COUNT(*) FROM inventory_records`)
	if n != 0 {
		t.Errorf("rows = %d, want 0", n)
	}
}

func TestMarkSynced(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	var rows []SyncedRow
	for i := 0; i < 3; i++ {
		rec := &schema.NotFoundRecord{Meta: schema.Meta{SessionID: 1}, Barcode: fmt.Sprintf("NF-%d", i)}
		if err := db.InsertNotFound(ctx, rec); err != nil {
			t.Fatalf("InsertNotFound() failed: %v", err)
		}
		serverID := int64(1000 + i)
		rows = append(rows, SyncedRow{LocalID: rec.LocalID, Revision: rec.Revision, ServerID: &serverID})
	}

	marked, err := db.MarkSynced(ctx, schema.KindNotFound, rows[:2])
	if err != nil {
		t.Fatalf("MarkSynced() failed: %v", err)
	}
	if marked != 2 {
		t.Errorf("marked = %d, want 2", marked)
	}

	// Already synced rows are never marked twice.
	marked, err = db.MarkSynced(ctx, schema.KindNotFound, rows)
	if err != nil {
		t.Fatalf("MarkSynced() second call failed: %v", err)
	}
	if marked != 1 {
		t.Errorf("second marked = %d, want 1", marked)
	}

	pending, err := db.PendingNotFound(ctx)
	if err != nil {
		t.Fatalf("PendingNotFound() failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}

	recs, err := db.ListNotFound(ctx, 1)
	if err != nil {
		t.Fatalf("ListNotFound() failed: %v", err)
	}
	for i, r := range recs {
		if r.ServerID == nil || *r.ServerID != int64(1000+i) {
			t.Errorf("record %d server id = %v, want %d", i, r.ServerID, 1000+i)
		}
	}
}

func TestMarkSynced_StaleRevisionStaysPending(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	rec := &schema.InventoryRecord{Meta: schema.Meta{SessionID: 1}, Barcode: "750123456", Quantity: 1}
	if err := db.InsertInventoryRecord(ctx, rec); err != nil {
		t.Fatalf("InsertInventoryRecord() failed: %v", err)
	}
	uploaded := SyncedRow{LocalID: rec.LocalID, Revision: rec.Revision}

	// Edited while the batch was in flight.
	rec.Quantity = 3
	if err := db.UpdateInventoryRecord(ctx, rec); err != nil {
		t.Fatalf("UpdateInventoryRecord() failed: %v", err)
	}

	marked, err := db.MarkSynced(ctx, schema.KindInventory, []SyncedRow{uploaded})
	if err != nil {
		t.Fatalf("MarkSynced() failed: %v", err)
	}
	if marked != 0 {
		t.Errorf("marked = %d, want 0 for a stale revision", marked)
	}

	pending, _ := db.PendingInventory(ctx)
	if len(pending) != 1 || pending[0].Quantity != 3 {
		t.Errorf("pending = %+v, want the edited record", pending)
	}
}

func TestUpdateAssetRecord_ReentersPending(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	rec := &schema.AssetRecord{Meta: schema.Meta{SessionID: 2}, Barcode: "A-100", Status: "good"}
	if err := db.InsertAssetRecord(ctx, rec); err != nil {
		t.Fatalf("InsertAssetRecord() failed: %v", err)
	}
	serverID := int64(77)
	if _, err := db.MarkSynced(ctx, schema.KindAsset, []SyncedRow{{LocalID: rec.LocalID, Revision: 0, ServerID: &serverID}}); err != nil {
		t.Fatalf("MarkSynced() failed: %v", err)
	}

	got, err := db.GetAssetRecord(ctx, rec.LocalID)
	if err != nil {
		t.Fatalf("GetAssetRecord() failed: %v", err)
	}
	got.Status = "damaged"
	if err := db.UpdateAssetRecord(ctx, got); err != nil {
		t.Fatalf("UpdateAssetRecord() failed: %v", err)
	}

	pending, err := db.PendingAssets(ctx)
	if err != nil {
		t.Fatalf("PendingAssets() failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	if pending[0].ServerID == nil || *pending[0].ServerID != 77 {
		t.Errorf("edited record should keep server id 77, got %v", pending[0].ServerID)
	}
	if pending[0].Revision != 1 || pending[0].Status != "damaged" {
		t.Errorf("pending[0] = %+v, want revision 1 status damaged", pending[0])
	}

	if err := db.UpdateAssetRecord(ctx, &schema.AssetRecord{Meta: schema.Meta{LocalID: 999, SessionID: 2, ClientID: "x", CapturedAt: time.Now()}, Barcode: "A"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateAssetRecord() missing row error = %v, want ErrNotFound", err)
	}
}

func TestAssetPhotos(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	rec := &schema.AssetRecord{
		Meta:    schema.Meta{SessionID: 2},
		Barcode: "A-1",
		Photos:  []string{"/sdcard/a1-front.jpg", "/sdcard/a1-back.jpg"},
	}
	if err := db.InsertAssetRecord(ctx, rec); err != nil {
		t.Fatalf("InsertAssetRecord() failed: %v", err)
	}

	pending, err := db.PendingPhotos(ctx)
	if err != nil {
		t.Fatalf("PendingPhotos() failed: %v", err)
	}
	if len(pending) != 2 || pending[0].RecordServerID != nil {
		t.Fatalf("pending photos = %+v, want 2 without server id", pending)
	}

	if err := db.MarkPhotoUploaded(ctx, pending[0].ID, time.Now()); err != nil {
		t.Fatalf("MarkPhotoUploaded() failed: %v", err)
	}
	pending, _ = db.PendingPhotos(ctx)
	if len(pending) != 1 {
		t.Errorf("pending photos = %d, want 1", len(pending))
	}

	if err := db.DeleteRecord(ctx, schema.KindAsset, rec.LocalID); err != nil {
		t.Fatalf("DeleteRecord() failed: %v", err)
	}
	photos, _ := db.ListPhotos(ctx, rec.LocalID)
	if len(photos) != 0 {
		t.Errorf("photos after delete = %d, want 0", len(photos))
	}
}

func TestUpsertTagRead_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := &schema.TagRead{SessionID: 1, EPC: "e200abc", RSSI: -60}
	if err := db.UpsertTagRead(ctx, first); err != nil {
		t.Fatalf("UpsertTagRead() failed: %v", err)
	}
	if first.ReadCount != 1 || first.EPC != "E200ABC" {
		t.Errorf("first read = %+v, want count 1 and normalized epc", first)
	}

	again := &schema.TagRead{SessionID: 1, EPC: "E200ABC", RSSI: -42}
	if err := db.UpsertTagRead(ctx, again); err != nil {
		t.Fatalf("UpsertTagRead() second call failed: %v", err)
	}
	if again.ReadCount != 2 || again.ID != first.ID {
		t.Errorf("repeat read = %+v, want count 2 on row %d", again, first.ID)
	}

	other := &schema.TagRead{SessionID: 1, EPC: "E200DEF"}
	if err := db.UpsertTagRead(ctx, other); err != nil {
		t.Fatalf("UpsertTagRead() other epc failed: %v", err)
	}

	reads, err := db.ListTagReads(ctx, 1)
	if err != nil {
		t.Fatalf("ListTagReads() failed: %v", err)
	}
	if len(reads) != 2 {
		t.Fatalf("tag rows = %d, want 2", len(reads))
	}
	for _, r := range reads {
		if r.EPC == "E200ABC" && r.RSSI != -42 {
			t.Errorf("RSSI = %v, want refreshed -42", r.RSSI)
		}
	}

	if err := db.SetTagMatch(ctx, first.ID, 55); err != nil {
		t.Fatalf("SetTagMatch() failed: %v", err)
	}
	third := &schema.TagRead{SessionID: 1, EPC: "E200ABC"}
	if err := db.UpsertTagRead(ctx, third); err != nil {
		t.Fatalf("UpsertTagRead() third call failed: %v", err)
	}
	if !third.Matched || third.MatchedProductID == nil || *third.MatchedProductID != 55 {
		t.Errorf("match should survive repeat reads, got %+v", third)
	}

	n, err := db.ClearTagReads(ctx, 1)
	if err != nil || n != 2 {
		t.Errorf("ClearTagReads() = %d, %v; want 2", n, err)
	}
}

func TestSettings(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	v, err := db.GetSetting(ctx, SettingAuthToken)
	if err != nil || v != "" {
		t.Errorf("GetSetting() unset = %q, %v", v, err)
	}

	if err := db.SetSetting(ctx, SettingCompanyID, "12"); err != nil {
		t.Fatalf("SetSetting() failed: %v", err)
	}
	if err := db.SetSetting(ctx, SettingCompanyID, "13"); err != nil {
		t.Fatalf("SetSetting() overwrite failed: %v", err)
	}
	id, err := db.GetInt64Setting(ctx, SettingCompanyID)
	if err != nil || id != 13 {
		t.Errorf("GetInt64Setting() = %d, %v; want 13", id, err)
	}

	last, err := db.LastSyncAt(ctx)
	if err != nil || !last.IsZero() {
		t.Errorf("LastSyncAt() before sync = %v, %v", last, err)
	}
	now := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	if err := db.SetLastSyncAt(ctx, now); err != nil {
		t.Fatalf("SetLastSyncAt() failed: %v", err)
	}
	last, _ = db.LastSyncAt(ctx)
	if !last.Equal(now) {
		t.Errorf("LastSyncAt() = %v, want %v", last, now)
	}
}

func TestStats(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.ReplaceCompanies(ctx, []schema.Company{{ID: 1, Name: "Acme"}, {ID: 2, Name: "Globex"}}); err != nil {
		t.Fatalf("ReplaceCompanies() failed: %v", err)
	}
	if err := db.ReplaceProducts(ctx, 1, products(1, 10, 1)); err != nil {
		t.Fatalf("ReplaceProducts() failed: %v", err)
	}
	transfer := &schema.TransferRecord{Meta: schema.Meta{SessionID: 3}, Barcode: "A-1", FromBranchID: 1, ToBranchID: 2}
	if err := db.InsertTransfer(ctx, transfer); err != nil {
		t.Fatalf("InsertTransfer() failed: %v", err)
	}

	s, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if s.Companies != 2 || s.Products != 10 {
		t.Errorf("Stats() catalogs = %+v", s)
	}
	if s.Pending[schema.KindTransfer] != 1 || s.TotalPending() != 1 {
		t.Errorf("Stats() pending = %v", s.Pending)
	}
}

// TestConcurrentCaptureAndMarkSynced races capture saves against mark-synced
// transactions; every record must end up either pending or synced exactly
// once.
func TestConcurrentCaptureAndMarkSynced(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	const writers = 4
	const perWriter = 25

	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	stop := make(chan struct{})

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				rec := &schema.InventoryRecord{
					Meta:     schema.Meta{SessionID: int64(w + 1)},
					Barcode:  fmt.Sprintf("W%d-%d", w, i),
					Quantity: 1,
				}
				if err := db.InsertInventoryRecord(ctx, rec); err != nil {
					errs <- err
				}
			}
		}(w)
	}

	var syncWG sync.WaitGroup
	syncWG.Add(1)
	go func() {
		defer syncWG.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			pending, err := db.PendingInventory(ctx)
			if err != nil {
				errs <- err
				return
			}
			rows := make([]SyncedRow, len(pending))
			for i, p := range pending {
				rows[i] = SyncedRow{LocalID: p.LocalID, Revision: p.Revision}
			}
			if _, err := db.MarkSynced(ctx, schema.KindInventory, rows); err != nil {
				errs <- err
				return
			}
		}
	}()

	wg.Wait()
	close(stop)
	syncWG.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent operation failed: %v", err)
	}

	total, _ := db.count(ctx, `SELECT COUNT(*) FROM inventory_records`)
	if total != writers*perWriter {
		t.Errorf("records = %d, want %d", total, writers*perWriter)
	}
}

package schema

import (
	"strings"
	"testing"
	"time"
)

func validMeta(now time.Time) Meta {
	return Meta{
		ClientID:   "c0ffee00-0000-4000-8000-000000000001",
		SessionID:  7,
		CapturedAt: now,
	}
}

func TestInventoryRecord_Validate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		rec     InventoryRecord
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid record",
			rec:     InventoryRecord{Meta: validMeta(now), Barcode: "750123456", Quantity: 1},
			wantErr: false,
		},
		{
			name:    "blank barcode",
			rec:     InventoryRecord{Meta: validMeta(now), Barcode: "  ", Quantity: 1},
			wantErr: true,
			errMsg:  "barcode is required",
		},
		{
			name: "missing session",
			rec: InventoryRecord{
				Meta:     Meta{ClientID: "x", CapturedAt: now},
				Barcode:  "750123456",
				Quantity: 1,
			},
			wantErr: true,
			errMsg:  "session_id is required",
		},
		{
			name:    "negative quantity",
			rec:     InventoryRecord{Meta: validMeta(now), Barcode: "750123456", Quantity: -2},
			wantErr: true,
			errMsg:  "quantity must not be negative",
		},
		{
			name: "missing client id",
			rec: InventoryRecord{
				Meta:     Meta{SessionID: 1, CapturedAt: now},
				Barcode:  "750123456",
				Quantity: 1,
			},
			wantErr: true,
			errMsg:  "client_id is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Validate() expected error containing %q, got nil", tt.errMsg)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %v, want error containing %q", err, tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestAssetRecord_Validate_Geolocation(t *testing.T) {
	lat, lon, bad := 19.43, -99.13, 120.0

	rec := AssetRecord{Meta: validMeta(time.Now()), Barcode: "A-1", Latitude: &lat}
	if err := rec.Validate(); err == nil {
		t.Error("Validate() should reject latitude without longitude")
	}

	rec.Longitude = &lon
	if err := rec.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}

	rec.Latitude = &bad
	if err := rec.Validate(); err == nil {
		t.Error("Validate() should reject out-of-range latitude")
	}
}

func TestTransferRecord_Validate_SameBranch(t *testing.T) {
	rec := TransferRecord{Meta: validMeta(time.Now()), Barcode: "A-1", FromBranchID: 3, ToBranchID: 3}
	err := rec.Validate()
	if err == nil || !strings.Contains(err.Error(), "same branch") {
		t.Errorf("Validate() error = %v, want same-branch rejection", err)
	}
}

func TestMeta_Prepare(t *testing.T) {
	serverID := int64(99)
	m := Meta{SessionID: 1, Synced: true, ServerID: &serverID}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CST", -6*3600))

	m.Prepare(now)

	if m.ClientID == "" {
		t.Error("Prepare() should assign a client id")
	}
	if m.Synced {
		t.Error("Prepare() should reset synced")
	}
	if m.ServerID != nil {
		t.Error("Prepare() should clear server id")
	}
	if !m.CapturedAt.Equal(now) || m.CapturedAt.Location() != time.UTC {
		t.Errorf("CapturedAt = %v, want %v in UTC", m.CapturedAt, now)
	}

	first := m.ClientID
	m.Prepare(now)
	if m.ClientID != first {
		t.Error("Prepare() should keep an existing client id")
	}
}

func TestParseRecordKind(t *testing.T) {
	tests := []struct {
		in      string
		want    RecordKind
		wantErr bool
	}{
		{"inventory", KindInventory, false},
		{"Asset", KindAsset, false},
		{"not-found", KindNotFound, false},
		{" transfer ", KindTransfer, false},
		{"photo", "", true},
	}

	for _, tt := range tests {
		got, err := ParseRecordKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRecordKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRecordKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRecordKind_SessionKind(t *testing.T) {
	if KindInventory.SessionKind() != SessionInventory {
		t.Error("inventory records belong to inventory sessions")
	}
	for _, k := range []RecordKind{KindAsset, KindNotFound, KindTransfer} {
		if k.SessionKind() != SessionAsset {
			t.Errorf("%s records belong to asset sessions", k)
		}
	}
}

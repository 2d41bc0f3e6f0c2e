package schema

import (
	"testing"
	"time"
)

func TestCatalog_Validate(t *testing.T) {
	tests := []struct {
		name    string
		v       interface{ Validate() error }
		wantErr bool
	}{
		{"company ok", &Company{ID: 1, Name: "Acme"}, false},
		{"company no name", &Company{ID: 1}, true},
		{"company zero id", &Company{Name: "Acme"}, true},
		{"branch ok", &Branch{ID: 1, CompanyID: 1, Name: "Norte"}, false},
		{"branch orphan", &Branch{ID: 1, Name: "Norte"}, true},
		{"product ok", &Product{ID: 1, CompanyID: 1, Barcode: "750123456"}, false},
		{"product blank barcode", &Product{ID: 1, CompanyID: 1, Barcode: ""}, true},
		{"lot ok", &Lot{ID: 1, CompanyID: 1, Code: "L-01"}, false},
		{"lot no code", &Lot{ID: 1, CompanyID: 1}, true},
		{"session ok", &Session{ID: 1, Kind: SessionInventory, CompanyID: 1, Name: "Q1"}, false},
		{"session bad kind", &Session{ID: 1, Kind: "audit", CompanyID: 1, Name: "Q1"}, true},
		{"tag ok", &TagRead{SessionID: 1, EPC: "E200"}, false},
		{"tag no epc", &TagRead{SessionID: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.v.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSession_SetDefaults(t *testing.T) {
	s := Session{ID: 1, Kind: SessionAsset, CompanyID: 2, Name: "Audit"}
	s.SetDefaults()

	if s.Status != StatusActive {
		t.Errorf("Status = %q, want %q", s.Status, StatusActive)
	}
	if s.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	if !s.IsActive() {
		t.Error("IsActive() = false, want true")
	}

	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s = Session{Status: "closed", CreatedAt: created}
	s.SetDefaults()
	if s.Status != "closed" || !s.CreatedAt.Equal(created) {
		t.Error("SetDefaults() must not overwrite set fields")
	}
}

func TestNormalizeEPC(t *testing.T) {
	if got := NormalizeEPC("  e2801160600002\n"); got != "E2801160600002" {
		t.Errorf("NormalizeEPC() = %q", got)
	}
}

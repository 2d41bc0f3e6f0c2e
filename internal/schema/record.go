package schema

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RecordKind identifies one of the capture record tables.
type RecordKind string

const (
	KindInventory RecordKind = "inventory"
	KindAsset     RecordKind = "asset"
	KindNotFound  RecordKind = "not_found"
	KindTransfer  RecordKind = "transfer"
)

// RecordKinds lists every record kind in upload order.
var RecordKinds = []RecordKind{KindInventory, KindAsset, KindNotFound, KindTransfer}

// Valid reports whether k is a known record kind.
func (k RecordKind) Valid() bool {
	switch k {
	case KindInventory, KindAsset, KindNotFound, KindTransfer:
		return true
	}
	return false
}

// SessionKind returns the kind of session records of this kind belong to.
func (k RecordKind) SessionKind() SessionKind {
	if k == KindInventory {
		return SessionInventory
	}
	return SessionAsset
}

// ParseRecordKind converts a user-supplied string to a RecordKind.
func ParseRecordKind(s string) (RecordKind, error) {
	k := RecordKind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !k.Valid() {
		return "", fmt.Errorf("unknown record kind %q", s)
	}
	return k, nil
}

// Meta holds the sync bookkeeping shared by every capture record.
type Meta struct {
	LocalID    int64     `json:"local_id"`
	ServerID   *int64    `json:"server_id,omitempty"`
	ClientID   string    `json:"client_id"`
	SessionID  int64     `json:"session_id"`
	Synced     bool      `json:"synced"`
	CapturedAt time.Time `json:"captured_at"`
	UserID     string    `json:"user_id,omitempty"`

	// Revision is bumped by every local edit. Marking a record synced only
	// succeeds for the revision that was actually uploaded.
	Revision int `json:"-"`
}

// Prepare readies a record for its first insert: a fresh client id, a capture
// timestamp and the unsynced state.
func (m *Meta) Prepare(now time.Time) {
	if m.ClientID == "" {
		m.ClientID = uuid.NewString()
	}
	if m.CapturedAt.IsZero() {
		m.CapturedAt = now.UTC()
	}
	m.Synced = false
	m.ServerID = nil
}

func (m *Meta) validate(barcode string) error {
	if m.SessionID <= 0 {
		return fmt.Errorf("session_id is required")
	}
	if strings.TrimSpace(barcode) == "" {
		return fmt.Errorf("barcode is required")
	}
	if m.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if m.CapturedAt.IsZero() {
		return fmt.Errorf("captured_at is required")
	}
	return nil
}

// InventoryRecord is one counted line of an inventory session.
type InventoryRecord struct {
	Meta
	Barcode     string     `json:"barcode"`
	Description string     `json:"description,omitempty"`
	Quantity    float64    `json:"quantity"`
	Lot         string     `json:"lot,omitempty"`
	Expiry      *time.Time `json:"expiry,omitempty"`
	Multiplier  float64    `json:"multiplier,omitempty"`
	Serial      string     `json:"serial,omitempty"`
}

// Validate checks if the InventoryRecord has valid field values.
func (r *InventoryRecord) Validate() error {
	if err := r.Meta.validate(r.Barcode); err != nil {
		return fmt.Errorf("inventory record: %w", err)
	}
	if r.Quantity < 0 {
		return fmt.Errorf("inventory record: quantity must not be negative (got %v)", r.Quantity)
	}
	return nil
}

// AssetRecord is one observed asset of an asset session.
type AssetRecord struct {
	Meta
	Barcode     string   `json:"barcode"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Brand       string   `json:"brand,omitempty"`
	Model       string   `json:"model,omitempty"`
	Color       string   `json:"color,omitempty"`
	Serial      string   `json:"serial,omitempty"`
	Status      string   `json:"status,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Photos      []string `json:"-"`
}

// Validate checks if the AssetRecord has valid field values.
func (r *AssetRecord) Validate() error {
	if err := r.Meta.validate(r.Barcode); err != nil {
		return fmt.Errorf("asset record: %w", err)
	}
	if (r.Latitude == nil) != (r.Longitude == nil) {
		return fmt.Errorf("asset record: latitude and longitude must be set together")
	}
	if r.Latitude != nil && (*r.Latitude < -90 || *r.Latitude > 90) {
		return fmt.Errorf("asset record: latitude out of range (got %v)", *r.Latitude)
	}
	if r.Longitude != nil && (*r.Longitude < -180 || *r.Longitude > 180) {
		return fmt.Errorf("asset record: longitude out of range (got %v)", *r.Longitude)
	}
	return nil
}

// NotFoundRecord notes an asset the server expected but the operator could
// not find, or a code found on site that is missing from the catalog.
type NotFoundRecord struct {
	Meta
	Barcode     string `json:"barcode"`
	Description string `json:"description,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// Validate checks if the NotFoundRecord has valid field values.
func (r *NotFoundRecord) Validate() error {
	if err := r.Meta.validate(r.Barcode); err != nil {
		return fmt.Errorf("not-found record: %w", err)
	}
	return nil
}

// TransferRecord moves an asset between two branches of the session's company.
type TransferRecord struct {
	Meta
	Barcode      string `json:"barcode"`
	FromBranchID int64  `json:"from_branch_id"`
	ToBranchID   int64  `json:"to_branch_id"`
	Notes        string `json:"notes,omitempty"`
}

// Validate checks if the TransferRecord has valid field values.
func (r *TransferRecord) Validate() error {
	if err := r.Meta.validate(r.Barcode); err != nil {
		return fmt.Errorf("transfer record: %w", err)
	}
	if r.FromBranchID <= 0 || r.ToBranchID <= 0 {
		return fmt.Errorf("transfer record: both branches are required")
	}
	if r.FromBranchID == r.ToBranchID {
		return fmt.Errorf("transfer record: cannot transfer to the same branch")
	}
	return nil
}

// AssetPhoto is a photo attached to an asset record. Photos are uploaded one
// call at a time once the record has a server id.
type AssetPhoto struct {
	ID            int64
	RecordLocalID int64
	Path          string
	Uploaded      bool
	UploadedAt    *time.Time
}

// Ack is the server's acknowledgement of one uploaded record.
type Ack struct {
	ClientID string `json:"client_id"`
	ServerID int64  `json:"server_id"`
}

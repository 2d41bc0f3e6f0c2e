package schema

import (
	"fmt"
	"strings"
	"time"
)

// SessionKind distinguishes inventory-count sessions from asset-count sessions.
type SessionKind string

const (
	SessionInventory SessionKind = "inventory"
	SessionAsset     SessionKind = "asset"
)

// SessionKinds lists every session kind in download order.
var SessionKinds = []SessionKind{SessionInventory, SessionAsset}

// Valid reports whether k is a known session kind.
func (k SessionKind) Valid() bool {
	return k == SessionInventory || k == SessionAsset
}

// ParseSessionKind converts a user-supplied string to a SessionKind.
func ParseSessionKind(s string) (SessionKind, error) {
	k := SessionKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown session kind %q (want inventory or asset)", s)
	}
	return k, nil
}

// StatusActive is the session status that accepts captures.
const StatusActive = "active"

// Session is a named count campaign. Every capture record belongs to exactly
// one session id.
//
// Company and branch names are denormalized so sessions can be listed offline
// without joining catalogs that may not have been downloaded yet.
type Session struct {
	ID          int64       `json:"id"`
	Kind        SessionKind `json:"kind"`
	CompanyID   int64       `json:"company_id"`
	BranchID    int64       `json:"branch_id"`
	Name        string      `json:"name"`
	Status      string      `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	CompanyName string      `json:"company_name,omitempty"`
	BranchName  string      `json:"branch_name,omitempty"`
}

// Validate checks if the Session has valid field values.
func (s *Session) Validate() error {
	if s.ID <= 0 {
		return fmt.Errorf("session id must be positive (got %d)", s.ID)
	}
	if !s.Kind.Valid() {
		return fmt.Errorf("session %d: invalid kind %q", s.ID, s.Kind)
	}
	if s.CompanyID <= 0 {
		return fmt.Errorf("session %d: company_id is required", s.ID)
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("session %d: name is required", s.ID)
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (s *Session) SetDefaults() {
	if s.Status == "" {
		s.Status = StatusActive
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
}

// IsActive reports whether the session still accepts captures.
func (s *Session) IsActive() bool {
	return s.Status == StatusActive
}

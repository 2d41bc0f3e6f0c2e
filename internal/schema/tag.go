package schema

import (
	"fmt"
	"strings"
	"time"
)

// TagRead is the deduplicated state of one RFID tag within a session.
// A repeat read bumps ReadCount and refreshes RSSI and LastSeen.
type TagRead struct {
	ID               int64     `json:"id"`
	SessionID        int64     `json:"session_id"`
	EPC              string    `json:"epc"`
	RSSI             float64   `json:"rssi"`
	ReadCount        int       `json:"read_count"`
	LastSeen         time.Time `json:"last_seen"`
	Matched          bool      `json:"matched"`
	MatchedProductID *int64    `json:"matched_product_id,omitempty"`
}

// NormalizeEPC canonicalises a tag identifier as reported by a reader.
func NormalizeEPC(epc string) string {
	return strings.ToUpper(strings.TrimSpace(epc))
}

// Validate checks if the TagRead has valid field values.
func (t *TagRead) Validate() error {
	if t.SessionID <= 0 {
		return fmt.Errorf("tag read: session_id is required")
	}
	if t.EPC == "" {
		return fmt.Errorf("tag read: epc is required")
	}
	return nil
}

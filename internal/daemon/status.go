package daemon

import (
	"maps"
	"time"

	"github.com/fieldcount/countsync/internal/schema"
)

// State is the controller's sync state.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateFailed  State = "failed"
)

// Status is a snapshot of the controller.
type Status struct {
	State State `json:"state" yaml:"state"`

	// Reason of the current or last sync
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`

	// Attempts made by the current or last sync
	Attempts int `json:"attempts" yaml:"attempts"`

	LastError   string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	LastAttempt time.Time `json:"last_attempt,omitempty" yaml:"last_attempt,omitempty"`
	LastSuccess time.Time `json:"last_success,omitempty" yaml:"last_success,omitempty"`

	// CatalogError lists the catalogs the last successful sync could not
	// refresh
	CatalogError string `json:"catalog_error,omitempty" yaml:"catalog_error,omitempty"`

	Online        bool   `json:"online" yaml:"online"`
	ServerVersion string `json:"server_version,omitempty" yaml:"server_version,omitempty"`

	Pending map[schema.RecordKind]int `json:"pending" yaml:"pending"`

	probed bool
}

// TotalPending sums the pending counts.
func (s Status) TotalPending() int {
	n := 0
	for _, c := range s.Pending {
		n += c
	}
	return n
}

func (s Status) clone() Status {
	s.Pending = maps.Clone(s.Pending)
	return s
}

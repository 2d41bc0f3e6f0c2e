package dashboard

import (
	"encoding/json"
	"maps"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldcount/countsync/internal/daemon"
	"github.com/fieldcount/countsync/internal/schema"
	syncengine "github.com/fieldcount/countsync/internal/sync"
)

// SyncStartedData is sent when a sync begins
type SyncStartedData struct {
	Reason string `json:"reason"`
}

// SyncCompleteData contains sync completion information
type SyncCompleteData struct {
	Uploaded       int                       `json:"uploaded"`
	Stale          int                       `json:"stale"`
	Catalogs       int                       `json:"catalogs"`
	FailedCatalogs []string                  `json:"failed_catalogs,omitempty"`
	Duration       time.Duration             `json:"duration"`
	Attempts       int                       `json:"attempts"`
	Pending        map[schema.RecordKind]int `json:"pending"`
}

// SyncFailedData contains terminal failure information
type SyncFailedData struct {
	Error    string                    `json:"error"`
	Attempts int                       `json:"attempts"`
	Pending  map[schema.RecordKind]int `json:"pending"`
}

// PendingData contains unsynced record counts
type PendingData struct {
	Pending map[schema.RecordKind]int `json:"pending"`
	Total   int                       `json:"total"`
}

// StatsData contains the aggregated dashboard statistics
type StatsData struct {
	State        daemon.State              `json:"state"`
	Pending      map[schema.RecordKind]int `json:"pending"`
	LastSuccess  time.Time                 `json:"last_success,omitempty"`
	LastError    string                    `json:"last_error,omitempty"`
	CatalogError string                    `json:"catalog_error,omitempty"`
	TagReads     int                       `json:"tag_reads"`
	TagsMatched  int                       `json:"tags_matched"`
}

// Handler turns controller and matcher events into dashboard messages. It
// implements daemon.Notifier.
type Handler struct {
	server *Server
	logger zerolog.Logger

	mu    sync.Mutex
	stats StatsData
	seen  map[int64]bool
}

var _ daemon.Notifier = (*Handler)(nil)

// NewHandler creates a new event handler connected to a dashboard server.
// New clients receive the handler's stats as their first message.
func NewHandler(server *Server, logger *zerolog.Logger) *Handler {
	l := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if logger != nil {
		l = *logger
	}

	h := &Handler{
		server: server,
		logger: l.With().Str("component", "dashboard").Logger(),
		stats: StatsData{
			State:   daemon.StateIdle,
			Pending: make(map[schema.RecordKind]int),
		},
		seen: make(map[int64]bool),
	}
	server.setWelcome(h.statsMessage)
	return h
}

// SyncStarted handles the start of a controller sync
func (h *Handler) SyncStarted(reason string) {
	h.mu.Lock()
	h.stats.State = daemon.StateSyncing
	h.mu.Unlock()

	h.send(MessageTypeSyncStarted, SyncStartedData{Reason: reason})
}

// SyncCompleted handles a successful controller sync
func (h *Handler) SyncCompleted(res *syncengine.CycleResult, status daemon.Status) {
	data := SyncCompleteData{
		Attempts: status.Attempts,
		Pending:  status.Pending,
	}
	if res != nil {
		data.Uploaded = res.Uploaded()
		data.Duration = res.Finished.Sub(res.Started)
		for _, u := range res.Uploads {
			data.Stale += u.Stale
		}
		if res.Download != nil {
			data.Catalogs = len(res.Download.Catalogs)
			for _, c := range res.Download.Failed() {
				data.FailedCatalogs = append(data.FailedCatalogs, c.String())
			}
		}
	}
	h.logger.Debug().Int("uploaded", data.Uploaded).Msg("sync complete")

	h.applyStatus(status)
	h.send(MessageTypeSyncComplete, data)
	h.broadcastStats()
}

// SyncFailed handles a controller sync that exhausted its retries
func (h *Handler) SyncFailed(err error, status daemon.Status) {
	h.applyStatus(status)
	h.send(MessageTypeSyncFailed, SyncFailedData{
		Error:    err.Error(),
		Attempts: status.Attempts,
		Pending:  status.Pending,
	})
	h.broadcastStats()
}

// OnPending broadcasts fresh unsynced counts, e.g. after a capture
func (h *Handler) OnPending(counts map[schema.RecordKind]int) {
	h.mu.Lock()
	h.stats.Pending = maps.Clone(counts)
	h.mu.Unlock()

	total := 0
	for _, n := range counts {
		total += n
	}
	h.send(MessageTypePending, PendingData{Pending: counts, Total: total})
}

// OnTagRead handles a processed RFID read. It matches rfid.Config.OnRead.
func (h *Handler) OnTagRead(tag schema.TagRead) {
	h.mu.Lock()
	if !h.seen[tag.ID] {
		h.seen[tag.ID] = true
		h.stats.TagReads++
		if tag.Matched {
			h.stats.TagsMatched++
		}
	}
	h.mu.Unlock()

	h.send(MessageTypeTagRead, tag)
}

// GetStats returns the current statistics
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.stats
	s.Pending = maps.Clone(h.stats.Pending)
	return s
}

func (h *Handler) applyStatus(status daemon.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats.State = status.State
	h.stats.LastSuccess = status.LastSuccess
	h.stats.LastError = status.LastError
	h.stats.CatalogError = status.CatalogError
	if status.Pending != nil {
		h.stats.Pending = maps.Clone(status.Pending)
	}
}

func (h *Handler) statsMessage() Message {
	data, err := json.Marshal(h.GetStats())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal stats")
	}
	return Message{Type: MessageTypeStats, Timestamp: time.Now(), Data: data}
}

// broadcastStats sends current statistics to all clients
func (h *Handler) broadcastStats() {
	h.server.Broadcast(h.statsMessage())
}

func (h *Handler) send(typ MessageType, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(typ)).Msg("failed to marshal message")
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: time.Now(), Data: data})
}

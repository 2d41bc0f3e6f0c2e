// Package rfid deduplicates RFID tag reads and links them to the catalog.
//
// Reads arrive on a bounded channel and are applied by a single consumer
// goroutine, so reads of one session are stored in arrival order without a
// lock per read. Each read is upserted by (session, EPC) and then matched
// against the product catalog by barcode across every company. Matching is
// best effort: a read that matches nothing is still recorded.
package rfid

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldcount/countsync/internal/schema"
	"github.com/fieldcount/countsync/internal/store"
)

// ErrBufferFull is returned by TrySubmit when the consumer is behind.
var ErrBufferFull = errors.New("tag read buffer full")

// Read is one raw tag observation from a reader.
type Read struct {
	SessionID int64
	EPC       string
	RSSI      float64
	At        time.Time
}

// Store is the subset of the local store used by the matcher.
type Store interface {
	UpsertTagRead(ctx context.Context, tag *schema.TagRead) error
	FindProductAnyCompany(ctx context.Context, barcode string) (*schema.Product, error)
	SetTagMatch(ctx context.Context, tagID, productID int64) error
}

// Config controls the matcher.
type Config struct {
	// BufferSize bounds the number of queued reads (default: 256)
	BufferSize int

	// OnRead is called after every processed read with the stored state.
	OnRead func(schema.TagRead)

	Logger *zerolog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{BufferSize: 256}
}

// Stats are the matcher's running counters.
type Stats struct {
	Reads    int64 `json:"reads"`
	Inserted int64 `json:"inserted"`
	Matched  int64 `json:"matched"`
	Failed   int64 `json:"failed"`
	Dropped  int64 `json:"dropped"`
}

// Matcher owns the tag read channel and its consumer.
type Matcher struct {
	store  Store
	in     chan Read
	onRead func(schema.TagRead)
	logger zerolog.Logger

	reads    atomic.Int64
	inserted atomic.Int64
	matched  atomic.Int64
	failed   atomic.Int64
	dropped  atomic.Int64
}

// NewMatcher creates a matcher. Call Run to start consuming.
func NewMatcher(s Store, config *Config) *Matcher {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 256
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if config.Logger != nil {
		logger = *config.Logger
	}

	return &Matcher{
		store:  s,
		in:     make(chan Read, config.BufferSize),
		onRead: config.OnRead,
		logger: logger.With().Str("component", "rfid").Logger(),
	}
}

// Submit queues a read, blocking until there is room or ctx is done.
func (m *Matcher) Submit(ctx context.Context, r Read) error {
	select {
	case m.in <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit queues a read without blocking.
func (m *Matcher) TrySubmit(r Read) error {
	select {
	case m.in <- r:
		return nil
	default:
		m.dropped.Add(1)
		return ErrBufferFull
	}
}

// Run consumes reads until ctx is cancelled. Failures are logged and counted;
// the loop never stops on a bad read.
func (m *Matcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-m.in:
			if _, err := m.Process(ctx, r); err != nil {
				m.logger.Warn().Err(err).Str("epc", r.EPC).Int64("session", r.SessionID).Msg("tag read not stored")
			}
		}
	}
}

// Process applies one read: upsert by (session, EPC), then try to match.
func (m *Matcher) Process(ctx context.Context, r Read) (*schema.TagRead, error) {
	m.reads.Add(1)

	at := r.At
	if at.IsZero() {
		at = time.Now()
	}
	tag := &schema.TagRead{
		SessionID: r.SessionID,
		EPC:       r.EPC,
		RSSI:      r.RSSI,
		LastSeen:  at.UTC(),
	}
	if err := m.store.UpsertTagRead(ctx, tag); err != nil {
		m.failed.Add(1)
		return nil, fmt.Errorf("failed to store tag read: %w", err)
	}
	if tag.ReadCount == 1 {
		m.inserted.Add(1)
	}

	if !tag.Matched {
		m.match(ctx, tag)
	}

	if m.onRead != nil {
		m.onRead(*tag)
	}
	return tag, nil
}

func (m *Matcher) match(ctx context.Context, tag *schema.TagRead) {
	product, err := m.store.FindProductAnyCompany(ctx, tag.EPC)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		m.logger.Debug().Err(err).Str("epc", tag.EPC).Msg("tag match lookup failed")
		return
	}
	if err := m.store.SetTagMatch(ctx, tag.ID, product.ID); err != nil {
		m.logger.Debug().Err(err).Str("epc", tag.EPC).Msg("failed to record tag match")
		return
	}
	tag.Matched = true
	tag.MatchedProductID = &product.ID
	m.matched.Add(1)
}

// Pending returns the number of queued reads.
func (m *Matcher) Pending() int {
	return len(m.in)
}

// Stats returns a snapshot of the counters.
func (m *Matcher) Stats() Stats {
	return Stats{
		Reads:    m.reads.Load(),
		Inserted: m.inserted.Load(),
		Matched:  m.matched.Load(),
		Failed:   m.failed.Load(),
		Dropped:  m.dropped.Load(),
	}
}

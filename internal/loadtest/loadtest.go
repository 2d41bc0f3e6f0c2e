// Package loadtest exercises the local store under the device's concurrency
// pattern: several capture goroutines saving records while an uploader
// drains the pending queue and marks records synced.
//
// It reports capture latency and verifies afterwards that every record was
// confirmed exactly once and none was lost.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldcount/countsync/internal/capture"
	"github.com/fieldcount/countsync/internal/queue"
	"github.com/fieldcount/countsync/internal/schema"
	"github.com/fieldcount/countsync/internal/store"
)

// TestDatabase represents a populated store for load testing.
type TestDatabase struct {
	DB        *store.DB
	Sessions  []*schema.Session
	Barcodes  []string
	CompanyID int64
}

// LatencyStats captures performance metrics from load tests.
type LatencyStats struct {
	Min      time.Duration
	Max      time.Duration
	Mean     time.Duration
	P50      time.Duration // Median
	P95      time.Duration
	P99      time.Duration
	Captures int
	Errors   int

	// Synced is the number of records the uploader confirmed.
	Synced int
	// Passes is the number of uploader passes over the queue.
	Passes int
}

// CreateTestDatabase creates a store with one company, numProducts products
// and numSessions active inventory sessions.
func CreateTestDatabase(dbPath string, numProducts, numSessions int) (*TestDatabase, error) {
	database, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.InitSchema(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx := context.Background()
	td := &TestDatabase{DB: database, CompanyID: 1}

	if err := database.ReplaceCompanies(ctx, []schema.Company{{ID: td.CompanyID, Name: "Load"}}); err != nil {
		_ = database.Close()
		return nil, err
	}

	products := generateProducts(td.CompanyID, numProducts)
	if err := database.ReplaceProducts(ctx, td.CompanyID, products); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to insert products: %w", err)
	}
	for _, p := range products {
		td.Barcodes = append(td.Barcodes, p.Barcode)
	}

	for i := 0; i < numSessions; i++ {
		s := &schema.Session{
			ID:        int64(i + 1),
			Kind:      schema.SessionInventory,
			CompanyID: td.CompanyID,
			Name:      fmt.Sprintf("Load %d", i+1),
		}
		if err := database.UpsertSession(ctx, s); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("failed to insert session: %w", err)
		}
		td.Sessions = append(td.Sessions, s)
	}

	return td, nil
}

// Close closes the test database connection.
func (td *TestDatabase) Close() error {
	if td.DB != nil {
		return td.DB.Close()
	}
	return nil
}

// RunCaptureAndSync runs numWorkers capture goroutines, each saving
// capturesPerWorker records, while one uploader repeatedly drains the
// pending inventory queue and marks it synced. It returns once every record
// has been confirmed.
func (td *TestDatabase) RunCaptureAndSync(numWorkers, capturesPerWorker int) (*LatencyStats, error) {
	ctx := context.Background()
	logger := zerolog.Nop()
	validator := capture.New(td.DB, &logger)
	pending := queue.New(td.DB)

	var (
		wg        sync.WaitGroup
		capturing atomic.Bool
		errCount  atomic.Int64
	)
	results := make(chan []time.Duration, numWorkers)
	capturing.Store(true)

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(worker)))
			durations := make([]time.Duration, 0, capturesPerWorker)

			for j := 0; j < capturesPerWorker; j++ {
				session := td.Sessions[rng.Intn(len(td.Sessions))]
				code := td.Barcodes[rng.Intn(len(td.Barcodes))]
				qty := float64(1 + rng.Intn(5))

				start := time.Now()
				draft, err := validator.Scan(ctx, session, code, capture.Options{RequireCatalog: true})
				if err == nil {
					_, err = validator.Save(ctx, draft, capture.Input{Quantity: &qty})
				}
				durations = append(durations, time.Since(start))

				if err != nil {
					errCount.Add(1)
				}
			}
			results <- durations
		}(i)
	}

	var (
		synced, passes int
		syncErr        error
		syncDone       = make(chan struct{})
	)
	go func() {
		defer close(syncDone)
		for {
			still := capturing.Load()
			n, err := drain(ctx, td.DB, pending)
			passes++
			synced += n
			if err != nil {
				syncErr = err
				return
			}
			if !still && n == 0 {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	wg.Wait()
	capturing.Store(false)
	close(results)
	<-syncDone

	var all []time.Duration
	for d := range results {
		all = append(all, d...)
	}
	if syncErr != nil {
		return nil, fmt.Errorf("uploader failed: %w", syncErr)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no captures completed")
	}

	stats := computeLatencyStats(all)
	stats.Errors = int(errCount.Load())
	stats.Synced = synced
	stats.Passes = passes
	return stats, nil
}

// drain marks every currently pending inventory record synced, as the sync
// engine does after a successful batch.
func drain(ctx context.Context, db *store.DB, q *queue.Queue) (int, error) {
	groups, err := q.Inventory(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, g := range groups {
		rows := make([]store.SyncedRow, len(g.Records))
		for i, r := range g.Records {
			id := 1_000_000 + r.LocalID
			rows[i] = store.SyncedRow{LocalID: r.LocalID, Revision: r.Revision, ServerID: &id}
		}
		n, err := db.MarkSynced(ctx, schema.KindInventory, rows)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// VerifyAllSynced checks that nothing is left pending and that the number of
// stored records equals the number of confirmations.
func (td *TestDatabase) VerifyAllSynced(stats *LatencyStats) error {
	ctx := context.Background()
	counts, err := td.DB.PendingCounts(ctx)
	if err != nil {
		return err
	}
	if n := counts[schema.KindInventory]; n != 0 {
		return fmt.Errorf("%d records still pending", n)
	}

	var stored int
	for _, s := range td.Sessions {
		recs, err := td.DB.ListInventoryRecords(ctx, s.ID)
		if err != nil {
			return err
		}
		for _, r := range recs {
			if !r.Synced || r.ServerID == nil {
				return fmt.Errorf("record %d not confirmed", r.LocalID)
			}
		}
		stored += len(recs)
	}

	want := stats.Captures - stats.Errors
	if stored != want {
		return fmt.Errorf("stored %d records, expected %d", stored, want)
	}
	if stats.Synced != stored {
		return fmt.Errorf("confirmed %d records, stored %d", stats.Synced, stored)
	}
	return nil
}

func generateProducts(companyID int64, count int) []schema.Product {
	products := make([]schema.Product, count)
	for i := range products {
		products[i] = schema.Product{
			ID:          int64(i + 1),
			CompanyID:   companyID,
			Barcode:     fmt.Sprintf("750%07d", i),
			Description: fmt.Sprintf("Load product %d", i),
		}
	}
	return products
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:      sorted[0],
		Max:      sorted[len(sorted)-1],
		Mean:     sum / time.Duration(len(durations)),
		P50:      sorted[len(sorted)*50/100],
		P95:      sorted[len(sorted)*95/100],
		P99:      sorted[len(sorted)*99/100],
		Captures: len(durations),
	}
}

// PrintStats formats latency statistics.
func (s *LatencyStats) PrintStats(w io.Writer) {
	fmt.Fprintf(w, "Capture Latency:\n")
	fmt.Fprintf(w, "  Captures:      %d\n", s.Captures)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Synced:        %d (%d passes)\n", s.Synced, s.Passes)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}

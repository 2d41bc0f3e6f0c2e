package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldcount/countsync/internal/metrics"
	"github.com/fieldcount/countsync/internal/queue"
	"github.com/fieldcount/countsync/internal/schema"
	"github.com/fieldcount/countsync/internal/store"
)

// API is the remote server as seen by the engine. remote.Client implements it.
type API interface {
	Companies(ctx context.Context) ([]schema.Company, error)
	Branches(ctx context.Context, companyID int64) ([]schema.Branch, error)
	Products(ctx context.Context, companyID int64) ([]schema.Product, error)
	Lots(ctx context.Context, companyID int64) ([]schema.Lot, error)
	Sessions(ctx context.Context, kind schema.SessionKind) ([]schema.Session, error)
	CreateSession(ctx context.Context, s *schema.Session) (*schema.Session, error)

	UploadInventory(ctx context.Context, sessionID int64, records []schema.InventoryRecord) ([]schema.Ack, error)
	UploadAssets(ctx context.Context, sessionID int64, records []schema.AssetRecord) ([]schema.Ack, error)
	UploadNotFound(ctx context.Context, sessionID int64, records []schema.NotFoundRecord) ([]schema.Ack, error)
	UploadTransfers(ctx context.Context, sessionID int64, records []schema.TransferRecord) ([]schema.Ack, error)
	UploadPhoto(ctx context.Context, recordServerID int64, path string) error
}

// Config holds engine configuration
type Config struct {
	// Logger for sync activity (default: stderr logger)
	Logger *zerolog.Logger

	// Metrics receives upload and download counters (optional)
	Metrics *metrics.Metrics

	// Now overrides the clock (default: time.Now)
	Now func() time.Time
}

// Engine runs upload and download against one store and one server.
type Engine struct {
	db      *store.DB
	api     API
	queue   *queue.Queue
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// New creates an Engine.
//
// The database must be open with its schema initialized.
func New(db *store.DB, api API, config *Config) *Engine {
	if config == nil {
		config = &Config{}
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if config.Logger != nil {
		logger = *config.Logger
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		db:      db,
		api:     api,
		queue:   queue.New(db),
		metrics: config.Metrics,
		logger:  logger.With().Str("component", "sync").Logger(),
		now:     now,
	}
}

// Queue returns the pending-work view the engine uploads from.
func (e *Engine) Queue() *queue.Queue {
	return e.queue
}

// PendingCounts returns the number of unsynced records per kind.
func (e *Engine) PendingCounts(ctx context.Context) (map[schema.RecordKind]int, error) {
	return e.queue.Counts(ctx)
}

// CycleResult reports one full cycle.
type CycleResult struct {
	Started  time.Time
	Finished time.Time
	Uploads  []*KindResult
	Download *DownloadResult
}

// Uploaded returns the number of records marked synced in the cycle.
func (r *CycleResult) Uploaded() int {
	n := 0
	for _, u := range r.Uploads {
		n += u.Uploaded
	}
	return n
}

// UploadErr joins the upload group failures of the cycle, or nil.
func (r *CycleResult) UploadErr() error {
	var errs []error
	for _, u := range r.Uploads {
		if err := u.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Err joins every group and catalog failure of the cycle, or nil when the
// cycle was clean.
func (r *CycleResult) Err() error {
	return errors.Join(r.UploadErr(), r.Download.Err())
}

// AddUploads folds the counts of earlier upload passes into the cycle, so
// records sent before Cycle ran are still reported. Failures are not carried
// over: Cycle uploads those groups again and reports what still fails.
func (r *CycleResult) AddUploads(prior ...*KindResult) {
	for _, p := range prior {
		if p == nil {
			continue
		}
		var into *KindResult
		for _, u := range r.Uploads {
			if u != nil && u.Kind == p.Kind {
				into = u
				break
			}
		}
		if into == nil {
			into = &KindResult{Kind: p.Kind}
			r.Uploads = append(r.Uploads, into)
		}
		into.Groups += p.Groups
		into.Uploaded += p.Uploaded
		into.Stale += p.Stale
	}
}

// Cycle uploads every record kind and then downloads the catalogs.
//
// The returned error is a top-level failure: the pending records could not be
// read or the company list could not be fetched or stored. Per-group and
// per-catalog failures are only reported through CycleResult.Err.
func (e *Engine) Cycle(ctx context.Context) (*CycleResult, error) {
	res := &CycleResult{Started: e.now()}
	e.logger.Info().Msg("sync cycle started")

	uploads, err := e.UploadAll(ctx)
	res.Uploads = uploads
	if err != nil {
		e.finishCycle(res, err)
		return res, err
	}

	res.Download, err = e.Download(ctx)
	e.finishCycle(res, err)
	return res, err
}

func (e *Engine) finishCycle(res *CycleResult, topLevel error) {
	res.Finished = e.now()
	took := res.Finished.Sub(res.Started)

	result := "ok"
	switch {
	case topLevel != nil:
		result = "failed"
	case res.Err() != nil:
		result = "partial"
	}
	e.metrics.RecordCycle(result, took, res.Finished)

	if counts, err := e.queue.Counts(context.Background()); err == nil {
		e.metrics.SetPending(counts)
	}

	ev := e.logger.Info()
	if result != "ok" {
		ev = e.logger.Warn().AnErr("error", errors.Join(topLevel, res.Err()))
	}
	ev.Str("result", result).
		Int("uploaded", res.Uploaded()).
		Dur("took", took).
		Msg("sync cycle finished")
}

// CreateSession creates a session on the server and stores it locally. It is
// not available offline: a failed call leaves nothing behind.
func (e *Engine) CreateSession(ctx context.Context, kind schema.SessionKind, name string, companyID, branchID int64) (*schema.Session, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid session kind %q", kind)
	}
	draft := &schema.Session{Kind: kind, Name: name, CompanyID: companyID, BranchID: branchID}
	if draft.Name == "" || draft.CompanyID <= 0 {
		return nil, fmt.Errorf("session name and company are required")
	}

	created, err := e.api.CreateSession(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("failed to create session on server: %w", err)
	}
	created.Kind = kind
	if created.CompanyID == 0 {
		created.CompanyID = companyID
	}
	if created.Name == "" {
		created.Name = name
	}
	if err := e.db.UpsertSession(ctx, created); err != nil {
		return nil, fmt.Errorf("session %d created on server but not stored: %w", created.ID, err)
	}

	e.logger.Info().Int64("session", created.ID).Str("kind", string(kind)).Msg("session created")
	return created, nil
}

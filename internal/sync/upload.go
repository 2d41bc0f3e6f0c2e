package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/fieldcount/countsync/internal/queue"
	"github.com/fieldcount/countsync/internal/schema"
	"github.com/fieldcount/countsync/internal/store"
)

// GroupError is the failure of one session batch.
type GroupError struct {
	Kind      schema.RecordKind
	SessionID int64
	Records   int
	Err       error
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("%s session %d (%d records): %v", e.Kind, e.SessionID, e.Records, e.Err)
}

func (e *GroupError) Unwrap() error {
	return e.Err
}

// KindResult reports the upload of one record kind.
type KindResult struct {
	Kind schema.RecordKind

	// Groups is the number of session batches attempted.
	Groups int

	// Uploaded records were acknowledged and marked synced.
	Uploaded int

	// Stale records were acknowledged but edited while in flight; they stay
	// pending and go out again next cycle.
	Stale int

	// Failed records belong to groups that failed and stay pending.
	Failed int

	Errors []*GroupError
}

// Err joins the group failures, or nil.
func (r *KindResult) Err() error {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// uploader is the one upload algorithm shared by every record kind.
type uploader[T any] struct {
	kind    schema.RecordKind
	pending func(ctx context.Context) ([]queue.Group[T], error)
	send    func(ctx context.Context, sessionID int64, records []T) ([]schema.Ack, error)
	meta    func(*T) *schema.Meta
}

func (u uploader[T]) run(ctx context.Context, e *Engine) (*KindResult, error) {
	res := &KindResult{Kind: u.kind}

	groups, err := u.pending(ctx)
	if err != nil {
		return res, err
	}

	for _, g := range groups {
		res.Groups++
		log := e.logger.With().Str("kind", string(u.kind)).Int64("session", g.SessionID).Logger()

		acks, err := u.send(ctx, g.SessionID, g.Records)
		if err != nil {
			log.Warn().Err(err).Int("records", len(g.Records)).Msg("batch upload failed, records stay pending")
			res.Failed += len(g.Records)
			res.Errors = append(res.Errors, &GroupError{Kind: u.kind, SessionID: g.SessionID, Records: len(g.Records), Err: err})
			continue
		}

		rows := syncedRows(g.Records, acks, u.meta)
		marked, err := e.db.MarkSynced(ctx, u.kind, rows)
		if err != nil {
			log.Error().Err(err).Msg("batch acknowledged but not marked synced")
			res.Failed += len(g.Records)
			res.Errors = append(res.Errors, &GroupError{Kind: u.kind, SessionID: g.SessionID, Records: len(g.Records), Err: err})
			continue
		}

		res.Uploaded += marked
		res.Stale += len(rows) - marked
		log.Debug().Int("marked", marked).Int("stale", len(rows)-marked).Msg("batch uploaded")
	}

	e.metrics.RecordUpload(u.kind, res.Uploaded, len(res.Errors))
	return res, nil
}

// syncedRows pairs every record of an acknowledged batch with the server id
// returned for its client id. Records the server did not echo keep whatever
// server id they already had.
func syncedRows[T any](records []T, acks []schema.Ack, meta func(*T) *schema.Meta) []store.SyncedRow {
	byClient := make(map[string]int64, len(acks))
	for _, a := range acks {
		byClient[a.ClientID] = a.ServerID
	}

	rows := make([]store.SyncedRow, len(records))
	for i := range records {
		m := meta(&records[i])
		row := store.SyncedRow{LocalID: m.LocalID, Revision: m.Revision}
		if id, ok := byClient[m.ClientID]; ok && id > 0 {
			row.ServerID = &id
		}
		rows[i] = row
	}
	return rows
}

// UploadPending uploads every pending record of one kind. The error is only
// set when the pending records could not be read; group failures are in the
// result.
func (e *Engine) UploadPending(ctx context.Context, kind schema.RecordKind) (*KindResult, error) {
	var (
		res *KindResult
		err error
	)
	switch kind {
	case schema.KindInventory:
		res, err = uploader[schema.InventoryRecord]{
			kind:    kind,
			pending: e.queue.Inventory,
			send:    e.api.UploadInventory,
			meta:    func(r *schema.InventoryRecord) *schema.Meta { return &r.Meta },
		}.run(ctx, e)
	case schema.KindAsset:
		res, err = uploader[schema.AssetRecord]{
			kind:    kind,
			pending: e.queue.Assets,
			send:    e.api.UploadAssets,
			meta:    func(r *schema.AssetRecord) *schema.Meta { return &r.Meta },
		}.run(ctx, e)
	case schema.KindNotFound:
		res, err = uploader[schema.NotFoundRecord]{
			kind:    kind,
			pending: e.queue.NotFound,
			send:    e.api.UploadNotFound,
			meta:    func(r *schema.NotFoundRecord) *schema.Meta { return &r.Meta },
		}.run(ctx, e)
	case schema.KindTransfer:
		res, err = uploader[schema.TransferRecord]{
			kind:    kind,
			pending: e.queue.Transfers,
			send:    e.api.UploadTransfers,
			meta:    func(r *schema.TransferRecord) *schema.Meta { return &r.Meta },
		}.run(ctx, e)
	default:
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}
	if err != nil {
		return res, fmt.Errorf("failed to upload %s records: %w", kind, err)
	}
	return res, nil
}

// UploadAll uploads every record kind in order. A kind whose pending records
// cannot be read stops the upload; group failures never do.
func (e *Engine) UploadAll(ctx context.Context) ([]*KindResult, error) {
	results := make([]*KindResult, 0, len(schema.RecordKinds))
	for _, kind := range schema.RecordKinds {
		res, err := e.UploadPending(ctx, kind)
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

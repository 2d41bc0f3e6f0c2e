package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fieldcount/countsync/internal/schema"
)

func recordTable(kind schema.RecordKind) (string, error) {
	switch kind {
	case schema.KindInventory:
		return "inventory_records", nil
	case schema.KindAsset:
		return "asset_records", nil
	case schema.KindNotFound:
		return "not_found_records", nil
	case schema.KindTransfer:
		return "transfer_records", nil
	}
	return "", fmt.Errorf("unknown record kind %q", kind)
}

const metaColumns = `local_id, server_id, client_id, session_id, synced, revision, captured_at, user_id`

// metaScan collects the shared bookkeeping columns; apply copies them into m
// after a successful Scan.
type metaScan struct {
	serverID   sql.NullInt64
	synced     int
	capturedAt string
	userID     sql.NullString
}

func (ms *metaScan) dest(m *schema.Meta) []any {
	return []any{&m.LocalID, &ms.serverID, &m.ClientID, &m.SessionID, &ms.synced, &m.Revision, &ms.capturedAt, &ms.userID}
}

func (ms *metaScan) apply(m *schema.Meta) {
	m.ServerID = nullToInt64(ms.serverID)
	m.Synced = ms.synced != 0
	m.CapturedAt = parseTime(ms.capturedAt)
	m.UserID = ms.userID.String
}

func insertMeta(m *schema.Meta) []any {
	return []any{m.ClientID, m.SessionID, formatTime(m.CapturedAt), stringToNull(m.UserID)}
}

// InsertInventoryRecord stores a new unsynced inventory record and sets its
// local id.
func (db *DB) InsertInventoryRecord(ctx context.Context, rec *schema.InventoryRecord) error {
	rec.Prepare(time.Now())
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}

	res, err := db.conn.ExecContext(ctx, `
	INSERT INTO inventory_records (
		client_id, session_id, captured_at, user_id,
		barcode, description, quantity, lot, expiry, multiplier, serial
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append(insertMeta(&rec.Meta),
			rec.Barcode, stringToNull(rec.Description), rec.Quantity, stringToNull(rec.Lot),
			timeToNullString(rec.Expiry), multiplierToNull(rec.Multiplier), stringToNull(rec.Serial))...)
	if err != nil {
		return fmt.Errorf("failed to insert inventory record: %w", err)
	}
	rec.LocalID, err = res.LastInsertId()
	return err
}

// InsertAssetRecord stores a new unsynced asset record together with its
// photo paths in one transaction.
func (db *DB) InsertAssetRecord(ctx context.Context, rec *schema.AssetRecord) error {
	rec.Prepare(time.Now())
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
		INSERT INTO asset_records (
			client_id, session_id, captured_at, user_id,
			barcode, description, category, brand, model, color, serial,
			status, notes, latitude, longitude
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			append(insertMeta(&rec.Meta),
				rec.Barcode, stringToNull(rec.Description), stringToNull(rec.Category),
				stringToNull(rec.Brand), stringToNull(rec.Model), stringToNull(rec.Color),
				stringToNull(rec.Serial), stringToNull(rec.Status), stringToNull(rec.Notes),
				float64ToNull(rec.Latitude), float64ToNull(rec.Longitude))...)
		if err != nil {
			return fmt.Errorf("failed to insert asset record: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for _, path := range rec.Photos {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO asset_photos (record_id, path) VALUES (?, ?)`, id, path); err != nil {
				return fmt.Errorf("failed to attach photo %s: %w", path, err)
			}
		}
		rec.LocalID = id
		return nil
	})
}

// InsertNotFound stores a new unsynced not-found record.
func (db *DB) InsertNotFound(ctx context.Context, rec *schema.NotFoundRecord) error {
	rec.Prepare(time.Now())
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}

	res, err := db.conn.ExecContext(ctx, `
	INSERT INTO not_found_records (
		client_id, session_id, captured_at, user_id, barcode, description, notes
	) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		append(insertMeta(&rec.Meta),
			rec.Barcode, stringToNull(rec.Description), stringToNull(rec.Notes))...)
	if err != nil {
		return fmt.Errorf("failed to insert not-found record: %w", err)
	}
	rec.LocalID, err = res.LastInsertId()
	return err
}

// InsertTransfer stores a new unsynced transfer record.
func (db *DB) InsertTransfer(ctx context.Context, rec *schema.TransferRecord) error {
	rec.Prepare(time.Now())
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}

	res, err := db.conn.ExecContext(ctx, `
	INSERT INTO transfer_records (
		client_id, session_id, captured_at, user_id,
		barcode, from_branch_id, to_branch_id, notes
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		append(insertMeta(&rec.Meta),
			rec.Barcode, rec.FromBranchID, rec.ToBranchID, stringToNull(rec.Notes))...)
	if err != nil {
		return fmt.Errorf("failed to insert transfer record: %w", err)
	}
	rec.LocalID, err = res.LastInsertId()
	return err
}

func multiplierToNull(m float64) sql.NullFloat64 {
	if m == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: m, Valid: true}
}

const inventoryColumns = metaColumns + `, barcode, description, quantity, lot, expiry, multiplier, serial`

func scanInventory(row interface{ Scan(...any) error }) (*schema.InventoryRecord, error) {
	var r schema.InventoryRecord
	var ms metaScan
	var desc, lot, expiry, serial sql.NullString
	var mult sql.NullFloat64
	dest := append(ms.dest(&r.Meta), &r.Barcode, &desc, &r.Quantity, &lot, &expiry, &mult, &serial)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	ms.apply(&r.Meta)
	r.Description = desc.String
	r.Lot = lot.String
	r.Expiry = nullStringToTime(expiry)
	r.Multiplier = mult.Float64
	r.Serial = serial.String
	return &r, nil
}

const assetColumns = metaColumns + `, barcode, description, category, brand, model, color, serial, status, notes, latitude, longitude`

func scanAsset(row interface{ Scan(...any) error }) (*schema.AssetRecord, error) {
	var r schema.AssetRecord
	var ms metaScan
	var desc, category, brand, model, color, serial, status, notes sql.NullString
	var lat, lon sql.NullFloat64
	dest := append(ms.dest(&r.Meta), &r.Barcode, &desc, &category, &brand, &model, &color,
		&serial, &status, &notes, &lat, &lon)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	ms.apply(&r.Meta)
	r.Description = desc.String
	r.Category = category.String
	r.Brand = brand.String
	r.Model = model.String
	r.Color = color.String
	r.Serial = serial.String
	r.Status = status.String
	r.Notes = notes.String
	r.Latitude = nullToFloat64(lat)
	r.Longitude = nullToFloat64(lon)
	return &r, nil
}

const notFoundColumns = metaColumns + `, barcode, description, notes`

func scanNotFound(row interface{ Scan(...any) error }) (*schema.NotFoundRecord, error) {
	var r schema.NotFoundRecord
	var ms metaScan
	var desc, notes sql.NullString
	if err := row.Scan(append(ms.dest(&r.Meta), &r.Barcode, &desc, &notes)...); err != nil {
		return nil, err
	}
	ms.apply(&r.Meta)
	r.Description = desc.String
	r.Notes = notes.String
	return &r, nil
}

const transferColumns = metaColumns + `, barcode, from_branch_id, to_branch_id, notes`

func scanTransfer(row interface{ Scan(...any) error }) (*schema.TransferRecord, error) {
	var r schema.TransferRecord
	var ms metaScan
	var notes sql.NullString
	if err := row.Scan(append(ms.dest(&r.Meta), &r.Barcode, &r.FromBranchID, &r.ToBranchID, &notes)...); err != nil {
		return nil, err
	}
	ms.apply(&r.Meta)
	r.Notes = notes.String
	return &r, nil
}

func queryRecords[T any](ctx context.Context, db *DB, scan func(interface{ Scan(...any) error }) (*T, error), query string, args ...any) ([]T, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return out, nil
}

func getRecord[T any](ctx context.Context, db *DB, scan func(interface{ Scan(...any) error }) (*T, error), what, query string, id int64) (*T, error) {
	r, err := scan(db.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s record %d: %w", what, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s record %d: %w", what, id, err)
	}
	return r, nil
}

// GetInventoryRecord returns one inventory record by local id.
func (db *DB) GetInventoryRecord(ctx context.Context, localID int64) (*schema.InventoryRecord, error) {
	return getRecord(ctx, db, scanInventory, "inventory",
		`SELECT `+inventoryColumns+` FROM inventory_records WHERE local_id = ?`, localID)
}

// GetAssetRecord returns one asset record by local id, with its photo paths.
func (db *DB) GetAssetRecord(ctx context.Context, localID int64) (*schema.AssetRecord, error) {
	r, err := getRecord(ctx, db, scanAsset, "asset",
		`SELECT `+assetColumns+` FROM asset_records WHERE local_id = ?`, localID)
	if err != nil {
		return nil, err
	}
	photos, err := db.ListPhotos(ctx, localID)
	if err != nil {
		return nil, err
	}
	for _, p := range photos {
		r.Photos = append(r.Photos, p.Path)
	}
	return r, nil
}

// ListInventoryRecords returns every inventory record of a session in capture
// order.
func (db *DB) ListInventoryRecords(ctx context.Context, sessionID int64) ([]schema.InventoryRecord, error) {
	return queryRecords(ctx, db, scanInventory,
		`SELECT `+inventoryColumns+` FROM inventory_records WHERE session_id = ? ORDER BY local_id`, sessionID)
}

// ListAssetRecords returns every asset record of a session in capture order.
func (db *DB) ListAssetRecords(ctx context.Context, sessionID int64) ([]schema.AssetRecord, error) {
	return queryRecords(ctx, db, scanAsset,
		`SELECT `+assetColumns+` FROM asset_records WHERE session_id = ? ORDER BY local_id`, sessionID)
}

// ListNotFound returns every not-found record of a session.
func (db *DB) ListNotFound(ctx context.Context, sessionID int64) ([]schema.NotFoundRecord, error) {
	return queryRecords(ctx, db, scanNotFound,
		`SELECT `+notFoundColumns+` FROM not_found_records WHERE session_id = ? ORDER BY local_id`, sessionID)
}

// ListTransfers returns every transfer record of a session.
func (db *DB) ListTransfers(ctx context.Context, sessionID int64) ([]schema.TransferRecord, error) {
	return queryRecords(ctx, db, scanTransfer,
		`SELECT `+transferColumns+` FROM transfer_records WHERE session_id = ? ORDER BY local_id`, sessionID)
}

// PendingInventory returns unsynced inventory records ordered by session.
func (db *DB) PendingInventory(ctx context.Context) ([]schema.InventoryRecord, error) {
	return queryRecords(ctx, db, scanInventory,
		`SELECT `+inventoryColumns+` FROM inventory_records WHERE synced = 0 ORDER BY session_id, local_id`)
}

// PendingAssets returns unsynced asset records ordered by session.
func (db *DB) PendingAssets(ctx context.Context) ([]schema.AssetRecord, error) {
	return queryRecords(ctx, db, scanAsset,
		`SELECT `+assetColumns+` FROM asset_records WHERE synced = 0 ORDER BY session_id, local_id`)
}

// PendingNotFound returns unsynced not-found records ordered by session.
func (db *DB) PendingNotFound(ctx context.Context) ([]schema.NotFoundRecord, error) {
	return queryRecords(ctx, db, scanNotFound,
		`SELECT `+notFoundColumns+` FROM not_found_records WHERE synced = 0 ORDER BY session_id, local_id`)
}

// PendingTransfers returns unsynced transfer records ordered by session.
func (db *DB) PendingTransfers(ctx context.Context) ([]schema.TransferRecord, error) {
	return queryRecords(ctx, db, scanTransfer,
		`SELECT `+transferColumns+` FROM transfer_records WHERE synced = 0 ORDER BY session_id, local_id`)
}

// UpdateInventoryRecord saves a local edit. The record re-enters the pending
// state and keeps its server id so the next upload updates the server copy.
func (db *DB) UpdateInventoryRecord(ctx context.Context, rec *schema.InventoryRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}
	res, err := db.conn.ExecContext(ctx, `
	UPDATE inventory_records SET
		barcode = ?, description = ?, quantity = ?, lot = ?, expiry = ?,
		multiplier = ?, serial = ?, synced = 0, revision = revision + 1
	WHERE local_id = ?`,
		rec.Barcode, stringToNull(rec.Description), rec.Quantity, stringToNull(rec.Lot),
		timeToNullString(rec.Expiry), multiplierToNull(rec.Multiplier), stringToNull(rec.Serial),
		rec.LocalID)
	if err != nil {
		return fmt.Errorf("failed to update inventory record %d: %w", rec.LocalID, err)
	}
	if err := expectOne(res, "inventory", rec.LocalID); err != nil {
		return err
	}
	rec.Synced = false
	rec.Revision++
	return nil
}

// UpdateAssetRecord saves a local edit of an asset record; see
// UpdateInventoryRecord.
func (db *DB) UpdateAssetRecord(ctx context.Context, rec *schema.AssetRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}
	res, err := db.conn.ExecContext(ctx, `
	UPDATE asset_records SET
		barcode = ?, description = ?, category = ?, brand = ?, model = ?, color = ?,
		serial = ?, status = ?, notes = ?, latitude = ?, longitude = ?,
		synced = 0, revision = revision + 1
	WHERE local_id = ?`,
		rec.Barcode, stringToNull(rec.Description), stringToNull(rec.Category),
		stringToNull(rec.Brand), stringToNull(rec.Model), stringToNull(rec.Color),
		stringToNull(rec.Serial), stringToNull(rec.Status), stringToNull(rec.Notes),
		float64ToNull(rec.Latitude), float64ToNull(rec.Longitude), rec.LocalID)
	if err != nil {
		return fmt.Errorf("failed to update asset record %d: %w", rec.LocalID, err)
	}
	if err := expectOne(res, "asset", rec.LocalID); err != nil {
		return err
	}
	rec.Synced = false
	rec.Revision++
	return nil
}

func expectOne(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s record %d: %w", what, id, ErrNotFound)
	}
	return nil
}

// DeleteRecord removes a capture record on explicit user request. Photos of
// asset records are removed with it.
func (db *DB) DeleteRecord(ctx context.Context, kind schema.RecordKind, localID int64) error {
	table, err := recordTable(kind)
	if err != nil {
		return err
	}
	res, err := db.conn.ExecContext(ctx, `DELETE FROM `+table+` WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("failed to delete %s record %d: %w", kind, localID, err)
	}
	return expectOne(res, string(kind), localID)
}

// SyncedRow identifies one uploaded record: the revision that was sent and the
// server id the server acknowledged it with.
type SyncedRow struct {
	LocalID  int64
	Revision int
	ServerID *int64
}

// MarkSynced flips a group of uploaded records to synced in one transaction.
//
// A row is only marked when it is still unsynced and still at the uploaded
// revision; a record edited while its batch was in flight stays pending.
// Returns the number of rows actually marked.
func (db *DB) MarkSynced(ctx context.Context, kind schema.RecordKind, rows []SyncedRow) (int, error) {
	table, err := recordTable(kind)
	if err != nil {
		return 0, err
	}

	marked := 0
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
		UPDATE `+table+` SET synced = 1, server_id = COALESCE(?, server_id)
		WHERE local_id = ? AND synced = 0 AND revision = ?`)
		if err != nil {
			return fmt.Errorf("failed to prepare mark synced: %w", err)
		}
		defer stmt.Close()

		for _, r := range rows {
			res, err := stmt.ExecContext(ctx, int64ToNull(r.ServerID), r.LocalID, r.Revision)
			if err != nil {
				return fmt.Errorf("failed to mark %s record %d synced: %w", kind, r.LocalID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to check rows affected: %w", err)
			}
			marked += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fieldcount/countsync/internal/schema"
)

// PendingPhoto is a photo not yet uploaded together with the server id of its
// asset record, when the record has one.
type PendingPhoto struct {
	schema.AssetPhoto
	RecordServerID *int64
}

// AddPhoto attaches a photo to an existing asset record.
func (db *DB) AddPhoto(ctx context.Context, recordLocalID int64, path string) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO asset_photos (record_id, path) VALUES (?, ?)`, recordLocalID, path)
	if err != nil {
		return 0, fmt.Errorf("failed to add photo: %w", err)
	}
	return res.LastInsertId()
}

// ListPhotos returns the photos attached to an asset record.
func (db *DB) ListPhotos(ctx context.Context, recordLocalID int64) ([]schema.AssetPhoto, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, record_id, path, uploaded, uploaded_at
	FROM asset_photos WHERE record_id = ? ORDER BY id`, recordLocalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query photos: %w", err)
	}
	defer rows.Close()

	var out []schema.AssetPhoto
	for rows.Next() {
		var p schema.AssetPhoto
		var uploaded int
		var uploadedAt sql.NullString
		if err := rows.Scan(&p.ID, &p.RecordLocalID, &p.Path, &uploaded, &uploadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		p.Uploaded = uploaded != 0
		p.UploadedAt = nullStringToTime(uploadedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// PendingPhotos returns every photo not yet uploaded.
func (db *DB) PendingPhotos(ctx context.Context) ([]PendingPhoto, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT p.id, p.record_id, p.path, r.server_id
	FROM asset_photos p JOIN asset_records r ON r.local_id = p.record_id
	WHERE p.uploaded = 0
	ORDER BY p.record_id, p.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending photos: %w", err)
	}
	defer rows.Close()

	var out []PendingPhoto
	for rows.Next() {
		var p PendingPhoto
		var serverID sql.NullInt64
		if err := rows.Scan(&p.ID, &p.RecordLocalID, &p.Path, &serverID); err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		p.RecordServerID = nullToInt64(serverID)
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkPhotoUploaded records a successful photo upload.
func (db *DB) MarkPhotoUploaded(ctx context.Context, photoID int64, at time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE asset_photos SET uploaded = 1, uploaded_at = ? WHERE id = ?`, formatTime(at), photoID)
	if err != nil {
		return fmt.Errorf("failed to mark photo %d uploaded: %w", photoID, err)
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fieldcount/countsync/internal/schema"
)

// UpsertTagRead records one read of a tag in a session. A repeat read of the
// same EPC increments the read count and refreshes RSSI and last-seen instead
// of inserting a second row. The stored state is written back into tag.
func (db *DB) UpsertTagRead(ctx context.Context, tag *schema.TagRead) error {
	tag.EPC = schema.NormalizeEPC(tag.EPC)
	if err := tag.Validate(); err != nil {
		return fmt.Errorf("invalid tag read: %w", err)
	}
	if tag.LastSeen.IsZero() {
		tag.LastSeen = time.Now().UTC()
	}

	var matched int
	var productID sql.NullInt64
	err := db.conn.QueryRowContext(ctx, `
	INSERT INTO tag_reads (session_id, epc, rssi, read_count, last_seen)
	VALUES (?, ?, ?, 1, ?)
	ON CONFLICT(session_id, epc) DO UPDATE SET
		read_count = read_count + 1,
		rssi = excluded.rssi,
		last_seen = excluded.last_seen
	RETURNING id, read_count, matched, matched_product_id`,
		tag.SessionID, tag.EPC, tag.RSSI, formatTime(tag.LastSeen),
	).Scan(&tag.ID, &tag.ReadCount, &matched, &productID)
	if err != nil {
		return fmt.Errorf("failed to upsert tag %s: %w", tag.EPC, err)
	}
	tag.Matched = matched != 0
	tag.MatchedProductID = nullToInt64(productID)
	return nil
}

// SetTagMatch links a tag read to the catalog product it matched.
func (db *DB) SetTagMatch(ctx context.Context, tagID, productID int64) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE tag_reads SET matched = 1, matched_product_id = ? WHERE id = ?`, productID, tagID)
	if err != nil {
		return fmt.Errorf("failed to match tag %d: %w", tagID, err)
	}
	return nil
}

// ListTagReads returns the tag reads of a session, most recently seen first.
func (db *DB) ListTagReads(ctx context.Context, sessionID int64) ([]schema.TagRead, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, session_id, epc, rssi, read_count, last_seen, matched, matched_product_id
	FROM tag_reads WHERE session_id = ?
	ORDER BY last_seen DESC, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tag reads: %w", err)
	}
	defer rows.Close()

	var out []schema.TagRead
	for rows.Next() {
		var t schema.TagRead
		var lastSeen string
		var matched int
		var productID sql.NullInt64
		if err := rows.Scan(&t.ID, &t.SessionID, &t.EPC, &t.RSSI, &t.ReadCount,
			&lastSeen, &matched, &productID); err != nil {
			return nil, fmt.Errorf("failed to scan tag read: %w", err)
		}
		t.LastSeen = parseTime(lastSeen)
		t.Matched = matched != 0
		t.MatchedProductID = nullToInt64(productID)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ClearTagReads removes every tag read of a session.
func (db *DB) ClearTagReads(ctx context.Context, sessionID int64) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM tag_reads WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear tag reads: %w", err)
	}
	return res.RowsAffected()
}

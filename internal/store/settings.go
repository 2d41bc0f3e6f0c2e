package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Well-known settings keys.
const (
	SettingLastSyncAt = "last_sync_at"
	SettingCompanyID  = "company_id"
	SettingBranchID   = "branch_id"
	SettingAuthToken  = "auth_token"
	SettingUserID     = "user_id"
)

// GetSetting returns the value stored under key, or "" when unset.
func (db *DB) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting stores value under key, replacing any previous value.
func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO settings (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// GetInt64Setting parses an integer setting. Unset keys return 0.
func (db *DB) GetInt64Setting(ctx context.Context, key string) (int64, error) {
	v, err := db.GetSetting(ctx, key)
	if err != nil || v == "" {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("setting %s is not an integer: %w", key, err)
	}
	return n, nil
}

// LastSyncAt returns when the last complete download cascade finished. The
// zero time means never.
func (db *DB) LastSyncAt(ctx context.Context) (time.Time, error) {
	v, err := db.GetSetting(ctx, SettingLastSyncAt)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	return parseTime(v), nil
}

// SetLastSyncAt records a completed download cascade.
func (db *DB) SetLastSyncAt(ctx context.Context, t time.Time) error {
	return db.SetSetting(ctx, SettingLastSyncAt, formatTime(t))
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fieldcount/countsync/internal/schema"
)

// ReplaceSessions mirrors the server's session list for one kind. Capture
// records only reference session ids and are not touched.
func (db *DB) ReplaceSessions(ctx context.Context, kind schema.SessionKind, sessions []schema.Session) error {
	if !kind.Valid() {
		return fmt.Errorf("invalid session kind %q", kind)
	}
	return replaceScope(ctx, db, string(kind)+" sessions",
		`DELETE FROM sessions WHERE kind = ?`, []any{string(kind)},
		sessionInsert,
		sessions,
		func(s *schema.Session) ([]any, error) {
			if s.Kind == "" {
				s.Kind = kind
			}
			if s.Kind != kind {
				return nil, fmt.Errorf("session %d is %s, not %s", s.ID, s.Kind, kind)
			}
			s.SetDefaults()
			if err := s.Validate(); err != nil {
				return nil, err
			}
			return sessionArgs(s), nil
		})
}

const sessionInsert = `
INSERT INTO sessions (
	id, kind, company_id, branch_id, name, status, created_at, company_name, branch_name
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func sessionArgs(s *schema.Session) []any {
	return []any{
		s.ID, string(s.Kind), s.CompanyID, s.BranchID, s.Name, s.Status,
		formatTime(s.CreatedAt), stringToNull(s.CompanyName), stringToNull(s.BranchName),
	}
}

// UpsertSession stores a single session, used after creating one on the
// server.
func (db *DB) UpsertSession(ctx context.Context, s *schema.Session) error {
	s.SetDefaults()
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	query := sessionInsert + `
	ON CONFLICT(kind, id) DO UPDATE SET
		company_id = excluded.company_id,
		branch_id = excluded.branch_id,
		name = excluded.name,
		status = excluded.status,
		company_name = excluded.company_name,
		branch_name = excluded.branch_name`
	if _, err := db.conn.ExecContext(ctx, query, sessionArgs(s)...); err != nil {
		return fmt.Errorf("failed to upsert session %d: %w", s.ID, err)
	}
	return nil
}

const sessionColumns = `id, kind, company_id, branch_id, name, status, created_at, company_name, branch_name`

func scanSession(row interface{ Scan(...any) error }) (*schema.Session, error) {
	var s schema.Session
	var kind, createdAt string
	var companyName, branchName sql.NullString
	if err := row.Scan(&s.ID, &kind, &s.CompanyID, &s.BranchID, &s.Name, &s.Status,
		&createdAt, &companyName, &branchName); err != nil {
		return nil, err
	}
	s.Kind = schema.SessionKind(kind)
	s.CreatedAt = parseTime(createdAt)
	s.CompanyName = companyName.String
	s.BranchName = branchName.String
	return &s, nil
}

// GetSession returns one session by kind and id.
func (db *DB) GetSession(ctx context.Context, kind schema.SessionKind, id int64) (*schema.Session, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE kind = ? AND id = ?`, string(kind), id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s session %d: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %d: %w", id, err)
	}
	return s, nil
}

// ListSessions returns the sessions of a kind, newest first.
func (db *DB) ListSessions(ctx context.Context, kind schema.SessionKind) ([]schema.Session, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE kind = ? ORDER BY created_at DESC, id DESC`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []schema.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

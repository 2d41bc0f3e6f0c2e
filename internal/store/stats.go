package store

import (
	"context"
	"fmt"

	"github.com/fieldcount/countsync/internal/schema"
)

// Stats summarises the local store for status output and dashboards.
type Stats struct {
	Companies     int                       `json:"companies" yaml:"companies"`
	Branches      int                       `json:"branches" yaml:"branches"`
	Products      int                       `json:"products" yaml:"products"`
	Lots          int                       `json:"lots" yaml:"lots"`
	Sessions      int                       `json:"sessions" yaml:"sessions"`
	Records       map[schema.RecordKind]int `json:"records" yaml:"records"`
	Pending       map[schema.RecordKind]int `json:"pending" yaml:"pending"`
	PendingPhotos int                       `json:"pending_photos" yaml:"pending_photos"`
	TagReads      int                       `json:"tag_reads" yaml:"tag_reads"`
}

// TotalPending returns the number of records waiting for upload.
func (s *Stats) TotalPending() int {
	n := 0
	for _, c := range s.Pending {
		n += c
	}
	return n
}

// PendingCounts returns the number of unsynced records per kind.
func (db *DB) PendingCounts(ctx context.Context) (map[schema.RecordKind]int, error) {
	out := make(map[schema.RecordKind]int, len(schema.RecordKinds))
	for _, kind := range schema.RecordKinds {
		table, _ := recordTable(kind)
		n, err := db.count(ctx, `SELECT COUNT(*) FROM `+table+` WHERE synced = 0`)
		if err != nil {
			return nil, fmt.Errorf("failed to count pending %s: %w", kind, err)
		}
		out[kind] = n
	}
	return out, nil
}

// Stats collects row counts across the store.
func (db *DB) Stats(ctx context.Context) (*Stats, error) {
	s := &Stats{Records: make(map[schema.RecordKind]int)}

	counts := []struct {
		dst   *int
		query string
	}{
		{&s.Companies, `SELECT COUNT(*) FROM companies`},
		{&s.Branches, `SELECT COUNT(*) FROM branches`},
		{&s.Products, `SELECT COUNT(*) FROM products`},
		{&s.Lots, `SELECT COUNT(*) FROM lots`},
		{&s.Sessions, `SELECT COUNT(*) FROM sessions`},
		{&s.PendingPhotos, `SELECT COUNT(*) FROM asset_photos WHERE uploaded = 0`},
		{&s.TagReads, `SELECT COUNT(*) FROM tag_reads`},
	}
	for _, c := range counts {
		n, err := db.count(ctx, c.query)
		if err != nil {
			return nil, err
		}
		*c.dst = n
	}

	for _, kind := range schema.RecordKinds {
		table, _ := recordTable(kind)
		n, err := db.count(ctx, `SELECT COUNT(*) FROM `+table)
		if err != nil {
			return nil, err
		}
		s.Records[kind] = n
	}

	pending, err := db.PendingCounts(ctx)
	if err != nil {
		return nil, err
	}
	s.Pending = pending
	return s, nil
}

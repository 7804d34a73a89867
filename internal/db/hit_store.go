package db

import (
	"context"
	"fmt"
	"io"

	"github.com/banshee-data/pixelcal/internal/pixel/hits"
)

// HitStore persists raw hit events in the hits table.
type HitStore struct {
	db *DB
}

// NewHitStore wraps db, which must carry the latest schema.
func NewHitStore(db *DB) *HitStore {
	return &HitStore{db: db}
}

// Insert appends events in a single transaction.
func (s *HitStore) Insert(ctx context.Context, events []hits.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin hit insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO hits (pixel_row, pixel_col, inj, tot) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare hit insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx, ev.Row, ev.Col, ev.Injection, ev.Response); err != nil {
			return fmt.Errorf("insert hit %+v: %w", ev, err)
		}
	}
	return tx.Commit()
}

// Count returns the number of stored hits.
func (s *HitStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM hits`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Source returns a hits.Source that reads the table in insertion order,
// at most chunkSize events per call.
func (s *HitStore) Source(chunkSize int) hits.Source {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	return &storeSource{db: s.db, chunkSize: chunkSize}
}

// storeSource pages by id so that every query is bounded regardless of
// how far into the table the scan is.
type storeSource struct {
	db        *DB
	chunkSize int
	lastID    int64
	done      bool
}

func (s *storeSource) Next(ctx context.Context) ([]hits.Event, error) {
	if s.done {
		return nil, io.EOF
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pixel_row, pixel_col, inj, tot FROM hits WHERE id > ? ORDER BY id LIMIT ?`,
		s.lastID, s.chunkSize)
	if err != nil {
		return nil, fmt.Errorf("query hits after id %d: %w", s.lastID, err)
	}
	defer rows.Close()

	chunk := make([]hits.Event, 0, s.chunkSize)
	for rows.Next() {
		var id int64
		var ev hits.Event
		if err := rows.Scan(&id, &ev.Row, &ev.Col, &ev.Injection, &ev.Response); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		s.lastID = id
		chunk = append(chunk, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(chunk) < s.chunkSize {
		s.done = true
	}
	if len(chunk) == 0 {
		return nil, io.EOF
	}
	return chunk, nil
}

var _ hits.Source = (*storeSource)(nil)

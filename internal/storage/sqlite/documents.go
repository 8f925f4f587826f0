package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/ontograph/internal/storage"
	"github.com/scrypster/ontograph/pkg/types"
)

// QueryByHash returns the document record for hash, or storage.ErrNotFound.
func (s *Store) QueryByHash(ctx context.Context, hash string) (*types.DocumentRecord, error) {
	var rec types.DocumentRecord
	err := s.q.QueryRowContext(ctx,
		"SELECT content_hash, filename, ingested_at FROM documents WHERE content_hash = ?", hash,
	).Scan(&rec.ContentHash, &rec.Filename, &rec.IngestedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: query document %s: %w", hash, err)
	}
	return &rec, nil
}

// WriteDocumentRecord upserts rec; a repeated hash refreshes filename and
// timestamp.
func (s *Store) WriteDocumentRecord(ctx context.Context, rec types.DocumentRecord) error {
	if err := storage.ValidateHash(rec.ContentHash); err != nil {
		return err
	}
	if rec.IngestedAt.IsZero() {
		rec.IngestedAt = time.Now()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO documents (content_hash, filename, ingested_at)
		VALUES (?, ?, ?)
		ON CONFLICT(content_hash) DO UPDATE SET
			filename = excluded.filename,
			ingested_at = excluded.ingested_at
	`, rec.ContentHash, rec.Filename, rec.IngestedAt.UTC())
	if err != nil {
		return fmt.Errorf("sqlite: write document %s: %w", rec.ContentHash, err)
	}
	return nil
}

// CountDocuments returns the number of ingested document records.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	var n int
	if err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count documents: %w", err)
	}
	return n, nil
}

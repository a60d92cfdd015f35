// Package store is the relational system of record for documents. The
// vector index in engine/semantic is derived state, rebuilt from rows here
// by the update pipeline; the inverse never happens.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/StephaneWamba/real-time-rag/engine/domain"
)

// Store persists Document rows in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and ensures the documents schema exists.
func New(ctx context.Context, dsn string, maxConns int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, domain.NewDatabaseError("parse database url", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, domain.NewDatabaseError("connect to postgres", err)
	}

	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping is used by the health check to measure database latency.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) ensureSchema(ctx context.Context) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS documents (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	version INT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS documents_updated_at_idx ON documents (updated_at DESC);
`
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return domain.NewDatabaseError("ensure documents schema", err)
	}
	return nil
}

// CountDocuments returns the total number of documents.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	if err != nil {
		return 0, domain.NewDatabaseError("count documents", err)
	}
	return n, nil
}

// ListDocuments returns a page of documents ordered by most recently
// updated, alongside the total document count for pagination.
func (s *Store) ListDocuments(ctx context.Context, limit, offset int) ([]domain.Document, int, error) {
	total, err := s.CountDocuments(ctx)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
SELECT id, title, content, version, created_at, updated_at
FROM documents
ORDER BY updated_at DESC
LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, domain.NewDatabaseError("list documents", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &d.Version, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, 0, domain.NewDatabaseError("scan document", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, domain.NewDatabaseError("iterate documents", err)
	}
	return docs, total, nil
}

// GetDocument fetches a single document by ID. Returns domain.ErrNotFound
// when no row matches.
func (s *Store) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	var d domain.Document
	err := s.pool.QueryRow(ctx, `
SELECT id, title, content, version, created_at, updated_at
FROM documents WHERE id = $1`, id).Scan(&d.ID, &d.Title, &d.Content, &d.Version, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.NewDatabaseError("get document "+id, err)
	}
	return &d, nil
}

// CreateDocument inserts a new document at version 1.
func (s *Store) CreateDocument(ctx context.Context, title, content string) (*domain.Document, error) {
	if err := domain.ValidateCreate(title, content); err != nil {
		return nil, err
	}

	var d domain.Document
	err := s.pool.QueryRow(ctx, `
INSERT INTO documents (title, content, version)
VALUES ($1, $2, 1)
RETURNING id, title, content, version, created_at, updated_at`, title, content).
		Scan(&d.ID, &d.Title, &d.Content, &d.Version, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, domain.NewDatabaseError("create document", err)
	}
	return &d, nil
}

// UpdateDocument partially updates a document: only the non-nil fields are
// set, but version is always incremented so every revision is distinguishable
// in the vector index's version floor.
func (s *Store) UpdateDocument(ctx context.Context, id string, title, content *string) (*domain.Document, error) {
	if err := domain.ValidateUpdate(title, content); err != nil {
		return nil, err
	}

	sets := []string{"version = version + 1", "updated_at = NOW()"}
	args := []any{}
	argN := 1

	if title != nil {
		argN++
		sets = append(sets, fmt.Sprintf("title = $%d", argN))
		args = append(args, *title)
	}
	if content != nil {
		argN++
		sets = append(sets, fmt.Sprintf("content = $%d", argN))
		args = append(args, *content)
	}

	query := fmt.Sprintf(`
UPDATE documents SET %s
WHERE id = $1
RETURNING id, title, content, version, created_at, updated_at`, strings.Join(sets, ", "))

	var d domain.Document
	row := s.pool.QueryRow(ctx, query, append([]any{id}, args...)...)
	if err := row.Scan(&d.ID, &d.Title, &d.Content, &d.Version, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.NewDatabaseError("update document "+id, err)
	}
	return &d, nil
}

// DeleteDocument removes a document. Returns false (and no error) if no
// document with that ID existed.
func (s *Store) DeleteDocument(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return false, domain.NewDatabaseError("delete document "+id, err)
	}
	return tag.RowsAffected() == 1, nil
}

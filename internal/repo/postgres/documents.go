package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/runlog/internal/repo"
)

const (
	createCollectionQuery = `CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		doc JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	insertDocumentQuery = `INSERT INTO %s (id, doc) VALUES ($1, $2::jsonb)`
	// The array is extended inside the UPDATE so concurrent appends to one
	// document serialise on the row lock instead of overwriting each other.
	appendToArrayQuery = `UPDATE %s
		SET doc = jsonb_set(doc, ARRAY[$2::text], COALESCE(doc -> $2::text, '[]'::jsonb) || jsonb_build_array($3::jsonb), true)
		WHERE id = $1 AND COALESCE(jsonb_typeof(doc -> $2::text), 'array') = 'array'`
	fieldTypeQuery      = `SELECT COALESCE(jsonb_typeof(doc -> $2::text), 'array') FROM %s WHERE id = $1`
	selectDocumentQuery = `SELECT doc FROM %s WHERE id = $1`
	listDocumentsQuery  = `SELECT doc FROM %s ORDER BY created_at, id`
)

// DocumentStore keeps each collection as a table of JSONB documents.
type DocumentStore struct {
	pool Pool
}

func NewDocumentStore(pool Pool) *DocumentStore {
	if pool == nil {
		return nil
	}
	return &DocumentStore{pool: pool}
}

func (s *DocumentStore) EnsureCollection(ctx context.Context, collection string) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("document store not initialized")
	}
	tbl, err := table(collection)
	if err != nil {
		return err
	}
	return withConn(ctx, s.pool, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf(createCollectionQuery, tbl)); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
		return nil
	})
}

func (s *DocumentStore) Insert(ctx context.Context, collection, id string, doc []byte) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("document store not initialized")
	}
	tbl, err := table(collection)
	if err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("document id is required")
	}
	return withConn(ctx, s.pool, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf(insertDocumentQuery, tbl), id, doc); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert document %s: %w", id, repo.ErrConflict)
			}
			return fmt.Errorf("insert document: %w", err)
		}
		return nil
	})
}

func (s *DocumentStore) AppendToArray(ctx context.Context, collection, id, field string, elem []byte) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("document store not initialized")
	}
	tbl, err := table(collection)
	if err != nil {
		return err
	}
	if err := repo.ValidateField(field); err != nil {
		return err
	}
	return withConn(ctx, s.pool, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, fmt.Sprintf(appendToArrayQuery, tbl), strings.TrimSpace(id), field, elem)
		if err != nil {
			return fmt.Errorf("append to %s: %w", field, err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("append to %s: %w", field, err)
		}
		if rows == 0 {
			return appendMiss(ctx, conn, tbl, id, field)
		}
		return nil
	})
}

// appendMiss explains an append that matched no row.
func appendMiss(ctx context.Context, conn *sql.Conn, tbl, id, field string) error {
	var kind string
	err := conn.QueryRowContext(ctx, fmt.Sprintf(fieldTypeQuery, tbl), strings.TrimSpace(id), field).Scan(&kind)
	if err != nil {
		if err = handleNotFound(err); errors.Is(err, repo.ErrNotFound) {
			return err
		}
		return fmt.Errorf("append to %s: %w", field, err)
	}
	return fmt.Errorf("append to %s holding %s: %w", field, kind, repo.ErrNotArray)
}

func (s *DocumentStore) GetByID(ctx context.Context, collection, id string) ([]byte, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("document store not initialized")
	}
	tbl, err := table(collection)
	if err != nil {
		return nil, err
	}
	var doc []byte
	err = withConn(ctx, s.pool, func(conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx, fmt.Sprintf(selectDocumentQuery, tbl), strings.TrimSpace(id))
		return handleNotFound(row.Scan(&doc))
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *DocumentStore) List(ctx context.Context, collection string, limit int) ([][]byte, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("document store not initialized")
	}
	query, args, err := buildListQuery(collection, limit)
	if err != nil {
		return nil, err
	}
	docs := make([][]byte, 0)
	err = withConn(ctx, s.pool, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("list documents: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var doc []byte
			if err := rows.Scan(&doc); err != nil {
				return fmt.Errorf("scan document: %w", err)
			}
			docs = append(docs, doc)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("list documents: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *DocumentStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	return s.pool.Close()
}

func buildListQuery(collection string, limit int) (string, []any, error) {
	tbl, err := table(collection)
	if err != nil {
		return "", nil, err
	}
	query := fmt.Sprintf(listDocumentsQuery, tbl)
	args := make([]any, 0, 1)
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args, nil
}

var _ repo.DocumentStore = (*DocumentStore)(nil)

// Package sqlite implements the document store on SQLite's JSON1 functions.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/animus-labs/runlog/internal/repo"
)

const (
	createCollectionQuery = `CREATE TABLE IF NOT EXISTS "%s" (
		id TEXT PRIMARY KEY,
		doc TEXT NOT NULL CHECK (json_valid(doc)),
		created_at INTEGER NOT NULL
	)`
	insertDocumentQuery = `INSERT INTO "%s" (id, doc, created_at) VALUES (?1, json(?2), ?3)`
	// json_insert with '$[#]' appends in place within one statement.
	appendToArrayQuery = `UPDATE "%s"
		SET doc = json_set(doc, '$.' || ?2, json_insert(COALESCE(json_extract(doc, '$.' || ?2), '[]'), '$[#]', json(?3)))
		WHERE id = ?1 AND COALESCE(json_type(doc, '$.' || ?2), 'array') = 'array'`
	fieldTypeQuery      = `SELECT COALESCE(json_type(doc, '$.' || ?2), 'array') FROM "%s" WHERE id = ?1`
	selectDocumentQuery = `SELECT doc FROM "%s" WHERE id = ?1`
	listDocumentsQuery  = `SELECT doc FROM "%s" ORDER BY created_at, rowid`
)

// DocumentStore keeps each collection as a table of JSON text documents.
type DocumentStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewDocumentStore(db *sql.DB) *DocumentStore {
	if db == nil {
		return nil
	}
	return &DocumentStore{db: db, now: time.Now}
}

func (s *DocumentStore) withConn(ctx context.Context, fn func(conn *sql.Conn) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("document store not initialized")
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()
	return fn(conn)
}

func (s *DocumentStore) EnsureCollection(ctx context.Context, collection string) error {
	if err := repo.ValidateCollection(collection); err != nil {
		return err
	}
	return s.withConn(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf(createCollectionQuery, collection)); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
		return nil
	})
}

func (s *DocumentStore) Insert(ctx context.Context, collection, id string, doc []byte) error {
	if err := repo.ValidateCollection(collection); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("document id is required")
	}
	return s.withConn(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, fmt.Sprintf(insertDocumentQuery, collection), id, string(doc), s.now().UnixNano())
		if err != nil {
			if isPrimaryKeyViolation(err) {
				return fmt.Errorf("insert document %s: %w", id, repo.ErrConflict)
			}
			return fmt.Errorf("insert document: %w", err)
		}
		return nil
	})
}

func (s *DocumentStore) AppendToArray(ctx context.Context, collection, id, field string, elem []byte) error {
	if err := repo.ValidateCollection(collection); err != nil {
		return err
	}
	if err := repo.ValidateField(field); err != nil {
		return err
	}
	return s.withConn(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, fmt.Sprintf(appendToArrayQuery, collection), strings.TrimSpace(id), field, string(elem))
		if err != nil {
			return fmt.Errorf("append to %s: %w", field, err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("append to %s: %w", field, err)
		}
		if rows == 0 {
			return appendMiss(ctx, conn, collection, id, field)
		}
		return nil
	})
}

// appendMiss explains an append that matched no row.
func appendMiss(ctx context.Context, conn *sql.Conn, collection, id, field string) error {
	var kind string
	err := conn.QueryRowContext(ctx, fmt.Sprintf(fieldTypeQuery, collection), strings.TrimSpace(id), field).Scan(&kind)
	if errors.Is(err, sql.ErrNoRows) {
		return repo.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("append to %s: %w", field, err)
	}
	return fmt.Errorf("append to %s holding %s: %w", field, kind, repo.ErrNotArray)
}

func (s *DocumentStore) GetByID(ctx context.Context, collection, id string) ([]byte, error) {
	if err := repo.ValidateCollection(collection); err != nil {
		return nil, err
	}
	var doc string
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		err := conn.QueryRowContext(ctx, fmt.Sprintf(selectDocumentQuery, collection), strings.TrimSpace(id)).Scan(&doc)
		if errors.Is(err, sql.ErrNoRows) {
			return repo.ErrNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return []byte(doc), nil
}

func (s *DocumentStore) List(ctx context.Context, collection string, limit int) ([][]byte, error) {
	if err := repo.ValidateCollection(collection); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(listDocumentsQuery, collection)
	var args []any
	if limit > 0 {
		query += " LIMIT ?1"
		args = append(args, limit)
	}
	docs := make([][]byte, 0)
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("list documents: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var doc string
			if err := rows.Scan(&doc); err != nil {
				return fmt.Errorf("scan document: %w", err)
			}
			docs = append(docs, []byte(doc))
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
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isPrimaryKeyViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed")
	}
	return false
}

var _ repo.DocumentStore = (*DocumentStore)(nil)

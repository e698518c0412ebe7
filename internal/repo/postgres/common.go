package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/animus-labs/runlog/internal/repo"
)

// Pool hands out dedicated connections. *sql.DB satisfies it.
type Pool interface {
	Conn(ctx context.Context) (*sql.Conn, error)
	Close() error
}

// withConn scopes one store operation to a single pooled connection and
// always returns it to the pool.
func withConn(ctx context.Context, pool Pool, fn func(conn *sql.Conn) error) error {
	conn, err := pool.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()
	return fn(conn)
}

func table(collection string) (string, error) {
	if err := repo.ValidateCollection(collection); err != nil {
		return "", err
	}
	return pgx.Identifier{collection}.Sanitize(), nil
}

func handleNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repo.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// Package repo defines the document store collaborator used by the recorder.
package repo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("document already exists")
	ErrNotArray = errors.New("field is not an array")
)

// DocumentStore persists JSON documents keyed by id inside named
// collections. Every mutation is a single targeted statement so concurrent
// writers never lose each other's appends.
type DocumentStore interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context, collection string) error
	// Insert stores doc under id and fails with ErrConflict if id is taken.
	Insert(ctx context.Context, collection, id string, doc []byte) error
	// AppendToArray appends elem to the array at top-level field of the
	// document, creating the array if missing. Returns ErrNotFound when no
	// document has the id and ErrNotArray when the field holds anything else.
	AppendToArray(ctx context.Context, collection, id, field string, elem []byte) error
	GetByID(ctx context.Context, collection, id string) ([]byte, error)
	// List returns documents in insertion order; limit <= 0 means all.
	List(ctx context.Context, collection string, limit int) ([][]byte, error)
	Close() error
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidateCollection restricts collection names to plain SQL identifiers
// because they are interpolated into statements.
func ValidateCollection(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid collection name %q", name)
	}
	return nil
}

// ValidateField restricts array field names to plain identifiers so they
// can be used in JSON paths.
func ValidateField(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid field name %q", name)
	}
	return nil
}

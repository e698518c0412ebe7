package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/animus-labs/runlog/internal/domain"
	"github.com/animus-labs/runlog/internal/repo"
	"github.com/animus-labs/runlog/internal/runid"
)

func (a *app) ensureCollectionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure-collection",
		Short: "Create the collection if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(store repo.DocumentStore) error {
				if err := store.EnsureCollection(cmd.Context(), a.collection); err != nil {
					return fmt.Errorf("ensure collection: %w", err)
				}
				a.logger.Info("collection ready", "collection", a.collection)
				return nil
			})
		},
	}
}

func (a *app) insertCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "insert FILE",
		Short: "Insert a JSON document, minting an id when it has none",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(args[0], a.in)
			if err != nil {
				return err
			}
			id, doc, err := prepareDocument(raw)
			if err != nil {
				return usageError{err: err}
			}
			return a.withStore(cmd.Context(), func(store repo.DocumentStore) error {
				if err := store.Insert(cmd.Context(), a.collection, id, doc); err != nil {
					return fmt.Errorf("insert %s: %w", id, err)
				}
				a.logger.Info("document inserted", "id", id, "collection", a.collection)
				_, err := fmt.Fprintln(a.out, id)
				return err
			})
		},
	}
}

func (a *app) selectAllCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "select-all",
		Short: "Print every document in the collection, one JSON object per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return usagef("--limit must be >= 0")
			}
			return a.withStore(cmd.Context(), func(store repo.DocumentStore) error {
				docs, err := store.List(cmd.Context(), a.collection, limit)
				if err != nil {
					return fmt.Errorf("list documents: %w", err)
				}
				for _, doc := range docs {
					if err := writeLine(a.out, doc); err != nil {
						return err
					}
				}
				a.logger.Debug("documents listed", "count", len(docs))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of documents (0 for all)")
	return cmd
}

func (a *app) selectByIDCommand() *cobra.Command {
	var idFile string
	cmd := &cobra.Command{
		Use:   "select-by-id [ID]",
		Short: "Print one document by id or by the run id stored in --id-file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolveRunID(args, idFile)
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(store repo.DocumentStore) error {
				doc, err := fetchDocument(cmd.Context(), store, a.collection, id)
				if err != nil {
					return err
				}
				return writeLine(a.out, doc)
			})
		},
	}
	cmd.Flags().StringVar(&idFile, "id-file", "", "file written by a recorder, containing {\"run_id\": ...}")
	return cmd
}

func resolveRunID(args []string, idFile string) (string, error) {
	switch {
	case len(args) == 1 && idFile != "":
		return "", usagef("pass either an id or --id-file, not both")
	case len(args) == 1:
		id := strings.TrimSpace(args[0])
		if id == "" {
			return "", usagef("id must not be blank")
		}
		return id, nil
	case idFile != "":
		id, err := runid.Read(idFile)
		if err != nil {
			return "", usageError{err: err}
		}
		return id, nil
	default:
		return "", usagef("an id or --id-file is required")
	}
}

func fetchDocument(ctx context.Context, store repo.DocumentStore, collection, id string) ([]byte, error) {
	doc, err := store.GetByID(ctx, collection, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("document %q not found in %s: %w", id, collection, err)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	return doc, nil
}

// prepareDocument checks that raw is a JSON object and returns its id,
// minting one when the document has no id field.
func prepareDocument(raw []byte) (string, []byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return "", nil, fmt.Errorf("document must be a JSON object: %w", err)
	}
	if doc == nil {
		return "", nil, errors.New("document must be a JSON object")
	}
	var id string
	switch v := doc[domain.FieldID].(type) {
	case nil:
		id = runid.Mint()
		doc[domain.FieldID] = id
	case string:
		id = strings.TrimSpace(v)
		if id == "" {
			return "", nil, errors.New("document id must not be blank")
		}
		doc[domain.FieldID] = id
	default:
		return "", nil, fmt.Errorf("document id must be a string, got %s", domain.TypeName(v))
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return "", nil, err
	}
	return id, out, nil
}

// readInput reads path, or stdin when path is "-".
func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, usageError{err: err}
	}
	return raw, nil
}

func writeLine(w io.Writer, doc []byte) error {
	if _, err := w.Write(bytes.TrimSpace(doc)); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// Package export copies run documents to S3-compatible object storage.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/runlog/internal/storage/objectstore"
)

const contentTypeJSON = "application/json"

type Exporter struct {
	Store  objectstore.Store
	Bucket string
}

// Key returns the object key a run is exported under.
func Key(runID string) string {
	return "runs/" + strings.TrimSpace(runID) + ".json"
}

// Export writes doc to runs/<run_id>.json and returns the stored object as
// reported by the store. doc must be a JSON object; it is stored byte for byte.
func (e Exporter) Export(ctx context.Context, runID string, doc []byte) (objectstore.ObjectInfo, error) {
	if e.Store == nil {
		return objectstore.ObjectInfo{}, errors.New("object store is required")
	}
	if strings.TrimSpace(e.Bucket) == "" {
		return objectstore.ObjectInfo{}, errors.New("bucket is required")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return objectstore.ObjectInfo{}, errors.New("run id is required")
	}
	if strings.ContainsAny(runID, "/\\") {
		return objectstore.ObjectInfo{}, fmt.Errorf("run id %q must not contain path separators", runID)
	}
	trimmed := bytes.TrimSpace(doc)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return objectstore.ObjectInfo{}, errors.New("run document must be a JSON object")
	}

	key := Key(runID)
	size := int64(len(trimmed))
	if err := e.Store.Put(ctx, e.Bucket, key, bytes.NewReader(trimmed), size, contentTypeJSON); err != nil {
		return objectstore.ObjectInfo{}, fmt.Errorf("put %s/%s: %w", e.Bucket, key, err)
	}
	info, err := e.Store.Stat(ctx, e.Bucket, key)
	if err != nil {
		return objectstore.ObjectInfo{}, fmt.Errorf("stat %s/%s: %w", e.Bucket, key, err)
	}
	if info.Size != size {
		return info, fmt.Errorf("stat %s/%s: stored %d bytes, wrote %d", e.Bucket, key, info.Size, size)
	}
	if info.Key == "" {
		info.Key = key
	}
	return info, nil
}

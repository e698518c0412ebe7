package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	platformsqlite "github.com/animus-labs/runlog/internal/platform/sqlite"
	"github.com/animus-labs/runlog/internal/repo"
)

func newTestStore(t *testing.T) *DocumentStore {
	t.Helper()
	db, err := platformsqlite.Open(context.Background(), platformsqlite.Config{Path: platformsqlite.MemoryPath})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	store := NewDocumentStore(db)
	t.Cleanup(func() { _ = store.Close() })
	if err := store.EnsureCollection(context.Background(), "runs"); err != nil {
		t.Fatalf("EnsureCollection() err=%v", err)
	}
	return store
}

type stored struct {
	ID       string            `json:"id"`
	Training []json.RawMessage `json:"training"`
}

func decode(t *testing.T, raw []byte) stored {
	t.Helper()
	var doc stored
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return doc
}

func TestInsertAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if err := store.EnsureCollection(ctx, "runs"); err != nil {
		t.Fatalf("EnsureCollection() must be idempotent: %v", err)
	}
	if err := store.Insert(ctx, "runs", "run-1", []byte(`{"id":"run-1","training":[]}`)); err != nil {
		t.Fatalf("Insert() err=%v", err)
	}
	raw, err := store.GetByID(ctx, "runs", "run-1")
	if err != nil {
		t.Fatalf("GetByID() err=%v", err)
	}
	if doc := decode(t, raw); doc.ID != "run-1" || len(doc.Training) != 0 {
		t.Fatalf("unexpected document %s", raw)
	}
	if _, err := store.GetByID(ctx, "runs", "run-2"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("GetByID(missing) err=%v, want ErrNotFound", err)
	}
}

func TestInsertDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if err := store.Insert(ctx, "runs", "run-1", []byte(`{"id":"run-1"}`)); err != nil {
		t.Fatalf("Insert() err=%v", err)
	}
	err := store.Insert(ctx, "runs", "run-1", []byte(`{"id":"run-1"}`))
	if !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("Insert(duplicate) err=%v, want ErrConflict", err)
	}
}

func TestInsertRejectsInvalidJSON(t *testing.T) {
	store := newTestStore(t)
	if err := store.Insert(context.Background(), "runs", "run-1", []byte(`{"id":`)); err == nil {
		t.Fatalf("expected malformed document to be rejected")
	}
}

func TestAppendToArray(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if err := store.Insert(ctx, "runs", "run-1", []byte(`{"id":"run-1","training":[]}`)); err != nil {
		t.Fatalf("Insert() err=%v", err)
	}
	for i := 0; i < 3; i++ {
		elem := fmt.Sprintf(`{"epoch_id":%d,"epoch_data":{"aa":[1,2]}}`, i)
		if err := store.AppendToArray(ctx, "runs", "run-1", "training", []byte(elem)); err != nil {
			t.Fatalf("AppendToArray() err=%v", err)
		}
	}
	raw, err := store.GetByID(ctx, "runs", "run-1")
	if err != nil {
		t.Fatalf("GetByID() err=%v", err)
	}
	doc := decode(t, raw)
	if len(doc.Training) != 3 {
		t.Fatalf("training=%d, want 3: %s", len(doc.Training), raw)
	}
	for i, rec := range doc.Training {
		var r struct {
			EpochID int `json:"epoch_id"`
		}
		if err := json.Unmarshal(rec, &r); err != nil {
			t.Fatalf("decode record: %v", err)
		}
		if r.EpochID != i {
			t.Fatalf("record %d has epoch_id %d", i, r.EpochID)
		}
	}
}

func TestAppendCreatesMissingArray(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if err := store.Insert(ctx, "runs", "run-1", []byte(`{"id":"run-1"}`)); err != nil {
		t.Fatalf("Insert() err=%v", err)
	}
	if err := store.AppendToArray(ctx, "runs", "run-1", "training", []byte(`"x"`)); err != nil {
		t.Fatalf("AppendToArray() err=%v", err)
	}
	raw, _ := store.GetByID(ctx, "runs", "run-1")
	if doc := decode(t, raw); len(doc.Training) != 1 || string(doc.Training[0]) != `"x"` {
		t.Fatalf("unexpected document %s", raw)
	}
}

func TestAppendMissingDocument(t *testing.T) {
	store := newTestStore(t)
	err := store.AppendToArray(context.Background(), "runs", "nope", "training", []byte(`{}`))
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("AppendToArray(missing) err=%v, want ErrNotFound", err)
	}
}

func TestAppendRejectsNonArrayField(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	docs := map[string]string{
		"run-object": `{"id":"run-object","training":{"epoch":1}}`,
		"run-scalar": `{"id":"run-scalar","training":5}`,
		"run-null":   `{"id":"run-null","training":null}`,
	}
	for id, doc := range docs {
		if err := store.Insert(ctx, "runs", id, []byte(doc)); err != nil {
			t.Fatalf("Insert(%s) err=%v", id, err)
		}
		err := store.AppendToArray(ctx, "runs", id, "training", []byte(`{"epoch_id":0}`))
		if !errors.Is(err, repo.ErrNotArray) {
			t.Fatalf("AppendToArray(%s) err=%v, want ErrNotArray", id, err)
		}
		raw, err := store.GetByID(ctx, "runs", id)
		if err != nil {
			t.Fatalf("GetByID(%s) err=%v", id, err)
		}
		var got, want any
		_ = json.Unmarshal(raw, &got)
		_ = json.Unmarshal([]byte(doc), &want)
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Fatalf("rejected append modified %s: %s", id, raw)
		}
	}
}

func TestAppendInvalidElementLeavesDocument(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if err := store.Insert(ctx, "runs", "run-1", []byte(`{"id":"run-1","training":[1]}`)); err != nil {
		t.Fatalf("Insert() err=%v", err)
	}
	if err := store.AppendToArray(ctx, "runs", "run-1", "training", []byte(`{bad`)); err == nil {
		t.Fatalf("expected malformed element to fail")
	}
	raw, _ := store.GetByID(ctx, "runs", "run-1")
	if doc := decode(t, raw); len(doc.Training) != 1 {
		t.Fatalf("failed append modified document: %s", raw)
	}
}

func TestConcurrentAppendsAreNotLost(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if err := store.Insert(ctx, "runs", "run-1", []byte(`{"id":"run-1","training":[]}`)); err != nil {
		t.Fatalf("Insert() err=%v", err)
	}
	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.AppendToArray(ctx, "runs", "run-1", "training", []byte(fmt.Sprintf(`{"epoch_id":%d}`, i)))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("AppendToArray() err=%v", err)
		}
	}
	raw, _ := store.GetByID(ctx, "runs", "run-1")
	if doc := decode(t, raw); len(doc.Training) != writers {
		t.Fatalf("training=%d, want %d", len(doc.Training), writers)
	}
}

func TestListInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	for _, id := range []string{"b", "a", "c"} {
		if err := store.Insert(ctx, "runs", id, []byte(fmt.Sprintf(`{"id":%q}`, id))); err != nil {
			t.Fatalf("Insert() err=%v", err)
		}
	}
	docs, err := store.List(ctx, "runs", 0)
	if err != nil {
		t.Fatalf("List() err=%v", err)
	}
	if len(docs) != 3 || decode(t, docs[0]).ID != "b" || decode(t, docs[2]).ID != "c" {
		t.Fatalf("unexpected order: %q", docs)
	}
	docs, err = store.List(ctx, "runs", 2)
	if err != nil {
		t.Fatalf("List() err=%v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("List(limit=2) returned %d", len(docs))
	}
}

func TestRejectsInvalidCollection(t *testing.T) {
	store := newTestStore(t)
	if err := store.EnsureCollection(context.Background(), `runs"; DROP TABLE runs; --`); err == nil {
		t.Fatalf("expected invalid collection to be rejected")
	}
}

package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/animus-labs/runlog/internal/domain"
	"github.com/animus-labs/runlog/internal/metricfilter"
	"github.com/animus-labs/runlog/internal/metrics"
	"github.com/animus-labs/runlog/internal/platform/postgres"
	platformsqlite "github.com/animus-labs/runlog/internal/platform/sqlite"
	"github.com/animus-labs/runlog/internal/repo"
	pgrepo "github.com/animus-labs/runlog/internal/repo/postgres"
	sqliterepo "github.com/animus-labs/runlog/internal/repo/sqlite"
	"github.com/animus-labs/runlog/internal/runid"
	"github.com/animus-labs/runlog/internal/typeguard"
)

type Recorder struct {
	store      repo.DocumentStore
	ownsStore  bool
	collection string
	runID      string
	allow      metricfilter.Set
	policy     typeguard.Policy
	logger     *slog.Logger
	metrics    *metrics.Recorder
	appended   int
}

// Open connects to the configured store, then behaves like New. The
// returned Recorder owns the connection; call Close when training ends.
func Open(ctx context.Context, cfg Config) (*Recorder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &Error{Kind: KindConfig, Op: "open", Err: err}
	}
	store, err := Connect(ctx, cfg.StoreConfig)
	if err != nil {
		return nil, &Error{Kind: KindStorage, Op: "connect", Err: err}
	}
	if cfg.CreateCollection {
		if err := store.EnsureCollection(ctx, cfg.Collection); err != nil {
			_ = store.Close()
			return nil, &Error{Kind: KindStorage, Op: "create collection", Err: err}
		}
	}
	r, err := New(ctx, store, cfg.Options)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	r.ownsStore = true
	return r, nil
}

// Connect opens the store selected by cfg. The caller owns the returned store.
func Connect(ctx context.Context, cfg StoreConfig) (repo.DocumentStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendPostgres:
		dbCfg, err := postgresConfig(cfg)
		if err != nil {
			return nil, err
		}
		db, err := postgres.Open(ctx, dbCfg)
		if err != nil {
			return nil, err
		}
		return pgrepo.NewDocumentStore(db), nil
	case BackendSQLite:
		db, err := platformsqlite.Open(ctx, cfg.SQLite)
		if err != nil {
			return nil, err
		}
		return sqliterepo.NewDocumentStore(db), nil
	}
	return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
}

func postgresConfig(cfg StoreConfig) (postgres.Config, error) {
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		return postgres.ConfigFromURL(cfg.DatabaseURL)
	}
	return postgres.ConfigFromCredentials(cfg.Credentials)
}

// New creates the run document in store and writes the id file. The store
// stays owned by the caller.
func New(ctx context.Context, store repo.DocumentStore, opts Options) (*Recorder, error) {
	if store == nil {
		return nil, &Error{Kind: KindConfig, Op: "create", Err: errors.New("document store is required")}
	}
	if err := opts.Validate(); err != nil {
		return nil, &Error{Kind: KindConfig, Op: "create", Err: err}
	}
	opts = opts.withDefaults()

	mint := opts.mintID
	if mint == nil {
		mint = runid.Mint
	}
	now := opts.now
	if now == nil {
		now = time.Now
	}
	userName := strings.TrimSpace(opts.User)
	if userName == "" {
		userName = currentUser()
	}

	doc := domain.NewRunDocument(mint(), opts.Config, userName, now())
	if err := doc.Validate(); err != nil {
		return nil, &Error{Kind: KindConfig, Op: "create", Err: err}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, &Error{Kind: KindConfig, Op: "encode run document", RunID: doc.ID, Err: err}
	}

	r := &Recorder{
		store:      store,
		collection: opts.Collection,
		runID:      doc.ID,
		allow:      metricfilter.NewSet(opts.Variables...),
		policy:     opts.OnUnknownType,
		logger:     opts.Logger.With("run_id", doc.ID, "collection", opts.Collection),
		metrics:    opts.Metrics,
	}

	started := time.Now()
	err = store.Insert(ctx, r.collection, r.runID, raw)
	r.metrics.ObserveStoreOp("insert", time.Since(started))
	if err != nil {
		return nil, &Error{Kind: KindStorage, Op: "insert run document", RunID: r.runID, Err: err}
	}
	if err := runid.Persist(r.runID, opts.IDFile); err != nil {
		r.logger.Error("run document inserted but id file not written", "id_file", opts.IDFile, "error", err)
		return nil, &Error{Kind: KindIO, Op: "persist run id", RunID: r.runID, Orphaned: true, Err: err}
	}

	r.logger.Info("run document created", "user", userName, "id_file", opts.IDFile, "variables", r.allow.Names(), "on_unknown_type", string(r.policy))
	return r, nil
}

func (r *Recorder) RunID() string { return r.runID }

// Appended returns the number of successful AppendEpoch calls.
func (r *Recorder) Appended() int { return r.appended }

// AppendEpoch filters and guards data, then appends it as one record to the
// run document's training log. data must be a mapping (map[string]any,
// map[string]T, domain.Metadata or a mapping domain.Value).
func (r *Recorder) AppendEpoch(ctx context.Context, epochID int, data any) error {
	value := domain.FromAny(data)
	if value.Kind() == domain.KindNull {
		value = domain.MappingValue(nil)
	}
	if value.Kind() != domain.KindMapping {
		r.metrics.IncEpoch(metrics.EpochTypeError)
		return &Error{Kind: KindType, Op: "append epoch", RunID: r.runID, Err: fmt.Errorf("epoch data must be a mapping, got %s", value.Kind())}
	}

	filtered := metricfilter.Filter(value, r.allow)
	guarded, report, err := typeguard.Apply(filtered, r.policy)
	if err != nil {
		r.metrics.IncEpoch(metrics.EpochTypeError)
		return &Error{Kind: KindType, Op: "append epoch", RunID: r.runID, Err: err}
	}
	r.reportGuarded(epochID, report)

	record := domain.EpochRecord{EpochID: epochID, EpochData: guarded}
	if err := record.Validate(); err != nil {
		r.metrics.IncEpoch(metrics.EpochTypeError)
		return &Error{Kind: KindType, Op: "append epoch", RunID: r.runID, Err: err}
	}
	raw, err := json.Marshal(record)
	if err != nil {
		r.metrics.IncEpoch(metrics.EpochTypeError)
		return &Error{Kind: KindType, Op: "encode epoch", RunID: r.runID, Err: err}
	}

	started := time.Now()
	err = r.store.AppendToArray(ctx, r.collection, r.runID, domain.FieldTraining, raw)
	r.metrics.ObserveStoreOp("append", time.Since(started))
	if err != nil {
		r.metrics.IncEpoch(metrics.EpochStorageError)
		r.logger.Warn("epoch append failed", "epoch_id", epochID, "error", err)
		return &Error{Kind: KindStorage, Op: "append epoch", RunID: r.runID, Err: err}
	}
	r.appended++
	r.metrics.IncEpoch(metrics.EpochAppended)
	r.logger.Debug("epoch appended", "epoch_id", epochID, "bytes", len(raw))
	return nil
}

func (r *Recorder) reportGuarded(epochID int, report typeguard.Report) {
	r.metrics.AddGuarded(metrics.GuardDropped, len(report.Dropped))
	r.metrics.AddGuarded(metrics.GuardCoerced, len(report.Coerced))
	if r.policy == typeguard.PolicyWarn {
		for _, issue := range report.Dropped {
			r.logger.Warn("dropping metric of unknown type", "epoch_id", epochID, "path", issue.Path, "type", issue.GoType)
		}
	}
	for _, issue := range report.Coerced {
		r.logger.Debug("coerced metric of unknown type to string", "epoch_id", epochID, "path", issue.Path, "type", issue.GoType)
	}
}

// Document fetches the run document as currently stored.
func (r *Recorder) Document(ctx context.Context) (domain.RunDocument, error) {
	started := time.Now()
	raw, err := r.store.GetByID(ctx, r.collection, r.runID)
	r.metrics.ObserveStoreOp("get", time.Since(started))
	if err != nil {
		return domain.RunDocument{}, &Error{Kind: KindStorage, Op: "get run document", RunID: r.runID, Err: err}
	}
	doc, err := domain.DecodeRunDocument(raw)
	if err != nil {
		return domain.RunDocument{}, &Error{Kind: KindStorage, Op: "get run document", RunID: r.runID, Err: err}
	}
	return doc, nil
}

// Close releases the store connection if the Recorder opened it.
func (r *Recorder) Close() error {
	if r == nil || !r.ownsStore {
		return nil
	}
	r.ownsStore = false
	return r.store.Close()
}

func currentUser() string {
	if u, err := user.Current(); err == nil && strings.TrimSpace(u.Username) != "" {
		return u.Username
	}
	for _, key := range []string{"USER", "USERNAME", "LOGNAME"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return "unknown"
}

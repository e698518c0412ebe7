package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/animus-labs/runlog/internal/platform/credentials"
	"github.com/animus-labs/runlog/internal/platform/env"
	platformsqlite "github.com/animus-labs/runlog/internal/platform/sqlite"
	"github.com/animus-labs/runlog/internal/recorder"
	"github.com/animus-labs/runlog/internal/repo"
)

const (
	exitFailure = 1
	exitUsage   = 2
)

// usageError marks errors caused by invalid flags or configuration.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{err: fmt.Errorf(format, args...)}
}

func exitCode(err error) int {
	var usage usageError
	if errors.As(err, &usage) || recorder.IsKind(err, recorder.KindConfig) {
		return exitUsage
	}
	return exitFailure
}

type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	logger *slog.Logger

	credentialsFile string
	backend         string
	collection      string
	sqlitePath      string
	verbose         bool
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	a := &app{in: in, out: out, errOut: errOut}
	a.logger = newLogger(errOut, false)
	return a
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func (a *app) execute(ctx context.Context, args []string) error {
	root := a.rootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "runlog",
		Short:         "Record and inspect training-run documents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.logger = newLogger(a.errOut, a.verbose)
			return nil
		},
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.credentialsFile, "credentials", "c", "", "YAML or JSON credentials file (default: RUNLOG_DATABASE_URL, then RUNLOG_DB_* environment)")
	flags.StringVar(&a.backend, "backend", env.String("RUNLOG_BACKEND", recorder.BackendPostgres), "document store backend: postgres or sqlite")
	flags.StringVar(&a.collection, "collection", env.String("RUNLOG_COLLECTION", "runs"), "collection holding run documents")
	flags.StringVar(&a.sqlitePath, "sqlite-path", "", "SQLite database file (default: RUNLOG_SQLITE_PATH)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		a.ensureCollectionCommand(),
		a.insertCommand(),
		a.selectAllCommand(),
		a.selectByIDCommand(),
		a.recordCommand(),
		a.exportCommand(),
	)
	return root
}

func (a *app) storeConfig() (recorder.StoreConfig, error) {
	cfg := recorder.StoreConfig{Backend: strings.ToLower(strings.TrimSpace(a.backend))}
	switch cfg.Backend {
	case recorder.BackendPostgres:
		var (
			creds credentials.Credentials
			err   error
		)
		switch databaseURL := env.String("RUNLOG_DATABASE_URL", ""); {
		case a.credentialsFile != "":
			creds, err = credentials.Load(a.credentialsFile)
		case databaseURL != "":
			cfg.DatabaseURL = databaseURL
		default:
			creds, err = credentials.FromEnv()
		}
		if err != nil {
			return recorder.StoreConfig{}, usageError{err: err}
		}
		cfg.Credentials = creds
	case recorder.BackendSQLite:
		sqliteCfg, err := platformsqlite.ConfigFromEnv()
		if err != nil {
			return recorder.StoreConfig{}, usageError{err: err}
		}
		if a.sqlitePath != "" {
			sqliteCfg.Path = a.sqlitePath
		}
		cfg.SQLite = sqliteCfg
	default:
		return recorder.StoreConfig{}, usagef("unsupported backend %q", a.backend)
	}
	if err := cfg.Validate(); err != nil {
		return recorder.StoreConfig{}, usageError{err: err}
	}
	if err := repo.ValidateCollection(a.collection); err != nil {
		return recorder.StoreConfig{}, usageError{err: err}
	}
	return cfg, nil
}

func (a *app) openStore(ctx context.Context) (repo.DocumentStore, error) {
	cfg, err := a.storeConfig()
	if err != nil {
		return nil, err
	}
	store, err := recorder.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Backend, err)
	}
	a.logger.Debug("connected", "backend", cfg.Backend, "collection", a.collection)
	return store, nil
}

// withStore runs fn with a freshly opened store and closes it afterwards.
func (a *app) withStore(ctx context.Context, fn func(store repo.DocumentStore) error) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			a.logger.Warn("close store", "error", err)
		}
	}()
	return fn(store)
}

package recorder

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/animus-labs/runlog/internal/domain"
	"github.com/animus-labs/runlog/internal/metrics"
	"github.com/animus-labs/runlog/internal/platform/credentials"
	platformsqlite "github.com/animus-labs/runlog/internal/platform/sqlite"
	"github.com/animus-labs/runlog/internal/repo"
	"github.com/animus-labs/runlog/internal/typeguard"
)

const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Options configure a Recorder over an existing store.
type Options struct {
	Collection string
	// Config is snapshotted into the run document at creation.
	Config domain.Metadata
	// IDFile receives {"run_id": "<id>"} once the document exists.
	IDFile string
	// Variables restricts stored metrics; empty stores everything.
	Variables []string
	// OnUnknownType defaults to typeguard.DefaultPolicy.
	OnUnknownType typeguard.Policy
	// User defaults to the owner of the current process.
	User string

	Logger  *slog.Logger
	Metrics *metrics.Recorder

	now    func() time.Time
	mintID func() string
}

func (o Options) Validate() error {
	if err := repo.ValidateCollection(o.Collection); err != nil {
		return err
	}
	if strings.TrimSpace(o.IDFile) == "" {
		return errors.New("id file path is required")
	}
	if o.OnUnknownType != "" {
		if err := o.OnUnknownType.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.OnUnknownType == "" {
		o.OnUnknownType = typeguard.DefaultPolicy
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Config == nil {
		o.Config = domain.Metadata{}
	}
	return o
}

// StoreConfig selects the document store backend.
type StoreConfig struct {
	Backend     string
	Credentials credentials.Credentials
	// DatabaseURL, when set, is used for postgres instead of Credentials.
	DatabaseURL string
	SQLite      platformsqlite.Config
}

func (c StoreConfig) Validate() error {
	switch c.Backend {
	case BackendPostgres:
		if strings.TrimSpace(c.DatabaseURL) != "" {
			return nil
		}
		return c.Credentials.Validate()
	case BackendSQLite:
		return c.SQLite.Validate()
	default:
		return fmt.Errorf("unsupported backend %q", c.Backend)
	}
}

// Config is everything Open needs to connect and start a run.
type Config struct {
	StoreConfig
	// CreateCollection creates the collection before the run document is inserted.
	CreateCollection bool
	Options
}

func (c Config) Validate() error {
	if err := c.StoreConfig.Validate(); err != nil {
		return err
	}
	return c.Options.Validate()
}

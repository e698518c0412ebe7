// Package credentials holds the typed connection settings for the document store.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/animus-labs/runlog/internal/platform/env"
)

const DefaultDatabase = "runlog"

// Credentials identify a document store server. JSON credential files are
// accepted as well since JSON is a subset of YAML.
type Credentials struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
	SSLMode  string `json:"sslmode,omitempty" yaml:"sslmode,omitempty"`
}

func Load(path string) (Credentials, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Credentials{}, errors.New("credentials path is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("read credentials: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (Credentials, error) {
	var c Credentials
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Credentials{}, fmt.Errorf("decode credentials: %w", err)
	}
	c = c.withDefaults()
	if err := c.Validate(); err != nil {
		return Credentials{}, err
	}
	return c, nil
}

func FromEnv() (Credentials, error) {
	port, err := env.Int("RUNLOG_DB_PORT", 5432)
	if err != nil {
		return Credentials{}, err
	}
	c := Credentials{
		Host:     env.String("RUNLOG_DB_HOST", "localhost"),
		Port:     port,
		User:     env.String("RUNLOG_DB_USER", "runlog"),
		Password: env.String("RUNLOG_DB_PASSWORD", ""),
		Database: env.String("RUNLOG_DB_NAME", DefaultDatabase),
		SSLMode:  env.String("RUNLOG_DB_SSLMODE", "disable"),
	}.withDefaults()
	if err := c.Validate(); err != nil {
		return Credentials{}, err
	}
	return c, nil
}

func (c Credentials) withDefaults() Credentials {
	if strings.TrimSpace(c.Database) == "" {
		c.Database = DefaultDatabase
	}
	if strings.TrimSpace(c.SSLMode) == "" {
		c.SSLMode = "disable"
	}
	return c
}

func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("credentials host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("credentials port out of range: %d", c.Port)
	}
	if strings.TrimSpace(c.User) == "" {
		return errors.New("credentials user is required")
	}
	return nil
}

// String omits the password.
func (c Credentials) String() string {
	return fmt.Sprintf("%s@%s:%d/%s", c.User, c.Host, c.Port, c.Database)
}

package credentials

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rethink_credentials.json")
	raw := `{"host": "localhost", "port": 28015, "user": "admin", "password": ""}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if c.Host != "localhost" || c.Port != 28015 || c.User != "admin" {
		t.Fatalf("unexpected credentials: %+v", c)
	}
	if c.Database != DefaultDatabase || c.SSLMode != "disable" {
		t.Fatalf("expected defaults, got %+v", c)
	}
}

func TestParseYAML(t *testing.T) {
	c, err := Parse([]byte("host: db.internal\nport: 5432\nuser: trainer\npassword: s3cret\ndatabase: metrics\n"))
	if err != nil {
		t.Fatalf("Parse() err=%v", err)
	}
	if c.Database != "metrics" {
		t.Fatalf("Database=%q, want metrics", c.Database)
	}
	if strings.Contains(c.String(), "s3cret") {
		t.Fatalf("String() leaks password: %s", c.String())
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		c    Credentials
	}{
		{name: "missing host", c: Credentials{Port: 5432, User: "u"}},
		{name: "zero port", c: Credentials{Host: "h", User: "u"}},
		{name: "port too large", c: Credentials{Host: "h", Port: 70000, User: "u"}},
		{name: "missing user", c: Credentials{Host: "h", Port: 5432}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.c.Validate(); err == nil {
				t.Fatalf("Validate() expected error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("Load() expected error")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("RUNLOG_DB_HOST", "pg")
	t.Setenv("RUNLOG_DB_PORT", "6543")
	c, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() err=%v", err)
	}
	if c.Host != "pg" || c.Port != 6543 {
		t.Fatalf("unexpected credentials: %+v", c)
	}
}

// Package runid mints run identifiers and maintains the local side-channel
// file through which operators discover a run's document id.
package runid

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Descriptor is the content of the side-channel file.
type Descriptor struct {
	RunID string `json:"run_id"`
}

// Mint returns a random (version 4) UUID.
func Mint() string {
	return uuid.NewString()
}

// Persist writes {"run_id": "<id>"} to path, replacing any previous content.
func Persist(id, path string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(path) == "" {
		return errors.New("id file path is required")
	}
	quoted, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}
	raw := `{"run_id": ` + string(quoted) + `}`
	if err := os.WriteFile(filepath.Clean(path), []byte(raw), 0o644); err != nil {
		return fmt.Errorf("write id file: %w", err)
	}
	return nil
}

// Read returns the run id stored in a side-channel file.
func Read(path string) (string, error) {
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("read id file: %w", err)
	}
	var d Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return "", fmt.Errorf("decode id file: %w", err)
	}
	if strings.TrimSpace(d.RunID) == "" {
		return "", fmt.Errorf("id file %s has no run_id", path)
	}
	return d.RunID, nil
}

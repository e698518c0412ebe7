package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Document field names shared by the recorder and the stores.
const (
	FieldID       = "id"
	FieldTraining = "training"
)

// RunDocument is the single persisted artifact of a training run.
type RunDocument struct {
	ID        string        `json:"id"`
	Config    Metadata      `json:"config"`
	User      string        `json:"user"`
	CreatedAt time.Time     `json:"created_at"`
	Training  []EpochRecord `json:"training"`
}

// EpochRecord is one completed epoch as stored in RunDocument.Training.
type EpochRecord struct {
	EpochID   int   `json:"epoch_id"`
	EpochData Value `json:"epoch_data"`
}

func NewRunDocument(id string, config Metadata, user string, createdAt time.Time) RunDocument {
	return RunDocument{
		ID:        strings.TrimSpace(id),
		Config:    config.Clone(),
		User:      user,
		CreatedAt: createdAt.UTC(),
		Training:  []EpochRecord{},
	}
}

func (d RunDocument) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return errors.New("run id is required")
	}
	if d.CreatedAt.IsZero() {
		return errors.New("created at is required")
	}
	return nil
}

func (r EpochRecord) Validate() error {
	if r.EpochData.Kind() != KindMapping {
		return fmt.Errorf("epoch data must be a mapping, got %s", r.EpochData.Kind())
	}
	return nil
}

// DecodeRunDocument parses a stored document keeping numbers as json.Number.
func DecodeRunDocument(raw []byte) (RunDocument, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc RunDocument
	if err := dec.Decode(&doc); err != nil {
		return RunDocument{}, fmt.Errorf("decode run document: %w", err)
	}
	if doc.Config == nil {
		doc.Config = Metadata{}
	}
	if doc.Training == nil {
		doc.Training = []EpochRecord{}
	}
	return doc, nil
}

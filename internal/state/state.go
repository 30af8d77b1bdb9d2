// Package state persists the small record describing what the user was last told.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"penwatch/internal/decision"
)

// CurrentVersion is the schema version written by Save.
// Version 0 files come from earlier revisions that only stored last_price.
const CurrentVersion = 2

// Record is the persisted state.
type Record struct {
	Version        int             `json:"version"`
	LastPrice      decimal.Decimal `json:"last_price"`
	LastOpenedDate string          `json:"last_opened_date,omitempty"`
	LastClosedDate string          `json:"last_closed_date,omitempty"`
	UpdatedAt      *time.Time      `json:"updated_at,omitempty"`
}

// Memory projects the record onto the decision engine's view.
func (r Record) Memory() decision.Memory {
	return decision.Memory{
		LastPrice:      r.LastPrice,
		LastOpenedDate: r.LastOpenedDate,
		LastClosedDate: r.LastClosedDate,
	}
}

// WithMemory returns a copy of the record carrying the engine's updated fields.
func (r Record) WithMemory(m decision.Memory) Record {
	r.LastPrice = m.LastPrice
	r.LastOpenedDate = m.LastOpenedDate
	r.LastClosedDate = m.LastClosedDate
	return r
}

// File is a JSON file backed store. It is not locked; the last writer wins.
type File struct {
	path string
	now  func() time.Time
}

// NewFile creates a file store at path.
func NewFile(path string) *File {
	return &File{path: path, now: time.Now}
}

// Path returns the backing file location.
func (f *File) Path() string {
	return f.path
}

// Load reads the record. A missing file yields defaults and no error; an
// unreadable or corrupt file yields defaults together with the cause.
func (f *File) Load() (Record, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, nil
		}
		return Record{}, fmt.Errorf("read state: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode state: %w", err)
	}

	return rec, nil
}

// Save overwrites the whole record atomically via a temp file and rename.
func (f *File) Save(rec Record) error {
	rec.Version = CurrentVersion
	now := f.now().UTC()
	rec.UpdatedAt = &now

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".penwatch-state-*")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}

	return nil
}

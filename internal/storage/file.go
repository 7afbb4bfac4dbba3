package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"facilitywatch/internal/logger"
)

// File stores the snapshot as one JSON document. Writes go to a temporary
// file in the same directory and are renamed over the target, so a crash
// never leaves a truncated snapshot behind.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile returns a file snapshotter, creating the parent directory
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("storage: snapshot path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &File{path: path}, nil
}

// Path returns the snapshot location
func (f *File) Path() string {
	return f.path
}

func (f *File) Save(ctx context.Context, doc *Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}

	log := logger.WithComponent("storage")
	log.Debug().
		Str("path", f.path).
		Int("equipment", len(doc.Equipment)).
		Int("alerts", len(doc.Alerts)).
		Int("bytes", len(data)).
		Msg("snapshot saved")
	return nil
}

func (f *File) Load(ctx context.Context) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	data, err := os.ReadFile(f.path)
	f.mu.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrCorruptSnapshot, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	return &doc, nil
}

// Quarantine renames the snapshot to <path>.corrupt-<timestamp> so the next
// save starts from a clean file. It returns the new location.
func (f *File) Quarantine(now time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	dst := f.path + ".corrupt-" + now.UTC().Format("20060102T150405.000Z")
	if err := os.Rename(f.path, dst); err != nil {
		return "", fmt.Errorf("quarantine snapshot: %w", err)
	}
	return dst, nil
}

func (f *File) Close() error {
	return nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"facilitywatch/internal/models"
)

var (
	// ErrNoSnapshot is returned by Load when nothing has been saved yet
	ErrNoSnapshot = errors.New("storage: no snapshot")
	// ErrCorruptSnapshot marks a snapshot that was read but cannot be used
	ErrCorruptSnapshot = errors.New("storage: corrupt snapshot")
)

// Document is the persisted form of both aggregates
type Document struct {
	SavedAt   time.Time          `json:"savedAt"`
	Equipment []models.Equipment `json:"equipment"`
	Alerts    []models.Alert     `json:"alerts"`
}

// Validate checks every record in the document
func (d *Document) Validate() error {
	for i := range d.Equipment {
		if err := d.Equipment[i].Validate(); err != nil {
			return fmt.Errorf("equipment %q: %w", d.Equipment[i].ID, err)
		}
	}
	for i := range d.Alerts {
		if err := d.Alerts[i].Validate(); err != nil {
			return fmt.Errorf("alert %q: %w", d.Alerts[i].ID, err)
		}
	}
	return nil
}

// Snapshotter persists and restores the engine state
type Snapshotter interface {
	Save(ctx context.Context, doc *Document) error
	Load(ctx context.Context) (*Document, error)
	Close() error
}

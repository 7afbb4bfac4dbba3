package state

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"facilitywatch/internal/models"
)

// ErrNotFound is returned when an equipment ID is not in the fleet
var ErrNotFound = errors.New("equipment not found")

// Snapshot is an immutable, internally consistent version of the equipment
// collection. Holders must treat Equipment as read-only.
type Snapshot struct {
	Version   uint64
	TakenAt   time.Time
	Equipment []models.Equipment
}

// Find looks up equipment by ID within the snapshot
func (s *Snapshot) Find(id string) (models.Equipment, bool) {
	for _, e := range s.Equipment {
		if e.ID == id {
			return e, true
		}
	}
	return models.Equipment{}, false
}

// Clone returns a deep copy of the snapshot's equipment that callers may modify
func (s *Snapshot) Clone() []models.Equipment {
	return cloneAll(s.Equipment)
}

// Fleet owns the equipment aggregate. Writers are serialized and each write
// publishes a fresh Snapshot by swapping one pointer, so readers never see a
// half-updated record and never block on a writer.
type Fleet struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

// NewFleet creates a fleet holding a private copy of equipment
func NewFleet(equipment []models.Equipment) *Fleet {
	f := &Fleet{}
	f.current.Store(&Snapshot{
		Version:   1,
		TakenAt:   time.Now().UTC(),
		Equipment: cloneAll(equipment),
	})
	return f
}

// Snapshot returns the current published snapshot without copying
func (f *Fleet) Snapshot() *Snapshot {
	return f.current.Load()
}

// Equipment returns a deep copy of the current equipment list
func (f *Fleet) Equipment() []models.Equipment {
	return f.current.Load().Clone()
}

// Find returns a copy of one equipment record
func (f *Fleet) Find(id string) (models.Equipment, error) {
	e, ok := f.current.Load().Find(id)
	if !ok {
		return models.Equipment{}, ErrNotFound
	}
	return e.Clone(), nil
}

// Len returns the number of equipment records
func (f *Fleet) Len() int {
	return len(f.current.Load().Equipment)
}

// Update applies fn to a private copy of the equipment list and publishes the
// result as the next snapshot. If fn returns an error nothing is published
// and the error is returned unchanged.
func (f *Fleet) Update(fn func(equipment []models.Equipment) error) (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev := f.current.Load()
	working := cloneAll(prev.Equipment)
	if err := fn(working); err != nil {
		return prev, err
	}

	next := &Snapshot{
		Version:   prev.Version + 1,
		TakenAt:   time.Now().UTC(),
		Equipment: working,
	}
	f.current.Store(next)
	return next, nil
}

// Replace publishes an entirely new equipment list
func (f *Fleet) Replace(equipment []models.Equipment) *Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := &Snapshot{
		Version:   f.current.Load().Version + 1,
		TakenAt:   time.Now().UTC(),
		Equipment: cloneAll(equipment),
	}
	f.current.Store(next)
	return next
}

// CountByStatus tallies the current snapshot per status
func (s *Snapshot) CountByStatus() map[models.Status]int {
	counts := make(map[models.Status]int, len(models.Statuses))
	for _, st := range models.Statuses {
		counts[st] = 0
	}
	for _, e := range s.Equipment {
		counts[e.Status]++
	}
	return counts
}

func cloneAll(in []models.Equipment) []models.Equipment {
	out := make([]models.Equipment, len(in))
	for i, e := range in {
		out[i] = e.Clone()
	}
	return out
}

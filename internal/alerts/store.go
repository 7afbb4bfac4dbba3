package alerts

import (
	"errors"
	"sort"
	"sync"

	"facilitywatch/internal/models"
)

var (
	// ErrDuplicateID is returned when an alert ID is already present
	ErrDuplicateID = errors.New("alert: duplicate id")
	// ErrNotFound indicates a missing alert
	ErrNotFound = errors.New("alert: not found")
)

// Store is the ordered alert collection. Alerts are kept newest first; alerts
// with equal timestamps keep their insertion order. Nothing is ever deleted.
// Readers always receive copies, so a snapshot never changes under them.
// Every effective change bumps the version.
type Store struct {
	mu      sync.RWMutex
	alerts  []models.Alert
	ids     map[string]struct{}
	unread  int
	version uint64
}

// NewStore creates an empty alert store
func NewStore() *Store {
	return &Store{ids: make(map[string]struct{})}
}

// Insert adds an alert at its position in descending-timestamp order
func (s *Store) Insert(a models.Alert) error {
	if err := a.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(a)
}

// InsertMany adds several alerts atomically. Either all are inserted or, on
// the first invalid or duplicate alert, none are.
func (s *Store) InsertMany(batch []models.Alert) error {
	seen := make(map[string]struct{}, len(batch))
	for i := range batch {
		if err := batch[i].Validate(); err != nil {
			return err
		}
		if _, dup := seen[batch[i].ID]; dup {
			return ErrDuplicateID
		}
		seen[batch[i].ID] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range seen {
		if _, dup := s.ids[id]; dup {
			return ErrDuplicateID
		}
	}
	for _, a := range batch {
		if err := s.insertLocked(a); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertLocked(a models.Alert) error {
	if _, dup := s.ids[a.ID]; dup {
		return ErrDuplicateID
	}

	// first position holding a strictly older alert
	i := sort.Search(len(s.alerts), func(i int) bool {
		return s.alerts[i].Timestamp.Before(a.Timestamp)
	})

	s.alerts = append(s.alerts, models.Alert{})
	copy(s.alerts[i+1:], s.alerts[i:])
	s.alerts[i] = a

	s.ids[a.ID] = struct{}{}
	if !a.IsRead {
		s.unread++
	}
	s.version++
	return nil
}

// MarkRead sets IsRead on exactly one alert. It reports whether anything
// changed; unknown or already-read IDs are a no-op.
func (s *Store) MarkRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; !ok {
		return false
	}
	for i := range s.alerts {
		if s.alerts[i].ID != id {
			continue
		}
		if s.alerts[i].IsRead {
			return false
		}
		s.alerts[i].IsRead = true
		s.unread--
		s.version++
		return true
	}
	return false
}

// MarkAllRead sets IsRead on every alert and returns how many changed
func (s *Store) MarkAllRead() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for i := range s.alerts {
		if !s.alerts[i].IsRead {
			s.alerts[i].IsRead = true
			changed++
		}
	}
	s.unread = 0
	if changed > 0 {
		s.version++
	}
	return changed
}

// UnreadCount returns the number of unread alerts in O(1)
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// Len returns the number of alerts held
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}

// Get looks up an alert by ID
func (s *Store) Get(id string) (models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.ids[id]; ok {
		for _, a := range s.alerts {
			if a.ID == id {
				return a, nil
			}
		}
	}
	return models.Alert{}, ErrNotFound
}

// Version returns the change counter. It only ever grows.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// View returns a copy of all alerts together with the unread count and the
// version they belong to, read under one lock.
func (s *Store) View() (alerts []models.Alert, unread int, version uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alerts = make([]models.Alert, len(s.alerts))
	copy(alerts, s.alerts)
	return alerts, s.unread, s.version
}

// Snapshot returns a copy of all alerts, newest first
func (s *Store) Snapshot() []models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

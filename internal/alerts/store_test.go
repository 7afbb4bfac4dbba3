package alerts

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"facilitywatch/internal/models"
)

func alertAt(id string, at time.Time, read bool) models.Alert {
	return models.Alert{
		ID:            id,
		EquipmentID:   "pump-001",
		EquipmentName: "Centrifugal Pump A1",
		Message:       "Unusual temperature detected on Centrifugal Pump A1",
		Timestamp:     at,
		Severity:      models.SeverityMedium,
		IsRead:        read,
	}
}

func ids(alerts []models.Alert) []string {
	out := make([]string, len(alerts))
	for i, a := range alerts {
		out[i] = a.ID
	}
	return out
}

func TestStoreOrdering(t *testing.T) {
	s := NewStore()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	inserts := []models.Alert{
		alertAt("b", base, false),
		alertAt("c", base.Add(-time.Hour), false),
		alertAt("a", base.Add(time.Hour), false),
		alertAt("b2", base, false), // same timestamp as b, inserted later
		alertAt("d", base.Add(-2*time.Hour), false),
	}
	for _, a := range inserts {
		if err := s.Insert(a); err != nil {
			t.Fatalf("insert %s: %v", a.ID, err)
		}
	}

	got := fmt.Sprint(ids(s.Snapshot()))
	want := fmt.Sprint([]string{"a", "b", "b2", "c", "d"})
	if got != want {
		t.Errorf("expected order %s, got %s", want, got)
	}
}

func TestStoreRejectsDuplicatesAndInvalid(t *testing.T) {
	s := NewStore()
	now := time.Now()

	if err := s.Insert(alertAt("x", now, false)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Insert(alertAt("x", now, false)); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}

	bad := alertAt("y", now, false)
	bad.Severity = "urgent"
	if err := s.Insert(bad); !errors.Is(err, models.ErrInvalidSeverity) {
		t.Errorf("expected ErrInvalidSeverity, got %v", err)
	}

	if s.Len() != 1 || s.UnreadCount() != 1 {
		t.Errorf("rejected inserts must not change the store: len=%d unread=%d", s.Len(), s.UnreadCount())
	}
}

func TestStoreInsertManyIsAllOrNothing(t *testing.T) {
	s := NewStore()
	now := time.Now()
	_ = s.Insert(alertAt("existing", now, false))

	err := s.InsertMany([]models.Alert{alertAt("new", now, false), alertAt("existing", now, false)})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("failed batch must not insert anything, len=%d", s.Len())
	}

	if err := s.InsertMany([]models.Alert{alertAt("n1", now, true), alertAt("n2", now.Add(time.Second), false)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Len() != 3 || s.UnreadCount() != 2 {
		t.Errorf("expected len=3 unread=2, got len=%d unread=%d", s.Len(), s.UnreadCount())
	}
}

func TestStoreMarkReadIdempotent(t *testing.T) {
	s := NewStore()
	now := time.Now()
	_ = s.Insert(alertAt("a", now, false))
	_ = s.Insert(alertAt("b", now, false))

	if !s.MarkRead("a") {
		t.Error("first MarkRead should report a change")
	}
	if s.MarkRead("a") {
		t.Error("second MarkRead should be a no-op")
	}
	if s.MarkRead("missing") {
		t.Error("unknown id should be a no-op")
	}

	a, err := s.Get("a")
	if err != nil || !a.IsRead {
		t.Errorf("expected a to be read, got %+v err=%v", a, err)
	}
	if s.UnreadCount() != 1 {
		t.Errorf("expected 1 unread, got %d", s.UnreadCount())
	}
}

func TestStoreMarkAllRead(t *testing.T) {
	s := NewStore()
	now := time.Now()
	for i := 0; i < 5; i++ {
		_ = s.Insert(alertAt(fmt.Sprintf("a%d", i), now.Add(time.Duration(i)*time.Minute), i%2 == 0))
	}

	if changed := s.MarkAllRead(); changed != 2 {
		t.Errorf("expected 2 alerts to change, got %d", changed)
	}
	if s.UnreadCount() != 0 {
		t.Errorf("expected 0 unread, got %d", s.UnreadCount())
	}
	for _, a := range s.Snapshot() {
		if !a.IsRead {
			t.Errorf("alert %s still unread", a.ID)
		}
	}
}

func TestStoreGetMissing(t *testing.T) {
	if _, err := NewStore().Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreSnapshotIsolation(t *testing.T) {
	s := NewStore()
	_ = s.Insert(alertAt("a", time.Now(), false))

	snap := s.Snapshot()
	snap[0].IsRead = true
	snap[0].Message = "tampered"

	a, _ := s.Get("a")
	if a.IsRead || a.Message == "tampered" {
		t.Error("mutating a snapshot must not affect the store")
	}
}

func TestStoreConcurrentReadersSeeConsistentSnapshots(t *testing.T) {
	s := NewStore()
	base := time.Now()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = s.Insert(alertAt(fmt.Sprintf("w%d", i), base.Add(time.Duration(i%17)*time.Second), false))
			if i%10 == 0 {
				s.MarkAllRead()
			}
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				snap := s.Snapshot()
				for j := 1; j < len(snap); j++ {
					if snap[j].Timestamp.After(snap[j-1].Timestamp) {
						t.Errorf("snapshot out of order at %d", j)
						return
					}
				}
			}
		}()
	}

	wg.Wait()
	if s.Len() != 500 {
		t.Errorf("expected 500 alerts, got %d", s.Len())
	}
}

func TestStoreVersionCountsEffectiveChanges(t *testing.T) {
	s := NewStore()
	now := time.Now()

	steps := []struct {
		name string
		op   func()
		want uint64
	}{
		{"empty", func() {}, 0},
		{"insert", func() { _ = s.Insert(alertAt("a", now, false)) }, 1},
		{"duplicate insert", func() { _ = s.Insert(alertAt("a", now, false)) }, 1},
		{"batch", func() {
			_ = s.InsertMany([]models.Alert{alertAt("b", now, false), alertAt("c", now, true)})
		}, 3},
		{"mark read", func() { s.MarkRead("a") }, 4},
		{"mark read again", func() { s.MarkRead("a") }, 4},
		{"mark all read", func() { s.MarkAllRead() }, 5},
		{"mark all read with nothing unread", func() { s.MarkAllRead() }, 5},
	}

	for _, st := range steps {
		st.op()
		if got := s.Version(); got != st.want {
			t.Errorf("%s: expected version %d, got %d", st.name, st.want, got)
		}
	}

	alerts, unread, version := s.View()
	if len(alerts) != 3 || unread != 0 || version != 5 {
		t.Errorf("View() = %d alerts, %d unread, version %d", len(alerts), unread, version)
	}
}

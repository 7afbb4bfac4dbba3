package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facilitywatch/internal/models"
)

func sampleDocument() *Document {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &Document{
		SavedAt: at,
		Equipment: []models.Equipment{{
			ID: "pump-001", Name: "Centrifugal Pump A1", Status: models.StatusHealthy, HealthScore: 92,
			Sensors: []models.Sensor{{
				ID: "temp-001", Name: "Temperature", Type: "temperature", Value: 65, Unit: "°C", Max: 100,
				CriticalHigh: models.Bound(85),
			}},
		}},
		Alerts: []models.Alert{{
			ID: "alert-pump-001-1", EquipmentID: "pump-001", EquipmentName: "Centrifugal Pump A1",
			Message: "Unusual temperature detected on Centrifugal Pump A1", Timestamp: at,
			Severity: models.SeverityHigh,
		}},
	}
}

func TestFileSaveLoad(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "state", "snapshot.json"))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, f.Save(ctx, sampleDocument()))

	got, err := f.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleDocument(), got)

	entries, err := os.ReadDir(filepath.Dir(f.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFileUsesFieldNames(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "snapshot.json"))
	require.NoError(t, err)
	require.NoError(t, f.Save(context.Background(), sampleDocument()))

	raw, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	for _, field := range []string{`"equipment"`, `"alerts"`, `"healthScore"`, `"criticalHigh"`, `"equipmentId"`, `"isRead"`} {
		assert.Contains(t, string(raw), field)
	}
}

func TestFileLoadMissing(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "snapshot.json"))
	require.NoError(t, err)

	_, err = f.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestFileLoadRejectsInvalid(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "snapshot.json"))
	require.NoError(t, err)

	doc := sampleDocument()
	doc.Alerts[0].Severity = "extreme"
	require.NoError(t, f.Save(context.Background(), doc))

	_, err = f.Load(context.Background())
	assert.ErrorIs(t, err, models.ErrInvalidSeverity)
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
}

func TestFileLoadGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	f, err := NewFile(path)
	require.NoError(t, err)

	_, err = f.Load(context.Background())
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
}

func TestFileQuarantine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	f, err := NewFile(path)
	require.NoError(t, err)

	moved, err := f.Quarantine(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, path+".corrupt-20240501T120000.000Z", moved)
	assert.FileExists(t, moved)

	_, err = f.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)

	_, err = f.Quarantine(time.Now())
	assert.Error(t, err, "nothing left to move")
}

func TestFileCancelledContext(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "snapshot.json"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.Save(ctx, sampleDocument()), context.Canceled)
}

func TestNewFileRequiresPath(t *testing.T) {
	_, err := NewFile("")
	assert.Error(t, err)
}

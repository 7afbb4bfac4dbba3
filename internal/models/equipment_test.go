package models_test

import (
	"errors"
	"testing"
	"time"

	"facilitywatch/internal/models"
)

func validEquipment() *models.Equipment {
	return &models.Equipment{
		ID:              "pump-001",
		Name:            "Centrifugal Pump A1",
		Type:            "Pump",
		Status:          models.StatusHealthy,
		HealthScore:     92,
		LastMaintenance: "2024-04-01",
		NextMaintenance: "2024-05-31",
		Sensors: []models.Sensor{{
			ID: "temp-001", Name: "Temperature", Type: "temperature", Value: 65, Unit: "°C", Max: 100,
			WarningHigh: models.Bound(75), CriticalHigh: models.Bound(85),
		}},
	}
}

func TestEquipmentValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*models.Equipment)
		wantErr error
	}{
		{"valid equipment", func(e *models.Equipment) {}, nil},
		{"no sensors", func(e *models.Equipment) { e.Sensors = nil }, nil},
		{"empty ID", func(e *models.Equipment) { e.ID = "" }, models.ErrEmptyID},
		{"empty name", func(e *models.Equipment) { e.Name = "" }, models.ErrEmptyName},
		{"invalid status", func(e *models.Equipment) { e.Status = "broken" }, models.ErrInvalidStatus},
		{"health above 100", func(e *models.Equipment) { e.HealthScore = 101 }, models.ErrHealthScoreRange},
		{"negative health", func(e *models.Equipment) { e.HealthScore = -1 }, models.ErrHealthScoreRange},
		{"bad date", func(e *models.Equipment) { e.NextMaintenance = "31/05/2024" }, models.ErrInvalidDate},
		{"empty sensor ID", func(e *models.Equipment) { e.Sensors[0].ID = "" }, models.ErrEmptySensorID},
		{"empty sensor type", func(e *models.Equipment) { e.Sensors[0].Type = "" }, models.ErrEmptySensorType},
		{"inverted warning still loads", func(e *models.Equipment) {
			e.Sensors[0].WarningLow = models.Bound(80)
		}, nil},
		{"duplicate sensor", func(e *models.Equipment) {
			e.Sensors = append(e.Sensors, e.Sensors[0])
		}, models.ErrDuplicateSensorID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEquipment()
			tt.modify(e)
			err := e.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSensorThresholdIssues(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*models.Sensor)
		want   []error
	}{
		{"well formed", func(s *models.Sensor) {}, nil},
		{"min above max", func(s *models.Sensor) { s.Min = 200 }, []error{models.ErrInvalidRange}},
		{"warning above critical", func(s *models.Sensor) { s.WarningHigh = models.Bound(90) }, []error{models.ErrWarningOutsideLimit}},
		{"inverted critical", func(s *models.Sensor) { s.CriticalLow = models.Bound(90) }, []error{models.ErrInvertedCritical}},
		{"inverted warning", func(s *models.Sensor) { s.WarningLow = models.Bound(80) }, []error{models.ErrInvertedWarning}},
		{"several at once", func(s *models.Sensor) {
			s.Min = 200
			s.WarningLow = models.Bound(80)
		}, []error{models.ErrInvalidRange, models.ErrInvertedWarning}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEquipment()
			tt.modify(&e.Sensors[0])
			got := e.Sensors[0].ThresholdIssues()
			if len(got) != len(tt.want) {
				t.Fatalf("ThresholdIssues() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if !errors.Is(got[i], tt.want[i]) {
					t.Errorf("issue %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestEquipmentThresholdIssuesNameTheSensor(t *testing.T) {
	e := validEquipment()
	e.Sensors[0].WarningLow = models.Bound(80)

	issues := e.ThresholdIssues()
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %v", issues)
	}
	if !errors.Is(issues[0], models.ErrInvertedWarning) {
		t.Errorf("expected ErrInvertedWarning, got %v", issues[0])
	}
	if want := `sensor "temp-001": warningHigh is below warningLow`; issues[0].Error() != want {
		t.Errorf("expected %q, got %q", want, issues[0].Error())
	}
}

func TestStatusIsValid(t *testing.T) {
	for _, s := range models.Statuses {
		if !s.IsValid() {
			t.Errorf("Status %s should be valid", s)
		}
	}
	if models.Status("HEALTHY").IsValid() {
		t.Error("statuses are case sensitive")
	}
}

func TestEquipmentClone(t *testing.T) {
	e := validEquipment()
	c := e.Clone()
	c.Sensors[0].Value = 99

	if e.Sensors[0].Value != 65 {
		t.Errorf("clone shares sensors with the original: got %v", e.Sensors[0].Value)
	}
}

func TestDisplayHelpers(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		status   models.Status
		health   int
		next     string
		display  string
		band     models.Status
		days     int
		daysOK   bool
	}{
		{"healthy", models.StatusHealthy, 92, "2024-05-31", "92%", models.StatusHealthy, 30, true},
		{"warning band", models.StatusHealthy, 65, "2024-05-02", "65%", models.StatusWarning, 1, true},
		{"critical band", models.StatusCritical, 32, "2024-05-01", "32%", models.StatusCritical, 0, true},
		{"boundary 80", models.StatusWarning, 80, "", "80%", models.StatusHealthy, 0, false},
		{"boundary 50", models.StatusWarning, 50, "", "50%", models.StatusWarning, 0, false},
		{"inactive", models.StatusInactive, 0, "2024-05-31", "N/A", models.StatusInactive, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &models.Equipment{Status: tt.status, HealthScore: tt.health, NextMaintenance: tt.next}
			if got := e.DisplayHealth(); got != tt.display {
				t.Errorf("DisplayHealth() = %q, want %q", got, tt.display)
			}
			if got := e.HealthBand(); got != tt.band {
				t.Errorf("HealthBand() = %q, want %q", got, tt.band)
			}
			days, ok := e.DaysUntilMaintenance(now)
			if ok != tt.daysOK || days != tt.days {
				t.Errorf("DaysUntilMaintenance() = %d, %v, want %d, %v", days, ok, tt.days, tt.daysOK)
			}
		})
	}
}

func TestRound2(t *testing.T) {
	tests := map[float64]float64{
		62.3449: 62.34,
		62.3461: 62.35,
		0.004:   0,
		-2.678:  -2.68,
		45:      45,
	}
	for in, want := range tests {
		if got := models.Round2(in); got != want {
			t.Errorf("Round2(%v) = %v, want %v", in, got, want)
		}
	}
}

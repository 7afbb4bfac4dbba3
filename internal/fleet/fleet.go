package fleet

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"facilitywatch/internal/logger"
	"facilitywatch/internal/models"
)

// ErrEmptyFleet is returned when a fleet file defines no equipment
var ErrEmptyFleet = errors.New("fleet: no equipment defined")

// File is the on-disk fleet definition
type File struct {
	Equipment []models.Equipment `yaml:"equipment"`
}

// maintenance dates are relative to the moment the fleet is built
type schedule struct {
	lastDaysAgo   int
	nextHoursAway int
}

func (s schedule) dates(now time.Time) (last, next string) {
	return now.AddDate(0, 0, -s.lastDaysAgo).Format(models.DateLayout),
		now.Add(time.Duration(s.nextHoursAway) * time.Hour).Format(models.DateLayout)
}

// Default returns the built-in six unit demonstration fleet with maintenance
// dates computed against now.
func Default(now time.Time) []models.Equipment {
	b := models.Bound

	pump := schedule{30, 720}
	motor := schedule{60, 160}
	compressor := schedule{90, 24}
	hvac := schedule{15, 340}
	generator := schedule{10, 500}
	bore := schedule{15, 480}

	equipment := []models.Equipment{
		{
			ID: "pump-001", Name: "Centrifugal Pump A1", Type: "Pump",
			Status: models.StatusHealthy, HealthScore: 92, Location: "Building A, Floor 1",
			Sensors: []models.Sensor{
				{ID: "temp-001", Name: "Temperature", Type: "temperature", Value: 65, Unit: "°C", Min: 20, Max: 100,
					CriticalLow: b(30), CriticalHigh: b(85), WarningLow: b(40), WarningHigh: b(75)},
				{ID: "vib-001", Name: "Vibration", Type: "vibration", Value: 2.3, Unit: "mm/s", Min: 0, Max: 10,
					CriticalHigh: b(8), WarningHigh: b(5)},
				{ID: "press-001", Name: "Pressure", Type: "pressure", Value: 4.2, Unit: "bar", Min: 0, Max: 10,
					CriticalLow: b(1), CriticalHigh: b(9), WarningLow: b(2), WarningHigh: b(8)},
			},
		},
		{
			ID: "motor-001", Name: "Electric Motor B2", Type: "Motor",
			Status: models.StatusWarning, HealthScore: 68, Location: "Building B, Floor 2",
			Sensors: []models.Sensor{
				{ID: "temp-002", Name: "Temperature", Type: "temperature", Value: 78, Unit: "°C", Min: 20, Max: 120,
					CriticalLow: b(30), CriticalHigh: b(100), WarningLow: b(40), WarningHigh: b(70)},
				{ID: "current-001", Name: "Current", Type: "current", Value: 42, Unit: "A", Min: 0, Max: 100,
					CriticalHigh: b(80), WarningHigh: b(60)},
				{ID: "rpm-001", Name: "RPM", Type: "rpm", Value: 1750, Unit: "rpm", Min: 0, Max: 3000,
					CriticalHigh: b(2800), WarningHigh: b(2500)},
			},
		},
		{
			ID: "compressor-001", Name: "Air Compressor C3", Type: "Compressor",
			Status: models.StatusCritical, HealthScore: 32, Location: "Building C, Floor 1",
			Sensors: []models.Sensor{
				{ID: "temp-003", Name: "Temperature", Type: "temperature", Value: 92, Unit: "°C", Min: 20, Max: 100,
					CriticalLow: b(30), CriticalHigh: b(85), WarningLow: b(40), WarningHigh: b(75)},
				{ID: "press-002", Name: "Pressure", Type: "pressure", Value: 8.7, Unit: "bar", Min: 0, Max: 10,
					CriticalLow: b(1), CriticalHigh: b(9), WarningLow: b(2), WarningHigh: b(8)},
			},
		},
		{
			ID: "hvac-001", Name: "HVAC System D4", Type: "HVAC",
			Status: models.StatusInactive, HealthScore: 0, Location: "Building D, Floor 4",
			Sensors: []models.Sensor{
				{ID: "temp-004", Name: "Temperature", Type: "temperature", Value: 0, Unit: "°C", Min: 10, Max: 35,
					CriticalLow: b(15), CriticalHigh: b(30), WarningLow: b(18), WarningHigh: b(28)},
				{ID: "humid-001", Name: "Humidity", Type: "humidity", Value: 0, Unit: "%", Min: 30, Max: 70,
					CriticalLow: b(35), CriticalHigh: b(65), WarningLow: b(40), WarningHigh: b(60)},
			},
		},
		{
			ID: "generator-001", Name: "Backup Generator E5", Type: "Generator",
			Status: models.StatusHealthy, HealthScore: 95, Location: "Building E, Basement",
			Sensors: []models.Sensor{
				{ID: "fuel-001", Name: "Fuel Level", Type: "level", Value: 87, Unit: "%", Min: 0, Max: 100,
					CriticalLow: b(15), WarningLow: b(30)},
				{ID: "voltage-001", Name: "Voltage", Type: "voltage", Value: 240, Unit: "V", Min: 210, Max: 250,
					CriticalLow: b(220), CriticalHigh: b(245), WarningLow: b(225), WarningHigh: b(240)},
			},
		},
		{
			ID: "bore-001", Name: "Index Bore System X1", Type: "Bore",
			Status: models.StatusHealthy, HealthScore: 88, Location: "Building X, Floor 1",
			Sensors: []models.Sensor{
				{ID: "depth-001", Name: "Bore Depth", Type: "bore-depth", Value: 150.5, Unit: "m", Min: 0, Max: 300,
					CriticalLow: b(20), CriticalHigh: b(280), WarningLow: b(50), WarningHigh: b(250)},
				{ID: "pressure-bore-001", Name: "Bore Pressure", Type: "pressure", Value: 5.8, Unit: "bar", Min: 0, Max: 10,
					CriticalLow: b(1), CriticalHigh: b(9), WarningLow: b(2), WarningHigh: b(8)},
				{ID: "flow-001", Name: "Flow Rate", Type: "flow", Value: 42.3, Unit: "L/min", Min: 0, Max: 100,
					CriticalLow: b(10), CriticalHigh: b(90), WarningLow: b(20), WarningHigh: b(80)},
			},
		},
	}

	for i, s := range []schedule{pump, motor, compressor, hvac, generator, bore} {
		equipment[i].LastMaintenance, equipment[i].NextMaintenance = s.dates(now)
	}
	return equipment
}

// LoadFile reads a YAML fleet definition, normalizes every record and rejects
// the file on the first structurally invalid equipment or sensor. Threshold
// issues are left for the engine to report.
func LoadFile(path string) ([]models.Equipment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fleet file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML fleet definition
func Parse(data []byte) ([]models.Equipment, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode fleet: %w", err)
	}
	if len(f.Equipment) == 0 {
		return nil, ErrEmptyFleet
	}

	seen := make(map[string]struct{}, len(f.Equipment))
	for i := range f.Equipment {
		e := &f.Equipment[i]
		e.Normalize()
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("equipment %q: %w", e.ID, err)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("equipment %q: %w", e.ID, models.ErrDuplicateEquipmentID)
		}
		seen[e.ID] = struct{}{}
	}

	log := logger.WithComponent("fleet")
	log.Info().Int("equipment", len(f.Equipment)).Msg("fleet definition loaded")
	return f.Equipment, nil
}

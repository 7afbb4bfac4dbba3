package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Status represents the operational state of a piece of equipment
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusInactive Status = "inactive"
)

// Statuses lists every status in display order
var Statuses = []Status{StatusHealthy, StatusWarning, StatusCritical, StatusInactive}

// DateLayout is the layout used for maintenance dates
const DateLayout = "2006-01-02"

// Sensor is a single monitored quantity on a piece of equipment.
// A nil threshold means that bound is not monitored.
type Sensor struct {
	ID    string  `json:"id" yaml:"id"`
	Name  string  `json:"name" yaml:"name"`
	Type  string  `json:"type" yaml:"type"`
	Value float64 `json:"value" yaml:"value"`
	Unit  string  `json:"unit" yaml:"unit"`
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`

	WarningLow   *float64 `json:"warningLow,omitempty" yaml:"warning_low,omitempty"`
	WarningHigh  *float64 `json:"warningHigh,omitempty" yaml:"warning_high,omitempty"`
	CriticalLow  *float64 `json:"criticalLow,omitempty" yaml:"critical_low,omitempty"`
	CriticalHigh *float64 `json:"criticalHigh,omitempty" yaml:"critical_high,omitempty"`
}

// Equipment is a monitored asset. It owns its sensors exclusively.
type Equipment struct {
	ID              string   `json:"id" yaml:"id"`
	Name            string   `json:"name" yaml:"name"`
	Type            string   `json:"type" yaml:"type"`
	Status          Status   `json:"status" yaml:"status"`
	HealthScore     int      `json:"healthScore" yaml:"health_score"`
	LastMaintenance string   `json:"lastMaintenance" yaml:"last_maintenance"`
	NextMaintenance string   `json:"nextMaintenance" yaml:"next_maintenance"`
	Location        string   `json:"location" yaml:"location"`
	Sensors         []Sensor `json:"sensors" yaml:"sensors"`
}

// Validation errors
var (
	ErrEmptyID              = errors.New("equipment ID cannot be empty")
	ErrEmptyName            = errors.New("equipment name cannot be empty")
	ErrInvalidStatus        = errors.New("invalid equipment status")
	ErrHealthScoreRange     = errors.New("health score must be within [0,100]")
	ErrInvalidDate          = errors.New("maintenance date must be YYYY-MM-DD")
	ErrDuplicateSensorID    = errors.New("duplicate sensor ID")
	ErrEmptySensorID        = errors.New("sensor ID cannot be empty")
	ErrDuplicateEquipmentID = errors.New("duplicate equipment ID")
	ErrEmptySensorType      = errors.New("sensor type cannot be empty")
	ErrInvalidRange         = errors.New("sensor min exceeds max")
	ErrInvertedWarning      = errors.New("warningHigh is below warningLow")
	ErrInvertedCritical     = errors.New("criticalHigh is below criticalLow")
	ErrWarningOutsideLimit  = errors.New("warning bound lies beyond its critical bound")
)

// Bound returns a pointer to v, for populating optional thresholds
func Bound(v float64) *float64 {
	return &v
}

// IsValid checks if the status is one of the known values
func (s Status) IsValid() bool {
	switch s {
	case StatusHealthy, StatusWarning, StatusCritical, StatusInactive:
		return true
	default:
		return false
	}
}

// Validate checks the structural fields of a sensor. Threshold quality is
// reported separately by ThresholdIssues.
func (s *Sensor) Validate() error {
	if s.ID == "" {
		return ErrEmptySensorID
	}
	if s.Type == "" {
		return ErrEmptySensorType
	}
	return nil
}

// ThresholdIssues lists threshold configurations that look wrong. None of them
// stop a sensor from loading; evaluation degrades to whichever bounds match.
func (s *Sensor) ThresholdIssues() []error {
	var issues []error
	if s.Min > s.Max {
		issues = append(issues, ErrInvalidRange)
	}
	if s.WarningLow != nil && s.WarningHigh != nil && *s.WarningHigh < *s.WarningLow {
		issues = append(issues, ErrInvertedWarning)
	}
	if s.CriticalLow != nil && s.CriticalHigh != nil && *s.CriticalHigh < *s.CriticalLow {
		issues = append(issues, ErrInvertedCritical)
	}
	if s.WarningHigh != nil && s.CriticalHigh != nil && *s.WarningHigh > *s.CriticalHigh {
		issues = append(issues, ErrWarningOutsideLimit)
	} else if s.WarningLow != nil && s.CriticalLow != nil && *s.WarningLow < *s.CriticalLow {
		issues = append(issues, ErrWarningOutsideLimit)
	}
	return issues
}

// Validate checks if the equipment record and all of its sensors are well formed
func (e *Equipment) Validate() error {
	if e.ID == "" {
		return ErrEmptyID
	}
	if e.Name == "" {
		return ErrEmptyName
	}
	if !e.Status.IsValid() {
		return ErrInvalidStatus
	}
	if e.HealthScore < 0 || e.HealthScore > 100 {
		return ErrHealthScoreRange
	}
	for _, date := range []string{e.LastMaintenance, e.NextMaintenance} {
		if date == "" {
			continue
		}
		if _, err := time.Parse(DateLayout, date); err != nil {
			return ErrInvalidDate
		}
	}

	seen := make(map[string]struct{}, len(e.Sensors))
	for i := range e.Sensors {
		sensor := &e.Sensors[i]
		if err := sensor.Validate(); err != nil {
			return fmt.Errorf("sensor %q: %w", sensor.ID, err)
		}
		if _, dup := seen[sensor.ID]; dup {
			return fmt.Errorf("sensor %q: %w", sensor.ID, ErrDuplicateSensorID)
		}
		seen[sensor.ID] = struct{}{}
	}
	return nil
}

// ThresholdIssues collects the threshold issues of every sensor
func (e *Equipment) ThresholdIssues() []error {
	var issues []error
	for i := range e.Sensors {
		for _, err := range e.Sensors[i].ThresholdIssues() {
			issues = append(issues, fmt.Errorf("sensor %q: %w", e.Sensors[i].ID, err))
		}
	}
	return issues
}

// Clone returns a copy of the equipment that shares no mutable state with e.
// Threshold pointers are shared because bounds are never written after load.
func (e Equipment) Clone() Equipment {
	if e.Sensors != nil {
		sensors := make([]Sensor, len(e.Sensors))
		copy(sensors, e.Sensors)
		e.Sensors = sensors
	}
	return e
}

// Sensor looks up a sensor by ID
func (e *Equipment) Sensor(id string) (Sensor, bool) {
	for _, s := range e.Sensors {
		if s.ID == id {
			return s, true
		}
	}
	return Sensor{}, false
}

// IsInactive reports whether the equipment is administratively disabled
func (e *Equipment) IsInactive() bool {
	return e.Status == StatusInactive
}

// DisplayHealth renders the health score the way the dashboard shows it
func (e *Equipment) DisplayHealth() string {
	if e.IsInactive() {
		return "N/A"
	}
	return fmt.Sprintf("%d%%", e.HealthScore)
}

// HealthBand maps the health score onto the colour band used by the dashboard.
// It is independent of Status: a healthy unit with a low score shows as critical.
func (e *Equipment) HealthBand() Status {
	switch {
	case e.IsInactive():
		return StatusInactive
	case e.HealthScore >= 80:
		return StatusHealthy
	case e.HealthScore >= 50:
		return StatusWarning
	default:
		return StatusCritical
	}
}

// DaysUntilMaintenance returns the whole days until the next maintenance,
// rounded up. ok is false for inactive equipment or an unparseable date.
func (e *Equipment) DaysUntilMaintenance(now time.Time) (days int, ok bool) {
	if e.IsInactive() || e.NextMaintenance == "" {
		return 0, false
	}
	next, err := time.ParseInLocation(DateLayout, e.NextMaintenance, now.Location())
	if err != nil {
		return 0, false
	}
	return int(math.Ceil(next.Sub(now).Hours() / 24)), true
}

// Round2 rounds v to two decimal places
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

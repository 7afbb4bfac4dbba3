package threshold

import (
	"facilitywatch/internal/models"
)

// Breach is the outcome of classifying one sensor value
type Breach string

const (
	BreachNone         Breach = "none"
	BreachWarningLow   Breach = "warningLow"
	BreachWarningHigh  Breach = "warningHigh"
	BreachCriticalLow  Breach = "criticalLow"
	BreachCriticalHigh Breach = "criticalHigh"
)

// IsCritical reports whether the breach crosses a critical bound
func (b Breach) IsCritical() bool {
	return b == BreachCriticalLow || b == BreachCriticalHigh
}

// IsWarning reports whether the breach crosses a warning bound
func (b Breach) IsWarning() bool {
	return b == BreachWarningLow || b == BreachWarningHigh
}

// Classify compares the sensor value against its configured bounds. Critical
// bounds take priority over warning bounds; an unset bound never matches.
// Bounds are exclusive: a value equal to a bound is not a breach.
func Classify(s models.Sensor) Breach {
	switch {
	case above(s.Value, s.CriticalHigh):
		return BreachCriticalHigh
	case below(s.Value, s.CriticalLow):
		return BreachCriticalLow
	case above(s.Value, s.WarningHigh):
		return BreachWarningHigh
	case below(s.Value, s.WarningLow):
		return BreachWarningLow
	default:
		return BreachNone
	}
}

func above(v float64, bound *float64) bool {
	return bound != nil && v > *bound
}

func below(v float64, bound *float64) bool {
	return bound != nil && v < *bound
}

// SensorBreach pairs a sensor with its classification
type SensorBreach struct {
	SensorID string `json:"sensorId"`
	Breach   Breach `json:"breach"`
}

// Assess classifies every sensor on the equipment. Inactive equipment is not
// evaluated and yields no results.
func Assess(e models.Equipment) []SensorBreach {
	if e.IsInactive() {
		return nil
	}
	out := make([]SensorBreach, 0, len(e.Sensors))
	for _, s := range e.Sensors {
		out = append(out, SensorBreach{SensorID: s.ID, Breach: Classify(s)})
	}
	return out
}

// DeriveStatus aggregates the sensor classifications into an equipment status:
// critical if any sensor breaches a critical bound, warning if any breaches a
// warning bound, healthy otherwise. Inactive is administrative and sticks.
func DeriveStatus(e models.Equipment) models.Status {
	if e.IsInactive() {
		return models.StatusInactive
	}
	status := models.StatusHealthy
	for _, s := range e.Sensors {
		b := Classify(s)
		if b.IsCritical() {
			return models.StatusCritical
		}
		if b.IsWarning() {
			status = models.StatusWarning
		}
	}
	return status
}

// Apply re-derives status and health score in place and reports whether the
// status changed.
func Apply(e *models.Equipment) (previous models.Status, changed bool) {
	previous = e.Status
	e.Status = DeriveStatus(*e)
	e.HealthScore = HealthScore(e.Status, e.HealthScore)
	return previous, previous != e.Status
}

package threshold

import "facilitywatch/internal/models"

// Band is an inclusive health score range
type Band struct {
	Min int
	Max int
}

// HealthBands is the policy table mapping a status onto the scores it allows
var HealthBands = map[models.Status]Band{
	models.StatusHealthy:  {Min: 80, Max: 100},
	models.StatusWarning:  {Min: 50, Max: 79},
	models.StatusCritical: {Min: 0, Max: 49},
	models.StatusInactive: {Min: 0, Max: 0},
}

// HealthScore returns current clamped into the band for status, so a score
// that already agrees with the status is kept as is.
func HealthScore(status models.Status, current int) int {
	band, ok := HealthBands[status]
	if !ok {
		return clamp(current, 0, 100)
	}
	return clamp(current, band.Min, band.Max)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Prediction is the failure outlook shown for an equipment status
type Prediction struct {
	Available bool   `json:"available"`
	Risk      int    `json:"risk"`
	Label     string `json:"label"`
	Horizon   string `json:"horizon"`
}

// PredictFailure returns the canned failure outlook for a status. Inactive
// equipment has none.
func PredictFailure(status models.Status) Prediction {
	switch status {
	case models.StatusCritical:
		return Prediction{Available: true, Risk: 93, Label: "Imminent Failure Risk", Horizon: "Predicted within 24 hours"}
	case models.StatusWarning:
		return Prediction{Available: true, Risk: 68, Label: "Elevated Failure Risk", Horizon: "Predicted within 7 days"}
	case models.StatusHealthy:
		return Prediction{Available: true, Risk: 12, Label: "Low Failure Risk", Horizon: "No issues predicted within 30 days"}
	default:
		return Prediction{}
	}
}

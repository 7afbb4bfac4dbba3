package models

import (
	"strings"
)

// Normalize applies field normalization to an equipment record loaded from
// configuration:
// - trims identifiers and names
// - lower-cases status and sensor types
// - defaults an empty status to healthy
// - zeroes the health score of inactive equipment
func (e *Equipment) Normalize() {
	e.ID = strings.TrimSpace(e.ID)
	e.Name = strings.TrimSpace(e.Name)
	e.Type = strings.TrimSpace(e.Type)
	e.Location = strings.TrimSpace(e.Location)
	e.LastMaintenance = strings.TrimSpace(e.LastMaintenance)
	e.NextMaintenance = strings.TrimSpace(e.NextMaintenance)

	e.Status = Status(strings.ToLower(strings.TrimSpace(string(e.Status))))
	if e.Status == "" {
		e.Status = StatusHealthy
	}
	if e.Status == StatusInactive {
		e.HealthScore = 0
	}

	for i := range e.Sensors {
		e.Sensors[i].Normalize()
	}
}

// Normalize trims a sensor's identifiers and lower-cases its type, which is
// the key into the synthesis profiles.
func (s *Sensor) Normalize() {
	s.ID = strings.TrimSpace(s.ID)
	s.Name = strings.TrimSpace(s.Name)
	s.Unit = strings.TrimSpace(s.Unit)
	s.Type = strings.ToLower(strings.TrimSpace(s.Type))
}

package alerts

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"facilitywatch/internal/logger"
	"facilitywatch/internal/metrics"
	"facilitywatch/internal/models"
	"facilitywatch/internal/random"
)

// Alert sources, used as metric labels
const (
	SourceStatus  = "status"
	SourceHistory = "history"
	SourceRandom  = "random"
)

const (
	DefaultHighSeverityProbability = 0.3
	DefaultHistoryProbability      = 0.5
)

// Offsets used to backdate alerts produced while seeding the initial state
const (
	seedWarningAge     = 4 * time.Hour
	seedCriticalAge    = 2 * time.Hour
	seedTemperatureAge = 1 * time.Hour
	seedMaintenanceAge = 30 * 24 * time.Hour
)

// Generator turns equipment state and random events into alerts. Alert IDs are
// the equipment ID plus a process-wide monotonic counter, so alerts created in
// the same tick never collide.
type Generator struct {
	rng         random.Source
	now         func() time.Time
	seq         atomic.Uint64
	highProb    float64
	historyProb float64
}

// Option configures a Generator
type Option func(*Generator)

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// WithHighSeverityProbability sets the chance a random-event alert is high severity
func WithHighSeverityProbability(p float64) Option {
	return func(g *Generator) {
		g.highProb = p
	}
}

// WithHistoryProbability sets the chance of a backfilled maintenance alert per equipment
func WithHistoryProbability(p float64) Option {
	return func(g *Generator) {
		g.historyProb = p
	}
}

// NewGenerator creates a Generator drawing from rng
func NewGenerator(rng random.Source, opts ...Option) *Generator {
	g := &Generator{
		rng:         rng,
		now:         time.Now,
		highProb:    DefaultHighSeverityProbability,
		historyProb: DefaultHistoryProbability,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Resume continues the ID counter after n, for generators restarted on top of
// a restored alert history. It never moves the counter backwards.
func (g *Generator) Resume(n uint64) {
	for {
		cur := g.seq.Load()
		if cur >= n || g.seq.CompareAndSwap(cur, n) {
			return
		}
	}
}

// MaxSequence returns the largest counter suffix found in the alert IDs
func MaxSequence(alerts []models.Alert) uint64 {
	var highest uint64
	for _, a := range alerts {
		i := strings.LastIndexByte(a.ID, '-')
		if i < 0 {
			continue
		}
		if n, err := strconv.ParseUint(a.ID[i+1:], 10, 64); err == nil && n > highest {
			highest = n
		}
	}
	return highest
}

// FromStatus returns the alerts implied by the equipment's current status,
// stamped at the current time:
// - warning: one medium alert
// - critical: a fixed pair of high alerts
// - healthy, inactive: none
func (g *Generator) FromStatus(e models.Equipment) []models.Alert {
	now := g.now().UTC()
	return g.fromStatusAt(e, now, now, now)
}

func (g *Generator) fromStatusAt(e models.Equipment, warningAt, criticalAt, temperatureAt time.Time) []models.Alert {
	var out []models.Alert
	switch e.Status {
	case models.StatusWarning:
		out = append(out, g.newAlert(e, models.SeverityMedium, warningAt,
			"Maintenance required soon for %s", e.Name))
	case models.StatusCritical:
		out = append(out,
			g.newAlert(e, models.SeverityHigh, criticalAt,
				"Critical failure risk detected on %s", e.Name),
			g.newAlert(e, models.SeverityHigh, temperatureAt,
				"Temperature exceeds safe threshold on %s", e.Name),
		)
	}
	for _, a := range out {
		metrics.AlertsGeneratedTotal.WithLabelValues(SourceStatus, string(a.Severity)).Inc()
	}
	return out
}

// Backfill draws the historical "maintenance completed" alert for one piece of
// equipment. It is already read and backdated by thirty days.
func (g *Generator) Backfill(e models.Equipment) (models.Alert, bool) {
	if !random.Chance(g.rng, g.historyProb) {
		return models.Alert{}, false
	}
	a := g.newAlert(e, models.SeverityLow, g.now().UTC().Add(-seedMaintenanceAge),
		"Scheduled maintenance completed for %s", e.Name)
	a.ID = strings.Replace(a.ID, "alert-"+e.ID+"-", "alert-"+e.ID+"-hist-", 1)
	a.IsRead = true
	metrics.AlertsGeneratedTotal.WithLabelValues(SourceHistory, string(a.Severity)).Inc()
	return a, true
}

// Seed builds the initial alert history for a fleet: backdated status alerts
// plus the random maintenance backfill, sorted newest first. This runs once at
// population time and is not part of the periodic loop.
func (g *Generator) Seed(fleet []models.Equipment) []models.Alert {
	log := logger.WithComponent("alerts")
	now := g.now().UTC()

	var out []models.Alert
	for _, e := range fleet {
		out = append(out, g.fromStatusAt(e,
			now.Add(-seedWarningAge),
			now.Add(-seedCriticalAge),
			now.Add(-seedTemperatureAge),
		)...)
		if hist, ok := g.Backfill(e); ok {
			out = append(out, hist)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	log.Info().
		Int("equipment", len(fleet)).
		Int("alerts", len(out)).
		Msg("seeded alert history")
	return out
}

// FromRandomEvent produces the background "unusual reading" alert for the
// given equipment. Inactive equipment and equipment without sensors yield
// nothing. The severity is high with the configured probability, else medium.
func (g *Generator) FromRandomEvent(e models.Equipment) (models.Alert, bool) {
	if e.IsInactive() || len(e.Sensors) == 0 {
		return models.Alert{}, false
	}

	severity := models.SeverityMedium
	if random.Chance(g.rng, g.highProb) {
		severity = models.SeverityHigh
	}

	sensorName := strings.ToLower(e.Sensors[0].Name)
	a := g.newAlert(e, severity, g.now().UTC(), "Unusual %s detected on %s", sensorName, e.Name)
	metrics.AlertsGeneratedTotal.WithLabelValues(SourceRandom, string(a.Severity)).Inc()

	log := logger.WithEquipment("alerts", e.ID)
	log.Info().
		Str("alert_id", a.ID).
		Str("severity", string(a.Severity)).
		Msg("random event alert raised")
	return a, true
}

func (g *Generator) newAlert(e models.Equipment, severity models.Severity, at time.Time, format string, args ...any) models.Alert {
	return models.Alert{
		ID:            fmt.Sprintf("alert-%s-%d", e.ID, g.seq.Add(1)),
		EquipmentID:   e.ID,
		EquipmentName: e.Name,
		Message:       fmt.Sprintf(format, args...),
		Timestamp:     at,
		Severity:      severity,
		IsRead:        false,
	}
}

package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facilitywatch/internal/config"
	"facilitywatch/internal/metrics"
	"facilitywatch/internal/models"
	"facilitywatch/internal/random"
	"facilitywatch/internal/threshold"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Simulation.HistoryProbability = 0
	return cfg
}

func criticalCompressor() models.Equipment {
	return models.Equipment{
		ID: "compressor-001", Name: "Air Compressor C3", Type: "Compressor",
		Status: models.StatusCritical, HealthScore: 32,
		Sensors: []models.Sensor{{
			ID: "temp-003", Name: "Temperature", Type: "temperature", Value: 92, Unit: "°C", Min: 20, Max: 100,
			CriticalHigh: models.Bound(85),
		}},
	}
}

func healthyPump() models.Equipment {
	return models.Equipment{
		ID: "pump-001", Name: "Centrifugal Pump A1", Type: "Pump",
		Status: models.StatusHealthy, HealthScore: 92,
		Sensors: []models.Sensor{
			{ID: "temp-001", Name: "Temperature", Type: "temperature", Value: 65, Unit: "°C", Max: 100},
			{ID: "vib-001", Name: "Vibration", Type: "vibration", Value: 2.3, Unit: "mm/s", Max: 10},
		},
	}
}

func inactiveHVAC() models.Equipment {
	return models.Equipment{
		ID: "hvac-001", Name: "HVAC System D4", Status: models.StatusInactive,
		Sensors: []models.Sensor{{ID: "temp-004", Name: "Temperature", Type: "temperature", Max: 35}},
	}
}

// every float draw is 0.1: random alerts fire and are high severity, drift steps are -2.0
func newTestEngine(t *testing.T, equipment ...models.Equipment) *Engine {
	t.Helper()
	e, err := New(testConfig(),
		WithFleet(equipment),
		WithRandom(random.NewSequence([]float64{0.1}, []int{0})),
		WithClock(func() time.Time { return testNow }),
	)
	require.NoError(t, err)
	return e
}

type collector struct {
	mu      sync.Mutex
	updates []Update
}

func (c *collector) add(u Update) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, u)
}

func (c *collector) all() []Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Update(nil), c.updates...)
}

func TestCriticalEquipmentSeedsTwoHighAlerts(t *testing.T) {
	e := newTestEngine(t, criticalCompressor())

	got := e.Alerts()
	require.Len(t, got, 2)
	for _, a := range got {
		assert.Equal(t, models.SeverityHigh, a.Severity)
		assert.False(t, a.IsRead)
		assert.Equal(t, "compressor-001", a.EquipmentID)
	}
	assert.Equal(t, 2, e.UnreadCount())
}

func TestDefaultFleetSeeding(t *testing.T) {
	e, err := New(testConfig(), WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)

	assert.Len(t, e.Equipment(), 6)
	// one warning alert plus the critical pair
	assert.Len(t, e.Alerts(), 3)

	s := e.Summary()
	assert.Equal(t, 6, s.Total)
	assert.Equal(t, 3, s.ByStatus[models.StatusHealthy])
	assert.Equal(t, 1, s.ByStatus[models.StatusInactive])
	assert.Equal(t, 3, s.AlertsTotal)
	assert.Equal(t, 3, s.UnreadAlerts)
}

func TestNewRejectsInvalidEquipment(t *testing.T) {
	bad := healthyPump()
	bad.Status = "exploded"
	_, err := New(testConfig(), WithFleet([]models.Equipment{bad}))
	assert.ErrorIs(t, err, models.ErrInvalidStatus)
}

func TestMalformedThresholdsStillLoad(t *testing.T) {
	pump := healthyPump()
	pump.ID = "pump-009"
	pump.Sensors[0].WarningLow = models.Bound(80)
	pump.Sensors[0].WarningHigh = models.Bound(20)

	cfg := testConfig()
	cfg.Simulation.DeriveStatus = true
	e, err := New(cfg,
		WithFleet([]models.Equipment{pump}),
		WithRandom(random.NewSequence([]float64{0.1}, []int{0})),
		WithClock(func() time.Time { return testNow }),
	)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ThresholdIssuesTotal.WithLabelValues("pump-009")))

	eq, ok := e.SelectEquipment("pump-009")
	require.True(t, ok)
	assert.NotPanics(t, func() {
		threshold.Classify(eq.Sensors[0])
		e.DriftTick()
		e.AlertTick()
	})
	assert.Len(t, e.Equipment(), 1)
}

func TestSelectEquipment(t *testing.T) {
	e := newTestEngine(t, healthyPump())

	eq, ok := e.SelectEquipment("pump-001")
	require.True(t, ok)
	assert.Equal(t, "Centrifugal Pump A1", eq.Name)

	eq.Sensors[0].Value = 1000
	again, _ := e.SelectEquipment("pump-001")
	assert.Equal(t, 65.0, again.Sensors[0].Value, "returned equipment is a copy")

	_, ok = e.SelectEquipment("missing")
	assert.False(t, ok)
}

func TestOnUpdateDrift(t *testing.T) {
	e := newTestEngine(t, healthyPump())
	c := &collector{}
	unsubscribe := e.OnUpdate(c.add)

	require.True(t, e.DriftTick())

	updates := c.all()
	require.Len(t, updates, 1)
	u := updates[0]
	assert.Equal(t, UpdateEquipment, u.Kind)
	assert.Equal(t, uint64(2), u.Version)
	require.Len(t, u.Equipment, 1)
	assert.Equal(t, 63.0, u.Equipment[0].Sensors[0].Value)

	unsubscribe()
	unsubscribe()
	e.DriftTick()
	assert.Len(t, c.all(), 1, "no updates after unsubscribe")
}

func TestOnUpdateAlertTick(t *testing.T) {
	e := newTestEngine(t, healthyPump())
	c := &collector{}
	e.OnUpdate(c.add)

	require.True(t, e.AlertTick())

	updates := c.all()
	require.Len(t, updates, 1)
	u := updates[0]
	assert.Equal(t, UpdateAlerts, u.Kind)
	require.Len(t, u.Raised, 1)
	assert.Equal(t, "Unusual temperature detected on Centrifugal Pump A1", u.Raised[0].Message)
	require.Len(t, u.Notifications, 1)
	assert.Equal(t, models.NotificationUrgent, u.Notifications[0].Class)
	assert.Equal(t, "Critical Alert", u.Notifications[0].Title)
	assert.Equal(t, 1, u.UnreadCount)
	assert.Len(t, u.Alerts, 1)
	assert.Equal(t, uint64(1), u.Version)
}

func TestSubscriberPanicIsIsolated(t *testing.T) {
	e := newTestEngine(t, healthyPump())
	c := &collector{}
	e.OnUpdate(func(Update) { panic("bad subscriber") })
	e.OnUpdate(c.add)

	assert.NotPanics(t, func() { e.DriftTick() })
	assert.Len(t, c.all(), 1)
}

func TestMarkRead(t *testing.T) {
	e := newTestEngine(t, criticalCompressor())
	c := &collector{}
	e.OnUpdate(c.add)

	id := e.Alerts()[0].ID
	assert.True(t, e.MarkAlertRead(id))
	assert.False(t, e.MarkAlertRead(id), "second call is a no-op")
	assert.False(t, e.MarkAlertRead("missing"))
	assert.Equal(t, 1, e.UnreadCount())
	require.Len(t, c.all(), 1, "only the effective call publishes")

	assert.Equal(t, 1, e.MarkAllAlertsRead())
	assert.Zero(t, e.UnreadCount())

	last := c.all()[1]
	assert.Equal(t, UpdateAlerts, last.Kind)
	assert.Greater(t, last.Version, c.all()[0].Version, "alert versions grow")
	require.Len(t, last.Notifications, 1)
	assert.Equal(t, "All alerts marked as read", last.Notifications[0].Title)
	for _, a := range last.Alerts {
		assert.True(t, a.IsRead)
	}
}

func TestOpenAlert(t *testing.T) {
	e := newTestEngine(t, criticalCompressor())
	id := e.Alerts()[0].ID

	eq, err := e.OpenAlert(id)
	require.NoError(t, err)
	assert.Equal(t, "compressor-001", eq.ID)
	assert.Equal(t, 1, e.UnreadCount())

	_, err = e.OpenAlert("missing")
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestSensorHistory(t *testing.T) {
	e := newTestEngine(t, healthyPump(), inactiveHVAC())

	h, err := e.SensorHistory("pump-001", 0, 0)
	require.NoError(t, err)
	require.Len(t, h, 2)
	require.Len(t, h["temp-001"], 96)
	assert.Equal(t, testNow, h["temp-001"][95].Timestamp)
	assert.Equal(t, testNow.Add(-24*time.Hour), h["temp-001"][0].Timestamp)

	h, err = e.SensorHistory("pump-001", 6*time.Hour, 10)
	require.NoError(t, err)
	assert.Len(t, h["vib-001"], 10)

	h, err = e.SensorHistory("hvac-001", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, h)

	_, err = e.SensorHistory("missing", 0, 0)
	assert.ErrorIs(t, err, ErrEquipmentNotFound)
}

func TestPrediction(t *testing.T) {
	e := newTestEngine(t, criticalCompressor(), inactiveHVAC())

	p, err := e.Prediction("compressor-001")
	require.NoError(t, err)
	assert.Equal(t, 93, p.Risk)

	p, err = e.Prediction("hvac-001")
	require.NoError(t, err)
	assert.False(t, p.Available)
}

func TestExportAndRestore(t *testing.T) {
	e := newTestEngine(t, criticalCompressor(), healthyPump())
	require.True(t, e.AlertTick())
	e.MarkAlertRead(e.Alerts()[0].ID)

	doc := e.Export()
	require.NoError(t, doc.Validate())

	restored, err := New(testConfig(),
		WithState(doc),
		WithRandom(random.NewSequence([]float64{0.1}, []int{0})),
		WithClock(func() time.Time { return testNow }),
	)
	require.NoError(t, err)
	assert.Equal(t, e.Alerts(), restored.Alerts())
	assert.Equal(t, e.Equipment(), restored.Equipment())
	assert.Equal(t, e.UnreadCount(), restored.UnreadCount())

	// new alerts continue the id sequence instead of colliding
	require.True(t, restored.AlertTick())
	assert.Len(t, restored.Alerts(), len(doc.Alerts)+1)
}

func TestRestoreRejectsDuplicateAlerts(t *testing.T) {
	doc := newTestEngine(t, criticalCompressor()).Export()
	doc.Alerts = append(doc.Alerts, doc.Alerts[0])

	_, err := New(testConfig(), WithState(doc))
	assert.Error(t, err)
}

func TestStopHaltsUpdates(t *testing.T) {
	cfg := testConfig()
	cfg.Simulation.DriftInterval = time.Millisecond
	cfg.Simulation.AlertInterval = time.Millisecond
	cfg.Simulation.AlertProbability = 1

	e, err := New(cfg, WithFleet([]models.Equipment{healthyPump()}), WithRandom(random.New(1)))
	require.NoError(t, err)
	c := &collector{}
	e.OnUpdate(c.add)

	require.NoError(t, e.Start())
	assert.True(t, e.Running())
	require.Eventually(t, func() bool { return len(c.all()) >= 5 }, 2*time.Second, time.Millisecond)

	e.Stop()
	assert.False(t, e.Running())
	n := len(c.all())
	equipment := e.Equipment()
	alertCount := len(e.Alerts())

	time.Sleep(30 * time.Millisecond)
	assert.Len(t, c.all(), n)
	assert.Equal(t, equipment, e.Equipment())
	assert.Len(t, e.Alerts(), alertCount)
}

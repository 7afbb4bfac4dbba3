package engine

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"facilitywatch/internal/alerts"
	"facilitywatch/internal/config"
	"facilitywatch/internal/fleet"
	"facilitywatch/internal/logger"
	"facilitywatch/internal/metrics"
	"facilitywatch/internal/models"
	"facilitywatch/internal/random"
	"facilitywatch/internal/scheduler"
	"facilitywatch/internal/state"
	"facilitywatch/internal/storage"
	"facilitywatch/internal/synth"
	"facilitywatch/internal/threshold"
)

var (
	ErrEquipmentNotFound = errors.New("engine: equipment not found")
	ErrAlertNotFound     = errors.New("engine: alert not found")
)

// UpdateKind names the aggregate an Update carries
type UpdateKind string

const (
	UpdateEquipment UpdateKind = "equipment"
	UpdateAlerts    UpdateKind = "alerts"
)

// Update is delivered to subscribers after every change to shared state. The
// slices are copies owned by the update; subscribers share one Update and
// must treat it as read-only.
type Update struct {
	Kind          UpdateKind            `json:"type"`
	Version       uint64                `json:"version,omitempty"`
	Equipment     []models.Equipment    `json:"equipment,omitempty"`
	Alerts        []models.Alert        `json:"alerts,omitempty"`
	Raised        []models.Alert        `json:"raised,omitempty"`
	Notifications []models.Notification `json:"notifications,omitempty"`
	UnreadCount   int                   `json:"unreadCount"`
}

// Subscriber receives updates synchronously on the goroutine that produced
// them. It must not block and must not call Stop.
type Subscriber func(Update)

// Summary is the status overview of the fleet
type Summary struct {
	Total        int                   `json:"total"`
	ByStatus     map[models.Status]int `json:"byStatus"`
	AlertsTotal  int                   `json:"alertsTotal"`
	UnreadAlerts int                   `json:"unreadAlerts"`
}

// Engine owns the equipment and alert aggregates and the scheduler that
// mutates them. Create it with New, then Start and Stop it.
type Engine struct {
	history config.HistoryConfig
	now     func() time.Time

	fleet *state.Fleet
	store *alerts.Store
	gen   *alerts.Generator
	synth *synth.Synthesizer
	sched *scheduler.Scheduler

	subMu   sync.RWMutex
	subs    map[uint64]Subscriber
	nextSub uint64
}

type options struct {
	equipment []models.Equipment
	rng       random.Source
	now       func() time.Time
	restored  *storage.Document
}

// Option configures an Engine
type Option func(*options)

// WithFleet replaces the configured fleet with the given equipment
func WithFleet(equipment []models.Equipment) Option {
	return func(o *options) {
		o.equipment = equipment
	}
}

// WithRandom sets the random source shared by every component
func WithRandom(src random.Source) Option {
	return func(o *options) {
		o.rng = src
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithState restores a saved document instead of seeding a fresh fleet
func WithState(doc *storage.Document) Option {
	return func(o *options) {
		o.restored = doc
	}
}

// New builds a stopped engine. Equipment comes from, in order: a restored
// document, WithFleet, the configured fleet file, the built-in fleet.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = random.New(cfg.Simulation.Seed)
	}

	log := logger.WithComponent("engine")
	sim := cfg.Simulation

	gen := alerts.NewGenerator(o.rng,
		alerts.WithClock(o.now),
		alerts.WithHighSeverityProbability(sim.HighSeverityProbability),
		alerts.WithHistoryProbability(sim.HistoryProbability),
	)

	var (
		equipment []models.Equipment
		seeded    []models.Alert
		err       error
	)
	switch {
	case o.restored != nil:
		equipment = o.restored.Equipment
		seeded = o.restored.Alerts
		gen.Resume(alerts.MaxSequence(seeded))
		log.Info().
			Time("saved_at", o.restored.SavedAt).
			Int("alerts", len(seeded)).
			Msg("restoring saved state")
	case o.equipment != nil:
		equipment = o.equipment
	case sim.FleetFile != "":
		if equipment, err = fleet.LoadFile(sim.FleetFile); err != nil {
			return nil, err
		}
	default:
		equipment = fleet.Default(o.now())
	}

	for i := range equipment {
		if err := equipment[i].Validate(); err != nil {
			return nil, fmt.Errorf("equipment %q: %w", equipment[i].ID, err)
		}
		reportThresholdIssues(&equipment[i])
	}
	if o.restored == nil {
		seeded = gen.Seed(equipment)
	}

	e := &Engine{
		history: cfg.History,
		now:     o.now,
		fleet:   state.NewFleet(equipment),
		store:   alerts.NewStore(),
		gen:     gen,
		synth:   synth.New(o.rng, synth.WithClock(o.now)),
		subs:    make(map[uint64]Subscriber),
	}
	if err := e.store.InsertMany(seeded); err != nil {
		return nil, fmt.Errorf("load alerts: %w", err)
	}

	e.sched = scheduler.New(scheduler.Config{
		Fleet:            e.fleet,
		Store:            e.store,
		Generator:        gen,
		Random:           o.rng,
		Listener:         listener{e},
		DriftInterval:    sim.DriftInterval,
		AlertInterval:    sim.AlertInterval,
		DriftStep:        sim.DriftStep,
		AlertProbability: sim.AlertProbability,
		DeriveStatus:     sim.DeriveStatus,
	})

	e.recordGauges(e.fleet.Snapshot())
	log.Info().
		Int("equipment", e.fleet.Len()).
		Int("alerts", e.store.Len()).
		Int("unread", e.store.UnreadCount()).
		Msg("engine initialized")
	return e, nil
}

// Start arms the simulation timers
func (e *Engine) Start() error {
	return e.sched.Start()
}

// Stop disarms the simulation timers. No update is published after it returns.
func (e *Engine) Stop() {
	e.sched.Stop()
}

// Running reports whether the simulation timers are armed
func (e *Engine) Running() bool {
	return e.sched.State() == scheduler.Running
}

// DriftTick runs one drift step synchronously
func (e *Engine) DriftTick() bool {
	return e.sched.DriftTick()
}

// AlertTick runs one alert step synchronously
func (e *Engine) AlertTick() bool {
	return e.sched.AlertTick()
}

// Equipment returns the current equipment snapshot in fleet order
func (e *Engine) Equipment() []models.Equipment {
	return e.fleet.Equipment()
}

// Alerts returns the current alerts, newest first
func (e *Engine) Alerts() []models.Alert {
	return e.store.Snapshot()
}

// UnreadCount returns the number of unread alerts
func (e *Engine) UnreadCount() int {
	return e.store.UnreadCount()
}

// SelectEquipment looks up one equipment record
func (e *Engine) SelectEquipment(id string) (models.Equipment, bool) {
	eq, err := e.fleet.Find(id)
	return eq, err == nil
}

// MarkAlertRead marks one alert read. Unknown or already read IDs are a no-op.
func (e *Engine) MarkAlertRead(id string) bool {
	if !e.store.MarkRead(id) {
		return false
	}
	e.publishAlerts(nil, nil)
	return true
}

// MarkAllAlertsRead marks every alert read and returns how many changed
func (e *Engine) MarkAllAlertsRead() int {
	changed := e.store.MarkAllRead()
	n := models.Notification{
		Class: models.NotificationInformational,
		Title: "All alerts marked as read",
	}
	metrics.NotificationsTotal.WithLabelValues(string(n.Class)).Inc()
	e.publishAlerts(nil, []models.Notification{n})
	return changed
}

// OpenAlert marks the alert read and returns the equipment it refers to
func (e *Engine) OpenAlert(id string) (models.Equipment, error) {
	a, err := e.store.Get(id)
	if err != nil {
		return models.Equipment{}, ErrAlertNotFound
	}
	e.MarkAlertRead(id)

	eq, ok := e.SelectEquipment(a.EquipmentID)
	if !ok {
		return models.Equipment{}, ErrEquipmentNotFound
	}
	return eq, nil
}

// SensorHistory synthesizes a reading series for every sensor of the
// equipment. Non-positive window or points fall back to the configured
// history defaults. Inactive equipment has no history.
func (e *Engine) SensorHistory(id string, window time.Duration, points int) (map[string][]models.Reading, error) {
	eq, ok := e.SelectEquipment(id)
	if !ok {
		return nil, ErrEquipmentNotFound
	}
	if window <= 0 {
		window = e.history.Window()
	}
	if points <= 0 {
		points = e.history.Points
	}

	out := make(map[string][]models.Reading, len(eq.Sensors))
	if eq.IsInactive() {
		return out, nil
	}
	for _, s := range eq.Sensors {
		out[s.ID] = e.synth.Synthesize(s.Type, window, points)
	}
	return out, nil
}

// Prediction returns the failure outlook for one equipment
func (e *Engine) Prediction(id string) (threshold.Prediction, error) {
	eq, ok := e.SelectEquipment(id)
	if !ok {
		return threshold.Prediction{}, ErrEquipmentNotFound
	}
	return threshold.PredictFailure(eq.Status), nil
}

// Summary counts equipment per status along with alert totals
func (e *Engine) Summary() Summary {
	snap := e.fleet.Snapshot()
	return Summary{
		Total:        len(snap.Equipment),
		ByStatus:     snap.CountByStatus(),
		AlertsTotal:  e.store.Len(),
		UnreadAlerts: e.store.UnreadCount(),
	}
}

// Export captures both aggregates for persistence
func (e *Engine) Export() *storage.Document {
	return &storage.Document{
		SavedAt:   e.now().UTC(),
		Equipment: e.fleet.Equipment(),
		Alerts:    e.store.Snapshot(),
	}
}

// OnUpdate registers fn for every subsequent update and returns a function
// that removes it.
func (e *Engine) OnUpdate(fn Subscriber) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	e.subMu.Lock()
	e.nextSub++
	id := e.nextSub
	e.subs[id] = fn
	metrics.Subscribers.Set(float64(len(e.subs)))
	e.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.subMu.Lock()
			delete(e.subs, id)
			metrics.Subscribers.Set(float64(len(e.subs)))
			e.subMu.Unlock()
		})
	}
}

func (e *Engine) publish(u Update) {
	e.subMu.RLock()
	subs := make([]Subscriber, 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.subMu.RUnlock()

	for _, fn := range subs {
		e.deliver(fn, u)
	}
}

func (e *Engine) deliver(fn Subscriber, u Update) {
	defer func() {
		if r := recover(); r != nil {
			log := logger.WithComponent("engine")
			log.Error().
				Interface("panic", r).
				Str("update", string(u.Kind)).
				Str("stack", string(debug.Stack())).
				Msg("subscriber panicked")
			metrics.PanicsRecovered.WithLabelValues("engine").Inc()
		}
	}()
	fn(u)
}

// publishAlerts sends the current alert list. Updates may race across the
// tick goroutines and HTTP handlers; Version orders them.
func (e *Engine) publishAlerts(raised []models.Alert, notes []models.Notification) {
	all, unread, version := e.store.View()
	metrics.AlertsUnread.Set(float64(unread))
	e.publish(Update{
		Kind:          UpdateAlerts,
		Version:       version,
		Alerts:        all,
		Raised:        raised,
		Notifications: notes,
		UnreadCount:   unread,
	})
}

// reportThresholdIssues logs malformed bounds. The equipment still loads.
func reportThresholdIssues(eq *models.Equipment) {
	issues := eq.ThresholdIssues()
	if len(issues) == 0 {
		return
	}
	log := logger.WithEquipment("engine", eq.ID)
	for _, err := range issues {
		log.Warn().Err(err).Msg("malformed sensor threshold")
	}
	metrics.ThresholdIssuesTotal.WithLabelValues(eq.ID).Add(float64(len(issues)))
}

func (e *Engine) recordGauges(snap *state.Snapshot) {
	for status, n := range snap.CountByStatus() {
		metrics.EquipmentByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
	metrics.AlertsUnread.Set(float64(e.store.UnreadCount()))
}

// listener adapts scheduler callbacks into subscriber updates
type listener struct {
	e *Engine
}

func (l listener) EquipmentChanged(snap *state.Snapshot) {
	l.e.recordGauges(snap)
	l.e.publish(Update{
		Kind:        UpdateEquipment,
		Version:     snap.Version,
		Equipment:   snap.Clone(),
		UnreadCount: l.e.store.UnreadCount(),
	})
}

func (l listener) AlertsRaised(raised []models.Alert) {
	notes := make([]models.Notification, len(raised))
	for i, a := range raised {
		notes[i] = models.NotificationFor(a)
		metrics.NotificationsTotal.WithLabelValues(string(notes[i].Class)).Inc()
	}
	l.e.publishAlerts(raised, notes)
}

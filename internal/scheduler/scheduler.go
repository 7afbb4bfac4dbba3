package scheduler

import (
	"context"
	"errors"
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"facilitywatch/internal/alerts"
	"facilitywatch/internal/logger"
	"facilitywatch/internal/metrics"
	"facilitywatch/internal/models"
	"facilitywatch/internal/random"
	"facilitywatch/internal/state"
	"facilitywatch/internal/threshold"
)

// State of the scheduler lifecycle
type State int32

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

const (
	DefaultDriftInterval    = 5 * time.Second
	DefaultAlertInterval    = 30 * time.Second
	DefaultDriftStep        = 2.5
	DefaultAlertProbability = 0.15
)

// tick outcomes, used as metric labels
const (
	outcomeMutated = "mutated"
	outcomeSkipped = "skipped"
	outcomeRaised  = "raised"
	outcomeQuiet   = "quiet"
	outcomeFailed  = "failed"
)

// ErrAlreadyRunning is returned by Start on a running scheduler
var ErrAlreadyRunning = errors.New("scheduler: already running")

var errSkip = errors.New("skip")

// Listener receives the results of ticks that changed shared state. It is
// called synchronously from the tick goroutine and must not call Stop.
type Listener interface {
	EquipmentChanged(snap *state.Snapshot)
	AlertsRaised(raised []models.Alert)
}

// Config holds scheduler configuration
type Config struct {
	Fleet     *state.Fleet
	Store     *alerts.Store
	Generator *alerts.Generator
	Random    random.Source
	Listener  Listener

	DriftInterval    time.Duration
	AlertInterval    time.Duration
	DriftStep        float64
	// AlertProbability is the chance per alert tick of a random event; zero
	// disables random alerts.
	AlertProbability float64
	// DeriveStatus re-evaluates thresholds after every drift step and raises
	// status alerts when equipment enters warning or critical.
	DeriveStatus bool
}

// Scheduler drives the drift and alert ticks on two independent timers
type Scheduler struct {
	fleet     *state.Fleet
	store     *alerts.Store
	gen       *alerts.Generator
	rng       random.Source
	listener  Listener
	driftIvl  time.Duration
	alertIvl  time.Duration
	step      float64
	alertProb float64
	derive    bool

	lifecycle sync.Mutex
	state     atomic.Int32
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a stopped scheduler
func New(cfg Config) *Scheduler {
	if cfg.DriftInterval <= 0 {
		cfg.DriftInterval = DefaultDriftInterval
	}
	if cfg.AlertInterval <= 0 {
		cfg.AlertInterval = DefaultAlertInterval
	}
	if cfg.DriftStep <= 0 {
		cfg.DriftStep = DefaultDriftStep
	}
	if cfg.AlertProbability < 0 {
		cfg.AlertProbability = DefaultAlertProbability
	}
	if cfg.Listener == nil {
		cfg.Listener = nopListener{}
	}

	return &Scheduler{
		fleet:     cfg.Fleet,
		store:     cfg.Store,
		gen:       cfg.Generator,
		rng:       cfg.Random,
		listener:  cfg.Listener,
		driftIvl:  cfg.DriftInterval,
		alertIvl:  cfg.AlertInterval,
		step:      cfg.DriftStep,
		alertProb: cfg.AlertProbability,
		derive:    cfg.DeriveStatus,
	}
}

// State returns the current lifecycle state
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Start arms both timers. A stopped scheduler may be started again.
func (s *Scheduler) Start() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.State() == Running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.state.Store(int32(Running))

	s.wg.Add(2)
	go s.loop(ctx, s.driftIvl, s.DriftTick)
	go s.loop(ctx, s.alertIvl, s.AlertTick)

	log := logger.WithComponent("scheduler")
	log.Info().
		Dur("drift_interval", s.driftIvl).
		Dur("alert_interval", s.alertIvl).
		Bool("derive_status", s.derive).
		Msg("scheduler started")
	return nil
}

// Stop disarms both timers and waits for an in-flight tick to finish. Once
// it returns no further tick runs. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.State() == Stopped {
		return
	}

	s.cancel()
	s.wg.Wait()
	s.cancel = nil
	s.state.Store(int32(Stopped))

	log := logger.WithComponent("scheduler")
	log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, tick func() bool) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// both cases may be ready at once
			if ctx.Err() != nil {
				return
			}
			tick()
		}
	}
}

// DriftTick runs one drift step: one sensor of one random equipment takes a
// bounded random walk step. It reports whether a sensor was mutated.
func (s *Scheduler) DriftTick() bool {
	return s.runTick("drift", metrics.DriftTicksTotal, s.drift) == outcomeMutated
}

// AlertTick runs one alert step. It reports whether an alert was raised.
func (s *Scheduler) AlertTick() bool {
	return s.runTick("alert", metrics.AlertTicksTotal, s.alert) == outcomeRaised
}

func (s *Scheduler) runTick(name string, counter *prometheus.CounterVec, fn func() string) (outcome string) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log := logger.WithComponent("scheduler")
			log.Error().
				Str("tick", name).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("tick panicked, skipping")
			metrics.PanicsRecovered.WithLabelValues("scheduler").Inc()
			outcome = outcomeFailed
		}
		counter.WithLabelValues(outcome).Inc()
		metrics.TickDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()
	return fn()
}

func (s *Scheduler) drift() string {
	var (
		raised      []models.Alert
		equipmentID string
		sensorID    string
		newValue    float64
	)

	snap, err := s.fleet.Update(func(eq []models.Equipment) error {
		if len(eq) == 0 {
			return errSkip
		}
		e := &eq[s.rng.IntN(len(eq))]
		if len(e.Sensors) == 0 {
			return errSkip
		}
		sensor := &e.Sensors[s.rng.IntN(len(e.Sensors))]
		sensor.Value = models.Round2(math.Max(0, sensor.Value+random.Uniform(s.rng, -s.step, s.step)))

		equipmentID, sensorID, newValue = e.ID, sensor.ID, sensor.Value

		if s.derive {
			prev, changed := threshold.Apply(e)
			if changed {
				metrics.StatusTransitionsTotal.WithLabelValues(string(prev), string(e.Status)).Inc()
				log := logger.WithEquipment("scheduler", e.ID)
				log.Info().
					Str("from", string(prev)).
					Str("to", string(e.Status)).
					Msg("equipment status changed")
				raised = s.gen.FromStatus(*e)
			}
		}
		return nil
	})
	if errors.Is(err, errSkip) {
		return outcomeSkipped
	}
	if err != nil {
		log := logger.WithComponent("scheduler")
		log.Error().Err(err).Msg("drift tick failed")
		return outcomeFailed
	}

	log := logger.WithEquipment("scheduler", equipmentID)
	log.Debug().
		Str("sensor_id", sensorID).
		Float64("value", newValue).
		Uint64("version", snap.Version).
		Msg("sensor drifted")

	s.listener.EquipmentChanged(snap)

	if len(raised) > 0 {
		if err := s.store.InsertMany(raised); err != nil {
			log.Error().Err(err).Msg("failed to store status alerts")
			return outcomeMutated
		}
		s.listener.AlertsRaised(raised)
	}
	return outcomeMutated
}

func (s *Scheduler) alert() string {
	if !random.Chance(s.rng, s.alertProb) {
		return outcomeQuiet
	}

	snap := s.fleet.Snapshot()
	if len(snap.Equipment) == 0 {
		return outcomeQuiet
	}
	e := snap.Equipment[s.rng.IntN(len(snap.Equipment))]

	a, ok := s.gen.FromRandomEvent(e)
	if !ok {
		return outcomeQuiet
	}
	if err := s.store.Insert(a); err != nil {
		log := logger.WithComponent("scheduler")
		log.Error().Err(err).Str("alert_id", a.ID).Msg("failed to store random alert")
		return outcomeFailed
	}

	s.listener.AlertsRaised([]models.Alert{a})
	return outcomeRaised
}

type nopListener struct{}

func (nopListener) EquipmentChanged(*state.Snapshot) {}
func (nopListener) AlertsRaised([]models.Alert)      {}

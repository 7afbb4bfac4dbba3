package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"facilitywatch/internal/config"
	"facilitywatch/internal/engine"
	"facilitywatch/internal/handlers"
	"facilitywatch/internal/hub"
	"facilitywatch/internal/kafka"
	"facilitywatch/internal/logger"
	"facilitywatch/internal/metrics"
	"facilitywatch/internal/middleware"
	"facilitywatch/internal/models"
	"facilitywatch/internal/storage"
	"facilitywatch/internal/worker"
)

const (
	shutdownTimeout = 10 * time.Second
	workerTimeout   = 15 * time.Second
	statsInterval   = 30 * time.Second
)

// Publisher delivers alert envelopes downstream. *kafka.Producer satisfies it.
type Publisher interface {
	worker.Publisher
	HealthCheck(ctx context.Context) error
	Stats() kafka.ProducerStats
	Close() error
}

// Server is the process coordinator: it runs the engine, serves the HTTP API
// and websocket stream, and forwards raised alerts to the publisher.
type Server struct {
	cfg         *config.Config
	node        string
	engine      *engine.Engine
	hub         *hub.Hub
	snapshotter storage.Snapshotter
	handler     http.Handler

	publisher    Publisher
	workerPool   *worker.Pool
	envelopeChan chan *models.AlertEnvelope
	pipeMu       sync.RWMutex
	pipeClosed   bool

	httpServer *http.Server
	addr       chan string
	wg         sync.WaitGroup
}

type options struct {
	engineOpts  []engine.Option
	publisher   Publisher
	snapshotter storage.Snapshotter
}

// Option configures a Server
type Option func(*options)

// WithEngineOptions passes options through to engine.New
func WithEngineOptions(opts ...engine.Option) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, opts...)
	}
}

// WithPublisher enables alert publishing through p instead of a Kafka
// producer built from config.
func WithPublisher(p Publisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// WithSnapshotter persists state through s instead of the configured file
func WithSnapshotter(s storage.Snapshotter) Option {
	return func(o *options) {
		o.snapshotter = s
	}
}

// New builds the engine, restoring the last snapshot when one exists
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		cfg:         cfg,
		node:        nodeID(),
		snapshotter: o.snapshotter,
		publisher:   o.publisher,
		addr:        make(chan string, 1),
	}

	if s.snapshotter == nil && cfg.Storage.SnapshotPath != "" {
		f, err := storage.NewFile(cfg.Storage.SnapshotPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot store: %w", err)
		}
		s.snapshotter = f
	}

	var e *engine.Engine
	if doc := s.loadSnapshot(ctx); doc != nil {
		withState := append([]engine.Option{engine.WithState(doc)}, o.engineOpts...)
		restored, err := engine.New(cfg, withState...)
		if err != nil {
			s.discardSnapshot(fmt.Errorf("%w: %w", storage.ErrCorruptSnapshot, err))
		}
		e = restored
	}
	if e == nil {
		fresh, err := engine.New(cfg, o.engineOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize engine: %w", err)
		}
		e = fresh
	}
	s.engine = e
	s.hub = hub.New(e)
	s.handler = s.routes()
	return s, nil
}

// quarantiner is implemented by snapshot stores that can move a bad
// snapshot out of the way
type quarantiner interface {
	Quarantine(now time.Time) (string, error)
}

// loadSnapshot returns the saved state, or nil when there is none or it
// cannot be used. An unusable snapshot never stops startup.
func (s *Server) loadSnapshot(ctx context.Context) *storage.Document {
	if s.snapshotter == nil {
		return nil
	}

	doc, err := s.snapshotter.Load(ctx)
	switch {
	case err == nil:
		return doc
	case errors.Is(err, storage.ErrNoSnapshot):
		log := logger.WithComponent("server")
		log.Info().Msg("no saved state, starting fresh")
	default:
		s.discardSnapshot(err)
	}
	return nil
}

// discardSnapshot records a snapshot that could not be restored. Corrupt
// snapshots are moved aside so the next save does not keep them around.
func (s *Server) discardSnapshot(err error) {
	log := logger.WithComponent("server")
	metrics.SnapshotLoadFailuresTotal.Inc()

	q, ok := s.snapshotter.(quarantiner)
	if !ok || !errors.Is(err, storage.ErrCorruptSnapshot) {
		log.Error().Err(err).Msg("failed to load snapshot, starting fresh")
		return
	}
	moved, qerr := q.Quarantine(time.Now())
	if qerr != nil {
		log.Error().Err(err).AnErr("quarantine_error", qerr).Msg("corrupt snapshot, starting fresh")
		return
	}
	log.Error().Err(err).Str("moved_to", moved).Msg("corrupt snapshot, starting fresh")
}

// Engine returns the simulation engine
func (s *Server) Engine() *engine.Engine {
	return s.engine
}

// Handler returns the HTTP handler with all routes mounted
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr delivers the bound listen address once Run is serving
func (s *Server) Addr() <-chan string {
	return s.addr
}

// Run starts the simulation and serves until ctx is cancelled, then shuts
// everything down in order.
func (s *Server) Run(ctx context.Context) error {
	log := logger.WithComponent("server")
	log.Info().Str("node", s.node).Msg("server starting")

	if err := s.initPublisher(); err != nil {
		log.Error().Err(err).Msg("failed to initialize publisher")
		return fmt.Errorf("failed to initialize publisher: %w", err)
	}
	if s.publisher != nil {
		s.initWorkerPool()
		s.workerPool.Start()
	}

	ln, err := net.Listen("tcp", s.cfg.HTTP.Addr)
	if err != nil {
		s.closePipeline()
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.HTTP.Addr, err)
	}
	s.httpServer = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.HTTP.ReadTimeout,
		WriteTimeout: s.cfg.HTTP.WriteTimeout,
		IdleTimeout:  s.cfg.HTTP.IdleTimeout,
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		s.hub.Run(hubCtx)
	}()

	unsubscribe := s.engine.OnUpdate(s.onUpdate)
	if err := s.engine.Start(); err != nil {
		unsubscribe()
		s.closePipeline()
		ln.Close()
		return fmt.Errorf("failed to start engine: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Info().Str("addr", ln.Addr().String()).Msg("starting HTTP server")
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()
	s.addr <- ln.Addr().String()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reportStats(ctx)
	}()

	if s.snapshotter != nil && s.cfg.Storage.SnapshotInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.saveLoop(ctx)
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	err = s.shutdown(unsubscribe)
	stopHub()
	<-hubDone
	return err
}

func (s *Server) initPublisher() error {
	if s.publisher != nil || !s.cfg.Kafka.Enabled {
		return nil
	}

	log := logger.WithComponent("server")
	producer, err := kafka.NewProducer(
		s.cfg.Kafka.Brokers,
		s.cfg.Kafka.Topic,
		s.cfg.Kafka.Producer,
	)
	if err != nil {
		return err
	}

	s.publisher = producer
	log.Info().
		Strs("brokers", s.cfg.Kafka.Brokers).
		Str("topic", s.cfg.Kafka.Topic).
		Msg("kafka producer initialized")
	return nil
}

func (s *Server) initWorkerPool() {
	log := logger.WithComponent("server")

	queueSize := s.cfg.Kafka.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}
	s.envelopeChan = make(chan *models.AlertEnvelope, queueSize)
	metrics.WorkerQueueCapacity.Set(float64(queueSize))

	s.workerPool = worker.NewPool(worker.Config{
		Publisher:    s.publisher,
		EnvelopeChan: s.envelopeChan,
		Workers:      s.cfg.Kafka.Producer.PoolSize,
		BatchSize:    s.cfg.Kafka.Producer.BatchSize,
		BatchTimeout: s.cfg.Kafka.Producer.BatchTimeout,
	})
	log.Info().Int("workers", s.cfg.Kafka.Producer.PoolSize).Msg("worker pool initialized")
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)

	r.Get("/health", s.healthHandler)
	r.Get("/stats", s.statsHandler)
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/ws", s.hub)
	r.Route("/api", handlers.NewAPIHandler(s.engine).Routes)
	return r
}

// onUpdate runs on the engine's goroutine and must not block
func (s *Server) onUpdate(u engine.Update) {
	s.hub.Broadcast(u)
	if len(u.Raised) > 0 {
		s.enqueue(u.Raised)
	}
}

func (s *Server) enqueue(raised []models.Alert) {
	s.pipeMu.RLock()
	defer s.pipeMu.RUnlock()
	if s.envelopeChan == nil || s.pipeClosed {
		return
	}

	for _, a := range raised {
		select {
		case s.envelopeChan <- models.NewEnvelope(a, s.node):
		default:
			metrics.WorkerDroppedTotal.Inc()
			log := logger.WithEquipment("server", a.EquipmentID)
			log.Warn().Str("alert_id", a.ID).Msg("publish queue full, dropping alert")
		}
	}
	metrics.WorkerQueueSize.Set(float64(len(s.envelopeChan)))
}

// closePipeline stops accepting alerts and drains the worker pool
func (s *Server) closePipeline() {
	if s.workerPool == nil {
		return
	}
	log := logger.WithComponent("server")

	s.pipeMu.Lock()
	if s.pipeClosed {
		s.pipeMu.Unlock()
		return
	}
	s.pipeClosed = true
	close(s.envelopeChan)
	s.pipeMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.workerPool.Stop()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("workers stopped gracefully")
	case <-time.After(workerTimeout):
		log.Warn().Msg("worker shutdown timeout - forcing exit")
	}

	log.Info().Msg("closing publisher")
	if err := s.publisher.Close(); err != nil {
		log.Error().Err(err).Msg("publisher close error")
	}
}

func (s *Server) shutdown(unsubscribe func()) error {
	log := logger.WithComponent("server")
	log.Info().Msg("initiating graceful shutdown")

	// 1. Stop accepting new HTTP requests
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info().Msg("stopping HTTP server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop the simulation; no update is published after this
	s.engine.Stop()
	unsubscribe()

	// 3. Drain queued alerts and close the publisher
	s.closePipeline()

	// 4. Persist final state
	var saveErr error
	if s.snapshotter != nil {
		saveErr = s.save(shutdownCtx)
		if err := s.snapshotter.Close(); err != nil {
			log.Error().Err(err).Msg("snapshot store close error")
		}
	}

	// 5. Wait for all goroutines
	s.wg.Wait()

	log.Info().Msg("server stopped gracefully")
	return saveErr
}

func (s *Server) save(ctx context.Context) error {
	doc := s.engine.Export()
	if err := s.snapshotter.Save(ctx, doc); err != nil {
		log := logger.WithComponent("server")
		log.Error().Err(err).Msg("failed to save snapshot")
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *Server) saveLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Storage.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.save(ctx)
		}
	}
}

// reportStats periodically logs statistics
func (s *Server) reportStats(ctx context.Context) {
	log := logger.WithComponent("server")
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.stats()
			ev := log.Info().
				Int("equipment", st.Engine.Total).
				Int("alerts", st.Engine.AlertsTotal).
				Int("unread", st.Engine.UnreadAlerts).
				Int("ws_clients", st.Clients)
			if st.Worker != nil {
				ev = ev.
					Uint64("worker_processed", st.Worker.Processed).
					Uint64("worker_failed", st.Worker.Failed).
					Uint64("producer_sent", st.Producer.MessagesSent).
					Uint64("producer_failed", st.Producer.MessagesFailed).
					Int("queue_size", st.Queue.Buffered)
			}
			ev.Msg("stats")
		}
	}
}

func nodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "unknown"
	}
	return host
}

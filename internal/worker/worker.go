package worker

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"facilitywatch/internal/logger"
	"facilitywatch/internal/metrics"
	"facilitywatch/internal/models"
)

// Publisher defines the interface for publishing alert envelopes
type Publisher interface {
	Publish(ctx context.Context, envelope *models.AlertEnvelope) error
	PublishBatch(ctx context.Context, envelopes []*models.AlertEnvelope) error
}

// flushTimeout bounds the final publish of a partial batch during shutdown
const flushTimeout = 5 * time.Second

// Pool manages a pool of workers that batch alert envelopes and hand them to
// the publisher
type Pool struct {
	publisher    Publisher
	envelopeChan chan *models.AlertEnvelope
	workers      int
	batchSize    int
	batchTimeout time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	// Metrics
	processed atomic.Uint64
	failed    atomic.Uint64
}

// Config holds worker pool configuration
type Config struct {
	Publisher    Publisher
	EnvelopeChan chan *models.AlertEnvelope
	Workers      int
	BatchSize    int
	BatchTimeout time.Duration
}

// NewPool creates a new worker pool
func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 100 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		publisher:    cfg.Publisher,
		envelopeChan: cfg.EnvelopeChan,
		workers:      cfg.Workers,
		batchSize:    cfg.BatchSize,
		batchTimeout: cfg.BatchTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start begins processing envelopes
func (p *Pool) Start() {
	log := logger.WithComponent("worker_pool")
	log.Info().
		Int("workers", p.workers).
		Int("batch_size", p.batchSize).
		Dur("batch_timeout", p.batchTimeout).
		Msg("starting worker pool")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop gracefully stops all workers
func (p *Pool) Stop() {
	log := logger.WithComponent("worker_pool")
	log.Info().Msg("stopping worker pool")
	p.cancel()
	p.wg.Wait()
	log.Info().Msg("worker pool stopped")
}

// worker processes envelopes from the channel
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	log := logger.WithComponent("worker").With().Int("worker_id", id).Logger()

	// Panic recovery
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			log.Error().
				Interface("panic", r).
				Bytes("stack", stack).
				Msg("worker panic recovered")
			metrics.PanicsRecovered.WithLabelValues("worker").Inc()
		}
	}()

	log.Info().Msg("worker started")
	defer log.Info().Msg("worker stopped")

	batch := make([]*models.AlertEnvelope, 0, p.batchSize)
	timer := time.NewTimer(p.batchTimeout)
	defer timer.Stop()

	for {
		select {
		case <-p.ctx.Done():
			// Flush remaining batch before exiting
			p.flush(batch)
			return

		case envelope, ok := <-p.envelopeChan:
			if !ok {
				// Channel closed, flush and exit
				p.flush(batch)
				return
			}
			metrics.WorkerQueueSize.Set(float64(len(p.envelopeChan)))

			batch = append(batch, envelope)

			// Publish when batch is full
			if len(batch) >= p.batchSize {
				p.publishBatch(p.ctx, batch)
				batch = batch[:0] // Reset batch
				timer.Reset(p.batchTimeout)
			}

		case <-timer.C:
			// Publish on timeout if we have any messages
			if len(batch) > 0 {
				p.publishBatch(p.ctx, batch)
				batch = batch[:0]
			}
			timer.Reset(p.batchTimeout)
		}
	}
}

// flush publishes what is left of a batch once the pool is shutting down. The
// pool context may already be cancelled, so it gets a context of its own.
func (p *Pool) flush(batch []*models.AlertEnvelope) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	p.publishBatch(ctx, batch)
}

// publishBatch stamps a batch ID on every envelope and publishes the batch
func (p *Pool) publishBatch(parent context.Context, batch []*models.AlertEnvelope) {
	if len(batch) == 0 {
		return
	}

	log := logger.WithComponent("worker")
	start := time.Now()

	batchID := uuid.NewString()
	for i, envelope := range batch {
		envelope.WithBatch(batchID, i)
	}

	// Create a timeout context for the publish operation
	ctx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()

	log.Debug().
		Str("batch_id", batchID).
		Int("batch_size", len(batch)).
		Msg("publishing alert batch")

	err := p.publisher.PublishBatch(ctx, batch)
	duration := time.Since(start)

	metrics.WorkerBatchPublishDuration.Observe(duration.Seconds())

	if err != nil {
		log.Error().
			Err(err).
			Int("batch_size", len(batch)).
			Dur("duration", duration).
			Msg("failed to publish batch")

		p.failed.Add(uint64(len(batch)))
		metrics.WorkerFailedTotal.Add(float64(len(batch)))

		// Fallback: try publishing individually
		p.publishIndividually(parent, batch)
	} else {
		log.Info().
			Int("batch_size", len(batch)).
			Dur("duration", duration).
			Msg("batch published successfully")

		p.processed.Add(uint64(len(batch)))
		metrics.WorkerProcessedTotal.Add(float64(len(batch)))
	}
}

// publishIndividually tries to publish each envelope separately (fallback)
func (p *Pool) publishIndividually(parent context.Context, batch []*models.AlertEnvelope) {
	log := logger.WithComponent("worker")
	log.Warn().Int("count", len(batch)).Msg("attempting individual publish for failed batch")

	for _, envelope := range batch {
		envelope.RetryCount++
		ctx, cancel := context.WithTimeout(parent, 5*time.Second)
		err := p.publisher.Publish(ctx, envelope)
		cancel()

		if err != nil {
			log.Error().
				Err(err).
				Str("alert_id", envelope.Alert.ID).
				Str("equipment_id", envelope.Alert.EquipmentID).
				Msg("failed to publish envelope individually")
		} else {
			log.Debug().
				Str("alert_id", envelope.Alert.ID).
				Msg("envelope published individually")

			// Don't count twice - subtract from failed, add to processed
			p.failed.Add(^uint64(0)) // Subtract 1
			p.processed.Add(1)
		}
	}
}

// Stats returns worker pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
	}
}

// Stats holds worker pool metrics
type Stats struct {
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
}

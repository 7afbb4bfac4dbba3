package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"facilitywatch/internal/config"
	"facilitywatch/internal/logger"
	"facilitywatch/internal/metrics"
	"facilitywatch/internal/models"
)

var (
	ErrProducerClosed  = errors.New("producer is closed")
	ErrSerializeFailed = errors.New("failed to serialize alert envelope")
)

var codecs = map[string]compress.Compression{
	"gzip":   compress.Gzip,
	"snappy": compress.Snappy,
	"lz4":    compress.Lz4,
	"zstd":   compress.Zstd,
}

// ProducerStats holds producer counters
type ProducerStats struct {
	MessagesSent   uint64 `json:"messagesSent"`
	MessagesFailed uint64 `json:"messagesFailed"`
	BytesWritten   uint64 `json:"bytesWritten"`
}

// Producer publishes alert envelopes to one topic. Writers are pooled so
// concurrent workers never share one; messages are keyed by equipment ID and
// hash balanced, which keeps the alerts of a unit on one partition in order.
type Producer struct {
	cfg     config.ProducerConfig
	brokers []string
	writers []*kafka.Writer
	idle    chan *kafka.Writer
	closed  atomic.Bool

	sent   atomic.Uint64
	failed atomic.Uint64
	bytes  atomic.Uint64
}

// NewProducer builds the writer pool. No connection is made until the first
// publish.
func NewProducer(brokers []string, topic string, cfg config.ProducerConfig) (*Producer, error) {
	switch {
	case len(brokers) == 0:
		return nil, errors.New("kafka: at least one broker is required")
	case topic == "":
		return nil, errors.New("kafka: topic is required")
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}

	p := &Producer{
		cfg:     cfg,
		brokers: brokers,
		writers: make([]*kafka.Writer, 0, cfg.PoolSize),
		idle:    make(chan *kafka.Writer, cfg.PoolSize),
	}
	for i := 0; i < cfg.PoolSize; i++ {
		w := &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:  codecs[cfg.Compression],
			MaxAttempts:  1, // write() retries with backoff
		}
		p.writers = append(p.writers, w)
		p.idle <- w
	}
	return p, nil
}

// message serializes an envelope into a keyed Kafka message
func message(env *models.AlertEnvelope) (kafka.Message, error) {
	if env == nil || env.Alert == nil {
		return kafka.Message{}, fmt.Errorf("%w: envelope has no alert", ErrSerializeFailed)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("%w: %v", ErrSerializeFailed, err)
	}
	return kafka.Message{
		Key:   []byte(env.PartitionKey),
		Value: data,
		Headers: []kafka.Header{
			{Key: "alert_id", Value: []byte(env.Alert.ID)},
			{Key: "equipment_id", Value: []byte(env.Alert.EquipmentID)},
			{Key: "severity", Value: []byte(env.Alert.Severity)},
			{Key: "node", Value: []byte(env.Node)},
		},
		Time: env.RaisedAt,
	}, nil
}

// Publish sends one envelope
func (p *Producer) Publish(ctx context.Context, env *models.AlertEnvelope) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	msg, err := message(env)
	if err != nil {
		p.countFailed(1)
		return err
	}
	return p.send(ctx, []kafka.Message{msg})
}

// PublishBatch sends the envelopes in one write. Envelopes that cannot be
// serialized are skipped and counted as failed; the rest still go out.
func (p *Producer) PublishBatch(ctx context.Context, envs []*models.AlertEnvelope) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	msgs := make([]kafka.Message, 0, len(envs))
	for i, env := range envs {
		msg, err := message(env)
		if err != nil {
			log := logger.WithComponent("kafka_producer")
			log.Error().Err(err).Int("index", i).Msg("dropping envelope")
			p.countFailed(1)
			continue
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return nil
	}
	return p.send(ctx, msgs)
}

// send borrows a writer, writes msgs with retries and records the outcome
func (p *Producer) send(ctx context.Context, msgs []kafka.Message) error {
	var w *kafka.Writer
	select {
	case w = <-p.idle:
		defer func() { p.idle <- w }()
	case <-ctx.Done():
		p.countFailed(len(msgs))
		return ctx.Err()
	}

	start := time.Now()
	err := p.write(ctx, w, msgs)
	metrics.KafkaPublishDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.countFailed(len(msgs))
		return err
	}

	var n uint64
	for _, m := range msgs {
		n += uint64(len(m.Value))
	}
	p.sent.Add(uint64(len(msgs)))
	p.bytes.Add(n)
	metrics.KafkaPublishTotal.WithLabelValues("success").Add(float64(len(msgs)))
	metrics.KafkaBytesWritten.Add(float64(n))
	return nil
}

// write tries up to MaxRetries+1 times, doubling the backoff between
// attempts. Context errors end the loop at once.
func (p *Producer) write(ctx context.Context, w *kafka.Writer, msgs []kafka.Message) error {
	log := logger.WithComponent("kafka_producer")
	attempts := p.cfg.MaxRetries + 1
	backoff := p.cfg.RetryBackoff

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = w.WriteMessages(ctx, msgs...); err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if attempt == attempts {
			break
		}

		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("messages", len(msgs)).
			Dur("backoff", backoff).
			Msg("kafka write failed, retrying")
		metrics.KafkaPublishRetries.Inc()

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	log.Error().Err(err).Int("attempts", attempts).Int("messages", len(msgs)).Msg("kafka write gave up")
	return fmt.Errorf("kafka write failed after %d attempts: %w", attempts, err)
}

func (p *Producer) countFailed(n int) {
	p.failed.Add(uint64(n))
	metrics.KafkaPublishTotal.WithLabelValues("failed").Add(float64(n))
}

// HealthCheck dials the first reachable broker
func (p *Producer) HealthCheck(ctx context.Context) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	var errs []error
	for _, broker := range p.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err == nil {
			return conn.Close()
		}
		errs = append(errs, err)
	}
	return fmt.Errorf("no kafka broker reachable: %w", errors.Join(errs...))
}

// Stats returns the producer counters
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		MessagesSent:   p.sent.Load(),
		MessagesFailed: p.failed.Load(),
		BytesWritten:   p.bytes.Load(),
	}
}

// Close flushes and closes every writer. Later calls are no-ops.
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	var errs []error
	for _, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

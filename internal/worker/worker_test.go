package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"facilitywatch/internal/models"
)

func testAlert(i int) models.Alert {
	return models.Alert{
		ID:            fmt.Sprintf("alert-pump-001-%d", i),
		EquipmentID:   "pump-001",
		EquipmentName: "Centrifugal Pump A1",
		Message:       "Unusual temperature detected on Centrifugal Pump A1",
		Timestamp:     time.Now(),
		Severity:      models.SeverityMedium,
	}
}

// MockPublisher is a mock implementation of Publisher for testing
type MockPublisher struct {
	published  atomic.Uint64
	failed     atomic.Uint64
	shouldFail bool

	mu      sync.Mutex
	batches [][]*models.AlertEnvelope
}

func (m *MockPublisher) Publish(ctx context.Context, envelope *models.AlertEnvelope) error {
	if m.shouldFail {
		m.failed.Add(1)
		return context.DeadlineExceeded
	}
	m.published.Add(1)
	return nil
}

func (m *MockPublisher) PublishBatch(ctx context.Context, envelopes []*models.AlertEnvelope) error {
	if m.shouldFail {
		m.failed.Add(uint64(len(envelopes)))
		return context.DeadlineExceeded
	}
	m.published.Add(uint64(len(envelopes)))
	m.mu.Lock()
	m.batches = append(m.batches, append([]*models.AlertEnvelope(nil), envelopes...))
	m.mu.Unlock()
	return nil
}

func TestWorkerPool_ProcessEnvelopes(t *testing.T) {
	ch := make(chan *models.AlertEnvelope, 100)
	mock := &MockPublisher{}

	pool := NewPool(Config{
		Publisher:    mock,
		EnvelopeChan: ch,
		Workers:      2,
		BatchSize:    10,
		BatchTimeout: 100 * time.Millisecond,
	})

	pool.Start()
	defer pool.Stop()

	// Send test envelopes
	numEvents := 25
	for i := 0; i < numEvents; i++ {
		ch <- models.NewEnvelope(testAlert(i), "test-node")
	}

	// Wait for processing
	time.Sleep(500 * time.Millisecond)

	stats := pool.Stats()
	if stats.Processed != uint64(numEvents) {
		t.Errorf("expected %d processed, got %d", numEvents, stats.Processed)
	}

	if mock.published.Load() != uint64(numEvents) {
		t.Errorf("expected %d published, got %d", numEvents, mock.published.Load())
	}
}

func TestWorkerPool_Batching(t *testing.T) {
	ch := make(chan *models.AlertEnvelope, 100)
	mock := &MockPublisher{}

	pool := NewPool(Config{
		Publisher:    mock,
		EnvelopeChan: ch,
		Workers:      1,
		BatchSize:    5,
		BatchTimeout: 1 * time.Second, // Long timeout to force batching
	})

	pool.Start()
	defer pool.Stop()

	// Send exactly one batch worth of events
	for i := 0; i < 5; i++ {
		ch <- models.NewEnvelope(testAlert(i), "test-node")
	}

	// Wait for batch processing
	time.Sleep(200 * time.Millisecond)

	if mock.published.Load() != 5 {
		t.Errorf("expected 5 published in batch, got %d", mock.published.Load())
	}
}

func TestWorkerPool_TimeoutBatch(t *testing.T) {
	ch := make(chan *models.AlertEnvelope, 100)
	mock := &MockPublisher{}

	pool := NewPool(Config{
		Publisher:    mock,
		EnvelopeChan: ch,
		Workers:      1,
		BatchSize:    100,                    // Large batch size
		BatchTimeout: 100 * time.Millisecond, // Short timeout
	})

	pool.Start()
	defer pool.Stop()

	// Send only 3 events (less than batch size)
	for i := 0; i < 3; i++ {
		ch <- models.NewEnvelope(testAlert(i), "test-node")
	}

	// Wait for timeout to trigger
	time.Sleep(300 * time.Millisecond)

	if mock.published.Load() != 3 {
		t.Errorf("expected 3 published via timeout, got %d", mock.published.Load())
	}
}

func TestWorkerPool_GracefulShutdown(t *testing.T) {
	ch := make(chan *models.AlertEnvelope, 100)
	mock := &MockPublisher{}

	pool := NewPool(Config{
		Publisher:    mock,
		EnvelopeChan: ch,
		Workers:      2,
		BatchSize:    10,
		BatchTimeout: 100 * time.Millisecond,
	})

	pool.Start()

	// Send events
	for i := 0; i < 7; i++ {
		ch <- models.NewEnvelope(testAlert(i), "test-node")
	}

	// Give workers a moment to pick up events
	time.Sleep(50 * time.Millisecond)

	// Stop (should flush remaining events)
	pool.Stop()

	// All events should be processed
	if mock.published.Load() != 7 {
		t.Errorf("expected 7 published after shutdown, got %d", mock.published.Load())
	}
}

func TestWorkerPool_ErrorHandling(t *testing.T) {
	ch := make(chan *models.AlertEnvelope, 100)
	mock := &MockPublisher{shouldFail: true}

	pool := NewPool(Config{
		Publisher:    mock,
		EnvelopeChan: ch,
		Workers:      1,
		BatchSize:    5,
		BatchTimeout: 100 * time.Millisecond,
	})

	pool.Start()
	defer pool.Stop()

	// Send events
	for i := 0; i < 5; i++ {
		ch <- models.NewEnvelope(testAlert(i), "test-node")
	}

	// Wait for processing
	time.Sleep(500 * time.Millisecond)

	stats := pool.Stats()
	// With our fallback logic, failed batch attempts individual retries
	// So we expect all to be marked as failed
	if stats.Failed == 0 {
		t.Error("expected some failures")
	}
}

func TestWorkerPool_BatchMetadata(t *testing.T) {
	ch := make(chan *models.AlertEnvelope, 100)
	mock := &MockPublisher{}

	pool := NewPool(Config{
		Publisher:    mock,
		EnvelopeChan: ch,
		Workers:      1,
		BatchSize:    3,
		BatchTimeout: time.Second,
	})

	pool.Start()
	defer pool.Stop()

	for i := 0; i < 3; i++ {
		ch <- models.NewEnvelope(testAlert(i), "test-node")
	}

	time.Sleep(200 * time.Millisecond)

	mock.mu.Lock()
	defer mock.mu.Unlock()
	if len(mock.batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(mock.batches))
	}
	batch := mock.batches[0]
	for i, env := range batch {
		if env.BatchID == "" || env.BatchID != batch[0].BatchID {
			t.Errorf("envelope %d has batch id %q, want shared non-empty id", i, env.BatchID)
		}
		if env.BatchIndex != i {
			t.Errorf("envelope %d has batch index %d", i, env.BatchIndex)
		}
		if env.PartitionKey != "pump-001" {
			t.Errorf("envelope %d has partition key %q", i, env.PartitionKey)
		}
	}
}

func TestWorkerPool_DrainsClosedChannel(t *testing.T) {
	ch := make(chan *models.AlertEnvelope, 100)
	mock := &MockPublisher{}

	pool := NewPool(Config{
		Publisher:    mock,
		EnvelopeChan: ch,
		Workers:      2,
		BatchSize:    50,
		BatchTimeout: time.Minute,
	})

	for i := 0; i < 9; i++ {
		ch <- models.NewEnvelope(testAlert(i), "test-node")
	}
	close(ch)

	pool.Start()

	done := make(chan struct{})
	go func() {
		pool.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not exit after the channel closed")
	}
	pool.Stop()

	if mock.published.Load() != 9 {
		t.Errorf("expected 9 published after drain, got %d", mock.published.Load())
	}
}

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"facilitywatch/internal/engine"
	"facilitywatch/internal/kafka"
	"facilitywatch/internal/worker"
)

// Stats is the body of /stats
type Stats struct {
	Engine   engine.Summary       `json:"engine"`
	Running  bool                 `json:"running"`
	Clients  int                  `json:"wsClients"`
	Worker   *worker.Stats        `json:"worker,omitempty"`
	Producer *kafka.ProducerStats `json:"producer,omitempty"`
	Queue    *QueueStats          `json:"queue,omitempty"`
}

// QueueStats describes the alert publish queue
type QueueStats struct {
	Buffered int `json:"buffered"`
	Capacity int `json:"capacity"`
}

func (s *Server) stats() Stats {
	st := Stats{
		Engine:  s.engine.Summary(),
		Running: s.engine.Running(),
		Clients: s.hub.Clients(),
	}
	if s.workerPool != nil {
		ws := s.workerPool.Stats()
		ps := s.publisher.Stats()
		st.Worker = &ws
		st.Producer = &ps
		st.Queue = &QueueStats{Buffered: len(s.envelopeChan), Capacity: cap(s.envelopeChan)}
	}
	return st
}

// healthHandler handles health check requests
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":    "healthy",
		"running":   s.engine.Running(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	// Check Kafka connectivity
	if s.publisher != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.publisher.HealthCheck(ctx); err != nil {
			body["status"] = "unhealthy"
			body["error"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, body)
}

// statsHandler returns current statistics
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

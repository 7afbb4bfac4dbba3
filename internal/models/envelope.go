package models

import (
	"time"
)

// AlertEnvelope wraps an Alert with delivery metadata for the alert bus
type AlertEnvelope struct {
	// Original alert
	Alert *Alert `json:"alert"`

	// Delivery metadata
	RaisedAt     time.Time `json:"raised_at"`
	Node         string    `json:"node"`
	BatchID      string    `json:"batch_id,omitempty"`
	BatchIndex   int       `json:"batch_index,omitempty"`
	RetryCount   int       `json:"retry_count"`
	PartitionKey string    `json:"partition_key"`
}

// NewEnvelope creates a new envelope wrapping a copy of the alert
func NewEnvelope(alert Alert, node string) *AlertEnvelope {
	return &AlertEnvelope{
		Alert:        &alert,
		RaisedAt:     time.Now().UTC(),
		Node:         node,
		RetryCount:   0,
		PartitionKey: alert.EquipmentID, // per-equipment ordering
	}
}

// WithBatch sets batch metadata on the envelope
func (e *AlertEnvelope) WithBatch(batchID string, index int) *AlertEnvelope {
	e.BatchID = batchID
	e.BatchIndex = index
	return e
}

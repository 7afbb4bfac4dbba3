package models

import (
	"errors"
	"time"
)

// Severity represents alert urgency
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Alert is a notification about a piece of equipment. Alerts are never deleted;
// the only permitted mutation is IsRead going from false to true.
type Alert struct {
	ID            string    `json:"id"`
	EquipmentID   string    `json:"equipmentId"`
	EquipmentName string    `json:"equipmentName"`
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
	Severity      Severity  `json:"severity"`
	IsRead        bool      `json:"isRead"`
}

// Reading is one synthesized point of a sensor time series
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

var (
	ErrEmptyAlertID      = errors.New("alert ID cannot be empty")
	ErrEmptyEquipmentRef = errors.New("alert must reference an equipment ID")
	ErrZeroTimestamp     = errors.New("timestamp cannot be zero")
	ErrInvalidSeverity   = errors.New("invalid severity level")
	ErrEmptyAlertMessage = errors.New("alert message cannot be empty")
)

// IsValid checks if the severity level is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	default:
		return false
	}
}

// Validate checks if the Alert has all required fields and valid values
func (a *Alert) Validate() error {
	if a.ID == "" {
		return ErrEmptyAlertID
	}
	if a.EquipmentID == "" {
		return ErrEmptyEquipmentRef
	}
	if a.Timestamp.IsZero() {
		return ErrZeroTimestamp
	}
	if !a.Severity.IsValid() {
		return ErrInvalidSeverity
	}
	if a.Message == "" {
		return ErrEmptyAlertMessage
	}
	return nil
}

// NotificationClass separates toasts that demand attention from the rest
type NotificationClass string

const (
	NotificationUrgent        NotificationClass = "urgent"
	NotificationInformational NotificationClass = "informational"
)

// Notification is a transient, user-facing message raised alongside an update
type Notification struct {
	Class   NotificationClass `json:"class"`
	Title   string            `json:"title"`
	Message string            `json:"message,omitempty"`
	AlertID string            `json:"alertId,omitempty"`
}

// NotificationFor builds the toast for a freshly raised alert
func NotificationFor(a Alert) Notification {
	if a.Severity == SeverityHigh {
		return Notification{
			Class:   NotificationUrgent,
			Title:   "Critical Alert",
			Message: a.Message,
			AlertID: a.ID,
		}
	}
	return Notification{
		Class:   NotificationInformational,
		Title:   "New Alert",
		Message: a.Message,
		AlertID: a.ID,
	}
}

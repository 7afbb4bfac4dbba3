package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"facilitywatch/internal/engine"
	"facilitywatch/internal/logger"
	"facilitywatch/internal/models"
	"facilitywatch/internal/threshold"
)

const (
	maxHistoryHours  = 24 * 30
	maxHistoryPoints = 2000
)

// Engine is the subset of the simulation engine the HTTP API serves
type Engine interface {
	Equipment() []models.Equipment
	SelectEquipment(id string) (models.Equipment, bool)
	SensorHistory(id string, window time.Duration, points int) (map[string][]models.Reading, error)
	Prediction(id string) (threshold.Prediction, error)
	Alerts() []models.Alert
	UnreadCount() int
	MarkAlertRead(id string) bool
	MarkAllAlertsRead() int
	OpenAlert(id string) (models.Equipment, error)
	Summary() engine.Summary
}

// APIHandler serves the equipment and alert views
type APIHandler struct {
	engine Engine
}

// HistoryResponse is returned by the sensor history endpoint
type HistoryResponse struct {
	EquipmentID string                      `json:"equipmentId"`
	Hours       float64                     `json:"hours,omitempty"`
	Points      int                         `json:"points,omitempty"`
	Sensors     map[string][]models.Reading `json:"sensors"`
}

// ReadResponse reports the outcome of a mark-read request
type ReadResponse struct {
	Success     bool `json:"success"`
	Changed     int  `json:"changed"`
	UnreadCount int  `json:"unreadCount"`
}

// NewAPIHandler creates the API handler
func NewAPIHandler(e Engine) *APIHandler {
	return &APIHandler{engine: e}
}

// Routes mounts the API on r
func (h *APIHandler) Routes(r chi.Router) {
	r.Route("/equipment", func(r chi.Router) {
		r.Get("/", h.listEquipment)
		r.Get("/{id}", h.getEquipment)
		r.Get("/{id}/history", h.equipmentHistory)
		r.Get("/{id}/prediction", h.equipmentPrediction)
	})
	r.Route("/alerts", func(r chi.Router) {
		r.Get("/", h.listAlerts)
		r.Get("/unread-count", h.unreadCount)
		r.Post("/read-all", h.markAllRead)
		r.Post("/{id}/read", h.markRead)
		r.Post("/{id}/open", h.openAlert)
	})
	r.Get("/summary", h.summary)
}

func (h *APIHandler) listEquipment(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Equipment())
}

func (h *APIHandler) getEquipment(w http.ResponseWriter, r *http.Request) {
	eq, ok := h.engine.SelectEquipment(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "equipment not found")
		return
	}
	writeJSON(w, http.StatusOK, eq)
}

func (h *APIHandler) equipmentHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := r.URL.Query()

	var hours float64
	if v := q.Get("hours"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 || parsed > maxHistoryHours {
			writeError(w, http.StatusBadRequest, "hours must be a positive number no greater than 720")
			return
		}
		hours = parsed
	}

	var points int
	if v := q.Get("points"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > maxHistoryPoints {
			writeError(w, http.StatusBadRequest, "points must be an integer between 1 and 2000")
			return
		}
		points = parsed
	}

	sensors, err := h.engine.SensorHistory(id, time.Duration(hours*float64(time.Hour)), points)
	if errors.Is(err, engine.ErrEquipmentNotFound) {
		writeError(w, http.StatusNotFound, "equipment not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		EquipmentID: id,
		Hours:       hours,
		Points:      points,
		Sensors:     sensors,
	})
}

func (h *APIHandler) equipmentPrediction(w http.ResponseWriter, r *http.Request) {
	p, err := h.engine.Prediction(chi.URLParam(r, "id"))
	if errors.Is(err, engine.ErrEquipmentNotFound) {
		writeError(w, http.StatusNotFound, "equipment not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// listAlerts returns alerts newest first. ?unread=true keeps only unread ones.
func (h *APIHandler) listAlerts(w http.ResponseWriter, r *http.Request) {
	all := h.engine.Alerts()

	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	if !unreadOnly {
		writeJSON(w, http.StatusOK, all)
		return
	}

	out := make([]models.Alert, 0, len(all))
	for _, a := range all {
		if !a.IsRead {
			out = append(out, a)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *APIHandler) unreadCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"unreadCount": h.engine.UnreadCount()})
}

// markRead succeeds for unknown or already read IDs; Changed tells them apart
func (h *APIHandler) markRead(w http.ResponseWriter, r *http.Request) {
	resp := ReadResponse{Success: true}
	if h.engine.MarkAlertRead(chi.URLParam(r, "id")) {
		resp.Changed = 1
	}
	resp.UnreadCount = h.engine.UnreadCount()
	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) markAllRead(w http.ResponseWriter, r *http.Request) {
	changed := h.engine.MarkAllAlertsRead()
	writeJSON(w, http.StatusOK, ReadResponse{
		Success:     true,
		Changed:     changed,
		UnreadCount: h.engine.UnreadCount(),
	})
}

func (h *APIHandler) openAlert(w http.ResponseWriter, r *http.Request) {
	eq, err := h.engine.OpenAlert(chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, engine.ErrAlertNotFound):
		writeError(w, http.StatusNotFound, "alert not found")
	case errors.Is(err, engine.ErrEquipmentNotFound):
		writeError(w, http.StatusNotFound, "equipment not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, eq)
	}
}

func (h *APIHandler) summary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Summary())
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log := logger.WithComponent("handlers")
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

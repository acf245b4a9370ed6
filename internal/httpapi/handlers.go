package httpapi

import (
	"errors"
	"net/http"
	"time"

	"smartwake/internal/alarm"
	"smartwake/internal/models"
	"smartwake/internal/scheduler"

	"go.uber.org/zap"
)

// Handler HTTP handlers over AlarmAPI
type Handler struct {
	api    AlarmAPI
	logger *zap.Logger
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.api.Status(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, view)
}

type snoozeRequest struct {
	Minutes int `json:"minutes"`
}

func (h *Handler) Snooze(w http.ResponseWriter, r *http.Request) {
	var req snoozeRequest
	if err := decodeBody(w, r, &req); err != nil {
		badBody(w, err)
		return
	}
	if req.Minutes < 0 {
		respondError(w, http.StatusBadRequest, "minutes must not be negative")
		return
	}
	if err := h.api.Snooze(r.Context(), req.Minutes); err != nil {
		h.fail(w, err)
		return
	}
	h.writeStatus(w, r)
}

func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	if err := h.api.Dismiss(r.Context()); err != nil {
		h.fail(w, err)
		return
	}
	h.writeStatus(w, r)
}

type setAlarmRequest struct {
	WakeTime      string `json:"wake_time"`
	WindowMinutes int    `json:"window_minutes"`
}

func (h *Handler) SetAlarm(w http.ResponseWriter, r *http.Request) {
	var req setAlarmRequest
	if err := decodeBody(w, r, &req); err != nil {
		badBody(w, err)
		return
	}
	wake, err := models.ParseClockTime(req.WakeTime)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.WindowMinutes < 0 {
		respondError(w, http.StatusBadRequest, "window_minutes must not be negative")
		return
	}
	if err := h.api.SetAlarm(r.Context(), wake, req.WindowMinutes); err != nil {
		h.fail(w, err)
		return
	}
	h.writeStatus(w, r)
}

func (h *Handler) DisableAlarm(w http.ResponseWriter, r *http.Request) {
	if err := h.api.DisableAlarm(r.Context()); err != nil {
		h.fail(w, err)
		return
	}
	h.writeStatus(w, r)
}

type cloudRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *Handler) SetCloud(w http.ResponseWriter, r *http.Request) {
	var req cloudRequest
	if err := decodeBody(w, r, &req); err != nil {
		badBody(w, err)
		return
	}
	if req.Enabled == nil {
		respondError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	if err := h.api.SetCloudEnabled(r.Context(), *req.Enabled); err != nil {
		h.fail(w, err)
		return
	}
	h.writeStatus(w, r)
}

// readingView flattens a reading with its resolved quality and source
type readingView struct {
	ID           string              `json:"id"`
	Timestamp    time.Time           `json:"timestamp"`
	LocalQuality models.Quality `json:"local_quality"`
	LocalScore   float64             `json:"local_score"`
	Cloud        *models.CloudResult `json:"cloud,omitempty"`
	FinalQuality models.Quality `json:"final_quality"`
	Source       string              `json:"source"`
	Synced       bool                `json:"synced"`
}

func newReadingView(r models.SleepReading) readingView {
	return readingView{
		ID:           r.ID,
		Timestamp:    r.Timestamp,
		LocalQuality: r.LocalQuality,
		LocalScore:   r.LocalScore,
		Cloud:        r.Cloud,
		FinalQuality: r.FinalQuality(),
		Source:       r.Source(),
		Synced:       r.Synced,
	}
}

func (h *Handler) ListReadings(w http.ResponseWriter, r *http.Request) {
	limit := listLimit(r)
	readings, err := h.api.RecentReadings(r.Context(), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	items := make([]readingView, 0, len(readings))
	for _, reading := range readings {
		items = append(items, newReadingView(reading))
	}
	respond(w, newListPage(items))
}

func (h *Handler) ListAlarmEvents(w http.ResponseWriter, r *http.Request) {
	limit := listLimit(r)
	events, err := h.api.RecentAlarmEvents(r.Context(), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, newListPage(events))
}

func (h *Handler) writeStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.api.Status(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, view)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, alarm.ErrNotTriggered):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, scheduler.ErrNotRunning):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("Request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

package httpapi

import (
	"context"
	"net/http"

	"smartwake/internal/models"
	"smartwake/internal/service"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// AlarmAPI operations exposed over HTTP. Mutations run on the scheduler loop.
type AlarmAPI interface {
	Status(ctx context.Context) (service.StatusView, error)
	Snooze(ctx context.Context, minutes int) error
	Dismiss(ctx context.Context) error
	SetAlarm(ctx context.Context, wake models.ClockTime, windowMinutes int) error
	DisableAlarm(ctx context.Context) error
	SetCloudEnabled(ctx context.Context, enabled bool) error
	RecentReadings(ctx context.Context, n int) ([]models.SleepReading, error)
	RecentAlarmEvents(ctx context.Context, n int) ([]models.AlarmEvent, error)
}

var _ AlarmAPI = (*service.SmartWakeService)(nil)

// NewRouter builds the status router
func NewRouter(api AlarmAPI, logger *zap.Logger) http.Handler {
	h := &Handler{api: api, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api").Subrouter()
	v1.HandleFunc("/status", h.GetStatus).Methods(http.MethodGet)
	v1.HandleFunc("/alarm", h.SetAlarm).Methods(http.MethodPut)
	v1.HandleFunc("/alarm", h.DisableAlarm).Methods(http.MethodDelete)
	v1.HandleFunc("/alarm/snooze", h.Snooze).Methods(http.MethodPost)
	v1.HandleFunc("/alarm/dismiss", h.Dismiss).Methods(http.MethodPost)
	v1.HandleFunc("/alarm/events", h.ListAlarmEvents).Methods(http.MethodGet)
	v1.HandleFunc("/cloud", h.SetCloud).Methods(http.MethodPut)
	v1.HandleFunc("/readings", h.ListReadings).Methods(http.MethodGet)

	return r
}

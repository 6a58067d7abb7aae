package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"fleet-monitor/telemetry/internal/domain"
	"fleet-monitor/telemetry/internal/metrics"
	"fleet-monitor/telemetry/internal/telemetry"
	"fleet-monitor/telemetry/pkg/log"
)

const maxBodyBytes = 64 << 10

// TelemetryService is the ingest and query contract served over HTTP.
type TelemetryService interface {
	AddOrInitVehicle(id string, attrs map[string]any) error
	RemoveVehicle(id string) error
	UpdateStatus(id, status string) error
	GetTelemetry(id string) (domain.VehicleTelemetry, error)
	GetAllTelemetry() []domain.VehicleTelemetry
}

// ReadinessCheck reports whether one dependency is usable.
type ReadinessCheck func(ctx context.Context) error

type RouterOptions struct {
	Service TelemetryService
	Auth    *AuthMiddleware

	WSPath    string
	WSHandler http.Handler

	Ready   map[string]ReadinessCheck
	Metrics http.Handler
	Logger  log.Logger
}

type handlers struct {
	svc TelemetryService
	log log.Logger
}

func NewRouter(opts RouterOptions) *mux.Router {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	auth := opts.Auth
	if auth == nil {
		auth = NewAuthMiddleware(nil)
	}
	h := &handlers{svc: opts.Service, log: logger}

	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/readyz", readyHandler(opts.Ready)).Methods(http.MethodGet)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}
	if opts.WSHandler != nil {
		path := opts.WSPath
		if path == "" {
			path = "/ws"
		}
		r.Handle(path, opts.WSHandler)
	}

	api := r.PathPrefix("/api/vehicles").Subrouter()
	api.Use(accessLog(logger))
	api.HandleFunc("/telemetry/all", h.listTelemetry).Methods(http.MethodGet)
	api.HandleFunc("/{id}/telemetry", h.getTelemetry).Methods(http.MethodGet)
	api.Handle("/{id}", auth.Wrap(http.HandlerFunc(h.putVehicle))).Methods(http.MethodPut)
	api.Handle("/{id}", auth.Wrap(http.HandlerFunc(h.deleteVehicle))).Methods(http.MethodDelete)
	api.Handle("/{id}/status", auth.Wrap(http.HandlerFunc(h.patchStatus))).Methods(http.MethodPatch)

	return r
}

func (h *handlers) listTelemetry(w http.ResponseWriter, _ *http.Request) {
	all := h.svc.GetAllTelemetry()
	views := make([]domain.TelemetryView, 0, len(all))
	for _, v := range all {
		views = append(views, domain.NewTelemetryView(v))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handlers) getTelemetry(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.GetTelemetry(mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.NewTelemetryView(v))
}

func (h *handlers) putVehicle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	attrs := map[string]any{}
	if err := decodeBody(r, &attrs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.AddOrInitVehicle(id, attrs); err != nil {
		h.writeServiceError(w, err)
		return
	}
	metrics.IngestEvents.WithLabelValues("http", "upsert").Inc()

	v, err := h.svc.GetTelemetry(id)
	if err != nil {
		// Removed again between the two calls.
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.NewTelemetryView(v))
}

func (h *handlers) deleteVehicle(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveVehicle(mux.Vars(r)["id"]); err != nil {
		h.writeServiceError(w, err)
		return
	}
	metrics.IngestEvents.WithLabelValues("http", "remove").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Vehicle deleted successfully"})
}

type statusRequest struct {
	Status *string `json:"status"`
}

func (h *handlers) patchStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := string(domain.StatusAvailable)
	if req.Status != nil {
		status = *req.Status
	}

	if err := h.svc.UpdateStatus(id, status); err != nil {
		h.writeServiceError(w, err)
		return
	}
	metrics.IngestEvents.WithLabelValues("http", "status").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": status})
}

func (h *handlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, telemetry.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, telemetry.ErrInvalidID),
		errors.Is(err, telemetry.ErrInvalidStatus),
		errors.Is(err, telemetry.ErrInvalidAttribute):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error(err, "request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func readyHandler(checks map[string]ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		failed := map[string]string{}
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": failed})
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

// decodeBody reads an optional JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errors.New("malformed JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

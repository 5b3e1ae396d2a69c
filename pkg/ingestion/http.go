package ingestion

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/renalytics-ai/platform/pkg/common/logger"
	"github.com/renalytics-ai/platform/pkg/common/models"
)

type HTTPHandler struct {
	service *Service
	maxBody int64
}

func NewHTTPHandler(service *Service, maxBody int64) *HTTPHandler {
	return &HTTPHandler{service: service, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/measurements", h.handleMeasurements).Methods(http.MethodPost)
	router.HandleFunc("/measurements/status/{id}", h.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/patients/{pid}/measurements", h.handlePatientMeasurements).Methods(http.MethodGet)
	router.HandleFunc("/registrations", h.handleRegistrations).Methods(http.MethodPost)
	router.HandleFunc("/demographics", h.handleDemographics).Methods(http.MethodPost)
}

func (h *HTTPHandler) handleMeasurements(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.WithError(err).Warn("invalid telemetry payload")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	batch, err := h.service.Process(r.Context(), req)
	if err != nil {
		if IsValidationError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Log.WithError(err).Error("failed to process telemetry batch")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(batch)
}

func (h *HTTPHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	batch, err := h.service.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "batch not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to fetch batch status")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(batch)
}

func (h *HTTPHandler) handlePatientMeasurements(w http.ResponseWriter, r *http.Request) {
	pid := mux.Vars(r)["pid"]

	measurements, err := h.service.Measurements(r.Context(), pid)
	if err != nil {
		logger.Log.WithError(err).Error("failed to fetch measurements")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(measurements)
}

func (h *HTTPHandler) handleRegistrations(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var records []models.RegistrationRecord
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.service.SaveRegistrations(r.Context(), records); err != nil {
		logger.Log.WithError(err).Error("failed to store registrations")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]int{"stored": len(records)})
}

func (h *HTTPHandler) handleDemographics(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var records []models.DemographicRecord
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.service.SaveDemographics(r.Context(), records); err != nil {
		logger.Log.WithError(err).Error("failed to store demographics")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]int{"stored": len(records)})
}

package featurizer

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/renalytics-ai/platform/pkg/common/logger"
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/sessions/featurize", h.handleFeaturize).Methods(http.MethodPost)
	router.HandleFunc("/patients/{pid}/features", h.handleBuild).Methods(http.MethodPost)
	router.HandleFunc("/sessions/{id}/features", h.handleRows).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{id}/payload", h.handlePayload).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleFeaturize(w http.ResponseWriter, r *http.Request) {
	var req FeaturizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	rows, err := h.service.Featurize(req)
	if err != nil {
		logger.Log.WithError(err).Warn("featurization failed")
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rows)
}

func (h *HTTPHandler) handleBuild(w http.ResponseWriter, r *http.Request) {
	pid := mux.Vars(r)["pid"]

	rows, err := h.service.BuildForPatient(r.Context(), pid)
	if err != nil {
		logger.Log.WithError(err).Error("failed to build features")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"pid":  pid,
		"rows": len(rows),
	})
}

func (h *HTTPHandler) handleRows(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	rows, err := h.service.RowsForSession(r.Context(), sessionID)
	if err != nil {
		logger.Log.WithError(err).Error("failed to fetch feature rows")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rows)
}

func (h *HTTPHandler) handlePayload(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	body, err := h.service.PayloadForSession(r.Context(), sessionID, nil)
	if err != nil {
		if errors.Is(err, ErrNoFeatures) {
			http.Error(w, "no feature rows for session", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to build payload")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}
